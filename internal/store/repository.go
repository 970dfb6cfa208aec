/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the engagement-service needs. Keeping the interface separate from
 * the PostgreSQL implementation lets the application layer be tested with
 * in-memory stubs.
 *
 * The ledger methods are the atomicity boundary of the whole system: any
 * method that changes a balance also writes the matching ledger entry (and at
 * most one additional domain row) inside one database transaction.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"

	"github.com/exoboost/engagement-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// User methods
	GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*domain.User, error)
	FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error)
	ListUsers(ctx context.Context, limit int) ([]domain.User, error)
	ListActiveUserIDs(ctx context.Context) ([]int64, error)
	SetUserStatus(ctx context.Context, telegramID int64, status string) error

	// Ledger methods. Credit and Debit mutate the balance and insert the
	// matching ledger entry in one transaction; Debit fails with
	// ErrInsufficientBalance when the balance cannot cover the amount.
	Credit(ctx context.Context, userID int64, amount int64, kind string, serviceID *int, details string) error
	Debit(ctx context.Context, userID int64, amount int64, kind string, serviceID *int, details string) error
	SumLedgerByUser(ctx context.Context, userID int64) (int64, error)

	// Order methods. CreateOrderWithDebit is one atomic unit: debit, ledger
	// entry, and order row commit or roll back together.
	CreateOrderWithDebit(ctx context.Context, order *domain.Order) error
	MarkOrderProcessing(ctx context.Context, orderID, externalID string) error
	MarkOrderCompleted(ctx context.Context, orderID string) error
	MarkOrderFailed(ctx context.Context, orderID string) error
	FindOrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error)
	ListOrders(ctx context.Context, limit int) ([]domain.Order, error)
	ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error)

	// Referral methods. GrantReferralBonus performs one atomic unit: referrer
	// credit, referral counter, referral row. The uniqueness of the
	// referred id is enforced by the insert itself; a duplicate aborts the
	// unit and returns ErrAlreadyReferred.
	FindReferralByReferredID(ctx context.Context, referredID int64) (*domain.Referral, error)
	GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonus int64) error

	// Task methods. ClaimTask inserts the claim row and credits the reward in
	// one transaction; a duplicate claim returns ErrAlreadyClaimed.
	CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	FindTaskByID(ctx context.Context, taskID int64) (*domain.Task, error)
	ListActiveTasks(ctx context.Context) ([]domain.Task, error)
	ClaimTask(ctx context.Context, taskID, userID int64, reward int64, details string) error

	// Anti-abuse methods. RecordVerification stores the captured signals and
	// marks the account verified without touching its status: a banned or
	// blocked account that re-opens its link must stay banned or blocked.
	// RecordVerificationBlock additionally moves the account to blocked.
	FindActiveUsersByIP(ctx context.Context, ip string, excludeID int64) ([]domain.User, error)
	FindActiveUsersByDevice(ctx context.Context, deviceID string, excludeID int64) ([]domain.User, error)
	RecordVerification(ctx context.Context, telegramID int64, ip, deviceID string) error
	RecordVerificationBlock(ctx context.Context, telegramID int64, ip, deviceID string) error

	// Admin log methods
	CreateAdminLog(ctx context.Context, entry *domain.AdminLog) error
	ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error)
}
