/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository`
 * interface. All balance mutation runs through one pattern: open a
 * transaction, lock the user row with SELECT ... FOR UPDATE, apply the delta,
 * insert the ledger entry (and at most one extra domain row), commit.
 * Concurrent mutations against the same user serialize on the row lock;
 * different users proceed independently.
 *
 * Uniqueness invariants that close check-then-write races (one referral per
 * referred user, one claim per user per task) are enforced by unique indexes
 * and detected through ON CONFLICT DO NOTHING inside the same transaction as
 * the bonus grant.
 *
 * @dependencies
 * - context, errors, time: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver.
 * - github.com/google/uuid: Referral code generation.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/exoboost/engagement-service/internal/domain"
)

var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrOrderNotFound       = errors.New("order not found")
	ErrTaskNotFound        = errors.New("task not found")
	ErrAlreadyClaimed      = errors.New("task already claimed")
	ErrAlreadyReferred     = errors.New("user already referred")
	ErrConflict            = errors.New("storage conflict")
)

// PostgresRepository is the concrete Repository backed by PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `telegram_id, COALESCE(username, ''), balance, referrals, COALESCE(ip_address, ''), COALESCE(device_id, ''), status, verified, referral_code, joined_at`

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.TelegramID, &u.Username, &u.Balance, &u.Referrals, &u.IPAddress, &u.DeviceID, &u.Status, &u.Verified, &u.ReferralCode, &u.JoinedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &u, nil
}

// isSerializationFailure reports whether err is a transient transaction
// conflict (serialization failure or deadlock) worth one retry.
func isSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withRetry runs fn and retries it exactly once if the first attempt failed
// with a serialization conflict. A second failure surfaces as ErrConflict so
// callers can tell the user to try again.
func withRetry(ctx context.Context, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	if err == nil || !isSerializationFailure(err) {
		return err
	}
	if err = fn(ctx); err != nil {
		if isSerializationFailure(err) {
			return ErrConflict
		}
		return err
	}
	return nil
}

// GetOrCreateUser fetches the account for a Telegram id, creating it with a
// zero balance and a fresh referral code on first contact. Concurrent first
// contacts are safe: the insert is ON CONFLICT DO NOTHING and loses to the
// existing row.
func (r *PostgresRepository) GetOrCreateUser(ctx context.Context, telegramID int64, username string) (*domain.User, error) {
	user, err := r.FindUserByTelegramID(ctx, telegramID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO users (telegram_id, username, referral_code)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO NOTHING
	`, telegramID, username, uuid.NewString())
	if err != nil {
		return nil, err
	}
	return r.FindUserByTelegramID(ctx, telegramID)
}

// FindUserByTelegramID retrieves a user by their Telegram id.
func (r *PostgresRepository) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return scanUser(r.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_id = $1`, telegramID))
}

// ListUsers returns the most recently joined users, capped at limit.
func (r *PostgresRepository) ListUsers(ctx context.Context, limit int) ([]domain.User, error) {
	rows, err := r.db.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY joined_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// ListActiveUserIDs returns the Telegram ids of every active user, used by
// the broadcast command.
func (r *PostgresRepository) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.db.Query(ctx, `SELECT telegram_id FROM users WHERE status = $1`, domain.UserStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetUserStatus updates a user's status (ban / block).
func (r *PostgresRepository) SetUserStatus(ctx context.Context, telegramID int64, status string) error {
	tag, err := r.db.Exec(ctx, `UPDATE users SET status = $1 WHERE telegram_id = $2`, status, telegramID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// lockBalance reads a user's balance inside tx with a row lock, serializing
// concurrent mutations of the same account.
func lockBalance(ctx context.Context, tx pgx.Tx, userID int64) (int64, error) {
	var balance int64
	err := tx.QueryRow(ctx, `SELECT balance FROM users WHERE telegram_id = $1 FOR UPDATE`, userID).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return balance, nil
}

func insertLedgerEntry(ctx context.Context, tx pgx.Tx, userID, amount int64, kind string, serviceID *int, details string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (user_id, amount, kind, service_id, details)
		VALUES ($1, $2, $3, $4, $5)
	`, userID, amount, kind, serviceID, details)
	return err
}

// Credit atomically adds amount to the user's balance and records the ledger
// entry. amount must be positive.
func (r *PostgresRepository) Credit(ctx context.Context, userID int64, amount int64, kind string, serviceID *int, details string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		if _, err := lockBalance(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance + $1 WHERE telegram_id = $2`, amount, userID); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, userID, amount, kind, serviceID, details); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// Debit atomically subtracts amount from the user's balance and records the
// ledger entry with a negative amount. Fails with ErrInsufficientBalance when
// the locked balance cannot cover the amount; nothing is written in that case.
func (r *PostgresRepository) Debit(ctx context.Context, userID int64, amount int64, kind string, serviceID *int, details string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		balance, err := lockBalance(ctx, tx, userID)
		if err != nil {
			return err
		}
		if balance < amount {
			return ErrInsufficientBalance
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $1 WHERE telegram_id = $2`, amount, userID); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, userID, -amount, kind, serviceID, details); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// SumLedgerByUser returns the sum of all committed ledger amounts for a
// user. Matches the account balance at all times (reconciliation invariant).
func (r *PostgresRepository) SumLedgerByUser(ctx context.Context, userID int64) (int64, error) {
	var sum int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE user_id = $1`, userID).Scan(&sum)
	return sum, err
}

// CreateOrderWithDebit debits the order total and creates the order row in
// pending status, all in one transaction. A concurrent order by the same user
// observes this order's committed debit before its own balance check.
func (r *PostgresRepository) CreateOrderWithDebit(ctx context.Context, order *domain.Order) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		balance, err := lockBalance(ctx, tx, order.UserID)
		if err != nil {
			return err
		}
		if balance < order.TotalPoints {
			return ErrInsufficientBalance
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance - $1 WHERE telegram_id = $2`, order.TotalPoints, order.UserID); err != nil {
			return err
		}
		svcID := order.ServiceID
		if err := insertLedgerEntry(ctx, tx, order.UserID, -order.TotalPoints, domain.EntryKindDebit, &svcID, order.Details()); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO orders (order_id, user_id, service_id, quantity, total_points, status)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, order.OrderID, order.UserID, order.ServiceID, order.Quantity, order.TotalPoints, domain.OrderStatusPending); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// MarkOrderProcessing records supplier acknowledgement.
func (r *PostgresRepository) MarkOrderProcessing(ctx context.Context, orderID, externalID string) error {
	return r.updateOrderStatus(ctx, orderID, domain.OrderStatusProcessing, &externalID)
}

// MarkOrderCompleted marks a fulfilled order.
func (r *PostgresRepository) MarkOrderCompleted(ctx context.Context, orderID string) error {
	return r.updateOrderStatus(ctx, orderID, domain.OrderStatusCompleted, nil)
}

// MarkOrderFailed marks an order whose supplier placement failed. The debited
// points stay debited; failed orders go to manual review.
func (r *PostgresRepository) MarkOrderFailed(ctx context.Context, orderID string) error {
	return r.updateOrderStatus(ctx, orderID, domain.OrderStatusFailed, nil)
}

func (r *PostgresRepository) updateOrderStatus(ctx context.Context, orderID, status string, externalID *string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE orders SET status = $1, external_id = COALESCE($2, external_id) WHERE order_id = $3
	`, status, externalID, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrOrderNotFound
	}
	return nil
}

const orderColumns = `order_id, user_id, service_id, quantity, total_points, status, external_id, created_at`

func scanOrders(rows pgx.Rows) ([]domain.Order, error) {
	defer rows.Close()
	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.OrderID, &o.UserID, &o.ServiceID, &o.Quantity, &o.TotalPoints, &o.Status, &o.ExternalID, &o.CreatedAt); err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// FindOrdersByUser returns a user's orders, newest first, capped at limit.
func (r *PostgresRepository) FindOrdersByUser(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// ListOrders returns the newest orders across all users.
func (r *PostgresRepository) ListOrders(ctx context.Context, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// ListOrdersByStatus returns the oldest orders in the given status, used by
// the reconciliation sweep.
func (r *PostgresRepository) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `SELECT `+orderColumns+` FROM orders WHERE status = $1 ORDER BY created_at ASC LIMIT $2`, status, limit)
	if err != nil {
		return nil, err
	}
	return scanOrders(rows)
}

// FindReferralByReferredID looks up the referral record for a referred user.
func (r *PostgresRepository) FindReferralByReferredID(ctx context.Context, referredID int64) (*domain.Referral, error) {
	var ref domain.Referral
	err := r.db.QueryRow(ctx, `
		SELECT referrer_id, referred_id, points_earned, created_at FROM referrals WHERE referred_id = $1
	`, referredID).Scan(&ref.ReferrerID, &ref.ReferredID, &ref.PointsEarned, &ref.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &ref, nil
}

// GrantReferralBonus credits the referrer, bumps their referral counter and
// records the referral, all in one transaction. The UNIQUE index on
// referrals.referred_id makes the duplicate check part of the atomic unit: a
// losing concurrent grant rolls back with ErrAlreadyReferred and credits
// nothing.
func (r *PostgresRepository) GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonus int64) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx, `
			INSERT INTO referrals (referrer_id, referred_id, points_earned)
			VALUES ($1, $2, $3)
			ON CONFLICT (referred_id) DO NOTHING
		`, referrerID, referredID, bonus)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyReferred
		}

		if _, err := lockBalance(ctx, tx, referrerID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			UPDATE users SET balance = balance + $1, referrals = referrals + 1 WHERE telegram_id = $2
		`, bonus, referrerID); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, referrerID, bonus, domain.EntryKindReferral, nil, domain.ReferralDetails(referredID)); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// CreateTask inserts a new administrator-created task and returns it.
func (r *PostgresRepository) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	err := r.db.QueryRow(ctx, `
		INSERT INTO tasks (title, points, active, created_by)
		VALUES ($1, $2, TRUE, $3)
		RETURNING id, title, points, active, created_by, created_at
	`, task.Title, task.Points, task.CreatedBy).Scan(&task.ID, &task.Title, &task.Points, &task.Active, &task.CreatedBy, &task.CreatedAt)
	if err != nil {
		return nil, err
	}
	return task, nil
}

// FindTaskByID retrieves one task.
func (r *PostgresRepository) FindTaskByID(ctx context.Context, taskID int64) (*domain.Task, error) {
	var t domain.Task
	err := r.db.QueryRow(ctx, `
		SELECT id, title, points, active, created_by, created_at FROM tasks WHERE id = $1
	`, taskID).Scan(&t.ID, &t.Title, &t.Points, &t.Active, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTaskNotFound
		}
		return nil, err
	}
	return &t, nil
}

// ListActiveTasks returns all active tasks.
func (r *PostgresRepository) ListActiveTasks(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, title, points, active, created_by, created_at FROM tasks WHERE active ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []domain.Task
	for rows.Next() {
		var t domain.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Points, &t.Active, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// ClaimTask records a claim and credits the reward in one transaction. The
// UNIQUE(task_id, user_id) index rejects a second claim by the same user
// inside the same unit, so the reward can never be paid twice.
func (r *PostgresRepository) ClaimTask(ctx context.Context, taskID, userID int64, reward int64, details string) error {
	return withRetry(ctx, func(ctx context.Context) error {
		tx, err := r.db.Begin(ctx)
		if err != nil {
			return err
		}
		defer tx.Rollback(ctx)

		tag, err := tx.Exec(ctx, `
			INSERT INTO task_claims (task_id, user_id)
			VALUES ($1, $2)
			ON CONFLICT (task_id, user_id) DO NOTHING
		`, taskID, userID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrAlreadyClaimed
		}

		if _, err := lockBalance(ctx, tx, userID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `UPDATE users SET balance = balance + $1 WHERE telegram_id = $2`, reward, userID); err != nil {
			return err
		}
		if err := insertLedgerEntry(ctx, tx, userID, reward, domain.EntryKindTask, nil, details); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
}

// FindActiveUsersByIP returns other active accounts last seen at the same IP.
func (r *PostgresRepository) FindActiveUsersByIP(ctx context.Context, ip string, excludeID int64) ([]domain.User, error) {
	return r.findActiveUsersBy(ctx, `ip_address`, ip, excludeID)
}

// FindActiveUsersByDevice returns other active accounts sharing the same
// device fingerprint.
func (r *PostgresRepository) FindActiveUsersByDevice(ctx context.Context, deviceID string, excludeID int64) ([]domain.User, error) {
	return r.findActiveUsersBy(ctx, `device_id`, deviceID, excludeID)
}

func (r *PostgresRepository) findActiveUsersBy(ctx context.Context, column, value string, excludeID int64) ([]domain.User, error) {
	if value == "" {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+userColumns+` FROM users WHERE `+column+` = $1 AND telegram_id <> $2 AND status = $3
	`, value, excludeID, domain.UserStatusActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

// RecordVerification stores the captured IP/device on the account and marks
// it verified. The status column is deliberately left alone: a banned or
// blocked user re-opening their link must not be reinstated.
func (r *PostgresRepository) RecordVerification(ctx context.Context, telegramID int64, ip, deviceID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET ip_address = $1, device_id = $2, verified = TRUE WHERE telegram_id = $3
	`, ip, deviceID, telegramID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// RecordVerificationBlock stores the captured signals and moves the account to
// blocked. The signals are recorded even though the account is blocked so the
// audit trail keeps the conflicting fingerprint.
func (r *PostgresRepository) RecordVerificationBlock(ctx context.Context, telegramID int64, ip, deviceID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET ip_address = $1, device_id = $2, verified = TRUE, status = $3 WHERE telegram_id = $4
	`, ip, deviceID, domain.UserStatusBlocked, telegramID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// CreateAdminLog appends one audit entry.
func (r *PostgresRepository) CreateAdminLog(ctx context.Context, entry *domain.AdminLog) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO admin_logs (admin_id, action, details) VALUES ($1, $2, $3)
	`, entry.AdminID, entry.Action, entry.Details)
	return err
}

// ListAdminLogs returns the newest audit entries.
func (r *PostgresRepository) ListAdminLogs(ctx context.Context, limit int) ([]domain.AdminLog, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, admin_id, action, details, created_at FROM admin_logs ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []domain.AdminLog
	for rows.Next() {
		var l domain.AdminLog
		if err := rows.Scan(&l.ID, &l.AdminID, &l.Action, &l.Details, &l.CreatedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
