/**
 * @description
 * This file contains the core business logic for the engagement-service. The
 * `Service` struct orchestrates all point movement operations, coordinating
 * between the database repository, the supplier API client, and the message
 * broker.
 *
 * Key features:
 * - Implements the main use cases: order placement, referral bonuses, task
 *   claims, and administrator actions.
 * - Ensures transactional integrity by delegating every balance change to the
 *   repository's atomic ledger methods.
 * - Publishes order lifecycle events to RabbitMQ for asynchronous processing.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - math/rand: Order id random component.
 * - internal/config, internal/domain, internal/store: Catalog, domain models
 *   and data access.
 * - pkg/supplierclient, pkg/rabbitmq: External service communication.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/exoboost/engagement-service/internal/config"
	"github.com/exoboost/engagement-service/internal/domain"
	"github.com/exoboost/engagement-service/internal/store"
	"github.com/exoboost/engagement-service/pkg/rabbitmq"
	"github.com/exoboost/engagement-service/pkg/supplierclient"
)

var (
	ErrUnknownService = errors.New("unknown service")
	ErrBelowMinimum   = errors.New("quantity below service minimum")
	ErrUnauthorized   = errors.New("not authorized")
)

// orderLinkPlaceholder stands in for the target link until the order flow
// collects one from the user.
// TODO: prompt for the target link during /order instead of sending this.
const orderLinkPlaceholder = "http://placeholder.link"

// SupplierAPI is the subset of the supplier client the service depends on.
type SupplierAPI interface {
	CreateOrder(ctx context.Context, serviceID int, link string, quantity int) (*supplierclient.OrderResponse, error)
	GetOrderStatus(ctx context.Context, externalID string) (*supplierclient.StatusResponse, error)
	ListServices(ctx context.Context) ([]supplierclient.Service, error)
}

// Service provides the core business logic for the engagement bot.
type Service struct {
	repo          store.Repository
	supplier      SupplierAPI
	eventProducer rabbitmq.Publisher
	referralBonus int64
	adminIDs      map[int64]bool
}

// NewService creates a new engagement service instance.
func NewService(repo store.Repository, supplier SupplierAPI, producer rabbitmq.Publisher, referralBonus int64, adminIDs []int64) *Service {
	admins := make(map[int64]bool, len(adminIDs))
	for _, id := range adminIDs {
		admins[id] = true
	}
	return &Service{
		repo:          repo,
		supplier:      supplier,
		eventProducer: producer,
		referralBonus: referralBonus,
		adminIDs:      admins,
	}
}

// IsAdmin reports whether the given Telegram id is an administrator.
func (s *Service) IsAdmin(id int64) bool {
	return s.adminIDs[id]
}

// EnsureUser loads the account for a Telegram id, creating it on first
// contact.
func (s *Service) EnsureUser(ctx context.Context, telegramID int64, username string) (*domain.User, error) {
	return s.repo.GetOrCreateUser(ctx, telegramID, username)
}

// GetUser retrieves an existing account.
func (s *Service) GetUser(ctx context.Context, telegramID int64) (*domain.User, error) {
	return s.repo.FindUserByTelegramID(ctx, telegramID)
}

// newOrderID builds a time-based order id with a random suffix.
func newOrderID() string {
	return fmt.Sprintf("ORD-%d-%d", time.Now().UnixMilli(), rand.Intn(10000))
}

// PlaceOrder validates and places an order. Validation runs in a fixed
// sequence: unknown service, below minimum, insufficient balance. The debit
// and the pending order commit atomically; the supplier call happens after
// the commit. A supplier failure marks the order failed and does not refund
// the points; failed orders go to manual review.
func (s *Service) PlaceOrder(ctx context.Context, userID int64, serviceID, quantity int) (*domain.Order, error) {
	svc, ok := config.ServiceByID(serviceID)
	if !ok {
		return nil, ErrUnknownService
	}
	if quantity < svc.Min {
		return nil, fmt.Errorf("%w: minimum for this service is %d", ErrBelowMinimum, svc.Min)
	}

	order := &domain.Order{
		OrderID:     newOrderID(),
		UserID:      userID,
		ServiceID:   serviceID,
		Quantity:    quantity,
		TotalPoints: svc.Points * int64(quantity),
		Status:      domain.OrderStatusPending,
	}

	if err := s.repo.CreateOrderWithDebit(ctx, order); err != nil {
		if errors.Is(err, store.ErrInsufficientBalance) || errors.Is(err, store.ErrUserNotFound) || errors.Is(err, store.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create order: %w", err)
	}
	log.Printf("level=info component=service flow=order msg=\"order created\" order_id=%s user_id=%d service_id=%d quantity=%d total_points=%d", order.OrderID, userID, serviceID, quantity, order.TotalPoints)
	s.publishOrderEvent(ctx, order)

	resp, err := s.supplier.CreateOrder(ctx, serviceID, orderLinkPlaceholder, quantity)
	if err != nil {
		// Points stay debited: the supplier may have accepted the order even
		// though the response was lost, so the order goes to manual review.
		log.Printf("level=error component=service flow=order msg=\"supplier order failed\" order_id=%s err=%v", order.OrderID, err)
		if markErr := s.repo.MarkOrderFailed(ctx, order.OrderID); markErr != nil {
			log.Printf("level=error component=service flow=order msg=\"failed to mark order failed\" order_id=%s err=%v", order.OrderID, markErr)
		}
		order.Status = domain.OrderStatusFailed
		s.publishOrderEvent(ctx, order)
		return order, nil
	}

	externalID := resp.ExternalID()
	if err := s.repo.MarkOrderProcessing(ctx, order.OrderID, externalID); err != nil {
		log.Printf("level=error component=service flow=order msg=\"failed to mark order processing\" order_id=%s external_id=%s err=%v", order.OrderID, externalID, err)
		return order, nil
	}
	order.Status = domain.OrderStatusProcessing
	order.ExternalID = &externalID
	s.publishOrderEvent(ctx, order)

	return order, nil
}

func (s *Service) publishOrderEvent(ctx context.Context, order *domain.Order) {
	if s.eventProducer == nil {
		return
	}
	event := rabbitmq.OrderEvent{
		OrderID:     order.OrderID,
		UserID:      order.UserID,
		ServiceID:   order.ServiceID,
		Quantity:    order.Quantity,
		TotalPoints: order.TotalPoints,
		Status:      order.Status,
		Timestamp:   time.Now().UTC(),
	}
	if order.ExternalID != nil {
		event.ExternalID = *order.ExternalID
	}
	if err := s.eventProducer.PublishOrderEvent(ctx, event); err != nil {
		log.Printf("level=warn component=service flow=order msg=\"failed to publish order event\" order_id=%s status=%s err=%v", order.OrderID, order.Status, err)
	}
}

// OrderHistory returns a user's most recent orders, newest first.
func (s *Service) OrderHistory(ctx context.Context, userID int64, limit int) ([]domain.Order, error) {
	return s.repo.FindOrdersByUser(ctx, userID, limit)
}

// HandleReferral processes a `ref_<id>` start payload for a newly seen user.
// It silently does nothing when the payload refers to the user themselves,
// the referrer does not exist, or a referral was already recorded for this
// user. Success credits the referrer the configured bonus.
func (s *Service) HandleReferral(ctx context.Context, referrerID, referredID int64) {
	if referrerID == referredID || referrerID == 0 {
		return
	}

	if existing, err := s.repo.FindReferralByReferredID(ctx, referredID); err != nil {
		log.Printf("level=warn component=service flow=referral msg=\"referral lookup failed\" referred_id=%d err=%v", referredID, err)
		return
	} else if existing != nil {
		return
	}

	err := s.repo.GrantReferralBonus(ctx, referrerID, referredID, s.referralBonus)
	if err != nil {
		// Duplicate and missing-referrer outcomes are expected no-ops.
		if errors.Is(err, store.ErrAlreadyReferred) || errors.Is(err, store.ErrUserNotFound) {
			return
		}
		log.Printf("level=error component=service flow=referral msg=\"failed to grant referral bonus\" referrer_id=%d referred_id=%d err=%v", referrerID, referredID, err)
		return
	}
	log.Printf("level=info component=service flow=referral msg=\"referral bonus granted\" referrer_id=%d referred_id=%d bonus=%d", referrerID, referredID, s.referralBonus)
}

// ListTasks returns all currently active tasks.
func (s *Service) ListTasks(ctx context.Context) ([]domain.Task, error) {
	return s.repo.ListActiveTasks(ctx)
}

// ClaimTask credits a task reward to the user, at most once per task.
func (s *Service) ClaimTask(ctx context.Context, taskID, userID int64) (*domain.Task, error) {
	task, err := s.repo.FindTaskByID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if !task.Active {
		return nil, store.ErrTaskNotFound
	}
	details := fmt.Sprintf("task %d: %s", task.ID, task.Title)
	if err := s.repo.ClaimTask(ctx, task.ID, userID, task.Points, details); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service flow=task msg=\"task claimed\" task_id=%d user_id=%d reward=%d", task.ID, userID, task.Points)
	return task, nil
}

// ListServices returns the supplier's live service listing, falling back to
// the local catalog when the supplier is unreachable.
func (s *Service) ListServices(ctx context.Context) []config.Service {
	remote, err := s.supplier.ListServices(ctx)
	if err != nil || len(remote) == 0 {
		if err != nil {
			log.Printf("level=warn component=service flow=catalog msg=\"supplier service listing failed; using local catalog\" err=%v", err)
		}
		return config.Services
	}

	// Keep local pricing: the supplier listing only refreshes names and
	// minimums for services we already sell.
	merged := make([]config.Service, 0, len(config.Services))
	byID := make(map[int]supplierclient.Service, len(remote))
	for _, r := range remote {
		byID[r.ID] = r
	}
	for _, svc := range config.Services {
		if r, ok := byID[svc.ID]; ok {
			if r.Name != "" {
				svc.Name = r.Name
			}
			if r.Min > 0 {
				svc.Min = r.Min
			}
		}
		merged = append(merged, svc)
	}
	return merged
}

// AddPoints credits points to a user on behalf of an administrator and
// writes the audit entry.
func (s *Service) AddPoints(ctx context.Context, adminID, userID, amount int64) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	details := fmt.Sprintf("admin %d credit", adminID)
	if err := s.repo.Credit(ctx, userID, amount, domain.EntryKindAdmin, nil, details); err != nil {
		return err
	}
	s.audit(ctx, adminID, "addpoints", fmt.Sprintf("credited %d points to user %d", amount, userID))
	return nil
}

// BanUser sets a user's status to banned and writes the audit entry.
func (s *Service) BanUser(ctx context.Context, adminID, userID int64) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	if err := s.repo.SetUserStatus(ctx, userID, domain.UserStatusBanned); err != nil {
		return err
	}
	s.audit(ctx, adminID, "ban", fmt.Sprintf("banned user %d", userID))
	return nil
}

// ListUsers returns recent users for the admin panel.
func (s *Service) ListUsers(ctx context.Context, adminID int64, limit int) ([]domain.User, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	return s.repo.ListUsers(ctx, limit)
}

// ListOrders returns recent orders across all users for the admin panel.
func (s *Service) ListOrders(ctx context.Context, adminID int64, limit int) ([]domain.Order, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	return s.repo.ListOrders(ctx, limit)
}

// ListAdminLogs returns the newest audit entries.
func (s *Service) ListAdminLogs(ctx context.Context, adminID int64, limit int) ([]domain.AdminLog, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	return s.repo.ListAdminLogs(ctx, limit)
}

// CreateTask adds a new claimable task and writes the audit entry.
func (s *Service) CreateTask(ctx context.Context, adminID int64, title string, points int64) (*domain.Task, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	task, err := s.repo.CreateTask(ctx, &domain.Task{Title: title, Points: points, CreatedBy: adminID})
	if err != nil {
		return nil, err
	}
	s.audit(ctx, adminID, "addtask", fmt.Sprintf("created task %d (%s, %d points)", task.ID, task.Title, task.Points))
	return task, nil
}

// BroadcastTargets returns the Telegram ids of all active users. The audit
// entry is written by RecordBroadcast once the messages have gone out.
func (s *Service) BroadcastTargets(ctx context.Context, adminID int64) ([]int64, error) {
	if !s.IsAdmin(adminID) {
		return nil, ErrUnauthorized
	}
	return s.repo.ListActiveUserIDs(ctx)
}

// RecordBroadcast writes the broadcast audit entry with the delivery counts.
func (s *Service) RecordBroadcast(ctx context.Context, adminID int64, sent, attempted int) error {
	if !s.IsAdmin(adminID) {
		return ErrUnauthorized
	}
	s.audit(ctx, adminID, "broadcast", fmt.Sprintf("broadcast delivered to %d of %d active users", sent, attempted))
	return nil
}

// AuditLedger reports a user's balance next to the sum of their ledger
// entries. The two always match because every balance change shares a
// transaction with its ledger insert; a mismatch means the data needs manual
// repair.
func (s *Service) AuditLedger(ctx context.Context, adminID, userID int64) (balance, ledgerSum int64, err error) {
	if !s.IsAdmin(adminID) {
		return 0, 0, ErrUnauthorized
	}
	user, err := s.repo.FindUserByTelegramID(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	sum, err := s.repo.SumLedgerByUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum ledger entries: %w", err)
	}
	if user.Balance != sum {
		log.Printf("level=error component=service flow=admin msg=\"ledger drift detected\" user_id=%d balance=%d ledger_sum=%d", userID, user.Balance, sum)
	}
	return user.Balance, sum, nil
}

func (s *Service) audit(ctx context.Context, adminID int64, action, details string) {
	entry := &domain.AdminLog{AdminID: adminID, Action: action, Details: details}
	if err := s.repo.CreateAdminLog(ctx, entry); err != nil {
		log.Printf("level=warn component=service flow=admin msg=\"failed to write admin log\" admin_id=%d action=%s err=%v", adminID, action, err)
	}
}
