package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/exoboost/engagement-service/internal/domain"
	"github.com/exoboost/engagement-service/internal/store"
	"github.com/exoboost/engagement-service/pkg/supplierclient"
)

// stubRepo implements the parts of store.Repository the service tests need.
// Unused methods panic via the embedded interface.
type stubRepo struct {
	store.Repository

	createOrderErr error
	createdOrders  []*domain.Order
	processing     map[string]string
	failed         map[string]bool

	referralByReferred map[int64]*domain.Referral
	grantErr           error
	grants             []grantCall

	credits []creditCall

	tasks    map[int64]*domain.Task
	claimErr error
	claims   []int64

	// users and ledgerSums move together on Credit, mirroring the store's
	// balance-change-plus-ledger-insert transaction.
	users      map[int64]*domain.User
	ledgerSums map[int64]int64
	activeIDs  []int64

	adminLogs []domain.AdminLog
}

type grantCall struct {
	referrerID, referredID, bonus int64
}

type creditCall struct {
	userID, amount int64
	kind           string
}

func newStubRepo() *stubRepo {
	return &stubRepo{
		processing:         make(map[string]string),
		failed:             make(map[string]bool),
		referralByReferred: make(map[int64]*domain.Referral),
		tasks:              make(map[int64]*domain.Task),
		users:              make(map[int64]*domain.User),
		ledgerSums:         make(map[int64]int64),
	}
}

func (r *stubRepo) CreateOrderWithDebit(ctx context.Context, order *domain.Order) error {
	if r.createOrderErr != nil {
		return r.createOrderErr
	}
	r.createdOrders = append(r.createdOrders, order)
	return nil
}

func (r *stubRepo) MarkOrderProcessing(ctx context.Context, orderID, externalID string) error {
	r.processing[orderID] = externalID
	return nil
}

func (r *stubRepo) MarkOrderFailed(ctx context.Context, orderID string) error {
	r.failed[orderID] = true
	return nil
}

func (r *stubRepo) FindReferralByReferredID(ctx context.Context, referredID int64) (*domain.Referral, error) {
	return r.referralByReferred[referredID], nil
}

func (r *stubRepo) GrantReferralBonus(ctx context.Context, referrerID, referredID int64, bonus int64) error {
	if r.grantErr != nil {
		return r.grantErr
	}
	r.grants = append(r.grants, grantCall{referrerID, referredID, bonus})
	return nil
}

func (r *stubRepo) Credit(ctx context.Context, userID int64, amount int64, kind string, serviceID *int, details string) error {
	r.credits = append(r.credits, creditCall{userID, amount, kind})
	if u, ok := r.users[userID]; ok {
		u.Balance += amount
		r.ledgerSums[userID] += amount
	}
	return nil
}

func (r *stubRepo) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	u, ok := r.users[telegramID]
	if !ok {
		return nil, store.ErrUserNotFound
	}
	return u, nil
}

func (r *stubRepo) SumLedgerByUser(ctx context.Context, userID int64) (int64, error) {
	return r.ledgerSums[userID], nil
}

func (r *stubRepo) ListActiveUserIDs(ctx context.Context) ([]int64, error) {
	return r.activeIDs, nil
}

func (r *stubRepo) FindTaskByID(ctx context.Context, taskID int64) (*domain.Task, error) {
	task, ok := r.tasks[taskID]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return task, nil
}

func (r *stubRepo) ClaimTask(ctx context.Context, taskID, userID int64, reward int64, details string) error {
	if r.claimErr != nil {
		return r.claimErr
	}
	r.claims = append(r.claims, taskID)
	return nil
}

func (r *stubRepo) CreateAdminLog(ctx context.Context, entry *domain.AdminLog) error {
	r.adminLogs = append(r.adminLogs, *entry)
	return nil
}

// stubSupplier implements SupplierAPI with canned responses.
type stubSupplier struct {
	createResp *supplierclient.OrderResponse
	createErr  error
	createdN   int

	statusByID map[string]string
	statusErr  error
}

func (s *stubSupplier) CreateOrder(ctx context.Context, serviceID int, link string, quantity int) (*supplierclient.OrderResponse, error) {
	s.createdN++
	if s.createErr != nil {
		return nil, s.createErr
	}
	return s.createResp, nil
}

func (s *stubSupplier) GetOrderStatus(ctx context.Context, externalID string) (*supplierclient.StatusResponse, error) {
	if s.statusErr != nil {
		return nil, s.statusErr
	}
	return &supplierclient.StatusResponse{ID: externalID, Status: s.statusByID[externalID]}, nil
}

func (s *stubSupplier) ListServices(ctx context.Context) ([]supplierclient.Service, error) {
	return nil, errors.New("unavailable")
}

func newTestService(repo *stubRepo, supplier *stubSupplier) *Service {
	return NewService(repo, supplier, nil, 20, []int64{900})
}

func TestPlaceOrderValidationSequence(t *testing.T) {
	tests := []struct {
		name      string
		serviceID int
		quantity  int
		repoErr   error
		wantErr   error
	}{
		{
			name:      "unknown service rejected before quantity check",
			serviceID: 99999,
			quantity:  1,
			wantErr:   ErrUnknownService,
		},
		{
			name:      "quantity below service minimum",
			serviceID: 3036,
			quantity:  11,
			wantErr:   ErrBelowMinimum,
		},
		{
			name:      "insufficient balance surfaces from the store",
			serviceID: 3036,
			quantity:  12,
			repoErr:   store.ErrInsufficientBalance,
			wantErr:   store.ErrInsufficientBalance,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			repo.createOrderErr = tt.repoErr
			supplier := &stubSupplier{}
			svc := newTestService(repo, supplier)

			_, err := svc.PlaceOrder(context.Background(), 1, tt.serviceID, tt.quantity)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if len(repo.createdOrders) != 0 {
				t.Fatalf("expected no order to be persisted, got %d", len(repo.createdOrders))
			}
			if supplier.createdN != 0 {
				t.Fatalf("expected no supplier call on validation failure, got %d", supplier.createdN)
			}
		})
	}
}

func TestPlaceOrderComputesTotalFromCatalog(t *testing.T) {
	repo := newStubRepo()
	supplier := &stubSupplier{createResp: &supplierclient.OrderResponse{ID: "ext-1"}}
	svc := newTestService(repo, supplier)

	// Service 3036 costs 2 points per unit with a minimum of 12.
	order, err := svc.PlaceOrder(context.Background(), 1, 3036, 12)
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if order.TotalPoints != 24 {
		t.Fatalf("expected total of 24 points, got %d", order.TotalPoints)
	}
	if !strings.HasPrefix(order.OrderID, "ORD-") {
		t.Fatalf("expected ORD- prefixed order id, got %q", order.OrderID)
	}
	if order.Status != domain.OrderStatusProcessing {
		t.Fatalf("expected processing status after supplier ack, got %q", order.Status)
	}
	if got := repo.processing[order.OrderID]; got != "ext-1" {
		t.Fatalf("expected external id ext-1 recorded, got %q", got)
	}
}

func TestPlaceOrderSupplierFailureKeepsDebit(t *testing.T) {
	repo := newStubRepo()
	supplier := &stubSupplier{createErr: errors.New("supplier down")}
	svc := newTestService(repo, supplier)

	order, err := svc.PlaceOrder(context.Background(), 1, 3036, 12)
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if order.Status != domain.OrderStatusFailed {
		t.Fatalf("expected failed status, got %q", order.Status)
	}
	if !repo.failed[order.OrderID] {
		t.Fatalf("expected order %s to be marked failed", order.OrderID)
	}
	if len(repo.credits) != 0 {
		t.Fatalf("expected no refund credit after supplier failure, got %d credits", len(repo.credits))
	}
}

func TestPlaceOrderUsesOrderIDFallbackField(t *testing.T) {
	repo := newStubRepo()
	supplier := &stubSupplier{createResp: &supplierclient.OrderResponse{OrderID: "legacy-7"}}
	svc := newTestService(repo, supplier)

	order, err := svc.PlaceOrder(context.Background(), 1, 3047, 12)
	if err != nil {
		t.Fatalf("PlaceOrder returned error: %v", err)
	}
	if got := repo.processing[order.OrderID]; got != "legacy-7" {
		t.Fatalf("expected fallback external id legacy-7, got %q", got)
	}
}

func TestHandleReferral(t *testing.T) {
	tests := []struct {
		name       string
		referrerID int64
		referredID int64
		existing   *domain.Referral
		grantErr   error
		wantGrants int
	}{
		{
			name:       "grants bonus for a fresh referral",
			referrerID: 10,
			referredID: 20,
			wantGrants: 1,
		},
		{
			name:       "self referral is ignored",
			referrerID: 20,
			referredID: 20,
			wantGrants: 0,
		},
		{
			name:       "already referred user is ignored",
			referrerID: 10,
			referredID: 20,
			existing:   &domain.Referral{ReferrerID: 11, ReferredID: 20},
			wantGrants: 0,
		},
		{
			name:       "missing referrer is a silent no-op",
			referrerID: 10,
			referredID: 20,
			grantErr:   store.ErrUserNotFound,
			wantGrants: 0,
		},
		{
			name:       "duplicate insert race is a silent no-op",
			referrerID: 10,
			referredID: 20,
			grantErr:   store.ErrAlreadyReferred,
			wantGrants: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newStubRepo()
			if tt.existing != nil {
				repo.referralByReferred[tt.referredID] = tt.existing
			}
			repo.grantErr = tt.grantErr
			svc := newTestService(repo, &stubSupplier{})

			svc.HandleReferral(context.Background(), tt.referrerID, tt.referredID)
			if len(repo.grants) != tt.wantGrants {
				t.Fatalf("expected %d grants, got %d", tt.wantGrants, len(repo.grants))
			}
			if tt.wantGrants == 1 {
				grant := repo.grants[0]
				if grant.referrerID != tt.referrerID || grant.referredID != tt.referredID || grant.bonus != 20 {
					t.Fatalf("unexpected grant: %+v", grant)
				}
			}
		})
	}
}

func TestClaimTask(t *testing.T) {
	repo := newStubRepo()
	repo.tasks[1] = &domain.Task{ID: 1, Title: "Join channel", Points: 15, Active: true}
	repo.tasks[2] = &domain.Task{ID: 2, Title: "Old task", Points: 5, Active: false}
	svc := newTestService(repo, &stubSupplier{})

	task, err := svc.ClaimTask(context.Background(), 1, 50)
	if err != nil {
		t.Fatalf("ClaimTask returned error: %v", err)
	}
	if task.Points != 15 {
		t.Fatalf("expected reward of 15, got %d", task.Points)
	}
	if len(repo.claims) != 1 || repo.claims[0] != 1 {
		t.Fatalf("expected one claim for task 1, got %v", repo.claims)
	}

	if _, err := svc.ClaimTask(context.Background(), 2, 50); !errors.Is(err, store.ErrTaskNotFound) {
		t.Fatalf("expected inactive task to report not found, got %v", err)
	}

	repo.claimErr = store.ErrAlreadyClaimed
	if _, err := svc.ClaimTask(context.Background(), 1, 50); !errors.Is(err, store.ErrAlreadyClaimed) {
		t.Fatalf("expected duplicate claim error, got %v", err)
	}
}

func TestAdminActionsRequireAuthorization(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubSupplier{})

	if err := svc.AddPoints(context.Background(), 123, 1, 10); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}
	if len(repo.credits) != 0 {
		t.Fatalf("expected no credit from unauthorized call, got %d", len(repo.credits))
	}
	if _, err := svc.CreateTask(context.Background(), 123, "t", 5); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin task creation, got %v", err)
	}
}

func TestAddPointsWritesAuditEntry(t *testing.T) {
	repo := newStubRepo()
	svc := newTestService(repo, &stubSupplier{})

	if err := svc.AddPoints(context.Background(), 900, 42, 100); err != nil {
		t.Fatalf("AddPoints returned error: %v", err)
	}
	if len(repo.credits) != 1 {
		t.Fatalf("expected one credit, got %d", len(repo.credits))
	}
	credit := repo.credits[0]
	if credit.userID != 42 || credit.amount != 100 || credit.kind != domain.EntryKindAdmin {
		t.Fatalf("unexpected credit: %+v", credit)
	}
	if len(repo.adminLogs) != 1 || repo.adminLogs[0].Action != "addpoints" {
		t.Fatalf("expected one addpoints audit entry, got %+v", repo.adminLogs)
	}
}

func TestAuditLedger(t *testing.T) {
	repo := newStubRepo()
	repo.users[42] = &domain.User{TelegramID: 42, Balance: 120}
	repo.ledgerSums[42] = 120
	svc := newTestService(repo, &stubSupplier{})

	balance, ledgerSum, err := svc.AuditLedger(context.Background(), 900, 42)
	if err != nil {
		t.Fatalf("AuditLedger returned error: %v", err)
	}
	if balance != 120 || ledgerSum != 120 {
		t.Fatalf("expected matching 120/120, got %d/%d", balance, ledgerSum)
	}

	// A credit moves the balance and the ledger sum together, so the audit
	// still matches afterwards.
	if err := svc.AddPoints(context.Background(), 900, 42, 100); err != nil {
		t.Fatalf("AddPoints returned error: %v", err)
	}
	balance, ledgerSum, err = svc.AuditLedger(context.Background(), 900, 42)
	if err != nil {
		t.Fatalf("AuditLedger returned error: %v", err)
	}
	if balance != 220 || ledgerSum != 220 {
		t.Fatalf("expected matching 220/220 after credit, got %d/%d", balance, ledgerSum)
	}

	// Drift is reported, not hidden.
	repo.ledgerSums[42] = 200
	balance, ledgerSum, err = svc.AuditLedger(context.Background(), 900, 42)
	if err != nil {
		t.Fatalf("AuditLedger returned error: %v", err)
	}
	if balance != 220 || ledgerSum != 200 {
		t.Fatalf("expected drift surfaced as 220/200, got %d/%d", balance, ledgerSum)
	}

	if _, _, err := svc.AuditLedger(context.Background(), 123, 42); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}
	if _, _, err := svc.AuditLedger(context.Background(), 900, 999); !errors.Is(err, store.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound for unknown user, got %v", err)
	}
}

func TestBroadcastAuditWrittenAfterDelivery(t *testing.T) {
	repo := newStubRepo()
	repo.activeIDs = []int64{1, 2, 3, 4, 5}
	svc := newTestService(repo, &stubSupplier{})

	targets, err := svc.BroadcastTargets(context.Background(), 900)
	if err != nil {
		t.Fatalf("BroadcastTargets returned error: %v", err)
	}
	if len(targets) != 5 {
		t.Fatalf("expected 5 targets, got %d", len(targets))
	}
	// Listing the targets must not pre-record a delivery that has not
	// happened yet.
	if len(repo.adminLogs) != 0 {
		t.Fatalf("expected no audit entry before delivery, got %d", len(repo.adminLogs))
	}

	if err := svc.RecordBroadcast(context.Background(), 900, 3, 5); err != nil {
		t.Fatalf("RecordBroadcast returned error: %v", err)
	}
	if len(repo.adminLogs) != 1 || repo.adminLogs[0].Action != "broadcast" {
		t.Fatalf("expected one broadcast audit entry, got %+v", repo.adminLogs)
	}
	if !strings.Contains(repo.adminLogs[0].Details, "3 of 5") {
		t.Fatalf("expected delivery counts in the audit entry, got %q", repo.adminLogs[0].Details)
	}

	if err := svc.RecordBroadcast(context.Background(), 123, 1, 1); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for non-admin, got %v", err)
	}
}
