package app

import (
	"context"
	"errors"
	"testing"

	"github.com/exoboost/engagement-service/internal/domain"
)

type sweepRepo struct {
	*stubRepo

	processingOrders []domain.Order
	completed        []string
}

func (r *sweepRepo) ListOrdersByStatus(ctx context.Context, status string, limit int) ([]domain.Order, error) {
	if status != domain.OrderStatusProcessing {
		return nil, nil
	}
	return r.processingOrders, nil
}

func (r *sweepRepo) MarkOrderCompleted(ctx context.Context, orderID string) error {
	r.completed = append(r.completed, orderID)
	return nil
}

func extID(v string) *string { return &v }

func TestSweepProcessingOrders(t *testing.T) {
	repo := &sweepRepo{
		stubRepo: newStubRepo(),
		processingOrders: []domain.Order{
			{OrderID: "ORD-1", ExternalID: extID("ext-1"), Status: domain.OrderStatusProcessing},
			{OrderID: "ORD-2", ExternalID: extID("ext-2"), Status: domain.OrderStatusProcessing},
			{OrderID: "ORD-3", Status: domain.OrderStatusProcessing},
		},
	}
	supplier := &stubSupplier{statusByID: map[string]string{
		"ext-1": "Completed",
		"ext-2": "in progress",
	}}
	svc := NewService(repo, supplier, nil, 20, nil)

	completed, checked, err := svc.SweepProcessingOrders(context.Background(), 100)
	if err != nil {
		t.Fatalf("SweepProcessingOrders returned error: %v", err)
	}
	// ORD-3 has no external id and is never checked against the supplier.
	if checked != 2 {
		t.Fatalf("expected 2 orders checked, got %d", checked)
	}
	if completed != 1 {
		t.Fatalf("expected 1 order completed, got %d", completed)
	}
	if len(repo.completed) != 1 || repo.completed[0] != "ORD-1" {
		t.Fatalf("expected ORD-1 completed, got %v", repo.completed)
	}
}

func TestSweepContinuesPastSupplierErrors(t *testing.T) {
	repo := &sweepRepo{
		stubRepo: newStubRepo(),
		processingOrders: []domain.Order{
			{OrderID: "ORD-1", ExternalID: extID("ext-1"), Status: domain.OrderStatusProcessing},
		},
	}
	supplier := &stubSupplier{statusErr: errors.New("supplier down")}
	svc := NewService(repo, supplier, nil, 20, nil)

	completed, checked, err := svc.SweepProcessingOrders(context.Background(), 100)
	if err != nil {
		t.Fatalf("expected sweep to swallow per-order errors, got %v", err)
	}
	if checked != 1 || completed != 0 {
		t.Fatalf("expected checked=1 completed=0, got checked=%d completed=%d", checked, completed)
	}
	if len(repo.completed) != 0 {
		t.Fatalf("expected no completions, got %v", repo.completed)
	}
}

func TestIsSupplierCompleted(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"completed", true},
		{"Completed", true},
		{" complete ", true},
		{"done", true},
		{"in progress", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := isSupplierCompleted(tt.status); got != tt.want {
			t.Fatalf("isSupplierCompleted(%q) = %t, want %t", tt.status, got, tt.want)
		}
	}
}
