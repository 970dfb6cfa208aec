/**
 * @description
 * Periodic reconciliation of in-flight orders against the supplier. Orders
 * acknowledged by the supplier sit in `processing` until this sweep observes
 * the supplier reporting them delivered, at which point they move to
 * `completed` and a lifecycle event is published.
 *
 * @dependencies
 * - github.com/robfig/cron/v3: Job scheduling.
 * - internal/domain: Order model and statuses.
 */

package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/exoboost/engagement-service/internal/domain"
)

const (
	orderSweepBatchSize = 100
	orderSweepTimeout   = 2 * time.Minute
)

// Reconciler runs the order status sweep on a cron schedule.
type Reconciler struct {
	cron    *cron.Cron
	service *Service
}

// NewReconciler creates a reconciler sweeping every intervalMinutes. A zero
// or negative interval disables the sweep.
func NewReconciler(service *Service, intervalMinutes int) *Reconciler {
	c := cron.New(cron.WithChain(cron.Recover(cron.PrintfLogger(log.Default()))))
	r := &Reconciler{cron: c, service: service}

	if intervalMinutes <= 0 {
		log.Printf("level=info component=reconciler msg=\"order sweep disabled\"")
		return r
	}

	schedule := fmt.Sprintf("@every %dm", intervalMinutes)
	if _, err := c.AddFunc(schedule, r.runSweep); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to schedule order sweep\" schedule=%s err=%v", schedule, err)
	} else {
		log.Printf("level=info component=reconciler msg=\"scheduled order sweep\" schedule=%s", schedule)
	}
	return r
}

// Start begins the cron scheduler.
func (r *Reconciler) Start() {
	r.cron.Start()
}

// Stop gracefully stops the cron scheduler.
func (r *Reconciler) Stop() context.Context {
	return r.cron.Stop()
}

func (r *Reconciler) runSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), orderSweepTimeout)
	defer cancel()

	completed, checked, err := r.service.SweepProcessingOrders(ctx, orderSweepBatchSize)
	if err != nil {
		log.Printf("level=error component=reconciler msg=\"order sweep failed\" err=%v", err)
		return
	}
	if checked > 0 {
		log.Printf("level=info component=reconciler msg=\"order sweep finished\" checked=%d completed=%d", checked, completed)
	}
}

// SweepProcessingOrders polls the supplier for every processing order and
// completes those the supplier reports delivered. Returns how many orders
// were completed and how many were checked.
func (s *Service) SweepProcessingOrders(ctx context.Context, limit int) (completed, checked int, err error) {
	orders, err := s.repo.ListOrdersByStatus(ctx, domain.OrderStatusProcessing, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list processing orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		if order.ExternalID == nil || strings.TrimSpace(*order.ExternalID) == "" {
			continue
		}
		checked++

		status, statusErr := s.supplier.GetOrderStatus(ctx, *order.ExternalID)
		if statusErr != nil {
			log.Printf("level=warn component=service flow=order_sweep msg=\"supplier status lookup failed\" order_id=%s external_id=%s err=%v", order.OrderID, *order.ExternalID, statusErr)
			continue
		}

		if !isSupplierCompleted(status.Status) {
			continue
		}
		if markErr := s.repo.MarkOrderCompleted(ctx, order.OrderID); markErr != nil {
			log.Printf("level=error component=service flow=order_sweep msg=\"failed to mark order completed\" order_id=%s err=%v", order.OrderID, markErr)
			continue
		}
		order.Status = domain.OrderStatusCompleted
		s.publishOrderEvent(ctx, order)
		completed++
	}
	return completed, checked, nil
}

func isSupplierCompleted(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "completed", "complete", "done":
		return true
	}
	return false
}
