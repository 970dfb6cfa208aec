/**
 * @description
 * Order models for purchases fulfilled through the external supplier. An
 * order is created in pending state in the same atomic unit as its debit
 * ledger entry; the status field is the source of truth for reconciling the
 * local ledger against supplier state.
 */
package domain

import (
	"fmt"
	"time"
)

// Order statuses. Completed and failed are terminal.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
)

// Order is one purchase intent against the supplier.
type Order struct {
	OrderID     string
	UserID      int64
	ServiceID   int
	Quantity    int
	TotalPoints int64
	Status      string
	ExternalID  *string
	CreatedAt   time.Time
}

// Details renders the ledger description for this order's debit entry.
func (o *Order) Details() string {
	return fmt.Sprintf("order %s: service %d x%d", o.OrderID, o.ServiceID, o.Quantity)
}

// Referral records that one user was referred by another. At most one record
// may ever exist per referred user; the store enforces this as a uniqueness
// constraint inside the bonus-granting transaction.
type Referral struct {
	ReferrerID   int64
	ReferredID   int64
	PointsEarned int64
	CreatedAt    time.Time
}

// ReferralDetails renders the ledger description for a referral bonus credit.
func ReferralDetails(referredID int64) string {
	return fmt.Sprintf("referral bonus for user %d", referredID)
}
