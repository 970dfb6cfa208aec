/**
 * @description
 * Ledger and audit models. Every balance change on a user account commits
 * together with exactly one LedgerEntry carrying the matching signed amount;
 * entries are immutable once written. AdminLog records every privileged
 * mutation (and anti-abuse blocks) for audit.
 */
package domain

import "time"

// Ledger entry kinds.
const (
	EntryKindCredit   = "credit"
	EntryKindDebit    = "debit"
	EntryKindTask     = "task"
	EntryKindReferral = "referral"
	EntryKindAdmin    = "admin"
)

// LedgerEntry is one immutable record of a balance-affecting event.
// Amount is signed: positive for credits, negative for debits.
type LedgerEntry struct {
	ID        int64
	UserID    int64
	Amount    int64
	Kind      string
	ServiceID *int
	Details   string
	CreatedAt time.Time
}

// AdminLog records a privileged action. AdminID 0 marks entries written by
// the anti-abuse verifier rather than a human administrator.
type AdminLog struct {
	ID        int64
	AdminID   int64
	Action    string
	Details   string
	CreatedAt time.Time
}
