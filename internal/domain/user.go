/**
 * @description
 * Domain models for user accounts. A user record is created lazily on first
 * contact with the bot and is never hard-deleted: bans and anti-abuse blocks
 * are soft states on the status field.
 */
package domain

import "time"

// User account statuses. Blocked and banned are terminal from the bot's
// perspective; reinstatement is an out-of-band administrator action.
const (
	UserStatusActive  = "active"
	UserStatusBanned  = "banned"
	UserStatusBlocked = "blocked"
)

// User represents one end-user account, keyed by the platform-assigned
// Telegram identifier.
type User struct {
	TelegramID   int64
	Username     string
	Balance      int64
	Referrals    int
	IPAddress    string
	DeviceID     string
	Status       string
	Verified     bool
	ReferralCode string
	JoinedAt     time.Time
}

// Restricted reports whether the account may no longer use the bot.
func (u *User) Restricted() bool {
	return u.Status == UserStatusBanned || u.Status == UserStatusBlocked
}
