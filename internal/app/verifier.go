/**
 * @description
 * Anti-abuse verification. When a user opens their verification link, the
 * captured IP and device fingerprint are checked against every other active
 * account. A match on either signal blocks the account; the signals are
 * recorded either way so the audit trail keeps the conflicting fingerprint.
 *
 * @dependencies
 * - context, fmt, log: Standard Go libraries.
 */

package app

import (
	"context"
	"fmt"
	"log"
)

// Verification results.
const (
	VerifyResultVerified = "verified"
	VerifyResultBlocked  = "blocked"
)

// antiAbuseAdminID marks audit entries written by the verifier rather than a
// human administrator.
const antiAbuseAdminID = 0

// Verify records the IP and device fingerprint captured for a user and
// decides whether the account is a duplicate. Two first-time verifications
// racing each other can both pass; the next verification by either account
// catches the overlap.
func (s *Service) Verify(ctx context.Context, userID int64, ip, deviceID string) (string, error) {
	if _, err := s.repo.FindUserByTelegramID(ctx, userID); err != nil {
		return "", err
	}

	byIP, err := s.repo.FindActiveUsersByIP(ctx, ip, userID)
	if err != nil {
		return "", fmt.Errorf("failed to check ip duplicates: %w", err)
	}
	byDevice, err := s.repo.FindActiveUsersByDevice(ctx, deviceID, userID)
	if err != nil {
		return "", fmt.Errorf("failed to check device duplicates: %w", err)
	}

	if len(byIP) > 0 || len(byDevice) > 0 {
		if err := s.repo.RecordVerificationBlock(ctx, userID, ip, deviceID); err != nil {
			return "", fmt.Errorf("failed to record block: %w", err)
		}
		s.audit(ctx, antiAbuseAdminID, "anti_cheat_block", fmt.Sprintf("user %d blocked due to duplicate IP/device", userID))
		log.Printf("level=warn component=service flow=verify msg=\"duplicate signals; account blocked\" user_id=%d ip_matches=%d device_matches=%d", userID, len(byIP), len(byDevice))
		return VerifyResultBlocked, nil
	}

	// The clean path records the signals without touching the account status:
	// verification is never a way back from banned or blocked.
	if err := s.repo.RecordVerification(ctx, userID, ip, deviceID); err != nil {
		return "", fmt.Errorf("failed to record verification: %w", err)
	}
	log.Printf("level=info component=service flow=verify msg=\"account verified\" user_id=%d", userID)
	return VerifyResultVerified, nil
}
