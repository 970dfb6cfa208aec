package app

import (
	"context"
	"testing"

	"github.com/exoboost/engagement-service/internal/domain"
)

type verifierRepo struct {
	*stubRepo

	userStatus    string
	usersByIP     map[string][]domain.User
	usersByDevice map[string][]domain.User

	recorded       int
	blocked        int
	recordedIP     string
	recordedDevice string
}

func newVerifierRepo() *verifierRepo {
	return &verifierRepo{
		stubRepo:      newStubRepo(),
		userStatus:    domain.UserStatusActive,
		usersByIP:     make(map[string][]domain.User),
		usersByDevice: make(map[string][]domain.User),
	}
}

func (r *verifierRepo) FindUserByTelegramID(ctx context.Context, telegramID int64) (*domain.User, error) {
	return &domain.User{TelegramID: telegramID, Status: r.userStatus}, nil
}

func (r *verifierRepo) FindActiveUsersByIP(ctx context.Context, ip string, excludeID int64) ([]domain.User, error) {
	return r.usersByIP[ip], nil
}

func (r *verifierRepo) FindActiveUsersByDevice(ctx context.Context, deviceID string, excludeID int64) ([]domain.User, error) {
	return r.usersByDevice[deviceID], nil
}

func (r *verifierRepo) RecordVerification(ctx context.Context, telegramID int64, ip, deviceID string) error {
	r.recorded++
	r.recordedIP = ip
	r.recordedDevice = deviceID
	return nil
}

func (r *verifierRepo) RecordVerificationBlock(ctx context.Context, telegramID int64, ip, deviceID string) error {
	r.blocked++
	r.recordedIP = ip
	r.recordedDevice = deviceID
	return nil
}

func TestVerify(t *testing.T) {
	tests := []struct {
		name         string
		sharedIP     bool
		sharedDevice bool
		wantResult   string
		wantBlocked  int
		wantAudit    int
	}{
		{
			name:       "clean signals verify the account",
			wantResult: VerifyResultVerified,
			wantAudit:  0,
		},
		{
			name:        "shared ip blocks the account",
			sharedIP:    true,
			wantResult:  VerifyResultBlocked,
			wantBlocked: 1,
			wantAudit:   1,
		},
		{
			name:         "shared device fingerprint blocks the account",
			sharedDevice: true,
			wantResult:   VerifyResultBlocked,
			wantBlocked:  1,
			wantAudit:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newVerifierRepo()
			if tt.sharedIP {
				repo.usersByIP["1.2.3.4"] = []domain.User{{TelegramID: 777}}
			}
			if tt.sharedDevice {
				repo.usersByDevice["device-a"] = []domain.User{{TelegramID: 888}}
			}
			svc := NewService(repo, &stubSupplier{}, nil, 20, nil)

			result, err := svc.Verify(context.Background(), 1, "1.2.3.4", "device-a")
			if err != nil {
				t.Fatalf("Verify returned error: %v", err)
			}
			if result != tt.wantResult {
				t.Fatalf("expected result %q, got %q", tt.wantResult, result)
			}
			if repo.blocked != tt.wantBlocked {
				t.Fatalf("expected %d block writes, got %d", tt.wantBlocked, repo.blocked)
			}
			// Signals are recorded even when the account ends up blocked.
			if repo.recordedIP != "1.2.3.4" || repo.recordedDevice != "device-a" {
				t.Fatalf("expected signals recorded, got ip=%q device=%q", repo.recordedIP, repo.recordedDevice)
			}
			if len(repo.adminLogs) != tt.wantAudit {
				t.Fatalf("expected %d audit entries, got %d", tt.wantAudit, len(repo.adminLogs))
			}
			if tt.wantAudit == 1 && repo.adminLogs[0].AdminID != antiAbuseAdminID {
				t.Fatalf("expected audit entry from anti-abuse id %d, got %d", antiAbuseAdminID, repo.adminLogs[0].AdminID)
			}
		})
	}
}

func TestVerifyDoesNotReinstateBannedUsers(t *testing.T) {
	repo := newVerifierRepo()
	repo.userStatus = domain.UserStatusBanned
	svc := NewService(repo, &stubSupplier{}, nil, 20, nil)

	// Clean signals from a fresh IP and device.
	result, err := svc.Verify(context.Background(), 42, "9.9.9.9", "fresh-device")
	if err != nil {
		t.Fatalf("Verify returned error: %v", err)
	}
	if result != VerifyResultVerified {
		t.Fatalf("expected result %q, got %q", VerifyResultVerified, result)
	}
	if repo.recorded != 1 {
		t.Fatalf("expected signals recorded once, got %d", repo.recorded)
	}
	// The only status write in the flow is the block path, which must not
	// fire: verification never moves an account back to active.
	if repo.blocked != 0 {
		t.Fatalf("expected no status write for a banned account, got %d", repo.blocked)
	}
}
