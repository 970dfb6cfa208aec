package config

import (
	"testing"

	"github.com/spf13/viper"
)

func loadForTest(t *testing.T, env map[string]string) Config {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
	for k, v := range env {
		t.Setenv(k, v)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	return cfg
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg := loadForTest(t, nil)

	if cfg.ServerPort != "3000" {
		t.Errorf("expected default port 3000, got %q", cfg.ServerPort)
	}
	if cfg.BaseURL != "http://localhost:3000" {
		t.Errorf("expected derived base url, got %q", cfg.BaseURL)
	}
	if cfg.ReferralBonusPoints != 20 {
		t.Errorf("expected default referral bonus 20, got %d", cfg.ReferralBonusPoints)
	}
	if cfg.OrderSweepIntervalMin != 10 {
		t.Errorf("expected default sweep interval 10, got %d", cfg.OrderSweepIntervalMin)
	}
	if cfg.VerifyRateLimitPerWin != 300 || cfg.VerifyRateLimitWinMin != 15 {
		t.Errorf("expected default verify rate limit 300/15, got %d/%d", cfg.VerifyRateLimitPerWin, cfg.VerifyRateLimitWinMin)
	}
	if cfg.CommandThrottleSeconds != 1 {
		t.Errorf("expected default command throttle 1s, got %d", cfg.CommandThrottleSeconds)
	}
	if len(cfg.AdminIDs) != 0 || len(cfg.ForceJoinChannels) != 0 {
		t.Errorf("expected empty derived lists, got %v / %v", cfg.AdminIDs, cfg.ForceJoinChannels)
	}
}

func TestLoadConfigReadsEnvironment(t *testing.T) {
	cfg := loadForTest(t, map[string]string{
		"BOT_TOKEN":           "123:abc",
		"SERVER_PORT":         "8080",
		"BASE_URL":            "https://verify.example.com",
		"SUPPLIER_API_KEY":    "sk-test",
		"ADMIN_IDS":           "111, 222,abc, 333",
		"FORCE_JOIN_CHANNELS": "@main, @updates ,",
	})

	if cfg.BotToken != "123:abc" {
		t.Errorf("expected bot token from env, got %q", cfg.BotToken)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.ServerPort)
	}
	if cfg.BaseURL != "https://verify.example.com" {
		t.Errorf("expected explicit base url preserved, got %q", cfg.BaseURL)
	}

	wantAdmins := []int64{111, 222, 333}
	if len(cfg.AdminIDs) != len(wantAdmins) {
		t.Fatalf("expected admins %v, got %v", wantAdmins, cfg.AdminIDs)
	}
	for i, id := range wantAdmins {
		if cfg.AdminIDs[i] != id {
			t.Fatalf("expected admins %v, got %v", wantAdmins, cfg.AdminIDs)
		}
	}

	if len(cfg.ForceJoinChannels) != 2 || cfg.ForceJoinChannels[0] != "@main" || cfg.ForceJoinChannels[1] != "@updates" {
		t.Fatalf("expected trimmed channel list, got %v", cfg.ForceJoinChannels)
	}
}

func TestLoadConfigSanitizesValues(t *testing.T) {
	cfg := loadForTest(t, map[string]string{
		"REFERRAL_BONUS_POINTS":            "-5",
		"VERIFY_RATE_LIMIT_WINDOW_MINUTES": "0",
		"COMMAND_THROTTLE_SECONDS":         "-2",
	})

	if cfg.ReferralBonusPoints != 0 {
		t.Errorf("expected negative bonus coerced to 0, got %d", cfg.ReferralBonusPoints)
	}
	if cfg.VerifyRateLimitWinMin != 15 {
		t.Errorf("expected zero window restored to 15, got %d", cfg.VerifyRateLimitWinMin)
	}
	if cfg.CommandThrottleSeconds != 0 {
		t.Errorf("expected negative throttle coerced to 0, got %d", cfg.CommandThrottleSeconds)
	}
}

func TestIsAdmin(t *testing.T) {
	cfg := Config{AdminIDs: []int64{111, 222}}
	if !cfg.IsAdmin(111) {
		t.Error("expected 111 to be an admin")
	}
	if cfg.IsAdmin(999) {
		t.Error("expected 999 not to be an admin")
	}
}

func TestServiceByID(t *testing.T) {
	svc, ok := ServiceByID(3036)
	if !ok {
		t.Fatal("expected service 3036 in the catalog")
	}
	if svc.Points != 2 || svc.Min != 12 {
		t.Fatalf("unexpected pricing for 3036: %+v", svc)
	}

	if _, ok := ServiceByID(99999); ok {
		t.Fatal("expected unknown id to miss")
	}
}
