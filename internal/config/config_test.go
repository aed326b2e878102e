package config

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	os.Setenv("TOTP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	os.Setenv("CHALLENGE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
}

func TestLoad_SecurityDefaults(t *testing.T) {
	setRequiredEnv(t)
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxLoginAttempts != 5 {
		t.Errorf("MaxLoginAttempts: got %d, want 5", cfg.Security.MaxLoginAttempts)
	}
	if cfg.Security.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration: got %v, want 30m", cfg.Security.LockoutDuration)
	}

	tests := []struct {
		name            string
		ceiling         int
		window          time.Duration
		expectedCeiling int
		expectedWindow  time.Duration
	}{
		{"Login", cfg.Security.LoginRateCeiling, cfg.Security.LoginRateWindow, 10, 15 * time.Minute},
		{"Register", cfg.Security.RegisterRateCeiling, cfg.Security.RegisterRateWindow, 5, time.Hour},
		{"Reset", cfg.Security.ResetRateCeiling, cfg.Security.ResetRateWindow, 3, time.Hour},
	}

	for _, tt := range tests {
		if tt.ceiling != tt.expectedCeiling {
			t.Errorf("%s ceiling: got %d, want %d", tt.name, tt.ceiling, tt.expectedCeiling)
		}
		if tt.window != tt.expectedWindow {
			t.Errorf("%s window: got %v, want %v", tt.name, tt.window, tt.expectedWindow)
		}
	}
}

func TestLoad_CustomSecurityValues(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("MAX_LOGIN_ATTEMPTS", "3")
	os.Setenv("LOCKOUT_DURATION", "1h")
	os.Setenv("LOGIN_RATE_CEILING", "20")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.MaxLoginAttempts != 3 {
		t.Errorf("MaxLoginAttempts: got %d, want 3", cfg.Security.MaxLoginAttempts)
	}
	if cfg.Security.LockoutDuration != time.Hour {
		t.Errorf("LockoutDuration: got %v, want 1h", cfg.Security.LockoutDuration)
	}
	if cfg.Security.LoginRateCeiling != 20 {
		t.Errorf("LoginRateCeiling: got %d, want 20", cfg.Security.LoginRateCeiling)
	}
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	os.Setenv("CHALLENGE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	os.Setenv("DB_PASSWORD", "test")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error, want TOTP_ENCRYPTION_KEY error")
	}
}

func TestLoad_WrongEncryptionKeyLength(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("TOTP_ENCRYPTION_KEY", "too-short")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error, want key length error")
	}
}

func TestLoad_WeakChallengeSecretRejected(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("CHALLENGE_TOKEN_SECRET", "short")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error, want weak secret error")
	}
}

func TestLoad_MissingDBPassword(t *testing.T) {
	os.Setenv("TOTP_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef")
	os.Setenv("CHALLENGE_TOKEN_SECRET", "test-secret-32-characters-long!!")
	defer os.Clearenv()

	if _, err := Load(); err == nil {
		t.Fatal("Load() = nil error, want DB_PASSWORD error")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	setRequiredEnv(t)
	os.Setenv("LOCKOUT_DURATION", "not-a-duration")
	defer os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() = %v, want nil", err)
	}

	if cfg.Security.LockoutDuration != 30*time.Minute {
		t.Errorf("LockoutDuration with invalid value: got %v, want 30m", cfg.Security.LockoutDuration)
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host: "localhost", Port: 5432, User: "postgres",
		Password: "pw", Name: "bastion", SSLMode: "disable",
	}

	want := "host=localhost port=5432 user=postgres password=pw dbname=bastion sslmode=disable"
	if got := cfg.DSN(); got != want {
		t.Errorf("DSN: got %q, want %q", got, want)
	}
}
