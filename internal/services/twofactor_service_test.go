package services

import (
	"context"
	"crypto/rand"
	"log/slog"
	"testing"
	"time"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/models"
	"github.com/mercatohq/bastion/internal/store"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestTOTPManager(t *testing.T) *auth.TOTPManager {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)

	tm, err := auth.NewTOTPManager(key, "Mercato")
	require.NoError(t, err)
	return tm
}

func newTestTwoFactorService(t *testing.T, credRepo *MockTwoFactorRepository, accounts *MockAccountRepository, alerts *MockAlertService) (*TwoFactorService, *auth.TOTPManager) {
	t.Helper()
	tm := newTestTOTPManager(t)
	svc := NewTwoFactorService(credRepo, accounts, tm, store.NewMemoryStore(), alerts, slog.Default(), TwoFactorConfig{
		SetupTTL:        10 * time.Minute,
		BackupCodeCount: 10,
	})
	return svc, tm
}

func enabledCredential(t *testing.T, tm *auth.TOTPManager, userID, secret string, hashes []string) *models.TwoFactorCredential {
	t.Helper()
	encrypted, nonce, err := tm.EncryptSecret(secret)
	require.NoError(t, err)
	now := time.Now()
	return &models.TwoFactorCredential{
		ID:               "cred-1",
		UserID:           userID,
		SecretEncrypted:  encrypted,
		SecretNonce:      nonce,
		Enabled:          true,
		BackupCodeHashes: hashes,
		ConfirmedAt:      &now,
	}
}

func TestTwoFactorService_BeginSetup_ReturnsProvisioningMaterial(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{}, &MockAlertService{})

	setup, err := svc.BeginSetup(context.Background(), "user-1", "user@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.Contains(t, setup.OTPAuthURL, "otpauth://totp/")
	assert.Contains(t, setup.QRCode, "data:image/png;base64,")
}

func TestTwoFactorService_BeginSetup_AlreadyEnabled(t *testing.T) {
	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return &models.TwoFactorCredential{UserID: userID, Enabled: true}, nil
		},
	}
	svc, _ := newTestTwoFactorService(t, credRepo, &MockAccountRepository{}, &MockAlertService{})

	_, err := svc.BeginSetup(context.Background(), "user-1", "user@example.com")
	assert.ErrorIs(t, err, models.ErrTwoFactorEnabled)
}

func TestTwoFactorService_ConfirmSetup_NoPendingSetup(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{}, &MockAlertService{})

	_, err := svc.ConfirmSetup(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrSetupNotFound)
}

func TestTwoFactorService_ConfirmSetup_WrongCode(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{}, &MockAlertService{})
	ctx := context.Background()

	setup, err := svc.BeginSetup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)
	wrong := "000000"
	if code == wrong {
		wrong = "000001"
	}

	_, err = svc.ConfirmSetup(ctx, "user-1", wrong)
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactor)
}

func TestTwoFactorService_ConfirmSetup_Success(t *testing.T) {
	var created *models.TwoFactorCredential
	credRepo := &MockTwoFactorRepository{
		CreateFunc: func(ctx context.Context, cred *models.TwoFactorCredential) error {
			created = cred
			return nil
		},
	}

	var flagSet bool
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@example.com"}, nil
		},
		SetTwoFactorEnabledFunc: func(ctx context.Context, id string, enabled bool) error {
			flagSet = enabled
			return nil
		},
	}

	var alertEvent string
	alerts := &MockAlertService{
		SendTwoFactorAlertFunc: func(ctx context.Context, email, event string) error {
			alertEvent = event
			return nil
		},
	}

	svc, _ := newTestTwoFactorService(t, credRepo, accounts, alerts)
	ctx := context.Background()

	setup, err := svc.BeginSetup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	backupCodes, err := svc.ConfirmSetup(ctx, "user-1", code)
	require.NoError(t, err)

	assert.Len(t, backupCodes, 10)
	require.NotNil(t, created)
	assert.True(t, created.Enabled)
	assert.Len(t, created.BackupCodeHashes, 10)
	require.NotNil(t, created.LastUsedStep, "confirmation code must be spent")
	assert.True(t, flagSet)
	assert.Equal(t, "enabled", alertEvent)

	// Pending setup is gone after confirmation
	_, err = svc.ConfirmSetup(ctx, "user-1", code)
	assert.ErrorIs(t, err, models.ErrSetupNotFound)
}

func TestTwoFactorService_ConfirmSetup_RaceWithExistingCredential(t *testing.T) {
	credRepo := &MockTwoFactorRepository{
		CreateFunc: func(ctx context.Context, cred *models.TwoFactorCredential) error {
			return models.ErrConflict
		},
	}
	svc, _ := newTestTwoFactorService(t, credRepo, &MockAccountRepository{}, &MockAlertService{})
	ctx := context.Background()

	setup, err := svc.BeginSetup(ctx, "user-1", "user@example.com")
	require.NoError(t, err)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	_, err = svc.ConfirmSetup(ctx, "user-1", code)
	assert.ErrorIs(t, err, models.ErrTwoFactorEnabled)
}

func TestTwoFactorService_VerifyCode_Success(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	var markedStep int64
	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, nil), nil
		},
		MarkStepUsedFunc: func(ctx context.Context, userID string, step int64) (bool, error) {
			markedStep = step
			return true, nil
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})
	now := time.Now()
	svc.clock = func() time.Time { return now }

	code, err := totp.GenerateCode(secret, now)
	require.NoError(t, err)

	require.NoError(t, svc.VerifyCode(context.Background(), "user-1", code))
	assert.Equal(t, auth.Step(now), markedStep)
}

func TestTwoFactorService_VerifyCode_ReplayRejected(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, nil), nil
		},
		MarkStepUsedFunc: func(ctx context.Context, userID string, step int64) (bool, error) {
			return false, nil // watermark already at or past this step
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	err = svc.VerifyCode(context.Background(), "user-1", code)
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactor)
}

func TestTwoFactorService_VerifyCode_NotEnabled(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{}, &MockAlertService{})

	err := svc.VerifyCode(context.Background(), "user-1", "123456")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_VerifyBackupCode_ConsumesMatch(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	hash1, err := bcrypt.GenerateFromPassword([]byte("AAAA2222"), bcrypt.MinCost)
	require.NoError(t, err)
	hash2, err := bcrypt.GenerateFromPassword([]byte("BBBB3333"), bcrypt.MinCost)
	require.NoError(t, err)

	var consumedHash string
	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{string(hash1), string(hash2)}), nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, userID string, hash string) (bool, int, error) {
			consumedHash = hash
			return true, 1, nil
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	remaining, err := svc.VerifyBackupCode(context.Background(), "user-1", "BBBB3333")
	require.NoError(t, err)
	assert.Equal(t, 1, remaining)
	assert.Equal(t, string(hash2), consumedHash)
}

func TestTwoFactorService_VerifyBackupCode_WrongCode(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("AAAA2222"), bcrypt.MinCost)
	require.NoError(t, err)

	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{string(hash)}), nil
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	_, err = svc.VerifyBackupCode(context.Background(), "user-1", "WRONG999")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactor)
}

func TestTwoFactorService_VerifyBackupCode_AlreadyConsumedLosesRace(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	hash, err := bcrypt.GenerateFromPassword([]byte("AAAA2222"), bcrypt.MinCost)
	require.NoError(t, err)

	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{string(hash)}), nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, userID string, hash string) (bool, int, error) {
			return false, 0, nil
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	_, err = svc.VerifyBackupCode(context.Background(), "user-1", "AAAA2222")
	assert.ErrorIs(t, err, models.ErrInvalidTwoFactor)
}

func TestTwoFactorService_VerifyBackupCode_RemainingFromRepository(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	hash1, err := bcrypt.GenerateFromPassword([]byte("AAAA2222"), bcrypt.MinCost)
	require.NoError(t, err)
	hash2, err := bcrypt.GenerateFromPassword([]byte("BBBB3333"), bcrypt.MinCost)
	require.NoError(t, err)

	// Snapshot still shows two codes, but by the time consumption lands a
	// concurrent request has spent the other one.
	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{string(hash1), string(hash2)}), nil
		},
		ConsumeBackupCodeFunc: func(ctx context.Context, userID string, hash string) (bool, int, error) {
			return true, 0, nil
		},
	}

	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@example.com"}, nil
		},
	}

	var alertEvent string
	alerts := &MockAlertService{
		SendTwoFactorAlertFunc: func(ctx context.Context, email, event string) error {
			alertEvent = event
			return nil
		},
	}

	svc := NewTwoFactorService(credRepo, accounts, tm, store.NewMemoryStore(), alerts, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	remaining, err := svc.VerifyBackupCode(context.Background(), "user-1", "AAAA2222")
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	assert.Equal(t, "backup codes exhausted", alertEvent)
}

func TestTwoFactorService_RegenerateBackupCodes(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	var replaced []string
	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{"old-hash"}), nil
		},
		ReplaceBackupCodesFunc: func(ctx context.Context, userID string, hashes []string) error {
			replaced = hashes
			return nil
		},
	}

	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@example.com"}, nil
		},
	}

	svc := NewTwoFactorService(credRepo, accounts, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	codes, err := svc.RegenerateBackupCodes(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Len(t, codes, 10)
	assert.Len(t, replaced, 10)
	assert.NotContains(t, replaced, "old-hash")
}

func TestTwoFactorService_Disable_WrongPassword(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	require.NoError(t, err)

	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@example.com", PasswordHash: string(hash)}, nil
		},
	}

	deleted := false
	credRepo := &MockTwoFactorRepository{
		DeleteByUserIDFunc: func(ctx context.Context, userID string) error {
			deleted = true
			return nil
		},
	}

	svc, _ := newTestTwoFactorService(t, credRepo, accounts, &MockAlertService{})

	err = svc.Disable(context.Background(), "user-1", "wrong-password")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
	assert.False(t, deleted)
}

func TestTwoFactorService_Disable_Success(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	require.NoError(t, err)

	var flagValue = true
	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, Email: "user@example.com", PasswordHash: string(hash)}, nil
		},
		SetTwoFactorEnabledFunc: func(ctx context.Context, id string, enabled bool) error {
			flagValue = enabled
			return nil
		},
	}

	deleted := false
	credRepo := &MockTwoFactorRepository{
		DeleteByUserIDFunc: func(ctx context.Context, userID string) error {
			deleted = true
			return nil
		},
	}

	var alertEvent string
	alerts := &MockAlertService{
		SendTwoFactorAlertFunc: func(ctx context.Context, email, event string) error {
			alertEvent = event
			return nil
		},
	}

	svc, _ := newTestTwoFactorService(t, credRepo, accounts, alerts)

	require.NoError(t, svc.Disable(context.Background(), "user-1", "correct-password"))
	assert.True(t, deleted)
	assert.False(t, flagValue)
	assert.Equal(t, "disabled", alertEvent)
}

func TestTwoFactorService_Disable_NotEnabled(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-password"), bcrypt.MinCost)
	require.NoError(t, err)

	accounts := &MockAccountRepository{
		GetByIDFunc: func(ctx context.Context, id string) (*models.Account, error) {
			return &models.Account{ID: id, PasswordHash: string(hash)}, nil
		},
	}
	credRepo := &MockTwoFactorRepository{
		DeleteByUserIDFunc: func(ctx context.Context, userID string) error {
			return models.ErrNotFound
		},
	}

	svc, _ := newTestTwoFactorService(t, credRepo, accounts, &MockAlertService{})

	err = svc.Disable(context.Background(), "user-1", "correct-password")
	assert.ErrorIs(t, err, models.ErrTwoFactorNotEnabled)
}

func TestTwoFactorService_Status(t *testing.T) {
	tm := newTestTOTPManager(t)
	secret, _, err := tm.GenerateSecret("user@example.com")
	require.NoError(t, err)

	credRepo := &MockTwoFactorRepository{
		GetByUserIDFunc: func(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
			return enabledCredential(t, tm, userID, secret, []string{"h1", "h2", "h3"}), nil
		},
	}

	svc := NewTwoFactorService(credRepo, &MockAccountRepository{}, tm, store.NewMemoryStore(), &MockAlertService{}, slog.Default(), TwoFactorConfig{BackupCodeCount: 10})

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, status.Enabled)
	assert.Equal(t, 3, status.BackupCodesRemaining)
	assert.NotNil(t, status.ConfirmedAt)
}

func TestTwoFactorService_Status_NotEnrolled(t *testing.T) {
	svc, _ := newTestTwoFactorService(t, &MockTwoFactorRepository{}, &MockAccountRepository{}, &MockAlertService{})

	status, err := svc.Status(context.Background(), "user-1")
	require.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Zero(t, status.BackupCodesRemaining)
}
