package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/models"
	"github.com/mercatohq/bastion/internal/repositories"
	"github.com/mercatohq/bastion/internal/store"
	pkgauth "github.com/mercatohq/bastion/pkg/auth"
	"golang.org/x/crypto/bcrypt"
)

const setupKeyPrefix = "bastion:2fasetup:"

// Backup codes are random 40-bit values, not user-chosen passwords, so the
// default cost is sufficient and keeps regeneration under a second.
const backupCodeHashCost = bcrypt.DefaultCost

// TwoFactorConfig holds two-factor service configuration
type TwoFactorConfig struct {
	SetupTTL        time.Duration
	BackupCodeCount int
}

// TwoFactorService handles TOTP enrollment, verification, and management.
// Enrollment is two-phase: BeginSetup provisions a secret that lives only in
// the key-value store until ConfirmSetup proves the authenticator has it.
type TwoFactorService struct {
	credRepo repositories.TwoFactorRepository
	accounts repositories.AccountRepository
	totpMgr  *auth.TOTPManager
	kv       store.Store
	alerts   AlertService
	logger   *slog.Logger
	config   TwoFactorConfig
	clock    func() time.Time
}

// NewTwoFactorService creates a new two-factor service
func NewTwoFactorService(
	credRepo repositories.TwoFactorRepository,
	accounts repositories.AccountRepository,
	totpMgr *auth.TOTPManager,
	kv store.Store,
	alerts AlertService,
	logger *slog.Logger,
	config TwoFactorConfig,
) *TwoFactorService {
	return &TwoFactorService{
		credRepo: credRepo,
		accounts: accounts,
		totpMgr:  totpMgr,
		kv:       kv,
		alerts:   alerts,
		logger:   logger,
		config:   config,
		clock:    time.Now,
	}
}

// BeginSetup provisions a new TOTP secret for the user. The secret is held
// pending until ConfirmSetup; calling BeginSetup again replaces it. Fails
// when two-factor is already enabled.
func (s *TwoFactorService) BeginSetup(ctx context.Context, userID, email string) (*models.TwoFactorSetup, error) {
	if _, err := s.credRepo.GetByUserID(ctx, userID); err == nil {
		return nil, models.ErrTwoFactorEnabled
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	secret, otpauthURL, err := s.totpMgr.GenerateSecret(email)
	if err != nil {
		s.logger.Error("failed to generate TOTP secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	qrCode, err := s.totpMgr.ProvisioningQR(otpauthURL)
	if err != nil {
		s.logger.Error("failed to render provisioning QR", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	encrypted, nonce, err := s.totpMgr.EncryptSecret(secret)
	if err != nil {
		s.logger.Error("failed to encrypt pending secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	pending := models.PendingTwoFactorSetup{
		UserID:          userID,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
		CreatedAt:       s.clock(),
	}
	encoded, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("encode pending setup: %w", err)
	}

	if err := s.kv.Set(ctx, setupKey(userID), encoded, s.config.SetupTTL); err != nil {
		s.logger.Error("failed to store pending setup", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	s.logger.Info("two-factor setup initiated", slog.String("user_id", userID))

	return &models.TwoFactorSetup{
		Secret:     secret,
		OTPAuthURL: otpauthURL,
		QRCode:     qrCode,
	}, nil
}

// ConfirmSetup validates the first code against the pending secret and, on
// success, persists the credential and returns the single-use backup codes.
// The plaintext codes are shown exactly once.
func (s *TwoFactorService) ConfirmSetup(ctx context.Context, userID, code string) ([]string, error) {
	pending, err := s.getPendingSetup(ctx, userID)
	if err != nil {
		return nil, err
	}

	secret, err := s.totpMgr.DecryptSecret(pending.SecretEncrypted, pending.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt pending secret", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.clock()
	step, ok, err := s.totpMgr.ValidateCode(secret, code, now)
	if err != nil {
		s.logger.Error("TOTP validation error", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !ok {
		s.logger.Warn("invalid code during setup confirmation", slog.String("user_id", userID))
		return nil, models.ErrInvalidTwoFactor
	}

	backupCodes, hashes, err := s.mintBackupCodes()
	if err != nil {
		return nil, err
	}

	cred := &models.TwoFactorCredential{
		UserID:           userID,
		SecretEncrypted:  pending.SecretEncrypted,
		SecretNonce:      pending.SecretNonce,
		Enabled:          true,
		BackupCodeHashes: hashes,
		LastUsedStep:     &step, // the confirmation code is spent
		ConfirmedAt:      &now,
	}

	if err := s.credRepo.Create(ctx, cred); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, models.ErrTwoFactorEnabled
		}
		s.logger.Error("failed to persist credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if err := s.kv.Delete(ctx, setupKey(userID)); err != nil {
		s.logger.Warn("failed to clear pending setup", slog.Any("error", err))
	}

	if err := s.accounts.SetTwoFactorEnabled(ctx, userID, true); err != nil {
		s.logger.Error("failed to set account two-factor flag", slog.Any("error", err))
	}

	s.notify(ctx, userID, "enabled")
	s.logger.Info("two-factor enabled", slog.String("user_id", userID))

	return backupCodes, nil
}

// VerifyCode checks a TOTP code during login. A code that validates but falls
// on an already-consumed time step is rejected as a replay.
func (s *TwoFactorService) VerifyCode(ctx context.Context, userID, code string) error {
	cred, err := s.getCredential(ctx, userID)
	if err != nil {
		return err
	}

	secret, err := s.totpMgr.DecryptSecret(cred.SecretEncrypted, cred.SecretNonce)
	if err != nil {
		s.logger.Error("failed to decrypt TOTP secret", slog.Any("error", err))
		return models.ErrInternalServer
	}

	step, ok, err := s.totpMgr.ValidateCode(secret, code, s.clock())
	if err != nil {
		s.logger.Error("TOTP validation error", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !ok {
		s.logger.Warn("invalid two-factor code", slog.String("user_id", userID))
		return models.ErrInvalidTwoFactor
	}

	advanced, err := s.credRepo.MarkStepUsed(ctx, userID, step)
	if err != nil {
		s.logger.Error("failed to mark step used", slog.Any("error", err))
		return models.ErrInternalServer
	}
	if !advanced {
		s.logger.Warn("replayed two-factor code rejected",
			slog.String("user_id", userID),
			slog.Int64("step", step))
		return models.ErrInvalidTwoFactor
	}

	return nil
}

// VerifyBackupCode consumes a single-use backup code. Returns the number of
// codes remaining after consumption.
func (s *TwoFactorService) VerifyBackupCode(ctx context.Context, userID, code string) (int, error) {
	cred, err := s.getCredential(ctx, userID)
	if err != nil {
		return 0, err
	}

	for _, hash := range cred.BackupCodeHashes {
		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
			continue
		}

		consumed, remaining, err := s.credRepo.ConsumeBackupCode(ctx, userID, hash)
		if err != nil {
			s.logger.Error("failed to consume backup code", slog.Any("error", err))
			return 0, models.ErrInternalServer
		}
		if !consumed {
			// A concurrent request spent this code first
			break
		}

		s.logger.Info("backup code used",
			slog.String("user_id", userID),
			slog.Int("remaining", remaining))
		if remaining == 0 {
			s.notify(ctx, userID, "backup codes exhausted")
		}
		return remaining, nil
	}

	s.logger.Warn("invalid backup code", slog.String("user_id", userID))
	return 0, models.ErrInvalidTwoFactor
}

// RegenerateBackupCodes replaces all backup codes with a fresh set. Old codes
// stop working immediately.
func (s *TwoFactorService) RegenerateBackupCodes(ctx context.Context, userID string) ([]string, error) {
	if _, err := s.getCredential(ctx, userID); err != nil {
		return nil, err
	}

	backupCodes, hashes, err := s.mintBackupCodes()
	if err != nil {
		return nil, err
	}

	if err := s.credRepo.ReplaceBackupCodes(ctx, userID, hashes); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to replace backup codes", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.notify(ctx, userID, "backup codes regenerated")
	s.logger.Info("backup codes regenerated", slog.String("user_id", userID))

	return backupCodes, nil
}

// Disable turns off two-factor after re-verifying the account password.
func (s *TwoFactorService) Disable(ctx context.Context, userID, password string) error {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrNotFound
		}
		s.logger.Error("failed to fetch account", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := pkgauth.ComparePassword(account.PasswordHash, password); err != nil {
		s.logger.Warn("password re-verification failed for two-factor disable",
			slog.String("user_id", userID))
		return models.ErrUnauthorized
	}

	if err := s.credRepo.DeleteByUserID(ctx, userID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to delete credential", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.accounts.SetTwoFactorEnabled(ctx, userID, false); err != nil {
		s.logger.Error("failed to clear account two-factor flag", slog.Any("error", err))
	}

	s.notify(ctx, userID, "disabled")
	s.logger.Info("two-factor disabled", slog.String("user_id", userID))

	return nil
}

// Status reports whether two-factor is enabled and how many backup codes remain.
func (s *TwoFactorService) Status(ctx context.Context, userID string) (*models.TwoFactorStatus, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.TwoFactorStatus{Enabled: false}, nil
		}
		s.logger.Error("failed to get credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	return &models.TwoFactorStatus{
		Enabled:              cred.Enabled,
		ConfirmedAt:          cred.ConfirmedAt,
		BackupCodesRemaining: len(cred.BackupCodeHashes),
	}, nil
}

func (s *TwoFactorService) getCredential(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
	cred, err := s.credRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrTwoFactorNotEnabled
		}
		s.logger.Error("failed to get credential", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	if !cred.Enabled {
		return nil, models.ErrTwoFactorNotEnabled
	}
	return cred, nil
}

func (s *TwoFactorService) getPendingSetup(ctx context.Context, userID string) (*models.PendingTwoFactorSetup, error) {
	raw, err := s.kv.Get(ctx, setupKey(userID))
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil, models.ErrSetupNotFound
	}
	if err != nil {
		s.logger.Error("failed to load pending setup", slog.Any("error", err))
		return nil, models.ErrStoreUnavailable
	}

	var pending models.PendingTwoFactorSetup
	if err := json.Unmarshal(raw, &pending); err != nil {
		return nil, fmt.Errorf("decode pending setup: %w", err)
	}
	return &pending, nil
}

func (s *TwoFactorService) mintBackupCodes() ([]string, []string, error) {
	backupCodes, err := s.totpMgr.GenerateBackupCodes(s.config.BackupCodeCount)
	if err != nil {
		s.logger.Error("failed to generate backup codes", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	hashes := make([]string, len(backupCodes))
	for i, code := range backupCodes {
		hash, err := bcrypt.GenerateFromPassword([]byte(code), backupCodeHashCost)
		if err != nil {
			s.logger.Error("failed to hash backup code", slog.Any("error", err))
			return nil, nil, models.ErrInternalServer
		}
		hashes[i] = string(hash)
	}

	return backupCodes, hashes, nil
}

// notify sends a two-factor change alert, best effort.
func (s *TwoFactorService) notify(ctx context.Context, userID, event string) {
	account, err := s.accounts.GetByID(ctx, userID)
	if err != nil {
		s.logger.Warn("skipping alert, account lookup failed",
			slog.String("user_id", userID), slog.Any("error", err))
		return
	}
	if err := s.alerts.SendTwoFactorAlert(ctx, account.Email, event); err != nil {
		s.logger.Warn("failed to send two-factor alert",
			slog.String("user_id", userID), slog.Any("error", err))
	}
}

func setupKey(userID string) string {
	return setupKeyPrefix + userID
}
