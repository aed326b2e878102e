package repositories

import (
	"context"

	"github.com/mercatohq/bastion/internal/models"
)

// TwoFactorRepository defines two-factor credential persistence operations
type TwoFactorRepository interface {
	// Create inserts a confirmed credential for a user. Fails with
	// models.ErrConflict when the user already has one.
	Create(ctx context.Context, cred *models.TwoFactorCredential) error

	// GetByUserID retrieves the credential for a user.
	GetByUserID(ctx context.Context, userID string) (*models.TwoFactorCredential, error)

	// MarkStepUsed advances the replay watermark to the given time step.
	// Returns false when the step was already consumed, which means the
	// submitted code is a replay.
	MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error)

	// ConsumeBackupCode removes one backup code hash. Returns false when the
	// hash was already consumed by a concurrent request. On success the
	// second result is the count of codes left after removal, read from the
	// same atomic update.
	ConsumeBackupCode(ctx context.Context, userID string, hash string) (bool, int, error)

	// ReplaceBackupCodes swaps the full set of backup code hashes.
	ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error

	// DeleteByUserID removes the credential, disabling two-factor for the user.
	DeleteByUserID(ctx context.Context, userID string) error
}
