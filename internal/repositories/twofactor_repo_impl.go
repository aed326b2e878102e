package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/lib/pq"
	"github.com/mercatohq/bastion/internal/database"
	"github.com/mercatohq/bastion/internal/models"
)

// twoFactorRepoImpl implements TwoFactorRepository
type twoFactorRepoImpl struct {
	pool *pgxpool.Pool
}

// NewTwoFactorRepository creates a new two-factor credential repository
func NewTwoFactorRepository(db *database.DB) TwoFactorRepository {
	return &twoFactorRepoImpl{pool: db.Pool}
}

// Create inserts a confirmed two-factor credential
func (r *twoFactorRepoImpl) Create(ctx context.Context, cred *models.TwoFactorCredential) error {
	query := `
		INSERT INTO two_factor_credentials
			(id, user_id, secret_encrypted, secret_nonce, enabled, backup_code_hashes, confirmed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`

	if cred.ID == "" {
		cred.ID = uuid.New().String()
	}

	err := r.pool.QueryRow(ctx, query,
		cred.ID,
		cred.UserID,
		cred.SecretEncrypted,
		cred.SecretNonce,
		cred.Enabled,
		pq.Array(cred.BackupCodeHashes),
		cred.ConfirmedAt,
	).Scan(&cred.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to create two-factor credential: %w", database.MapPostgresError(err))
	}

	return nil
}

// GetByUserID retrieves the two-factor credential for a user
func (r *twoFactorRepoImpl) GetByUserID(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
	cred := &models.TwoFactorCredential{}

	query := `
		SELECT id, user_id, secret_encrypted, secret_nonce, enabled,
		       backup_code_hashes, last_used_step, created_at, confirmed_at
		FROM two_factor_credentials
		WHERE user_id = $1
	`

	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&cred.ID,
		&cred.UserID,
		&cred.SecretEncrypted,
		&cred.SecretNonce,
		&cred.Enabled,
		pq.Array(&cred.BackupCodeHashes),
		&cred.LastUsedStep,
		&cred.CreatedAt,
		&cred.ConfirmedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get two-factor credential: %w", database.MapPostgresError(err))
	}

	return cred, nil
}

// MarkStepUsed advances the replay watermark. The conditional update makes
// concurrent submissions of the same code race to a single winner.
func (r *twoFactorRepoImpl) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	query := `
		UPDATE two_factor_credentials
		SET last_used_step = $2
		WHERE user_id = $1
		  AND (last_used_step IS NULL OR last_used_step < $2)
	`

	commandTag, err := r.pool.Exec(ctx, query, userID, step)
	if err != nil {
		return false, fmt.Errorf("failed to mark step used: %w", database.MapPostgresError(err))
	}

	return commandTag.RowsAffected() > 0, nil
}

// ConsumeBackupCode removes one backup code hash atomically. The remaining
// count comes back from the same UPDATE, so concurrent consumers each see
// the count their own removal produced.
func (r *twoFactorRepoImpl) ConsumeBackupCode(ctx context.Context, userID string, hash string) (bool, int, error) {
	query := `
		UPDATE two_factor_credentials
		SET backup_code_hashes = array_remove(backup_code_hashes, $2)
		WHERE user_id = $1
		  AND $2 = ANY(backup_code_hashes)
		RETURNING cardinality(backup_code_hashes)
	`

	var remaining int
	err := r.pool.QueryRow(ctx, query, userID, hash).Scan(&remaining)
	if err != nil {
		mapped := database.MapPostgresError(err)
		if errors.Is(mapped, models.ErrNotFound) {
			return false, 0, nil
		}
		return false, 0, fmt.Errorf("failed to consume backup code: %w", mapped)
	}

	return true, remaining, nil
}

// ReplaceBackupCodes swaps the full set of backup code hashes
func (r *twoFactorRepoImpl) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	query := `
		UPDATE two_factor_credentials
		SET backup_code_hashes = $2
		WHERE user_id = $1
	`

	commandTag, err := r.pool.Exec(ctx, query, userID, pq.Array(hashes))
	if err != nil {
		return fmt.Errorf("failed to replace backup codes: %w", database.MapPostgresError(err))
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// DeleteByUserID removes the two-factor credential for a user
func (r *twoFactorRepoImpl) DeleteByUserID(ctx context.Context, userID string) error {
	query := `DELETE FROM two_factor_credentials WHERE user_id = $1`

	commandTag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return fmt.Errorf("failed to delete two-factor credential: %w", database.MapPostgresError(err))
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
