package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mercatohq/bastion/internal/database"
	"github.com/mercatohq/bastion/internal/models"
)

// AccountRepository reads the account projection maintained by the account
// service and flips the two-factor flag this core owns.
type AccountRepository interface {
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
}

type accountRepoImpl struct {
	pool *pgxpool.Pool
}

// NewAccountRepository creates a new account repository
func NewAccountRepository(db *database.DB) AccountRepository {
	return &accountRepoImpl{pool: db.Pool}
}

func (r *accountRepoImpl) GetByID(ctx context.Context, id string) (*models.Account, error) {
	return r.get(ctx, "id = $1", id)
}

func (r *accountRepoImpl) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	return r.get(ctx, "email = $1", email)
}

func (r *accountRepoImpl) get(ctx context.Context, where string, arg any) (*models.Account, error) {
	account := &models.Account{}

	query := `
		SELECT id, email, password_hash, email_verified, two_factor_enabled, created_at
		FROM accounts
		WHERE ` + where

	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&account.ID,
		&account.Email,
		&account.PasswordHash,
		&account.EmailVerified,
		&account.TwoFactorEnabled,
		&account.CreatedAt,
	)

	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", database.MapPostgresError(err))
	}

	return account, nil
}

func (r *accountRepoImpl) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	query := `
		UPDATE accounts
		SET two_factor_enabled = $2
		WHERE id = $1
	`

	commandTag, err := r.pool.Exec(ctx, query, id, enabled)
	if err != nil {
		return fmt.Errorf("failed to update two-factor flag: %w", database.MapPostgresError(err))
	}

	if commandTag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}
