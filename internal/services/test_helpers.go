package services

import (
	"context"
	"time"

	"github.com/mercatohq/bastion/internal/models"
)

// MockTwoFactorRepository implements repositories.TwoFactorRepository for testing
type MockTwoFactorRepository struct {
	CreateFunc             func(ctx context.Context, cred *models.TwoFactorCredential) error
	GetByUserIDFunc        func(ctx context.Context, userID string) (*models.TwoFactorCredential, error)
	MarkStepUsedFunc       func(ctx context.Context, userID string, step int64) (bool, error)
	ConsumeBackupCodeFunc  func(ctx context.Context, userID string, hash string) (bool, int, error)
	ReplaceBackupCodesFunc func(ctx context.Context, userID string, hashes []string) error
	DeleteByUserIDFunc     func(ctx context.Context, userID string) error
}

func (m *MockTwoFactorRepository) Create(ctx context.Context, cred *models.TwoFactorCredential) error {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, cred)
	}
	return nil
}

func (m *MockTwoFactorRepository) GetByUserID(ctx context.Context, userID string) (*models.TwoFactorCredential, error) {
	if m.GetByUserIDFunc != nil {
		return m.GetByUserIDFunc(ctx, userID)
	}
	return nil, models.ErrNotFound
}

func (m *MockTwoFactorRepository) MarkStepUsed(ctx context.Context, userID string, step int64) (bool, error) {
	if m.MarkStepUsedFunc != nil {
		return m.MarkStepUsedFunc(ctx, userID, step)
	}
	return true, nil
}

func (m *MockTwoFactorRepository) ConsumeBackupCode(ctx context.Context, userID string, hash string) (bool, int, error) {
	if m.ConsumeBackupCodeFunc != nil {
		return m.ConsumeBackupCodeFunc(ctx, userID, hash)
	}
	return true, 0, nil
}

func (m *MockTwoFactorRepository) ReplaceBackupCodes(ctx context.Context, userID string, hashes []string) error {
	if m.ReplaceBackupCodesFunc != nil {
		return m.ReplaceBackupCodesFunc(ctx, userID, hashes)
	}
	return nil
}

func (m *MockTwoFactorRepository) DeleteByUserID(ctx context.Context, userID string) error {
	if m.DeleteByUserIDFunc != nil {
		return m.DeleteByUserIDFunc(ctx, userID)
	}
	return nil
}

// MockAccountRepository implements repositories.AccountRepository for testing
type MockAccountRepository struct {
	GetByIDFunc             func(ctx context.Context, id string) (*models.Account, error)
	GetByEmailFunc          func(ctx context.Context, email string) (*models.Account, error)
	SetTwoFactorEnabledFunc func(ctx context.Context, id string, enabled bool) error
}

func (m *MockAccountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.GetByEmailFunc != nil {
		return m.GetByEmailFunc(ctx, email)
	}
	return nil, models.ErrNotFound
}

func (m *MockAccountRepository) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	if m.SetTwoFactorEnabledFunc != nil {
		return m.SetTwoFactorEnabledFunc(ctx, id, enabled)
	}
	return nil
}

// MockAttemptLedger implements AttemptLedger for testing
type MockAttemptLedger struct {
	CheckLockFunc     func(ctx context.Context, identity string) (*models.LockStatus, error)
	RecordFailureFunc func(ctx context.Context, identity string) (*models.AttemptRecord, error)
	RecordSuccessFunc func(ctx context.Context, identity string) error
}

func (m *MockAttemptLedger) CheckLock(ctx context.Context, identity string) (*models.LockStatus, error) {
	if m.CheckLockFunc != nil {
		return m.CheckLockFunc(ctx, identity)
	}
	return &models.LockStatus{Locked: false, AttemptsLeft: 5, MaxAttempts: 5}, nil
}

func (m *MockAttemptLedger) RecordFailure(ctx context.Context, identity string) (*models.AttemptRecord, error) {
	if m.RecordFailureFunc != nil {
		return m.RecordFailureFunc(ctx, identity)
	}
	return &models.AttemptRecord{Identity: identity, ConsecutiveFailures: 1}, nil
}

func (m *MockAttemptLedger) RecordSuccess(ctx context.Context, identity string) error {
	if m.RecordSuccessFunc != nil {
		return m.RecordSuccessFunc(ctx, identity)
	}
	return nil
}

// MockRequestLimiter implements RequestLimiter for testing
type MockRequestLimiter struct {
	AllowFunc func(ctx context.Context, identity string, class models.ActionClass) (models.RateLimitDecision, error)
}

func (m *MockRequestLimiter) Allow(ctx context.Context, identity string, class models.ActionClass) (models.RateLimitDecision, error) {
	if m.AllowFunc != nil {
		return m.AllowFunc(ctx, identity, class)
	}
	return models.RateLimitDecision{Allowed: true, Remaining: 9}, nil
}

// MockCodeVerifier implements CodeVerifier for testing
type MockCodeVerifier struct {
	VerifyCodeFunc       func(ctx context.Context, userID, code string) error
	VerifyBackupCodeFunc func(ctx context.Context, userID, code string) (int, error)
}

func (m *MockCodeVerifier) VerifyCode(ctx context.Context, userID, code string) error {
	if m.VerifyCodeFunc != nil {
		return m.VerifyCodeFunc(ctx, userID, code)
	}
	return nil
}

func (m *MockCodeVerifier) VerifyBackupCode(ctx context.Context, userID, code string) (int, error) {
	if m.VerifyBackupCodeFunc != nil {
		return m.VerifyBackupCodeFunc(ctx, userID, code)
	}
	return 9, nil
}

// MockAlertService implements AlertService for testing
type MockAlertService struct {
	SendLockoutAlertFunc   func(ctx context.Context, email string, unlockAt time.Time) error
	SendTwoFactorAlertFunc func(ctx context.Context, email, event string) error
}

func (m *MockAlertService) SendLockoutAlert(ctx context.Context, email string, unlockAt time.Time) error {
	if m.SendLockoutAlertFunc != nil {
		return m.SendLockoutAlertFunc(ctx, email, unlockAt)
	}
	return nil
}

func (m *MockAlertService) SendTwoFactorAlert(ctx context.Context, email, event string) error {
	if m.SendTwoFactorAlertFunc != nil {
		return m.SendTwoFactorAlertFunc(ctx, email, event)
	}
	return nil
}
