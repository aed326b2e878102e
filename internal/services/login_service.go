package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/mercatohq/bastion/internal/auth"
	"github.com/mercatohq/bastion/internal/models"
	"github.com/mercatohq/bastion/internal/repositories"
	"github.com/mercatohq/bastion/internal/security"
	pkgauth "github.com/mercatohq/bastion/pkg/auth"
	"github.com/mercatohq/bastion/pkg/logger"
)

// AttemptLedger is the lockout state machine consulted on every login.
type AttemptLedger interface {
	CheckLock(ctx context.Context, identity string) (*models.LockStatus, error)
	RecordFailure(ctx context.Context, identity string) (*models.AttemptRecord, error)
	RecordSuccess(ctx context.Context, identity string) error
}

// RequestLimiter throttles login traffic per identity and action class.
type RequestLimiter interface {
	Allow(ctx context.Context, identity string, class models.ActionClass) (models.RateLimitDecision, error)
}

// CodeVerifier checks second-factor codes during login.
type CodeVerifier interface {
	VerifyCode(ctx context.Context, userID, code string) error
	VerifyBackupCode(ctx context.Context, userID, code string) (int, error)
}

// LoginService runs the login pipeline: rate limit, lock check, credential
// verification, attempt accounting, then the two-factor gate. Order matters:
// the rate limiter and ledger are consulted before any bcrypt work so locked
// and throttled identities never reach credential verification.
type LoginService struct {
	accounts  repositories.AccountRepository
	ledger    AttemptLedger
	limiter   RequestLimiter
	twoFactor CodeVerifier
	challenge *auth.ChallengeTokenManager
	timing    *auth.TimingDelay
	alerts    AlertService
	audit     *logger.AuditLogger
	logger    *slog.Logger
	clock     func() time.Time
}

// NewLoginService creates a new login service
func NewLoginService(
	accounts repositories.AccountRepository,
	ledger AttemptLedger,
	limiter RequestLimiter,
	twoFactor CodeVerifier,
	challenge *auth.ChallengeTokenManager,
	timing *auth.TimingDelay,
	alerts AlertService,
	audit *logger.AuditLogger,
	log *slog.Logger,
) *LoginService {
	return &LoginService{
		accounts:  accounts,
		ledger:    ledger,
		limiter:   limiter,
		twoFactor: twoFactor,
		challenge: challenge,
		timing:    timing,
		alerts:    alerts,
		audit:     audit,
		logger:    log,
		clock:     time.Now,
	}
}

// Login verifies an email/password pair. Failures against unknown accounts
// take the same path as wrong passwords so responses cannot be used to probe
// which emails exist.
func (s *LoginService) Login(ctx context.Context, email, password string) (*models.LoginResult, error) {
	start := s.clock()

	if err := s.gate(ctx, email, models.ActionLogin); err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("account lookup failed", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if account == nil || pkgauth.ComparePassword(account.PasswordHash, password) != nil {
		failErr := s.recordFailure(ctx, email, "invalid_credentials")
		s.timing.WaitFrom(start, false)
		return nil, failErr
	}

	if !account.EmailVerified {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType: "login", Identity: email, UserID: account.ID,
			Success: false, FailureReason: "email_not_verified",
		})
		s.timing.WaitFrom(start, false)
		return nil, models.ErrEmailNotVerified
	}

	if err := s.ledger.RecordSuccess(ctx, email); err != nil {
		// The attempt TTL clears stale streaks; a successful login proceeds.
		s.logger.Warn("failed to clear attempt streak", slog.Any("error", err))
	}

	if account.TwoFactorEnabled {
		token, err := s.challenge.GenerateChallenge(account.ID, account.Email)
		if err != nil {
			s.logger.Error("failed to issue challenge token", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType: "login_password_step", Identity: email, UserID: account.ID, Success: true,
		})
		return &models.LoginResult{
			AccountID:         account.ID,
			Email:             account.Email,
			TwoFactorRequired: true,
			ChallengeToken:    token,
		}, nil
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login", Identity: email, UserID: account.ID, Success: true,
	})
	return &models.LoginResult{AccountID: account.ID, Email: account.Email}, nil
}

// VerifyTwoFactor completes a login that stopped at the two-factor gate. The
// challenge token proves the password step; useBackup selects backup code
// verification instead of TOTP. Failed codes feed the same attempt ledger as
// failed passwords.
func (s *LoginService) VerifyTwoFactor(ctx context.Context, challengeToken, code string, useBackup bool) (*models.LoginResult, error) {
	start := s.clock()

	claims, err := s.challenge.ValidateChallenge(challengeToken)
	if err != nil {
		s.logger.Warn("invalid challenge token", slog.Any("error", err))
		return nil, models.ErrUnauthorized
	}

	if err := s.gate(ctx, claims.Email, models.ActionLogin); err != nil {
		return nil, err
	}

	var verifyErr error
	if useBackup {
		_, verifyErr = s.twoFactor.VerifyBackupCode(ctx, claims.UserID, code)
	} else {
		verifyErr = s.twoFactor.VerifyCode(ctx, claims.UserID, code)
	}

	if verifyErr != nil {
		if errors.Is(verifyErr, models.ErrInvalidTwoFactor) {
			if failErr := s.recordFailure(ctx, claims.Email, "invalid_2fa_code"); failErr != nil {
				var locked *models.InvalidCredentialsError
				if errors.As(failErr, &locked) && locked.CausedLock {
					s.timing.WaitFrom(start, false)
					return nil, failErr
				}
			}
			s.timing.WaitFrom(start, false)
			return nil, models.ErrInvalidTwoFactor
		}
		return nil, verifyErr
	}

	if err := s.ledger.RecordSuccess(ctx, claims.Email); err != nil {
		s.logger.Warn("failed to clear attempt streak", slog.Any("error", err))
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login_two_factor", Identity: claims.Email, UserID: claims.UserID, Success: true,
	})
	return &models.LoginResult{AccountID: claims.UserID, Email: claims.Email}, nil
}

// gate applies the rate limiter and the lock check, in that order.
func (s *LoginService) gate(ctx context.Context, identity string, class models.ActionClass) error {
	decision, err := s.limiter.Allow(ctx, identity, class)
	if err != nil {
		return models.ErrStoreUnavailable
	}
	if !decision.Allowed {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType: "login", Identity: identity,
			Success: false, FailureReason: "rate_limited",
		})
		return &models.RateLimitError{
			ActionClass: string(class),
			RetryAfter:  decision.RetryAfter,
			ResetAt:     decision.ResetAt,
		}
	}

	status, err := s.ledger.CheckLock(ctx, identity)
	if err != nil {
		return models.ErrStoreUnavailable
	}
	if status.Locked {
		s.audit.LogAuthAttempt(logger.AuditEvent{
			EventType: "login", Identity: identity,
			Success: false, FailureReason: "account_locked",
		})
		return &models.LockoutError{
			UnlockAt:         *status.UnlockAt,
			MinutesRemaining: status.MinutesRemaining,
			MaxAttempts:      status.MaxAttempts,
		}
	}

	return nil
}

// recordFailure books one failed attempt and translates the resulting ledger
// state into the error the caller returns.
func (s *LoginService) recordFailure(ctx context.Context, identity, reason string) error {
	record, err := s.ledger.RecordFailure(ctx, identity)
	if err != nil {
		s.logger.Error("failed to record attempt", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.LogAuthAttempt(logger.AuditEvent{
		EventType: "login", Identity: identity,
		Success: false, FailureReason: reason,
	})

	maxAttempts := 0
	if status, err := s.ledger.CheckLock(ctx, identity); err == nil {
		maxAttempts = status.MaxAttempts
	}

	if record.LockedUntil != nil {
		s.audit.LogLockout(identity, record.ConsecutiveFailures, *record.LockedUntil)
		s.sendLockoutAlert(ctx, identity, *record.LockedUntil)
		return &models.InvalidCredentialsError{
			AttemptsLeft: 0,
			MaxAttempts:  maxAttempts,
			CausedLock:   true,
		}
	}

	attemptsLeft := maxAttempts - record.ConsecutiveFailures
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}
	return &models.InvalidCredentialsError{
		AttemptsLeft: attemptsLeft,
		MaxAttempts:  maxAttempts,
	}
}

// sendLockoutAlert emails the owner when their account locks, best effort.
// Unknown identities have no account and get no email.
func (s *LoginService) sendLockoutAlert(ctx context.Context, identity string, unlockAt time.Time) {
	account, err := s.accounts.GetByEmail(ctx, identity)
	if err != nil {
		return
	}
	if err := s.alerts.SendLockoutAlert(ctx, account.Email, unlockAt); err != nil {
		s.logger.Warn("failed to send lockout alert", slog.Any("error", err))
	}
}

var _ AttemptLedger = (*security.LockoutController)(nil)
var _ RequestLimiter = (*security.RateLimiter)(nil)
var _ CodeVerifier = (*TwoFactorService)(nil)
