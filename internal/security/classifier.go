package security

import (
	"errors"
	"net/http"
	"time"

	"github.com/mercatohq/bastion/internal/models"
)

// ErrorCode is the closed taxonomy every caller of the core consumes. No
// other error shape crosses the core boundary.
type ErrorCode string

const (
	CodeRateLimitExceeded  ErrorCode = "RATE_LIMIT_EXCEEDED"
	CodeAccountLocked      ErrorCode = "ACCOUNT_LOCKED"
	CodeInvalidCredentials ErrorCode = "INVALID_CREDENTIALS"
	CodeWeakPassword       ErrorCode = "WEAK_PASSWORD"
	CodeEmailNotVerified   ErrorCode = "EMAIL_NOT_VERIFIED"
	CodeInvalidTwoFactor   ErrorCode = "INVALID_2FA_CODE"
	CodeUnknown            ErrorCode = "UNKNOWN_ERROR"
)

// ClassifiedError is the uniform failure shape handed to the API layer. The
// Details payloads are a stable contract the UI renders directly (countdown
// timers, attempts-remaining banners, requirement checklists).
type ClassifiedError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// RateLimitDetails accompanies RATE_LIMIT_EXCEEDED.
type RateLimitDetails struct {
	ActionClass       string `json:"action_class"`
	RetryAfterSeconds int    `json:"retry_after_seconds"`
}

// LockoutDetails accompanies ACCOUNT_LOCKED.
type LockoutDetails struct {
	UnlockAt         time.Time `json:"unlock_at"`
	MinutesRemaining int       `json:"minutes_remaining"`
	Attempts         int       `json:"attempts"`
	MaxAttempts      int       `json:"max_attempts"`
}

// CredentialDetails accompanies INVALID_CREDENTIALS.
type CredentialDetails struct {
	AttemptsLeft int  `json:"attempts_left"`
	MaxAttempts  int  `json:"max_attempts"`
	CausedLock   bool `json:"caused_lock"`
}

// Classify maps any internal failure onto the closed taxonomy. Unrecognized
// errors collapse to UNKNOWN_ERROR with no internal detail leaked.
func Classify(err error) *ClassifiedError {
	var rateErr *models.RateLimitError
	if errors.As(err, &rateErr) {
		retry := int((rateErr.RetryAfter + time.Second - 1) / time.Second)
		if retry < 0 {
			retry = 0
		}
		return &ClassifiedError{
			Code:    CodeRateLimitExceeded,
			Message: "Too many requests. Please wait before trying again.",
			Details: RateLimitDetails{
				ActionClass:       rateErr.ActionClass,
				RetryAfterSeconds: retry,
			},
		}
	}

	var lockErr *models.LockoutError
	if errors.As(err, &lockErr) {
		return &ClassifiedError{
			Code:    CodeAccountLocked,
			Message: "Account temporarily locked due to repeated failed attempts.",
			Details: LockoutDetails{
				UnlockAt:         lockErr.UnlockAt,
				MinutesRemaining: lockErr.MinutesRemaining,
				Attempts:         lockErr.Attempts,
				MaxAttempts:      lockErr.MaxAttempts,
			},
		}
	}

	var credErr *models.InvalidCredentialsError
	if errors.As(err, &credErr) {
		return &ClassifiedError{
			Code:    CodeInvalidCredentials,
			Message: "Incorrect email or password.",
			Details: CredentialDetails{
				AttemptsLeft: credErr.AttemptsLeft,
				MaxAttempts:  credErr.MaxAttempts,
				CausedLock:   credErr.CausedLock,
			},
		}
	}

	var weakErr *models.WeakPasswordError
	if errors.As(err, &weakErr) {
		return &ClassifiedError{
			Code:    CodeWeakPassword,
			Message: "Password does not meet the security requirements.",
			Details: weakErr.Assessment,
		}
	}

	switch {
	case errors.Is(err, models.ErrEmailNotVerified):
		return &ClassifiedError{
			Code:    CodeEmailNotVerified,
			Message: "Please verify your email address before signing in.",
		}
	case errors.Is(err, models.ErrInvalidTwoFactor):
		return &ClassifiedError{
			Code:    CodeInvalidTwoFactor,
			Message: "Invalid verification code.",
		}
	case errors.Is(err, models.ErrAccountLocked):
		return &ClassifiedError{
			Code:    CodeAccountLocked,
			Message: "Account temporarily locked due to repeated failed attempts.",
		}
	}

	return &ClassifiedError{
		Code:    CodeUnknown,
		Message: "Something went wrong. Please try again.",
	}
}

// HTTPStatus maps the taxonomy to response codes for the HTTP surface.
func (e *ClassifiedError) HTTPStatus() int {
	switch e.Code {
	case CodeRateLimitExceeded:
		return http.StatusTooManyRequests
	case CodeAccountLocked:
		return http.StatusLocked
	case CodeInvalidCredentials, CodeInvalidTwoFactor:
		return http.StatusUnauthorized
	case CodeWeakPassword:
		return http.StatusUnprocessableEntity
	case CodeEmailNotVerified:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
