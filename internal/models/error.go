package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Account security errors
	ErrEmailNotVerified    = errors.New("email address not verified")
	ErrAccountLocked       = errors.New("account is temporarily locked")
	ErrInvalidTwoFactor    = errors.New("invalid two-factor code")
	ErrTwoFactorNotEnabled = errors.New("two-factor authentication is not enabled")
	ErrTwoFactorEnabled    = errors.New("two-factor authentication is already enabled")
	ErrSetupNotFound       = errors.New("no pending two-factor setup")
	ErrStoreUnavailable    = errors.New("security store unavailable")
)

// RateLimitError is returned when a request exceeds the ceiling for its
// action class. RetryAfter is always positive when this error is raised.
type RateLimitError struct {
	ActionClass string
	RetryAfter  time.Duration
	ResetAt     time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s, retry in %s", e.ActionClass, e.RetryAfter)
}

// LockoutError is returned when the identity is in the Locked state.
type LockoutError struct {
	UnlockAt         time.Time
	MinutesRemaining int
	Attempts         int
	MaxAttempts      int
}

func (e *LockoutError) Error() string {
	return fmt.Sprintf("account locked, unlocks in %d minutes", e.MinutesRemaining)
}

// InvalidCredentialsError carries the attempts-remaining detail the UI
// renders after a failed credential check.
type InvalidCredentialsError struct {
	AttemptsLeft int
	MaxAttempts  int
	CausedLock   bool
}

func (e *InvalidCredentialsError) Error() string {
	if e.CausedLock {
		return "invalid credentials, account is now locked"
	}
	return fmt.Sprintf("invalid credentials, %d attempts remaining", e.AttemptsLeft)
}

// WeakPasswordError wraps a failed password assessment so callers can show
// the full requirement checklist.
type WeakPasswordError struct {
	Assessment *PasswordAssessment
}

func (e *WeakPasswordError) Error() string {
	if e.Assessment != nil && e.Assessment.WeakPattern != "" {
		return "password matches a known weak pattern"
	}
	return "password does not meet requirements"
}
