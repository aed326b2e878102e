package models

import "time"

// ActionClass groups requests for per-identity rate limiting. Each class has
// its own ceiling and window.
type ActionClass string

const (
	ActionLogin         ActionClass = "login"
	ActionRegister      ActionClass = "register"
	ActionPasswordReset ActionClass = "reset_password"
	ActionDefault       ActionClass = "default"
)

// RateLimitDecision is the outcome of a single Allow call.
type RateLimitDecision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"-"`
	ResetAt    time.Time     `json:"reset_at"`
}

// RetryAfterSeconds rounds the retry delay up to whole seconds, never
// returning a negative value.
func (d RateLimitDecision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int((d.RetryAfter + time.Second - 1) / time.Second)
	return secs
}
