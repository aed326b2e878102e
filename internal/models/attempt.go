package models

import "time"

// AttemptRecord tracks consecutive credential failures for one identity.
// It is created on the first failure, mutated on every subsequent attempt,
// and deleted on successful authentication.
type AttemptRecord struct {
	Identity            string     `json:"identity"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LastFailureAt       time.Time  `json:"last_failure_at"`
	LockedUntil         *time.Time `json:"locked_until,omitempty"`
	TotalFailuresWindow int        `json:"total_failures_window"`
}

// Locked reports whether the record holds an unexpired lock at the given time.
func (r *AttemptRecord) Locked(now time.Time) bool {
	return r.LockedUntil != nil && now.Before(*r.LockedUntil)
}

// LockStatus is the lock check result exposed to callers. AttemptsLeft is
// only meaningful while unlocked.
type LockStatus struct {
	Locked           bool       `json:"locked"`
	UnlockAt         *time.Time `json:"unlock_at,omitempty"`
	MinutesRemaining int        `json:"minutes_remaining,omitempty"`
	AttemptsLeft     int        `json:"attempts_left"`
	MaxAttempts      int        `json:"max_attempts"`
}
