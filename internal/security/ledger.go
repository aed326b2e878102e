package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mercatohq/bastion/internal/models"
	"github.com/mercatohq/bastion/internal/store"
)

const (
	attemptKeyPrefix = "bastion:attempt:"

	// Bound on compare-and-swap retries for one update. Contention on a
	// single identity resolves in one or two rounds in practice; the bound
	// only guards against livelock.
	casMaxRetries = 64
)

// LockoutConfig holds attempt tracking and lockout thresholds. The defaults
// mirror platform policy but every deployment overrides them from config.
type LockoutConfig struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	AttemptTTL      time.Duration // how long a partial failure streak is remembered
}

// DefaultLockoutConfig returns the standard policy: 5 attempts, 30-minute lock.
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		MaxAttempts:     5,
		LockoutDuration: 30 * time.Minute,
		AttemptTTL:      1 * time.Hour,
	}
}

// LockoutController is the attempt ledger and lock state machine. Each
// identity moves Clean -> Warning -> Locked -> Clean; every state change is
// a single compare-and-swap against the store, so concurrent failure
// reports for the same identity serialize instead of losing increments.
type LockoutController struct {
	store  store.Store
	config LockoutConfig
	logger *slog.Logger
	clock  func() time.Time
}

// NewLockoutController creates a controller backed by the given store.
func NewLockoutController(st store.Store, config LockoutConfig, logger *slog.Logger) *LockoutController {
	return &LockoutController{
		store:  st,
		config: config,
		logger: logger,
		clock:  time.Now,
	}
}

// CheckLock reports the lock state for an identity. A lock whose deadline
// has passed is cleared here (lazy expiry) and reported as unlocked. Store
// failures are returned as errors: callers must deny, not assume unlocked.
func (lc *LockoutController) CheckLock(ctx context.Context, identity string) (*models.LockStatus, error) {
	now := lc.clock()

	record, err := lc.getRecord(ctx, identity)
	if errors.Is(err, store.ErrKeyNotFound) {
		return lc.cleanStatus(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock check for %q: %w", identity, models.ErrStoreUnavailable)
	}

	if record.LockedUntil != nil {
		if now.Before(*record.LockedUntil) {
			return lc.lockedStatus(record, now), nil
		}
		// Lock expired: drop the record so the next failure starts a fresh
		// count. Best effort, the TTL removes it anyway.
		if err := lc.store.Delete(ctx, attemptKey(identity)); err != nil {
			lc.logger.Warn("failed to clear expired lock",
				slog.String("identity", identity),
				slog.Any("error", err))
		}
		return lc.cleanStatus(), nil
	}

	attemptsLeft := lc.config.MaxAttempts - record.ConsecutiveFailures
	if attemptsLeft < 0 {
		attemptsLeft = 0
	}
	return &models.LockStatus{
		Locked:       false,
		AttemptsLeft: attemptsLeft,
		MaxAttempts:  lc.config.MaxAttempts,
	}, nil
}

// RecordFailure adds one consecutive failure for the identity, locking it
// when the count reaches MaxAttempts. The lock state is re-read inside the
// CAS loop, so a concurrent request that already locked the identity makes
// this call a no-op rather than extending or double-counting.
func (lc *LockoutController) RecordFailure(ctx context.Context, identity string) (*models.AttemptRecord, error) {
	now := lc.clock()

	for attempt := 0; attempt < casMaxRetries; attempt++ {
		current, prev, err := lc.getRecordRaw(ctx, identity)
		switch {
		case errors.Is(err, store.ErrKeyNotFound):
			current, prev = nil, nil
		case err != nil:
			return nil, fmt.Errorf("record failure for %q: %w", identity, models.ErrStoreUnavailable)
		}

		// Re-verify the lock immediately before writing
		if current != nil && current.Locked(now) {
			return current, nil
		}

		next := lc.nextRecord(current, identity, now)

		ttl := lc.config.AttemptTTL
		if next.LockedUntil != nil {
			ttl = next.LockedUntil.Sub(now)
		}

		encoded, err := json.Marshal(next)
		if err != nil {
			return nil, fmt.Errorf("encode attempt record: %w", err)
		}

		swapped, err := lc.store.CompareAndSwap(ctx, attemptKey(identity), prev, encoded, ttl)
		if err != nil {
			return nil, fmt.Errorf("record failure for %q: %w", identity, models.ErrStoreUnavailable)
		}
		if swapped {
			if next.LockedUntil != nil {
				lc.logger.Warn("account locked after repeated failures",
					slog.String("identity", identity),
					slog.Int("failures", next.ConsecutiveFailures),
					slog.Time("locked_until", *next.LockedUntil))
			}
			return next, nil
		}
		// Lost the race, reload and retry
	}

	return nil, fmt.Errorf("record failure for %q: contention not resolved: %w", identity, models.ErrStoreUnavailable)
}

// RecordSuccess clears the identity back to Clean. It refuses to clear a
// live lock: callers must check the lock before verifying credentials, so a
// success during a lock indicates a broken call sequence.
func (lc *LockoutController) RecordSuccess(ctx context.Context, identity string) error {
	record, err := lc.getRecord(ctx, identity)
	if errors.Is(err, store.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("record success for %q: %w", identity, models.ErrStoreUnavailable)
	}

	if record.Locked(lc.clock()) {
		return models.ErrAccountLocked
	}

	if err := lc.store.Delete(ctx, attemptKey(identity)); err != nil {
		return fmt.Errorf("record success for %q: %w", identity, models.ErrStoreUnavailable)
	}
	return nil
}

// Reset drops all attempt state for an identity, lock included. Operator
// escape hatch; normal unlock is lock expiry.
func (lc *LockoutController) Reset(ctx context.Context, identity string) error {
	if err := lc.store.Delete(ctx, attemptKey(identity)); err != nil {
		return fmt.Errorf("reset for %q: %w", identity, models.ErrStoreUnavailable)
	}
	return nil
}

func (lc *LockoutController) nextRecord(current *models.AttemptRecord, identity string, now time.Time) *models.AttemptRecord {
	next := &models.AttemptRecord{
		Identity:            identity,
		ConsecutiveFailures: 1,
		LastFailureAt:       now,
		TotalFailuresWindow: 1,
	}

	// An expired lock starts a fresh streak; a live record continues it.
	if current != nil && !current.Locked(now) && current.LockedUntil == nil {
		next.ConsecutiveFailures = current.ConsecutiveFailures + 1
		next.TotalFailuresWindow = current.TotalFailuresWindow + 1
	}

	if next.ConsecutiveFailures >= lc.config.MaxAttempts {
		until := now.Add(lc.config.LockoutDuration)
		next.LockedUntil = &until
	}

	return next
}

func (lc *LockoutController) getRecord(ctx context.Context, identity string) (*models.AttemptRecord, error) {
	record, _, err := lc.getRecordRaw(ctx, identity)
	return record, err
}

// getRecordRaw also returns the stored bytes so updates can use them as the
// compare-and-swap expectation without a re-marshal round trip.
func (lc *LockoutController) getRecordRaw(ctx context.Context, identity string) (*models.AttemptRecord, []byte, error) {
	raw, err := lc.store.Get(ctx, attemptKey(identity))
	if err != nil {
		return nil, nil, err
	}

	var record models.AttemptRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, nil, fmt.Errorf("decode attempt record: %w", err)
	}
	return &record, raw, nil
}

func (lc *LockoutController) cleanStatus() *models.LockStatus {
	return &models.LockStatus{
		Locked:       false,
		AttemptsLeft: lc.config.MaxAttempts,
		MaxAttempts:  lc.config.MaxAttempts,
	}
}

func (lc *LockoutController) lockedStatus(record *models.AttemptRecord, now time.Time) *models.LockStatus {
	remaining := record.LockedUntil.Sub(now)
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	return &models.LockStatus{
		Locked:           true,
		UnlockAt:         record.LockedUntil,
		MinutesRemaining: minutes,
		AttemptsLeft:     0,
		MaxAttempts:      lc.config.MaxAttempts,
	}
}

func attemptKey(identity string) string {
	return attemptKeyPrefix + identity
}
