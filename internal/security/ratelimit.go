package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mercatohq/bastion/internal/models"
	"github.com/mercatohq/bastion/internal/store"
)

const rateKeyPrefix = "bastion:rate:"

// RateLimitRule is one action class's ceiling over a fixed window.
type RateLimitRule struct {
	Ceiling int
	Window  time.Duration
}

// RateLimiterConfig holds the per-class rules.
type RateLimiterConfig struct {
	Login         RateLimitRule
	Register      RateLimitRule
	PasswordReset RateLimitRule
	Default       RateLimitRule
}

// DefaultRateLimiterConfig returns the standard platform ceilings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Login:         RateLimitRule{Ceiling: 10, Window: 15 * time.Minute},
		Register:      RateLimitRule{Ceiling: 5, Window: time.Hour},
		PasswordReset: RateLimitRule{Ceiling: 3, Window: time.Hour},
		Default:       RateLimitRule{Ceiling: 30, Window: time.Minute},
	}
}

func (c RateLimiterConfig) rule(class models.ActionClass) RateLimitRule {
	switch class {
	case models.ActionLogin:
		return c.Login
	case models.ActionRegister:
		return c.Register
	case models.ActionPasswordReset:
		return c.PasswordReset
	default:
		return c.Default
	}
}

// RateLimiter counts requests per (identity, action class) in fixed windows
// backed by the store's atomic windowed increment. It throttles request
// volume only; the lockout controller separately penalizes credential
// failures. Rate limiting is checked first so it also shields the
// lockout/credential path.
type RateLimiter struct {
	store  store.Store
	config RateLimiterConfig
	logger *slog.Logger
	clock  func() time.Time
}

// NewRateLimiter creates a limiter backed by the given store.
func NewRateLimiter(st store.Store, config RateLimiterConfig, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		store:  st,
		config: config,
		logger: logger,
		clock:  time.Now,
	}
}

// Allow consumes one slot for the identity in the class's current window.
// Exactly Ceiling calls per window are allowed; the next is rejected with a
// positive retry delay. A store failure denies the request (fail closed)
// and returns the error for classification.
func (rl *RateLimiter) Allow(ctx context.Context, identity string, class models.ActionClass) (models.RateLimitDecision, error) {
	rule := rl.config.rule(class)
	key := fmt.Sprintf("%s%s:%s", rateKeyPrefix, class, identity)

	count, resetAt, err := rl.store.Increment(ctx, key, rule.Window)
	if err != nil {
		rl.logger.Error("rate limit store unavailable, denying request",
			slog.String("action_class", string(class)),
			slog.Any("error", err))
		return models.RateLimitDecision{Allowed: false},
			fmt.Errorf("rate limit for %s: %w", class, models.ErrStoreUnavailable)
	}

	remaining := rule.Ceiling - int(count)
	if remaining < 0 {
		remaining = 0
	}

	decision := models.RateLimitDecision{
		Allowed:   count <= int64(rule.Ceiling),
		Remaining: remaining,
		ResetAt:   resetAt,
	}

	if !decision.Allowed {
		retryAfter := resetAt.Sub(rl.clock())
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		decision.RetryAfter = retryAfter
		rl.logger.Warn("rate limit exceeded",
			slog.String("action_class", string(class)),
			slog.Int64("count", count),
			slog.Int("ceiling", rule.Ceiling))
	}

	return decision, nil
}
