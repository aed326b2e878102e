package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// incrScript bumps the counter and starts a fresh window when the key is
// created, returning the new count and the remaining window in ms. Running
// it server-side keeps INCR and EXPIRE atomic under concurrent callers.
var incrScript = redis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
return {count, ttl}
`)

// casScript swaps the value only when the current value matches ARGV[1].
// An empty ARGV[1] means create-if-absent. ARGV[3] is the TTL in ms, 0 for
// no expiry.
var casScript = redis.NewScript(`
local current = redis.call('GET', KEYS[1])
if ARGV[1] == '' then
	if current then return 0 end
else
	if not current or current ~= ARGV[1] then return 0 end
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[1], ARGV[2])
end
return 1
`)

// RedisStore backs the security counters with Redis. TTLs map directly onto
// key expiry, so locked-out and rate-limit state ages out server-side.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// DialRedis connects using a redis:// or rediss:// URL and verifies the
// connection before returning.
func DialRedis(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (rs *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := rs.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return value, nil
}

func (rs *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := rs.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (rs *RedisStore) Delete(ctx context.Context, key string) error {
	if err := rs.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

func (rs *RedisStore) Increment(ctx context.Context, key string, window time.Duration) (int64, time.Time, error) {
	result, err := incrScript.Run(ctx, rs.client, []string{key}, window.Milliseconds()).Slice()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis incr: %w", err)
	}
	if len(result) != 2 {
		return 0, time.Time{}, fmt.Errorf("redis incr: unexpected reply length %d", len(result))
	}

	count, ok := result[0].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis incr: unexpected count type %T", result[0])
	}
	ttlMs, ok := result[1].(int64)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis incr: unexpected ttl type %T", result[1])
	}

	resetAt := time.Now().Add(time.Duration(ttlMs) * time.Millisecond)
	return count, resetAt, nil
}

func (rs *RedisStore) CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error) {
	// Values here are JSON documents, never empty, so the empty string is
	// free to mean "expect absent".
	expected := ""
	if prev != nil {
		expected = string(prev)
	}

	swapped, err := casScript.Run(ctx, rs.client, []string{key}, expected, string(next), ttl.Milliseconds()).Int()
	if err != nil {
		return false, fmt.Errorf("redis cas: %w", err)
	}
	return swapped == 1, nil
}

// Close releases the underlying client.
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}
