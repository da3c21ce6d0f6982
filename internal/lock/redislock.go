package lock

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotAcquired is returned when a lock stays held by someone else until the
// caller's context ends.
var ErrNotAcquired = errors.New("lock: not acquired")

// AcquireError names the key that could not be locked. It matches
// ErrNotAcquired with errors.Is.
type AcquireError struct {
	Key string
	Err error
}

func (e *AcquireError) Error() string {
	return fmt.Sprintf("lock %s: not acquired: %v", e.Key, e.Err)
}

// Is reports ErrNotAcquired.
func (e *AcquireError) Is(target error) bool { return target == ErrNotAcquired }

// Unwrap returns the cause.
func (e *AcquireError) Unwrap() error { return e.Err }

// Locker provides a Redis-backed distributed lock.
type Locker struct {
	R            *redis.Client
	RetryBackoff time.Duration
	// MaxWait bounds how long a single key is waited on. Zero means until the
	// context is done.
	MaxWait time.Duration
}

// WithLock executes fn while holding a lock for the provided key. The lock is
// released automatically even if fn returns an error. When the lock cannot be
// acquired before the context is cancelled an error wrapping ErrNotAcquired is
// returned.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	return l.WithLocks(ctx, []string{key}, ttl, fn)
}

// WithLocks acquires the keys in the order given, runs fn, then releases them
// in reverse. Duplicate keys are taken once. Callers that lock overlapping key
// sets must agree on one total order; see SortedKeys.
func (l Locker) WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error {
	if l.R == nil {
		return errors.New("lock: redis client not configured")
	}
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	ordered := distinct(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(ordered))
	defer func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.release(context.WithoutCancel(ctx), held[i], token)
		}
	}()
	for _, key := range ordered {
		if err := l.acquire(ctx, key, token, ttl); err != nil {
			return err
		}
		held = append(held, key)
	}
	return fn(ctx)
}

// SortedKeys returns the distinct keys in ascending order.
func SortedKeys(keys []string) []string {
	out := distinct(keys)
	sort.Strings(out)
	return out
}

func distinct(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

func (l Locker) acquire(ctx context.Context, key, token string, ttl time.Duration) error {
	retry := l.RetryBackoff
	if retry <= 0 {
		retry = 50 * time.Millisecond
	}
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retry
	policy.MaxInterval = 20 * retry
	policy.MaxElapsedTime = l.MaxWait

	op := func() error {
		ok, err := l.R.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return backoff.Permanent(fmt.Errorf("lock %s: %w", key, err))
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(policy, ctx))
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotAcquired) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &AcquireError{Key: key, Err: err}
	}
	return err
}

func (l Locker) release(ctx context.Context, key, token string) {
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	if err := l.R.Eval(ctx, script, []string{key}, token).Err(); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
			_ = l.R.Del(ctx, key).Err()
		}
	}
}
