package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const pending = "pending"

var (
	// ErrInFlight means another attempt with the same commit id has begun and
	// has not finished yet.
	ErrInFlight = errors.New("idempotency: commit in flight")
	// ErrMissingKey is returned for an empty commit id.
	ErrMissingKey = errors.New("idempotency: commit id required")
)

// Store records commit ids in Redis so a retried commit can replay the
// original result instead of running twice.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func hashKey(commitID string) string {
	sum := sha256.Sum256([]byte(commitID))
	return "idem:commit:" + hex.EncodeToString(sum[:])
}

// Begin claims the commit id. It returns (nil, nil) when the caller owns the
// attempt, the stored result when the commit already completed, and
// ErrInFlight when another attempt holds the claim.
func (s Store) Begin(ctx context.Context, commitID string) ([]byte, error) {
	if s.R == nil {
		return nil, errors.New("idempotency: redis client not configured")
	}
	if strings.TrimSpace(commitID) == "" {
		return nil, ErrMissingKey
	}
	key := hashKey(commitID)
	ok, err := s.R.SetNX(ctx, key, pending, s.ttl()).Result()
	if err != nil {
		return nil, err
	}
	if ok {
		return nil, nil
	}
	val, err := s.R.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; claim again
		return s.Begin(ctx, commitID)
	}
	if err != nil {
		return nil, err
	}
	if string(val) == pending {
		return nil, ErrInFlight
	}
	return val, nil
}

// Complete stores the result of a finished commit.
func (s Store) Complete(ctx context.Context, commitID string, result []byte) error {
	if s.R == nil {
		return errors.New("idempotency: redis client not configured")
	}
	if len(result) == 0 {
		return errors.New("idempotency: empty result")
	}
	return s.R.Set(ctx, hashKey(commitID), result, s.ttl()).Err()
}

// Abort releases a claim whose attempt failed cleanly so the caller may retry.
// Completed results are left untouched.
func (s Store) Abort(ctx context.Context, commitID string) error {
	if s.R == nil {
		return errors.New("idempotency: redis client not configured")
	}
	const script = `if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
else
  return 0
end`
	return s.R.Eval(ctx, script, []string{hashKey(commitID)}, pending).Err()
}

func (s Store) ttl() time.Duration {
	if s.TTL <= 0 {
		return 24 * time.Hour
	}
	return s.TTL
}
