package ratelimit

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// Fixed is a fixed window limiter on top of ulule/limiter.
type Fixed struct {
	L *limiter.Limiter
}

// NewFixed parses a rate such as "60-M" and binds it to the store.
func NewFixed(store limiter.Store, formatted string) (Fixed, error) {
	rate, err := limiter.NewRateFromFormatted(formatted)
	if err != nil {
		return Fixed{}, fmt.Errorf("ratelimit: rate %q: %w", formatted, err)
	}
	return Fixed{L: limiter.New(store, rate)}, nil
}

// NewRedisStore keeps counters in Redis so every API replica shares them.
func NewRedisStore(rdb *redis.Client) (limiter.Store, error) {
	return limiterredis.NewStoreWithOptions(rdb, limiter.StoreOptions{Prefix: "kasir:ratelimit"})
}

// NewMemoryStore keeps counters in process.
func NewMemoryStore() limiter.Store {
	return memory.NewStore()
}

// Allow implements Limiter.
func (f Fixed) Allow(ctx context.Context, key string) (Decision, error) {
	lctx, err := f.L.Get(ctx, key)
	if err != nil {
		return Decision{}, err
	}
	return Decision{
		Allowed:   !lctx.Reached,
		Limit:     int(lctx.Limit),
		Remaining: int(lctx.Remaining),
		Reset:     time.Unix(lctx.Reset, 0),
	}, nil
}
