package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps Redis helpers for JSON payloads.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewCache constructs a cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl, prefix: "catalog:item:"}
}

func (c *Cache) key(itemID string) string {
	return c.prefix + itemID
}

// Get returns the cached entry and whether it existed.
func (c *Cache) Get(ctx context.Context, itemID string) (Entry, bool, error) {
	if c == nil || c.client == nil || itemID == "" {
		return Entry{}, false, nil
	}
	data, err := c.client.Get(ctx, c.key(itemID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Entry{}, false, nil
		}
		return Entry{}, false, err
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, false, err
	}
	return e, true, nil
}

// Set stores the entry with the configured TTL.
func (c *Cache) Set(ctx context.Context, e Entry) error {
	if c == nil || c.client == nil || e.ID == "" {
		return nil
	}
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(e.ID), data, c.ttl).Err()
}

// Invalidate drops the cached entry for the item.
func (c *Cache) Invalidate(ctx context.Context, itemID string) error {
	if c == nil || c.client == nil || itemID == "" {
		return nil
	}
	return c.client.Del(ctx, c.key(itemID)).Err()
}
