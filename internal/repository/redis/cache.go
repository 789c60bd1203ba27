package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache stores JSON documents in plain keys or hash fields. A nil *Cache
// always misses, so callers work the same with Redis disabled.
type Cache struct {
	rdb redis.UniversalClient
	sf  singleflight.Group
}

func New(client redis.UniversalClient) *Cache {
	return &Cache{rdb: client}
}

func (c *Cache) get(ctx context.Context, key, field string) (string, bool, error) {
	var (
		s   string
		err error
	)
	if field == "" {
		s, err = c.rdb.Get(ctx, key).Result()
	} else {
		s, err = c.rdb.HGet(ctx, key, field).Result()
	}
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

func (c *Cache) set(ctx context.Context, key, field, val string, ttl time.Duration) error {
	if field == "" {
		return c.rdb.Set(ctx, key, val, ttl).Err()
	}
	_, err := c.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HSet(ctx, key, field, val)
		p.Expire(ctx, key, ttl)
		return nil
	})
	return err
}

func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if c == nil || len(keys) == 0 {
		return nil
	}

	return c.rdb.Del(ctx, keys...).Err()
}

// GetOrSetJSON returns the cached value under key (and field, when set) or
// loads, stores and returns it. Concurrent misses share one loader call.
// Redis failures fall back to the loader.
func GetOrSetJSON[T any](
	ctx context.Context,
	c *Cache,
	key string,
	field string,
	ttl time.Duration,
	loader func(ctx context.Context) (T, error),
) (T, error) {
	if c == nil {
		return loader(ctx)
	}

	if v, ok := lookup[T](ctx, c, key, field); ok {
		return v, nil
	}

	vAny, err, _ := c.sf.Do(key+"|"+field, func() (any, error) {
		if v, ok := lookup[T](ctx, c, key, field); ok {
			return v, nil
		}
		v, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if b, err := json.Marshal(v); err == nil {
			_ = c.set(ctx, key, field, string(b), ttl)
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}

	v, ok := vAny.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cache: unexpected %T for %s", vAny, key)
	}

	return v, nil
}

func lookup[T any](ctx context.Context, c *Cache, key, field string) (T, bool) {
	var out T
	s, ok, err := c.get(ctx, key, field)
	if err != nil || !ok {
		return out, false
	}
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return out, false
	}
	return out, true
}

// InvalidateSlot drops the slot document and every cached range of its listing.
func (c *Cache) InvalidateSlot(ctx context.Context, listingID, slotID string) error {
	return c.Del(ctx, KeySlot(slotID), KeyListingSlots(listingID))
}

func (c *Cache) InvalidateListing(ctx context.Context, listingID string) error {
	return c.Del(ctx, KeyListingSlots(listingID))
}
