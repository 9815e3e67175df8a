// Package reports aggregates period data into read models. Summaries are
// cached in Redis for a short TTL; staleness up to the TTL is accepted.
package reports

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL bounds how stale a cached summary may be.
const DefaultTTL = 5 * time.Minute

// Cache wraps Redis based caching for report payloads. A nil client degrades
// to pass-through.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{client: client, ttl: ttl}
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("reports: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Invalidate drops cached payloads for a period after a lifecycle transition.
func (c *Cache) Invalidate(ctx context.Context, periodID int64) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Del(ctx, keyPeriodSummary(periodID)).Err()
}

func keyPeriodSummary(periodID int64) string {
	return strings.Join([]string{"reports", "period_summary", strconv.FormatInt(periodID, 10)}, ":")
}
