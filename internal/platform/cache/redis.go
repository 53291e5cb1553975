// Package cache provides the Redis-backed loyalty summary cache.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/cartloom/rewards/internal/app/services/loyalty"
	"github.com/cartloom/rewards/pkg/logger"
)

const defaultTTL = 5 * time.Minute

// SummaryCache stores loyalty summaries in Redis with a TTL. Cache failures
// are logged and treated as misses so Redis never sits on the request path's
// critical failure surface.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

var _ loyalty.SummaryCache = (*SummaryCache)(nil)

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logger.Logger) (*SummaryCache, error) {
	if log == nil {
		log = logger.NewDefault("cache")
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return &SummaryCache{client: client, ttl: ttl, log: log}, nil
}

// Close releases the underlying connection pool.
func (c *SummaryCache) Close() error { return c.client.Close() }

func summaryKey(userID string) string { return "rewards:summary:" + userID }

func (c *SummaryCache) Get(ctx context.Context, userID string) (loyalty.Summary, bool) {
	payload, err := c.client.Get(ctx, summaryKey(userID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WithError(err).WithField("user_id", userID).Warn("summary cache read failed")
		}
		return loyalty.Summary{}, false
	}

	var summary loyalty.Summary
	if err := json.Unmarshal(payload, &summary); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("summary cache entry corrupt, dropping")
		c.client.Del(ctx, summaryKey(userID))
		return loyalty.Summary{}, false
	}
	return summary, true
}

func (c *SummaryCache) Set(ctx context.Context, userID string, summary loyalty.Summary) {
	payload, err := json.Marshal(summary)
	if err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("summary cache encode failed")
		return
	}
	if err := c.client.Set(ctx, summaryKey(userID), payload, c.ttl).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("summary cache write failed")
	}
}

func (c *SummaryCache) Invalidate(ctx context.Context, userID string) {
	if err := c.client.Del(ctx, summaryKey(userID)).Err(); err != nil {
		c.log.WithError(err).WithField("user_id", userID).Warn("summary cache invalidation failed")
	}
}
