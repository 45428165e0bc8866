// internal/llm/cache.go
package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"research-agent/internal/common/database"
	"research-agent/internal/common/logger"
	"research-agent/internal/common/metrics"
)

// CachedCompleter wraps a Completer with a Redis cache keyed on the full
// request payload. Identical prompts at the same model and temperature
// reuse the stored reply instead of spending tokens again.
type CachedCompleter struct {
	inner  Completer
	redis  *database.RedisClient
	ttl    time.Duration
	model  string
	temp   float64
	logger logger.Logger
}

func NewCachedCompleter(inner Completer, rdb *database.RedisClient, ttl time.Duration, model string, temperature float64, log logger.Logger) *CachedCompleter {
	return &CachedCompleter{
		inner:  inner,
		redis:  rdb,
		ttl:    ttl,
		model:  model,
		temp:   temperature,
		logger: log.With(map[string]interface{}{
			"component": "completion-cache",
		}),
	}
}

func (c *CachedCompleter) Complete(ctx context.Context, stage string, messages []Message) (string, error) {
	key := c.cacheKey(messages)

	cached, err := c.redis.Get(ctx, key)
	if err == nil {
		metrics.CacheRequestsTotal.WithLabelValues("hit").Inc()
		c.logger.Debug("cache hit", map[string]interface{}{
			"stage": stage,
			"key":   key,
		})
		return cached, nil
	}
	if err != redis.Nil {
		// Cache unavailable is not fatal, fall through to the API
		c.logger.Warn("cache lookup failed", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
	}
	metrics.CacheRequestsTotal.WithLabelValues("miss").Inc()

	reply, err := c.inner.Complete(ctx, stage, messages)
	if err != nil {
		return "", err
	}

	if err := c.redis.Set(ctx, key, reply, c.ttl); err != nil {
		c.logger.Warn("cache store failed", map[string]interface{}{
			"stage": stage,
			"error": err.Error(),
		})
	}

	return reply, nil
}

func (c *CachedCompleter) Usage() Usage {
	return c.inner.Usage()
}

func (c *CachedCompleter) cacheKey(messages []Message) string {
	payload, _ := json.Marshal(messages)
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%.2f|%s", c.model, c.temp, payload))
	return "completion:" + hex.EncodeToString(sum[:])
}
