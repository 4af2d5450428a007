package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/synaptica-ai/healthreport/pkg/common/logger"
)

const summaryKeyPrefix = "healthreport:summary"

// RedisClient is the subset of redis.Cmdable the cache uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// SummaryCache memoises dashboard aggregates per dataset version and query.
type SummaryCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewSummaryCache(client RedisClient, ttl time.Duration) *SummaryCache {
	return &SummaryCache{client: client, ttl: ttl}
}

// Key derives a cache key from the snapshot version and a JSON-encodable query.
func Key(kind, version string, query interface{}) (string, error) {
	payload, err := json.Marshal(query)
	if err != nil {
		return "", fmt.Errorf("encode cache key: %w", err)
	}
	sum := sha256.Sum256(payload)
	return fmt.Sprintf("%s:%s:%s:%s", summaryKeyPrefix, kind, version, hex.EncodeToString(sum[:16])), nil
}

// Get decodes the cached value into dst and reports whether it was present.
func (c *SummaryCache) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		logger.Log.WithError(err).WithField("key", key).Warn("discarding undecodable cache entry")
		return false, nil
	}
	return true, nil
}

func (c *SummaryCache) Set(ctx context.Context, key string, value interface{}) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, c.ttl).Err()
}
