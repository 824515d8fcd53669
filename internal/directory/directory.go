// Package directory supplies resident directory snapshots from the
// configured source, optionally cached in Redis.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gastbokning/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Source returns the resident directory.
type Source interface {
	ListResidents(ctx context.Context) ([]models.Resident, error)
}

// CachedSource serves directory snapshots from Redis and refreshes them
// from the underlying source when the cached copy expires.
type CachedSource struct {
	source Source
	redis  *redis.Client
	key    string
	ttl    time.Duration
	logger *zerolog.Logger
}

// NewCachedSource wraps source. A nil client or non-positive ttl disables caching.
func NewCachedSource(source Source, client *redis.Client, key string, ttl time.Duration, logger *zerolog.Logger) *CachedSource {
	if key == "" {
		key = "gastbokning:residents"
	}
	return &CachedSource{source: source, redis: client, key: key, ttl: ttl, logger: logger}
}

// ListResidents implements Source.
func (c *CachedSource) ListResidents(ctx context.Context) ([]models.Resident, error) {
	var cached []models.Resident
	if c.readCache(ctx, &cached) {
		return cached, nil
	}
	residents, err := c.source.ListResidents(ctx)
	if err != nil {
		return nil, err
	}
	c.writeCache(ctx, residents)
	return residents, nil
}

// Invalidate drops the cached snapshot.
func (c *CachedSource) Invalidate(ctx context.Context) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, c.key).Err()
}

func (c *CachedSource) readCache(ctx context.Context, out any) bool {
	if c.redis == nil || c.ttl <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, c.key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn().Err(err).Msg("Resident cache read failed")
		}
		return false
	}
	return json.Unmarshal(val, out) == nil
}

func (c *CachedSource) writeCache(ctx context.Context, val any) {
	if c.redis == nil || c.ttl <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, c.key, data, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Msg("Resident cache write failed")
	}
}
