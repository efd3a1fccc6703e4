// Package cache provides an optional read-through cache for copy
// availability. It is an injected dependency: a nil *CopyCache is fully
// functional (every call is a no-op or a miss), so correctness never depends
// on the cache being present. The availability coordinator invalidates on
// every availability transition.
package cache

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"bookstore/internal/models"
)

const keyPrefix = "copy:availability:"

type CopyCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCopyCache(rdb *redis.Client, ttl time.Duration) *CopyCache {
	return &CopyCache{rdb: rdb, ttl: ttl}
}

// GetAvailability returns the cached availability and whether it was present.
// Cache errors are treated as misses; the caller falls back to the store.
func (c *CopyCache) GetAvailability(ctx context.Context, copyID uuid.UUID) (models.CopyAvailability, bool) {
	if c == nil || c.rdb == nil {
		return "", false
	}
	val, err := c.rdb.Get(ctx, keyPrefix+copyID.String()).Result()
	if err != nil {
		if err != redis.Nil {
			log.Printf("[WARN] cache: get failed for copy %s: %v", copyID, err)
		}
		return "", false
	}
	return models.CopyAvailability(val), true
}

func (c *CopyCache) SetAvailability(ctx context.Context, copyID uuid.UUID, a models.CopyAvailability) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Set(ctx, keyPrefix+copyID.String(), string(a), c.ttl).Err(); err != nil {
		log.Printf("[WARN] cache: set failed for copy %s: %v", copyID, err)
	}
}

// Invalidate drops the cached entry. Called on every availability transition;
// a failed delete is logged and ignored because the TTL bounds staleness.
func (c *CopyCache) Invalidate(ctx context.Context, copyID uuid.UUID) {
	if c == nil || c.rdb == nil {
		return
	}
	if err := c.rdb.Del(ctx, keyPrefix+copyID.String()).Err(); err != nil {
		log.Printf("[WARN] cache: invalidate failed for copy %s: %v", copyID, err)
	}
}
