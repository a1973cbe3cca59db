package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const claimPrefix = "notify:"

// RedisClaimer claims event ids with SET NX so that every instance sharing
// the Redis database sends a notification at most once.
type RedisClaimer struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewRedisClaimer creates a claimer; claims expire after ttl
func NewRedisClaimer(rdb redis.Cmdable, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisClaimer{rdb: rdb, ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, eventID string) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, claimPrefix+eventID, 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to claim %s: %w", eventID, err)
	}
	return ok, nil
}

// MemoryClaimer is the single-instance claimer
type MemoryClaimer struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	claimed map[string]time.Time
}

// NewMemoryClaimer creates a claimer; claims expire after ttl
func NewMemoryClaimer(ttl time.Duration) *MemoryClaimer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &MemoryClaimer{
		ttl:     ttl,
		now:     time.Now,
		claimed: make(map[string]time.Time),
	}
}

func (c *MemoryClaimer) Claim(_ context.Context, eventID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if exp, ok := c.claimed[eventID]; ok && now.Before(exp) {
		return false, nil
	}
	c.claimed[eventID] = now.Add(c.ttl)

	// Sweep expired claims now and then
	if len(c.claimed)%256 == 0 {
		for id, exp := range c.claimed {
			if !now.Before(exp) {
				delete(c.claimed, id)
			}
		}
	}
	return true, nil
}
