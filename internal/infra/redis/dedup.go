package redis

import (
	"context"
	"fmt"
	"time"
)

// DedupCache remembers recently committed update ids so platform redeliveries
// can be skipped before touching the database. It is an optimization only;
// the authoritative idempotency check is the per-conversation last_update_id
// inside the commit transaction, so cache misses are always safe.
type DedupCache struct {
	client RedisClient
	ttl    time.Duration
}

func NewDedupCache(client RedisClient, ttl time.Duration) *DedupCache {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &DedupCache{client: client, ttl: ttl}
}

func (d *DedupCache) key(updateID int64) string {
	return fmt.Sprintf("update_seen:%d", updateID)
}

// MarkProcessed records the id; returns false when it was already present.
func (d *DedupCache) MarkProcessed(ctx context.Context, updateID int64) (bool, error) {
	return d.client.SetNX(ctx, d.key(updateID), "1", d.ttl)
}

// Seen reports whether the id was committed recently. Errors degrade to
// "not seen" at the caller so redis outages never stall the engine.
func (d *DedupCache) Seen(ctx context.Context, updateID int64) (bool, error) {
	_, err := d.client.Get(ctx, d.key(updateID))
	if err != nil {
		return false, err
	}
	return true, nil
}
