package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupKeyPrefix = "revq:delivery:"

// DedupStore is the subset of redis used for delivery deduplication.
// *redis.Client satisfies it.
type DedupStore interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
}

// Deduplicator tracks delivery ids for a bounded window so upstream retries
// of an already-processed delivery are acknowledged without re-processing.
type Deduplicator struct {
	store DedupStore
	ttl   time.Duration
}

func NewDeduplicator(store DedupStore, ttl time.Duration) *Deduplicator {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Deduplicator{store: store, ttl: ttl}
}

// Seen atomically marks deliveryID and reports whether it had already been
// marked inside the TTL window. SETNX makes the check-and-mark a single
// operation, so two racing retries cannot both proceed.
func (d *Deduplicator) Seen(ctx context.Context, deliveryID string) (bool, error) {
	set, err := d.store.SetNX(ctx, dedupKeyPrefix+deliveryID, 1, d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("marking delivery %q: %w", deliveryID, err)
	}
	if !set {
		slog.DebugContext(ctx, "duplicate delivery", "delivery_id", deliveryID)
	}
	return !set, nil
}
