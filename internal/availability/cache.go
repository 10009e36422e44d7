package availability

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/trimlyhq/trimly-backend/pkg/logger"
	"github.com/trimlyhq/trimly-backend/pkg/redis"
)

// Cache stores computed day slot lists in Redis. Failures are logged and
// treated as misses so Redis never sits on the serving path's critical
// failure domain.
type Cache struct {
	client *redis.Client
	logg   *logger.Logger
	ttl    time.Duration
}

// NewCache wires the slot cache. Returns nil when no client is configured,
// which the engine treats as caching disabled.
func NewCache(client *redis.Client, logg *logger.Logger, ttl time.Duration) *Cache {
	if client == nil || logg == nil || ttl <= 0 {
		return nil
	}
	return &Cache{client: client, logg: logg, ttl: ttl}
}

func (c *Cache) Get(ctx context.Context, staffID, serviceID uuid.UUID, day string) ([]time.Time, bool) {
	raw, err := c.client.Get(ctx, c.key(staffID, serviceID, day))
	if err != nil {
		if !redis.IsMiss(err) {
			c.logg.Warn(ctx, "availability cache read failed")
		}
		return nil, false
	}
	var slots []time.Time
	if err := json.Unmarshal([]byte(raw), &slots); err != nil {
		c.logg.Warn(ctx, "availability cache entry corrupt")
		return nil, false
	}
	return slots, true
}

func (c *Cache) Put(ctx context.Context, staffID, serviceID uuid.UUID, day string, slots []time.Time) {
	payload, err := json.Marshal(slots)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(staffID, serviceID, day), payload, c.ttl); err != nil {
		c.logg.Warn(ctx, "availability cache write failed")
	}
}

// InvalidateDay drops the cached slots for the staff member's services on the
// given day. Keys include the service id, so the caller passes each service
// it knows about. Safe on a nil cache, which reads as caching disabled.
func (c *Cache) InvalidateDay(ctx context.Context, staffID uuid.UUID, serviceIDs []uuid.UUID, day string) {
	if c == nil || len(serviceIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(serviceIDs))
	for _, serviceID := range serviceIDs {
		keys = append(keys, c.key(staffID, serviceID, day))
	}
	if err := c.client.Del(ctx, keys...); err != nil {
		c.logg.Warn(ctx, "availability cache invalidation failed")
	}
}

func (c *Cache) key(staffID, serviceID uuid.UUID, day string) string {
	return c.client.AvailabilityKey(staffID.String(), serviceID.String(), day)
}
