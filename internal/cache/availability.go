package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"taller/internal/events"
)

const keyPrefix = "taller:availability"

// AvailabilityCache is a read-through Redis cache of computed day views.
// Entries are keyed by a global and a per-date generation counter, so
// invalidation bumps a counter instead of scanning keys. A nil cache or a
// zero TTL disables caching.
type AvailabilityCache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewAvailabilityCache(rdb *redis.Client, ttl time.Duration, logger *zerolog.Logger) *AvailabilityCache {
	if rdb == nil || ttl <= 0 {
		return nil
	}
	return &AvailabilityCache{rdb: rdb, ttl: ttl, logger: logger}
}

func (c *AvailabilityCache) enabled() bool {
	return c != nil && c.rdb != nil && c.ttl > 0
}

func globalGenKey() string { return keyPrefix + ":gen" }
func dateGenKey(date string) string { return keyPrefix + ":gen:" + date }

// Get looks up the entry for date and variant and decodes it into out. The
// returned key pins the generations read; pass it to Set so a concurrent
// invalidation makes the stored value unreachable.
func (c *AvailabilityCache) Get(ctx context.Context, date, variant string, out any) (string, bool) {
	if !c.enabled() {
		return "", false
	}

	gens, err := c.rdb.MGet(ctx, globalGenKey(), dateGenKey(date)).Result()
	if err != nil {
		c.warn(err, "read cache generations")
		return "", false
	}
	key := fmt.Sprintf("%s:%s:%s:%s:%s", keyPrefix, genValue(gens[0]), genValue(gens[1]), date, variant)

	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != redis.Nil {
			c.warn(err, "read cache entry")
		}
		return key, false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return key, false
	}
	return key, true
}

// Set stores val under a key returned by Get.
func (c *AvailabilityCache) Set(ctx context.Context, key string, val any) {
	if !c.enabled() || key == "" {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.warn(err, "write cache entry")
	}
}

// InvalidateDate drops every cached view of date.
func (c *AvailabilityCache) InvalidateDate(ctx context.Context, date string) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, dateGenKey(date)).Err()
}

// InvalidateAll drops every cached view.
func (c *AvailabilityCache) InvalidateAll(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.rdb.Incr(ctx, globalGenKey()).Err()
}

// Subscribe invalidates on appointment and calendar events.
func (c *AvailabilityCache) Subscribe(bus *events.EventBus) {
	if !c.enabled() || bus == nil {
		return
	}

	onAppointment := func(e events.Event) error {
		var p events.AppointmentPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		return c.InvalidateDate(context.Background(), p.Date)
	}
	bus.Subscribe(events.AppointmentCreated, onAppointment)
	bus.Subscribe(events.AppointmentStatusChanged, onAppointment)

	bus.Subscribe(events.CalendarChanged, func(e events.Event) error {
		var p events.CalendarPayload
		if err := e.Decode(&p); err != nil {
			return err
		}
		if p.Date == "" {
			return c.InvalidateAll(context.Background())
		}
		return c.InvalidateDate(context.Background(), p.Date)
	})
}

func (c *AvailabilityCache) warn(err error, msg string) {
	if c.logger != nil {
		c.logger.Warn().Err(err).Msg(msg)
	}
}

func genValue(v any) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return "0"
}
