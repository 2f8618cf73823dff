package units

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/luisfernandobanegasro/parcial/internal/billing"
)

const (
	keyPrefix     = "billing:unit:"
	lookupTimeout = 5 * time.Second
)

type cachedUnit struct {
	ID            uuid.UUID `json:"id"`
	CondominiumID uuid.UUID `json:"condominium_id"`
	Code          string    `json:"code"`
}

// Cache is a read-through Redis cache in front of the unit registry.
// Concurrent misses for the same unit share one registry lookup.
// Redis failures degrade to direct lookups.
type Cache struct {
	source billing.UnitDirectory
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

func NewCache(source billing.UnitDirectory, client *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}

	return &Cache{source: source, client: client, ttl: ttl, logger: logger}
}

func (c *Cache) GetUnit(ctx context.Context, id uuid.UUID) (*billing.Unit, error) {
	key := keyPrefix + id.String()

	raw, err := c.client.Get(ctx, key).Bytes()

	switch {
	case err == nil:
		var cu cachedUnit
		if err := json.Unmarshal(raw, &cu); err == nil {
			return &billing.Unit{ID: cu.ID, CondominiumID: cu.CondominiumID, Code: cu.Code}, nil
		}

		c.logger.Warn("discarding corrupt unit cache entry", "unit_id", id)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("unit cache read failed", "unit_id", id, "error", err)
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// The lookup is shared, so it must outlive the caller that started it.
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		u, err := c.source.GetUnit(lookupCtx, id)
		if err != nil {
			return nil, err
		}

		c.store(lookupCtx, key, u)

		return u, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}

		u := *res.Val.(*billing.Unit)

		return &u, nil
	}
}

func (c *Cache) store(ctx context.Context, key string, u *billing.Unit) {
	raw, err := json.Marshal(cachedUnit{ID: u.ID, CondominiumID: u.CondominiumID, Code: u.Code})
	if err != nil {
		return
	}

	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("unit cache write failed", "unit_id", u.ID, "error", err)
	}
}

// Invalidate drops a cached unit after the registry changes it.
func (c *Cache) Invalidate(ctx context.Context, id uuid.UUID) error {
	return c.client.Del(ctx, keyPrefix+id.String()).Err()
}
