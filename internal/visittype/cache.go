package visittype

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/medpractice-booking/pkg/logging"
)

// CachedCatalog is a Redis read-through cache in front of another catalog.
// Cache failures degrade to the backing catalog.
type CachedCatalog struct {
	next   Catalog
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewCachedCatalog(next Catalog, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) *CachedCatalog {
	if next == nil {
		panic("visittype: backing catalog required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedCatalog{next: next, redis: redisClient, ttl: ttl, logger: logger}
}

func (c *CachedCatalog) key(name string) string {
	return fmt.Sprintf("visittype:%s", name)
}

func (c *CachedCatalog) FindByName(ctx context.Context, name string) (*VisitType, error) {
	name = NormalizeName(name)
	if c.redis == nil {
		return c.next.FindByName(ctx, name)
	}

	data, err := c.redis.Get(ctx, c.key(name)).Bytes()
	switch {
	case err == nil:
		var vt VisitType
		if err := json.Unmarshal(data, &vt); err == nil {
			return &vt, nil
		}
		c.logger.Warn("visit type cache entry corrupt", "name", name)
	case err != redis.Nil:
		c.logger.Warn("visit type cache read failed", "name", name, "error", err)
	}

	vt, err := c.next.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(vt); err == nil {
		if err := c.redis.Set(ctx, c.key(name), data, c.ttl).Err(); err != nil {
			c.logger.Warn("visit type cache write failed", "name", name, "error", err)
		}
	}
	return vt, nil
}

// List is not cached; it backs an infrequent catalog listing.
func (c *CachedCatalog) List(ctx context.Context) ([]VisitType, error) {
	return c.next.List(ctx)
}
