package catalog

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"time"
)

// Cached fronts a Lookup with a short-lived redis copy; concurrent misses for one
// product share a single source read.
type Cached struct {
	Source Lookup
	Redis  *redis.Client
	TTL    time.Duration

	group singleflight.Group
}

func (c *Cached) ttl() time.Duration {
	if c.TTL > 0 {
		return c.TTL
	}
	return redisx.TTLProduct
}

func (c *Cached) Get(ctx context.Context, id string) (Product, error) {
	key := fmt.Sprintf(redisx.KeyProduct, id)
	var p Product
	if ok, err := redisx.GetJSON(ctx, c.Redis, key, &p); err == nil && ok {
		return p, nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		p, err := c.Source.Get(ctx, id)
		if err != nil {
			return Product{}, err
		}
		// cache write failures only cost a later re-read
		_ = redisx.SetJSON(ctx, c.Redis, key, p, c.ttl())
		return p, nil
	})
	if err != nil {
		return Product{}, err
	}
	return v.(Product), nil
}

// Invalidate drops the cached copy after a product edit.
func (c *Cached) Invalidate(ctx context.Context, id string) error {
	return c.Redis.Del(ctx, fmt.Sprintf(redisx.KeyProduct, id)).Err()
}
