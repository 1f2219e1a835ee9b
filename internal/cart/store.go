package cart

import (
	"context"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/redis/go-redis/v9"
	"sync"
)

// LocalStore is the session-scoped working copy edited optimistically between syncs.
type LocalStore interface {
	Load(ctx context.Context, sessionID string) (*Cart, error)
	Save(ctx context.Context, sessionID string, c *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// ServerStore holds the authoritative cart per owner. Get returns an empty cart when none exists.
type ServerStore interface {
	Get(ctx context.Context, owner string) (*Cart, error)
	Put(ctx context.Context, c *Cart) error
	Delete(ctx context.Context, owner string) error
}

type RedisLocalStore struct{ Redis *redis.Client }

func (s *RedisLocalStore) Load(ctx context.Context, sessionID string) (*Cart, error) {
	var c Cart
	if _, err := redisx.GetJSON(ctx, s.Redis, fmt.Sprintf(redisx.KeyLocalCart, sessionID), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *RedisLocalStore) Save(ctx context.Context, sessionID string, c *Cart) error {
	return redisx.SetJSON(ctx, s.Redis, fmt.Sprintf(redisx.KeyLocalCart, sessionID), c, redisx.TTLLocalCart)
}

func (s *RedisLocalStore) Delete(ctx context.Context, sessionID string) error {
	return s.Redis.Del(ctx, fmt.Sprintf(redisx.KeyLocalCart, sessionID)).Err()
}

type MemoryServerStore struct {
	mu    sync.Mutex
	carts map[string]*Cart
}

func NewMemoryServerStore() *MemoryServerStore {
	return &MemoryServerStore{carts: map[string]*Cart{}}
}

func (m *MemoryServerStore) Get(_ context.Context, owner string) (*Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.carts[owner]; ok {
		return c.Clone(), nil
	}
	return &Cart{Owner: owner}, nil
}

func (m *MemoryServerStore) Put(_ context.Context, c *Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.carts[c.Owner] = c.Clone()
	return nil
}

func (m *MemoryServerStore) Delete(_ context.Context, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.carts, owner)
	return nil
}
