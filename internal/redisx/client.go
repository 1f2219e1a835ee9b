package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"github.com/redis/go-redis/v9"
	"time"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

func Exists(ctx context.Context, rdb *redis.Client, key string) (bool, error) {
	n, err := rdb.Exists(ctx, key).Result()
	return n > 0, err
}

// GetJSON decodes a JSON value; found is false on a miss.
func GetJSON(ctx context.Context, rdb *redis.Client, key string, out any) (found bool, err error) {
	b, err := rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, out); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func SetJSON(ctx context.Context, rdb *redis.Client, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return rdb.Set(ctx, key, b, ttl).Err()
}

// Idempotency claims keys for checkout so retried requests return the first order.
// Keys are scoped per buyer; two buyers sending the same key never share an order.
type Idempotency struct{ Redis *redis.Client }

// Claim stores orderID under the buyer's key unless one is already stored, and returns the winner.
func (i *Idempotency) Claim(ctx context.Context, buyerID, key, orderID string) (owner string, claimed bool, err error) {
	k := fmt.Sprintf(KeyIdemCheckout, buyerID, key)
	ok, err := i.Redis.SetNX(ctx, k, orderID, TTLIdempotency).Result()
	if err != nil {
		return "", false, err
	}
	if ok {
		return orderID, true, nil
	}
	owner, err = i.Redis.Get(ctx, k).Result()
	return owner, false, err
}

func (i *Idempotency) Lookup(ctx context.Context, buyerID, key string) (string, bool, error) {
	v, err := i.Redis.Get(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// Release drops a claim whose order was never persisted.
func (i *Idempotency) Release(ctx context.Context, buyerID, key string) error {
	return i.Redis.Del(ctx, fmt.Sprintf(KeyIdemCheckout, buyerID, key)).Err()
}

// Dedup remembers processed event ids per consumer.
type Dedup struct {
	Redis   *redis.Client
	Service string
}

// First reports whether id has not been seen before, and marks it seen.
func (d *Dedup) First(ctx context.Context, id string) (bool, error) {
	return d.Redis.SetNX(ctx, fmt.Sprintf(KeyDedup, d.Service, id), "1", TTLDedup).Result()
}

// Forget clears a mark so a failed event can be processed again.
func (d *Dedup) Forget(ctx context.Context, id string) error {
	return d.Redis.Del(ctx, fmt.Sprintf(KeyDedup, d.Service, id)).Err()
}

// StatusCache keeps the last known payment status of an order for cheap polling.
type StatusCache struct{ Redis *redis.Client }

type CachedStatus struct {
	BuyerID          string    `json:"buyer_id"`
	PaymentStatus    string    `json:"payment_status"`
	SettlementStatus string    `json:"settlement_status"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (c *StatusCache) Put(ctx context.Context, orderID string, s CachedStatus) error {
	return SetJSON(ctx, c.Redis, fmt.Sprintf(KeyOrderStatus, orderID), s, TTLStatusCache)
}

func (c *StatusCache) Get(ctx context.Context, orderID string) (CachedStatus, bool, error) {
	var s CachedStatus
	ok, err := GetJSON(ctx, c.Redis, fmt.Sprintf(KeyOrderStatus, orderID), &s)
	return s, ok, err
}
