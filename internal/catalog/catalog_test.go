package catalog

import (
	"context"
	"github.com/alicebob/miniredis/v2"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingLookup struct {
	inner Lookup
	calls atomic.Int32
	delay time.Duration
}

func (c *countingLookup) Get(ctx context.Context, id string) (Product, error) {
	c.calls.Add(1)
	time.Sleep(c.delay)
	return c.inner.Get(ctx, id)
}

func newCached(t *testing.T, src Lookup) (*Cached, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return &Cached{Source: src, Redis: rdb}, mr
}

var lamp = Product{ID: "p-lamp", SellerID: "s-1", Title: "Lamp", Images: []string{"a.jpg"}, Price: money.New(1000, "NGN"), Available: true}

func TestCached_HitsSourceOnce(t *testing.T) {
	src := &countingLookup{inner: NewMemory(lamp)}
	c, mr := newCached(t, src)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, err := c.Get(ctx, lamp.ID)
		require.NoError(t, err)
		assert.Equal(t, lamp, p)
	}
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, mr.Exists("catalog:product:p-lamp"))

	require.NoError(t, c.Invalidate(ctx, lamp.ID))
	_, err := c.Get(ctx, lamp.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestCached_ConcurrentMissesCollapse(t *testing.T) {
	src := &countingLookup{inner: NewMemory(lamp), delay: 50 * time.Millisecond}
	c, _ := newCached(t, src)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), lamp.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestCached_NotFoundIsNotCached(t *testing.T) {
	c, mr := newCached(t, NewMemory())
	_, err := c.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, mr.Exists("catalog:product:missing"))
}

func TestMemoryList(t *testing.T) {
	m := NewMemory(lamp,
		Product{ID: "p-bag", SellerID: "s-2", Title: "Bag", Price: money.New(500, "NGN")},
		Product{ID: "p-cup", SellerID: "s-1", Title: "Cup", Price: money.New(300, "NGN")},
	)
	all, err := m.List(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Bag", all[0].Title)

	mine, err := m.List(context.Background(), Filter{SellerID: "s-1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, "Lamp", mine[0].Title)
}
