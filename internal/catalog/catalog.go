package catalog

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"sort"
	"sync"
)

var ErrNotFound = errors.New("product not found")

// Product is the catalog view the order core consumes. Prices and sellers are snapshotted
// into carts and orders; the catalog is never consulted again for a placed order.
type Product struct {
	ID        string      `json:"id"`
	SellerID  string      `json:"seller_id"`
	Title     string      `json:"title"`
	Images    []string    `json:"images"`
	Price     money.Money `json:"price"`
	Available bool        `json:"available"`
}

type Filter struct {
	SellerID string
	Limit    int
	Offset   int
}

func (f *Filter) normalize() {
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 50
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
}

type Lookup interface {
	Get(ctx context.Context, id string) (Product, error)
}

// Memory is an in-process catalog for tests and local runs.
type Memory struct {
	mu       sync.RWMutex
	products map[string]Product
}

func NewMemory(ps ...Product) *Memory {
	m := &Memory{products: map[string]Product{}}
	for _, p := range ps {
		m.Put(p)
	}
	return m
}

func (m *Memory) Put(p Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *Memory) Get(_ context.Context, id string) (Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.products[id]
	if !ok {
		return Product{}, ErrNotFound
	}
	return p, nil
}

func (m *Memory) List(_ context.Context, f Filter) ([]Product, error) {
	f.normalize()
	m.mu.RLock()
	var out []Product
	for _, p := range m.products {
		if f.SellerID == "" || p.SellerID == f.SellerID {
			out = append(out, p)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}
