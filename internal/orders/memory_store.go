package orders

import (
	"context"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a Store kept in process memory, used by tests and local runs.
type MemoryStore struct {
	mu          sync.Mutex
	orders      map[string]*Order
	settlements map[string][]SettlementRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		orders:      make(map[string]*Order),
		settlements: make(map[string][]SettlementRecord),
	}
}

func (m *MemoryStore) Create(_ context.Context, o *Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.orders[o.ID]; ok {
		return ErrVersionConflict
	}
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, o *Order, expectedVersion int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.updateLocked(o, expectedVersion)
}

func (m *MemoryStore) updateLocked(o *Order, expectedVersion int) error {
	cur, ok := m.orders[o.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Version != expectedVersion {
		return ErrVersionConflict
	}
	o.Version = expectedVersion + 1
	m.orders[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) ListByBuyer(_ context.Context, buyerID string, page Page) ([]*Order, error) {
	page = page.normalize()
	out := m.filter(func(o *Order) bool { return o.BuyerID == buyerID })
	if page.Offset >= len(out) {
		return nil, nil
	}
	end := min(page.Offset+page.Limit, len(out))
	return out[page.Offset:end], nil
}

func (m *MemoryStore) ListBySeller(_ context.Context, sellerID string, f SellerFilter) ([]*Order, error) {
	search := strings.ToLower(strings.TrimSpace(f.Search))
	out := m.filter(func(o *Order) bool {
		if !o.HasSeller(sellerID) || (f.Status != "" && o.PaymentStatus != f.Status) {
			return false
		}
		return search == "" || matches(o, search)
	})
	page := f.page()
	if page.Offset >= len(out) {
		return nil, nil
	}
	return out[page.Offset:min(page.Offset+page.Limit, len(out))], nil
}

func (m *MemoryStore) SellerTotals(_ context.Context, sellerID string) ([]SellerTotal, error) {
	var out []SellerTotal
	idx := make(map[Status]int)
	for _, o := range m.filter(func(o *Order) bool { return o.HasSeller(sellerID) }) {
		i, ok := idx[o.PaymentStatus]
		if !ok {
			i = len(out)
			idx[o.PaymentStatus] = i
			out = append(out, SellerTotal{Status: o.PaymentStatus, Subtotal: money.Zero(o.Total.Currency)})
		}
		sub, err := sellerSubtotal(o, sellerID)
		if err != nil {
			return nil, err
		}
		out[i].Orders++
		if out[i].Subtotal, err = out[i].Subtotal.Add(sub); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func matches(o *Order, search string) bool {
	for _, field := range []string{o.ID, o.Shipping.FirstName, o.Shipping.LastName, o.Shipping.Email} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListPendingPayments(_ context.Context, createdBefore time.Time, limit int) ([]*Order, error) {
	out := m.filter(func(o *Order) bool {
		return o.PaymentStatus == StatusPending && o.CreatedAt.Before(createdBefore)
	})
	return head(out, limit), nil
}

func (m *MemoryStore) ListUnsettled(_ context.Context, limit int) ([]*Order, error) {
	out := m.filter(func(o *Order) bool {
		return o.PaymentStatus == StatusPaid && o.SellerPaidAt == nil
	})
	return head(out, limit), nil
}

func (m *MemoryStore) BeginSettlement(_ context.Context, o *Order, expectedVersion int, recs []SettlementRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.settlements[o.ID]) > 0 {
		return ErrVersionConflict
	}
	if err := m.updateLocked(o, expectedVersion); err != nil {
		return err
	}
	m.settlements[o.ID] = append([]SettlementRecord(nil), recs...)
	return nil
}

func (m *MemoryStore) Settlements(_ context.Context, orderID string) ([]SettlementRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SettlementRecord(nil), m.settlements[orderID]...), nil
}

func (m *MemoryStore) UpdateSettlement(_ context.Context, rec SettlementRecord, from ...PayoutStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := m.settlements[rec.OrderID]
	for i := range recs {
		if recs[i].SellerID != rec.SellerID {
			continue
		}
		if !slices.Contains(from, recs[i].Status) {
			return ErrVersionConflict
		}
		recs[i] = rec
		return nil
	}
	return ErrNotFound
}

// filter returns clones, newest first.
func (m *MemoryStore) filter(keep func(*Order) bool) []*Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func head(out []*Order, limit int) []*Order {
	if limit > 0 && len(out) > limit {
		return out[:limit]
	}
	return out
}
