package orders

import (
	"context"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"time"
)

type Page struct {
	Limit  int
	Offset int
}

// SellerTotal aggregates one seller's line items across orders in one payment status.
type SellerTotal struct {
	Status   Status
	Orders   int
	Subtotal money.Money
}

func (p Page) normalize() Page {
	if p.Limit <= 0 || p.Limit > 100 {
		p.Limit = 20
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// Store persists orders and their settlement records.
// Update and BeginSettlement are conditional on the version the caller read.
type Store interface {
	Create(ctx context.Context, o *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	Update(ctx context.Context, o *Order, expectedVersion int) error
	ListByBuyer(ctx context.Context, buyerID string, page Page) ([]*Order, error)
	// ListBySeller applies f's status, search and page in the store.
	ListBySeller(ctx context.Context, sellerID string, f SellerFilter) ([]*Order, error)
	SellerTotals(ctx context.Context, sellerID string) ([]SellerTotal, error)
	ListPendingPayments(ctx context.Context, createdBefore time.Time, limit int) ([]*Order, error)
	ListUnsettled(ctx context.Context, limit int) ([]*Order, error)

	BeginSettlement(ctx context.Context, o *Order, expectedVersion int, recs []SettlementRecord) error
	Settlements(ctx context.Context, orderID string) ([]SettlementRecord, error)
	// UpdateSettlement writes rec only while the stored payout status is one of from.
	UpdateSettlement(ctx context.Context, rec SettlementRecord, from ...PayoutStatus) error
}

const maxMutateAttempts = 5

// Mutate is the single-writer path for an order: read, apply fn, write if the
// version is unchanged, and retry on conflict. fn must not do network I/O.
func Mutate(ctx context.Context, s Store, id string, fn func(*Order) error) (*Order, error) {
	for attempt := 0; attempt < maxMutateAttempts; attempt++ {
		o, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		v := o.Version
		if err := fn(o); err != nil {
			return nil, err
		}
		err = s.Update(ctx, o, v)
		if errors.Is(err, ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return o, nil
	}
	return nil, ErrVersionConflict
}
