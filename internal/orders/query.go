package orders

import (
	"context"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"time"
)

type Role string

const (
	RoleBuyer    Role = "buyer"
	RoleSeller   Role = "seller"
	RoleOperator Role = "operator"
)

type SellerFilter struct {
	Status Status // empty = all
	Search string // order id, shipping first/last name, email
	Limit  int
	Offset int
}

func (f SellerFilter) page() Page { return Page{Limit: f.Limit, Offset: f.Offset}.normalize() }

// SellerView is an order projected for one seller. It carries only that seller's
// items, subtotal and payout; order-wide totals and settlement state are left out.
type SellerView struct {
	ID                 string            `json:"id"`
	PaymentStatus      Status            `json:"payment_status"`
	PaymentMethod      PaymentMethod     `json:"payment_method"`
	Shipping           *ShippingInfo     `json:"shipping_info,omitempty"`
	Items              []LineItem        `json:"items"`
	Subtotal           money.Money       `json:"subtotal"`
	NoItems            bool              `json:"no_items_from_seller"`
	Payout             *SettlementRecord `json:"payout,omitempty"`
	CreatedAt          time.Time         `json:"created_at"`
	PaymentConfirmedAt *time.Time        `json:"payment_confirmed_at,omitempty"`
	DeliveredAt        *time.Time        `json:"delivered_at,omitempty"`
}

type Detail struct {
	Order       *Order             `json:"order,omitempty"`
	Seller      *SellerView        `json:"seller_view,omitempty"`
	Settlements []SettlementRecord `json:"settlements,omitempty"`
}

type SellerStats struct {
	TotalOrders    int         `json:"total_orders"`
	PendingOrders  int         `json:"pending_orders"`
	TotalRevenue   money.Money `json:"total_revenue"`
	PendingRevenue money.Money `json:"pending_revenue"`
}

// Query is the read side for buyers, sellers and operators.
type Query struct {
	Store    Store
	Currency string
}

func (q *Query) ListForBuyer(ctx context.Context, buyerID string, page Page) ([]*Order, error) {
	return q.Store.ListByBuyer(ctx, buyerID, page)
}

func (q *Query) ListForSeller(ctx context.Context, sellerID string, f SellerFilter) ([]SellerView, error) {
	page, err := q.Store.ListBySeller(ctx, sellerID, f)
	if err != nil {
		return nil, err
	}
	out := make([]SellerView, 0, len(page))
	for _, o := range page {
		v, err := q.project(o, sellerID)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (q *Query) GetDetail(ctx context.Context, orderID, viewerID string, role Role) (*Detail, error) {
	o, err := q.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	switch role {
	case RoleBuyer:
		if o.BuyerID != viewerID {
			return nil, ErrForbidden
		}
		return &Detail{Order: o}, nil
	case RoleSeller:
		v, err := q.project(o, viewerID)
		if err != nil {
			return nil, err
		}
		if !v.NoItems {
			recs, err := q.Store.Settlements(ctx, o.ID)
			if err != nil {
				return nil, err
			}
			for i := range recs {
				if recs[i].SellerID == viewerID {
					rec := recs[i]
					v.Payout = &rec
				}
			}
		}
		return &Detail{Seller: &v}, nil
	case RoleOperator:
		recs, err := q.Store.Settlements(ctx, o.ID)
		if err != nil {
			return nil, err
		}
		return &Detail{Order: o, Settlements: recs}, nil
	}
	return nil, ErrForbidden
}

func (q *Query) SellerStats(ctx context.Context, sellerID string) (SellerStats, error) {
	totals, err := q.Store.SellerTotals(ctx, sellerID)
	if err != nil {
		return SellerStats{}, err
	}
	st := SellerStats{TotalRevenue: money.Zero(q.Currency), PendingRevenue: money.Zero(q.Currency)}
	for _, t := range totals {
		st.TotalOrders += t.Orders
		switch t.Status {
		case StatusHold:
			st.PendingOrders += t.Orders
			if st.PendingRevenue, err = st.PendingRevenue.Add(t.Subtotal); err != nil {
				return SellerStats{}, err
			}
		case StatusPaid:
			if st.TotalRevenue, err = st.TotalRevenue.Add(t.Subtotal); err != nil {
				return SellerStats{}, err
			}
		}
	}
	return st, nil
}

// project filters an order down to one seller's share.
func (q *Query) project(o *Order, sellerID string) (SellerView, error) {
	items := o.SellerItems(sellerID)
	v := SellerView{
		ID:            o.ID,
		PaymentStatus: o.PaymentStatus,
		PaymentMethod: o.PaymentMethod,
		Items:         items,
		Subtotal:      money.Zero(o.Total.Currency),
		NoItems:       len(items) == 0,
		CreatedAt:     o.CreatedAt,
	}
	if v.NoItems {
		v.Items = []LineItem{}
		return v, nil
	}
	shipping := o.Shipping
	v.Shipping = &shipping
	v.PaymentConfirmedAt = o.PaymentConfirmedAt
	v.DeliveredAt = o.DeliveredAt
	sub, err := sellerSubtotal(o, sellerID)
	if err != nil {
		return SellerView{}, err
	}
	v.Subtotal = sub
	return v, nil
}

func sellerSubtotal(o *Order, sellerID string) (money.Money, error) {
	total := money.Zero(o.Total.Currency)
	for _, it := range o.SellerItems(sellerID) {
		sub, err := it.Subtotal()
		if err != nil {
			return money.Money{}, err
		}
		if total, err = total.Add(sub); err != nil {
			return money.Money{}, err
		}
	}
	return total, nil
}
