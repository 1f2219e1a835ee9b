package settlement

import (
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"strings"
	"time"
)

// PayoutReference is stable per order and seller, so a repeated disbursement is
// recognised by the gateway instead of paying twice.
func PayoutReference(orderID, sellerID string) string {
	return "po_" + strings.ReplaceAll(orderID, "-", "") + "_" + sellerID
}

// Split groups the order's frozen line items by seller. With feeBps basis points withheld,
// sum(payable) + sum(fee) == order total.
func Split(o *orders.Order, feeBps int, now time.Time) ([]orders.SettlementRecord, error) {
	if feeBps < 0 || feeBps > 10000 {
		return nil, fmt.Errorf("platform fee %d bps out of range", feeBps)
	}
	cur := o.Total.Currency
	var recs []orders.SettlementRecord
	idx := map[string]int{}
	for _, it := range o.Items {
		i, ok := idx[it.SellerID]
		if !ok {
			i = len(recs)
			idx[it.SellerID] = i
			recs = append(recs, orders.SettlementRecord{
				OrderID:   o.ID,
				SellerID:  it.SellerID,
				Gross:     money.Zero(cur),
				Status:    orders.PayoutPending,
				Reference: PayoutReference(o.ID, it.SellerID),
				CreatedAt: now.UTC(),
				UpdatedAt: now.UTC(),
			})
		}
		sub, err := it.Subtotal()
		if err != nil {
			return nil, err
		}
		gross, err := recs[i].Gross.Add(sub)
		if err != nil {
			return nil, err
		}
		recs[i].Gross = gross
	}

	sum := money.Zero(cur)
	for i := range recs {
		recs[i].Fee = recs[i].Gross.Bps(feeBps)
		payable, err := recs[i].Gross.Sub(recs[i].Fee)
		if err != nil {
			return nil, err
		}
		recs[i].Payable = payable
		if sum, err = sum.Add(recs[i].Gross); err != nil {
			return nil, err
		}
	}
	if sum != o.Total {
		return nil, fmt.Errorf("order %s: seller split %s does not reconcile with total %s", o.ID, sum, o.Total)
	}
	return recs, nil
}
