package settlement

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/sellers"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"strings"
	"time"
)

const maxBeginAttempts = 5

// Destinations resolves a seller's payout account at settlement time.
type Destinations interface {
	GetPayoutDestination(ctx context.Context, sellerID string) (gateway.Destination, error)
}

// Result is one seller's payout outcome.
type Result struct {
	SellerID string              `json:"seller_id"`
	Amount   money.Money         `json:"amount"`
	Status   orders.PayoutStatus `json:"payout_status"`
	Reason   string              `json:"reason,omitempty"`
}

func (r Result) Success() bool { return r.Status == orders.PayoutPaid }

type Report struct {
	Order   *orders.Order `json:"order"`
	Results []Result      `json:"payouts"`
}

// PartialError reports which sellers were paid and which were not. sellerPaidAt stays unset.
type PartialError struct {
	Report
}

func (e *PartialError) Error() string {
	var owed []string
	for _, r := range e.Results {
		if !r.Success() {
			owed = append(owed, fmt.Sprintf("%s %s", r.SellerID, r.Status))
		}
	}
	return fmt.Sprintf("order %s partially settled: %d of %d payouts outstanding (%s)",
		e.Order.ID, len(owed), len(e.Results), strings.Join(owed, ", "))
}

type Engine struct {
	Store       orders.Store
	Gateway     gateway.Gateway
	Sellers     Destinations
	Publisher   orders.Publisher
	Producer    string
	FeeBps      int
	Concurrency int
	// Lease after which a payout left in processing may be claimed again.
	Lease time.Duration
	Log   zerolog.Logger
	Now   func() time.Time
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) lease() time.Duration {
	if e.Lease > 0 {
		return e.Lease
	}
	return 5 * time.Minute
}

// ConfirmDelivery commits hold -> paid together with one pending record per seller, then
// pays each seller without holding the order. buyerID empty skips the ownership check.
func (e *Engine) ConfirmDelivery(ctx context.Context, orderID, buyerID string) (*Report, error) {
	o, recs, err := e.begin(ctx, orderID, buyerID)
	if err != nil {
		return nil, err
	}
	log := e.Log.With().Str("order_id", o.ID).Logger()
	log.Info().Int("sellers", len(recs)).Msg("delivery confirmed, settling")
	e.emit(ctx, orders.TopicDeliveryConfirmed, orders.EventDeliveryConfirmed, o.ID,
		orders.DeliveryConfirmedPayload{OrderID: o.ID, Sellers: o.SellerIDs()})

	results := e.payAll(ctx, recs, false)
	rep, err := e.finish(ctx, o.ID, results)
	var pe *PartialError
	if errors.As(err, &pe) {
		e.emit(ctx, orders.TopicSettlementIncomplete, orders.EventSettlementIncomplete, o.ID, payload(o.ID, results))
	}
	return rep, err
}

func (e *Engine) begin(ctx context.Context, orderID, buyerID string) (*orders.Order, []orders.SettlementRecord, error) {
	for attempt := 0; attempt < maxBeginAttempts; attempt++ {
		o, err := e.Store.Get(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
		if buyerID != "" && o.BuyerID != buyerID {
			return nil, nil, orders.ErrForbidden
		}
		v := o.Version
		now := e.now()
		if err := o.ConfirmDelivery(now); err != nil {
			return nil, nil, err
		}
		recs, err := Split(o, e.FeeBps, now)
		if err != nil {
			return nil, nil, err
		}
		err = e.Store.BeginSettlement(ctx, o, v, recs)
		if errors.Is(err, orders.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return o, recs, nil
	}
	return nil, nil, orders.ErrVersionConflict
}

// Retry re-attempts every unpaid payout of a delivered order. Rejected payouts are only
// retried when includeRejected is set, after an operator has had bank details fixed.
func (e *Engine) Retry(ctx context.Context, orderID string, includeRejected bool) (*Report, error) {
	o, err := e.Store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.PaymentStatus != orders.StatusPaid {
		return nil, &orders.TransitionError{OrderID: o.ID, From: o.PaymentStatus, To: orders.StatusPaid}
	}
	recs, err := e.Store.Settlements(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.SellerPaidAt != nil {
		return &Report{Order: o, Results: toResults(recs)}, nil
	}
	results := e.payAll(ctx, recs, includeRejected)
	return e.finish(ctx, orderID, results)
}

// Sweep retries unsettled delivered orders. It returns how many became fully settled.
func (e *Engine) Sweep(ctx context.Context, limit int) (int, error) {
	pending, err := e.Store.ListUnsettled(ctx, limit)
	if err != nil {
		return 0, err
	}
	settled := 0
	cutoff := e.now().Add(-e.lease())
	for _, o := range pending {
		if ctx.Err() != nil {
			return settled, ctx.Err()
		}
		// leave fresh deliveries to the request that is still paying them out
		if o.DeliveredAt != nil && o.DeliveredAt.After(cutoff) && o.SettlementStatus == orders.SettlementNone {
			continue
		}
		_, err := e.Retry(ctx, o.ID, false)
		var pe *PartialError
		switch {
		case err == nil:
			settled++
		case errors.As(err, &pe):
		default:
			e.Log.Error().Err(err).Str("order_id", o.ID).Msg("settlement sweep")
		}
	}
	return settled, nil
}

func (e *Engine) claimable(r orders.SettlementRecord, includeRejected bool) []orders.PayoutStatus {
	switch r.Status {
	case orders.PayoutPending, orders.PayoutFailed:
		return []orders.PayoutStatus{r.Status}
	case orders.PayoutRejected:
		if includeRejected {
			return []orders.PayoutStatus{r.Status}
		}
	case orders.PayoutProcessing:
		if r.UpdatedAt.Before(e.now().Add(-e.lease())) {
			return []orders.PayoutStatus{r.Status}
		}
	}
	return nil
}

func (e *Engine) payAll(ctx context.Context, recs []orders.SettlementRecord, includeRejected bool) []Result {
	results := make([]Result, len(recs))
	var g errgroup.Group
	if e.Concurrency > 0 {
		g.SetLimit(e.Concurrency)
	}
	for i, rec := range recs {
		from := e.claimable(rec, includeRejected)
		if from == nil {
			results[i] = toResult(rec)
			continue
		}
		g.Go(func() error {
			results[i] = e.payOne(ctx, rec, from)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// payOne claims the record, resolves the destination and disburses. Outcomes are recorded
// per seller; nothing here touches the order row.
func (e *Engine) payOne(ctx context.Context, rec orders.SettlementRecord, from []orders.PayoutStatus) Result {
	log := e.Log.With().Str("order_id", rec.OrderID).Str("seller_id", rec.SellerID).Logger()

	rec.Status = orders.PayoutProcessing
	rec.Attempts++
	rec.UpdatedAt = e.now()
	if err := e.Store.UpdateSettlement(ctx, rec, from...); err != nil {
		if !errors.Is(err, orders.ErrVersionConflict) {
			log.Error().Err(err).Msg("claim payout")
		}
		return toResult(rec)
	}

	rec.Status, rec.Reason = e.disburse(ctx, &rec)
	rec.UpdatedAt = e.now()
	if rec.Status == orders.PayoutPaid {
		t := rec.UpdatedAt
		rec.PaidAt = &t
	}
	if err := e.Store.UpdateSettlement(ctx, rec, orders.PayoutProcessing); err != nil {
		// stays processing until the lease expires; the reference keeps a retry from paying twice
		log.Error().Err(err).Str("outcome", string(rec.Status)).Msg("record payout outcome")
		rec.Status = orders.PayoutProcessing
	}
	ev := log.Info()
	if rec.Status != orders.PayoutPaid {
		ev = log.Warn()
	}
	ev.Str("status", string(rec.Status)).Str("reason", rec.Reason).Int("attempt", rec.Attempts).Msg("payout")
	return toResult(rec)
}

func (e *Engine) disburse(ctx context.Context, rec *orders.SettlementRecord) (orders.PayoutStatus, string) {
	if rec.Payable.IsZero() {
		return orders.PayoutPaid, ""
	}
	dest, err := e.Sellers.GetPayoutDestination(ctx, rec.SellerID)
	switch {
	case errors.Is(err, sellers.ErrNoPayoutDestination), errors.Is(err, sellers.ErrUnknownSeller):
		return orders.PayoutRejected, err.Error()
	case err != nil:
		return orders.PayoutFailed, err.Error()
	}
	tr, err := e.Gateway.Disburse(ctx, gateway.Payout{
		Destination: dest,
		Amount:      rec.Payable,
		Reference:   rec.Reference,
		Reason:      "Payout for order " + rec.OrderID,
	})
	switch {
	case gateway.IsRejected(err):
		return orders.PayoutRejected, err.Error()
	case err != nil:
		return orders.PayoutFailed, err.Error()
	}
	rec.TransferID = tr.TransferID
	return orders.PayoutPaid, ""
}

// finish stamps sellerPaidAt only when every record is paid.
func (e *Engine) finish(ctx context.Context, orderID string, results []Result) (*Report, error) {
	allPaid := true
	for _, r := range results {
		allPaid = allPaid && r.Success()
	}
	o, err := orders.Mutate(ctx, e.Store, orderID, func(o *orders.Order) error {
		if allPaid {
			return o.MarkSettled(e.now())
		}
		o.MarkPartiallySettled(e.now())
		return nil
	})
	if err != nil {
		return nil, err
	}
	rep := &Report{Order: o, Results: results}
	if !allPaid {
		return nil, &PartialError{Report: *rep}
	}
	e.Log.Info().Str("order_id", orderID).Msg("order fully settled")
	e.emit(ctx, orders.TopicOrderSettled, orders.EventOrderSettled, orderID, payload(orderID, results))
	return rep, nil
}

func (e *Engine) emit(ctx context.Context, topic, eventType, orderID string, p any) {
	if err := orders.Emit(ctx, e.Publisher, e.Producer, topic, eventType, orderID, p); err != nil {
		e.Log.Warn().Err(err).Str("order_id", orderID).Str("event", eventType).Msg("publish event")
	}
}

func payload(orderID string, results []Result) orders.SettlementPayload {
	p := orders.SettlementPayload{OrderID: orderID}
	for _, r := range results {
		p.Payouts = append(p.Payouts, orders.SellerPayout{SellerID: r.SellerID, Amount: r.Amount.Amount, Status: r.Status, Reason: r.Reason})
	}
	return p
}

func toResult(r orders.SettlementRecord) Result {
	return Result{SellerID: r.SellerID, Amount: r.Payable, Status: r.Status, Reason: r.Reason}
}

func toResults(recs []orders.SettlementRecord) []Result {
	out := make([]Result, len(recs))
	for i, r := range recs {
		out[i] = toResult(r)
	}
	return out
}
