package checkout

import (
	"context"
	"errors"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/gateway"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/ariefcatur/go-marketplace-orders/internal/session"
	"github.com/rs/zerolog"
	"time"
)

var ErrLoginRequired = fmt.Errorf("checkout requires a signed-in buyer: %w", orders.ErrForbidden)

// errNotPending short-circuits a mutation when another request already moved the order on.
var errNotPending = errors.New("order is no longer pending")

type Carts interface {
	Synced(ctx context.Context, sess *session.Session) (*cart.Cart, error)
	Clear(ctx context.Context, sess *session.Session) error
}

type Request struct {
	Shipping       orders.ShippingInfo  `json:"shipping"`
	Method         orders.PaymentMethod `json:"payment_method"`
	IdempotencyKey string               `json:"-"`
}

type Result struct {
	Order            *orders.Order `json:"order"`
	AuthorizationURL string        `json:"authorization_url,omitempty"`
	Replayed         bool          `json:"replayed,omitempty"`
}

type Service struct {
	Orders      orders.Store
	Carts       Carts
	Catalog     catalog.Lookup
	Gateway     gateway.Gateway
	Idem        *redisx.Idempotency
	Status      *redisx.StatusCache
	Publisher   orders.Publisher
	Producer    string
	Currency    string
	CallbackURL string
	Log         zerolog.Logger
	Now         func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// PlaceOrder turns the session's synced cart into one order across all sellers.
func (s *Service) PlaceOrder(ctx context.Context, sess *session.Session, req Request) (*Result, error) {
	if !sess.Authenticated() {
		return nil, ErrLoginRequired
	}
	if !req.Method.Valid() {
		return nil, &orders.ValidationError{Msg: "unknown payment method", Fields: []string{string(req.Method)}}
	}
	if err := req.Shipping.Validate(); err != nil {
		return nil, err
	}
	if res, ok, err := s.replay(ctx, sess.AccountID, req.IdempotencyKey); err != nil || ok {
		return res, err
	}

	c, err := s.Carts.Synced(ctx, sess)
	if err != nil {
		return nil, err
	}
	items, err := s.freeze(ctx, c)
	if err != nil {
		return nil, err
	}
	o, err := orders.NewOrder(orders.NewOrderInput{
		BuyerID:  sess.AccountID,
		Shipping: req.Shipping,
		Method:   req.Method,
		Currency: s.Currency,
		Items:    items,
	}, s.now())
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" && s.Idem != nil {
		owner, claimed, err := s.Idem.Claim(ctx, sess.AccountID, req.IdempotencyKey, o.ID)
		if err != nil {
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if !claimed {
			return s.load(ctx, sess.AccountID, owner)
		}
	}
	if err := s.Orders.Create(ctx, o); err != nil {
		if req.IdempotencyKey != "" && s.Idem != nil {
			_ = s.Idem.Release(ctx, sess.AccountID, req.IdempotencyKey)
		}
		return nil, fmt.Errorf("create order: %w", err)
	}

	log := s.Log.With().Str("order_id", o.ID).Str("method", string(o.PaymentMethod)).Logger()
	log.Info().Int64("total", o.Total.Amount).Int("items", len(o.Items)).Msg("order placed")

	if err := s.Carts.Clear(ctx, sess); err != nil {
		log.Warn().Err(err).Msg("clear cart")
	}
	s.emit(ctx, orders.TopicOrderPlaced, orders.EventOrderPlaced, o.ID, orders.NewOrderPlaced(o))

	res := &Result{Order: o}
	if o.PaymentMethod.RequiresGateway() {
		if err := s.authorize(ctx, res, req.Shipping.Email); err != nil {
			return nil, err
		}
	}
	s.cache(ctx, res.Order)
	return res, nil
}

func (s *Service) replay(ctx context.Context, buyerID, key string) (*Result, bool, error) {
	if key == "" || s.Idem == nil {
		return nil, false, nil
	}
	id, ok, err := s.Idem.Lookup(ctx, buyerID, key)
	if err != nil || !ok {
		return nil, false, err
	}
	res, err := s.load(ctx, buyerID, id)
	if errors.Is(err, orders.ErrNotFound) {
		// claimed by a request that is still creating its order
		return nil, false, nil
	}
	return res, err == nil, err
}

// load returns a replayed order; only its buyer may see it.
func (s *Service) load(ctx context.Context, buyerID, id string) (*Result, error) {
	o, err := s.Orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.BuyerID != buyerID {
		return nil, orders.ErrForbidden
	}
	return &Result{Order: o, Replayed: true}, nil
}

// freeze snapshots line items: seller re-resolved from the catalog now, price from the synced cart.
func (s *Service) freeze(ctx context.Context, c *cart.Cart) ([]orders.LineItem, error) {
	items := make([]orders.LineItem, 0, len(c.Items))
	for _, it := range c.Items {
		p, err := s.Catalog.Get(ctx, it.ProductID)
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("product %s is no longer listed: %w", it.ProductID, cart.ErrNotSynced)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, orders.LineItem{
			ProductID: it.ProductID,
			SellerID:  p.SellerID,
			Title:     p.Title,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
		})
	}
	return items, nil
}

// authorize never fabricates a hold: only an explicit success confirms payment.
func (s *Service) authorize(ctx context.Context, res *Result, email string) error {
	o := res.Order
	auth, err := s.Gateway.Authorize(ctx, gateway.AuthorizeRequest{
		Reference:   o.GatewayRef,
		Amount:      o.Total,
		Method:      string(o.PaymentMethod),
		Email:       email,
		CallbackURL: s.CallbackURL,
	})
	switch {
	case gateway.IsRejected(err):
		failed, ferr := s.fail(ctx, o.ID, err.Error())
		if ferr != nil {
			return ferr
		}
		res.Order = failed
		return nil
	case err != nil:
		s.Log.Warn().Err(err).Str("order_id", o.ID).Msg("authorization unconfirmed, order stays pending")
		return nil
	}

	res.AuthorizationURL = auth.AuthorizationURL
	if auth.Status == gateway.ChargeSuccess {
		confirmed, err := s.confirm(ctx, o.ID, o.Total.Amount)
		if err != nil {
			return err
		}
		res.Order = confirmed
	}
	return nil
}

// VerifyPayment handles the buyer's return from the gateway.
func (s *Service) VerifyPayment(ctx context.Context, orderID, reference string) (*orders.Order, error) {
	o, err := s.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if reference == "" || reference != o.GatewayRef {
		return nil, &orders.ValidationError{Msg: "payment reference does not match order", Fields: []string{"reference"}}
	}
	if o.PaymentStatus != orders.StatusPending {
		return o, nil
	}
	v, err := s.Gateway.Verify(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("verify payment: %w", err)
	}
	return s.apply(ctx, o, v)
}

func (s *Service) apply(ctx context.Context, o *orders.Order, v gateway.Verification) (*orders.Order, error) {
	switch {
	case v.Status == gateway.ChargeSuccess:
		if v.Amount != o.Total {
			s.Log.Error().Str("order_id", o.ID).Str("expected", o.Total.String()).Str("got", v.Amount.String()).
				Msg("verified amount mismatch")
			return nil, &orders.ValidationError{Msg: "verified amount does not match order total", Fields: []string{"amount"}}
		}
		return s.confirm(ctx, o.ID, v.Amount.Amount)
	case v.Status.Definitive():
		return s.fail(ctx, o.ID, "gateway reported "+string(v.Status))
	}
	return o, nil
}

func (s *Service) confirm(ctx context.Context, id string, amount int64) (*orders.Order, error) {
	o, changed, err := s.transition(ctx, id, func(o *orders.Order) error { return o.ConfirmPayment(s.now()) })
	if err != nil {
		return nil, err
	}
	if changed {
		s.Log.Info().Str("order_id", id).Msg("payment confirmed, funds held")
		s.emit(ctx, orders.TopicPaymentConfirmed, orders.EventPaymentConfirmed, id,
			orders.PaymentConfirmedPayload{OrderID: id, GatewayRef: o.GatewayRef, Amount: amount})
		s.cache(ctx, o)
	}
	return o, nil
}

func (s *Service) fail(ctx context.Context, id, reason string) (*orders.Order, error) {
	o, changed, err := s.transition(ctx, id, func(o *orders.Order) error { return o.Fail(reason, s.now()) })
	if err != nil {
		return nil, err
	}
	if changed {
		s.Log.Info().Str("order_id", id).Str("reason", reason).Msg("payment failed")
		s.emit(ctx, orders.TopicPaymentFailed, orders.EventPaymentFailed, id,
			orders.PaymentFailedPayload{OrderID: id, Reason: reason})
		s.cache(ctx, o)
	}
	return o, nil
}

// transition applies fn to a still-pending order. changed is false when it had already moved on.
func (s *Service) transition(ctx context.Context, id string, fn func(*orders.Order) error) (*orders.Order, bool, error) {
	o, err := orders.Mutate(ctx, s.Orders, id, func(o *orders.Order) error {
		if o.PaymentStatus != orders.StatusPending {
			return errNotPending
		}
		return fn(o)
	})
	if errors.Is(err, errNotPending) {
		o, err = s.Orders.Get(ctx, id)
		return o, false, err
	}
	return o, err == nil, err
}

// ExpireStalePayments re-verifies pending orders older than ttl. Only a definitive
// answer from the gateway moves them; uncertain ones stay pending for the next sweep.
func (s *Service) ExpireStalePayments(ctx context.Context, ttl time.Duration, limit int) (int, error) {
	stale, err := s.Orders.ListPendingPayments(ctx, s.now().Add(-ttl), limit)
	if err != nil {
		return 0, err
	}
	moved := 0
	for _, o := range stale {
		if ctx.Err() != nil {
			return moved, ctx.Err()
		}
		if !o.PaymentMethod.RequiresGateway() {
			continue
		}
		v, err := s.Gateway.Verify(ctx, o.GatewayRef)
		var next *orders.Order
		switch {
		case gateway.IsRejected(err):
			// the gateway has no record of a payment for this reference
			next, err = s.fail(ctx, o.ID, "payment expired: "+err.Error())
		case err != nil:
			s.Log.Warn().Err(err).Str("order_id", o.ID).Msg("stale payment still unverifiable")
			continue
		default:
			next, err = s.apply(ctx, o, v)
		}
		if err != nil {
			s.Log.Error().Err(err).Str("order_id", o.ID).Msg("expire stale payment")
			continue
		}
		if next.PaymentStatus != orders.StatusPending {
			moved++
		}
	}
	return moved, nil
}

func (s *Service) emit(ctx context.Context, topic, eventType, orderID string, payload any) {
	if err := orders.Emit(ctx, s.Publisher, s.Producer, topic, eventType, orderID, payload); err != nil {
		s.Log.Warn().Err(err).Str("order_id", orderID).Str("event", eventType).Msg("publish event")
	}
}

func (s *Service) cache(ctx context.Context, o *orders.Order) {
	if s.Status == nil {
		return
	}
	_ = s.Status.Put(ctx, o.ID, redisx.CachedStatus{
		BuyerID:          o.BuyerID,
		PaymentStatus:    string(o.PaymentStatus),
		SettlementStatus: string(o.SettlementStatus),
		UpdatedAt:        o.UpdatedAt,
	})
}
