package orders

import (
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/google/uuid"
	"net/mail"
	"strings"
	"time"
)

type NewOrderInput struct {
	BuyerID  string
	Shipping ShippingInfo
	Method   PaymentMethod
	Currency string
	Items    []LineItem
}

func (s ShippingInfo) Validate() error {
	fields := map[string]string{
		"first_name": s.FirstName,
		"last_name":  s.LastName,
		"email":      s.Email,
		"phone":      s.Phone,
		"address":    s.Address,
		"city":       s.City,
		"state":      s.State,
		"country":    s.Country,
	}
	var missing []string
	for _, k := range []string{"first_name", "last_name", "email", "phone", "address", "city", "state", "country"} {
		if strings.TrimSpace(fields[k]) == "" {
			missing = append(missing, k)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Msg: "missing shipping fields", Fields: missing}
	}
	if _, err := mail.ParseAddress(s.Email); err != nil {
		return &ValidationError{Msg: "invalid shipping email", Fields: []string{"email"}}
	}
	return nil
}

// NewOrder builds an order from frozen line items. The total is computed here once.
func NewOrder(in NewOrderInput, now time.Time) (*Order, error) {
	if in.BuyerID == "" {
		return nil, &ValidationError{Msg: "buyer is required"}
	}
	if !in.Method.Valid() {
		return nil, &ValidationError{Msg: "unknown payment method", Fields: []string{string(in.Method)}}
	}
	if err := in.Shipping.Validate(); err != nil {
		return nil, err
	}
	if len(in.Items) == 0 {
		return nil, &ValidationError{Msg: "order has no items"}
	}

	items := make([]LineItem, len(in.Items))
	subtotals := make([]money.Money, len(in.Items))
	for i, it := range in.Items {
		if it.Quantity < 1 || it.Quantity > MaxQuantity {
			return nil, &ValidationError{Msg: "invalid quantity", Fields: []string{it.ProductID}}
		}
		if it.SellerID == "" {
			return nil, &ValidationError{Msg: "item has no seller", Fields: []string{it.ProductID}}
		}
		if it.UnitPrice.IsNegative() {
			return nil, &ValidationError{Msg: "negative unit price", Fields: []string{it.ProductID}}
		}
		sub, err := it.Subtotal()
		if err != nil {
			return nil, &ValidationError{Msg: "line total out of range", Fields: []string{it.ProductID}, Err: err}
		}
		items[i] = it
		subtotals[i] = sub
	}
	total, err := money.Sum(in.Currency, subtotals...)
	if err != nil {
		return nil, &ValidationError{Msg: err.Error(), Err: err}
	}

	status := StatusPending
	if !in.Method.RequiresGateway() {
		status = StatusHold
	}
	id := uuid.NewString()
	o := &Order{
		ID:               id,
		BuyerID:          in.BuyerID,
		Shipping:         in.Shipping,
		Items:            items,
		Total:            total,
		PaymentStatus:    status,
		PaymentMethod:    in.Method,
		SettlementStatus: SettlementNone,
		CreatedAt:        now.UTC(),
		UpdatedAt:        now.UTC(),
	}
	if in.Method.RequiresGateway() {
		o.GatewayRef = "ord_" + strings.ReplaceAll(id, "-", "")
	}
	return o, nil
}

func (o *Order) transition(to Status, now time.Time) error {
	if !CanTransition(o.PaymentStatus, to) {
		return &TransitionError{OrderID: o.ID, From: o.PaymentStatus, To: to}
	}
	o.PaymentStatus = to
	o.UpdatedAt = now.UTC()
	return nil
}

// ConfirmPayment moves pending -> hold once the gateway confirms authorization.
func (o *Order) ConfirmPayment(now time.Time) error {
	if o.PaymentStatus != StatusPending {
		return &TransitionError{OrderID: o.ID, From: o.PaymentStatus, To: StatusHold}
	}
	if err := o.transition(StatusHold, now); err != nil {
		return err
	}
	t := now.UTC()
	o.PaymentConfirmedAt = &t
	return nil
}

// Fail marks the order failed. It is never resurrected; the buyer checks out again.
func (o *Order) Fail(reason string, now time.Time) error {
	if err := o.transition(StatusFailed, now); err != nil {
		return err
	}
	o.FailureReason = reason
	return nil
}

// ConfirmDelivery moves hold -> paid; settlement is pending until every payout succeeds.
func (o *Order) ConfirmDelivery(now time.Time) error {
	if o.PaymentStatus != StatusHold {
		return &TransitionError{OrderID: o.ID, From: o.PaymentStatus, To: StatusPaid}
	}
	if err := o.transition(StatusPaid, now); err != nil {
		return err
	}
	t := now.UTC()
	o.DeliveredAt = &t
	if o.PaymentConfirmedAt == nil {
		// pay on delivery: cash is collected at the door
		o.PaymentConfirmedAt = &t
	}
	return nil
}

// MarkSettled stamps sellerPaidAt. Callers must have verified every payout succeeded.
func (o *Order) MarkSettled(now time.Time) error {
	if o.PaymentStatus != StatusPaid {
		return &TransitionError{OrderID: o.ID, From: o.PaymentStatus, To: StatusPaid}
	}
	if o.SellerPaidAt != nil {
		return nil
	}
	t := now.UTC()
	o.SellerPaidAt = &t
	o.SettlementStatus = SettlementDone
	o.UpdatedAt = t
	return nil
}

func (o *Order) MarkPartiallySettled(now time.Time) {
	if o.SettlementStatus == SettlementDone {
		return
	}
	o.SettlementStatus = SettlementPartial
	o.UpdatedAt = now.UTC()
}
