package orders

import (
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"math"
	"testing"
)

func TestNewOrder_PayOnDeliveryStartsInHold(t *testing.T) {
	o := twoSellerOrder(t, MethodPayOnDelivery)

	assert.Equal(t, int64(2500), o.Total.Amount)
	assert.Equal(t, StatusHold, o.PaymentStatus)
	assert.Equal(t, SettlementNone, o.SettlementStatus)
	assert.Empty(t, o.GatewayRef)
	assert.Nil(t, o.PaymentConfirmedAt)
}

func TestNewOrder_CardStartsPendingWithReference(t *testing.T) {
	o := twoSellerOrder(t, MethodCard)

	assert.Equal(t, StatusPending, o.PaymentStatus)
	assert.NotEmpty(t, o.GatewayRef)
}

func TestNewOrder_TotalMatchesItems(t *testing.T) {
	o := twoSellerOrder(t, MethodCard)
	var sum int64
	for _, it := range o.Items {
		sub, err := it.Subtotal()
		require.NoError(t, err)
		sum += sub.Amount
	}
	assert.Equal(t, sum, o.Total.Amount)
}

func TestNewOrder_Validation(t *testing.T) {
	base := NewOrderInput{
		BuyerID:  "b",
		Shipping: shipping(),
		Method:   MethodCard,
		Currency: "NGN",
		Items:    []LineItem{{ProductID: "p", SellerID: "s", Quantity: 1, UnitPrice: ngn(10)}},
	}

	cases := map[string]func(in *NewOrderInput){
		"missing shipping": func(in *NewOrderInput) { in.Shipping.City = "" },
		"bad email":        func(in *NewOrderInput) { in.Shipping.Email = "not-an-email" },
		"bad method":       func(in *NewOrderInput) { in.Method = "cheque" },
		"no items":         func(in *NewOrderInput) { in.Items = nil },
		"zero quantity":    func(in *NewOrderInput) { in.Items[0].Quantity = 0 },
		"quantity too big": func(in *NewOrderInput) { in.Items[0].Quantity = MaxQuantity + 1 },
		"no seller":        func(in *NewOrderInput) { in.Items[0].SellerID = "" },
		"mixed currency":   func(in *NewOrderInput) { in.Currency = "USD" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := base
			in.Items = append([]LineItem(nil), base.Items...)
			mutate(&in)
			_, err := NewOrder(in, t0)
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
		})
	}
}

func TestNewOrder_RejectsOverflow(t *testing.T) {
	in := NewOrderInput{BuyerID: "b", Shipping: shipping(), Method: MethodCard, Currency: "NGN"}

	in.Items = []LineItem{{ProductID: "p", SellerID: "s", Quantity: math.MaxInt32, UnitPrice: ngn(5_000_000_000)}}
	_, err := NewOrder(in, t0)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	in.Items = []LineItem{{ProductID: "p", SellerID: "s", Quantity: MaxQuantity, UnitPrice: ngn(math.MaxInt64 / 1000)}}
	_, err = NewOrder(in, t0)
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, money.ErrOverflow)

	half := ngn(math.MaxInt64/2 + 1)
	in.Items = []LineItem{
		{ProductID: "p", SellerID: "s", Quantity: 1, UnitPrice: half},
		{ProductID: "q", SellerID: "s", Quantity: 1, UnitPrice: half},
	}
	_, err = NewOrder(in, t0)
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, money.ErrOverflow)
}

func TestShippingValidate_ListsMissingFields(t *testing.T) {
	err := ShippingInfo{FirstName: "a"}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "email")
	assert.NotContains(t, verr.Fields, "first_name")
}

func TestConfirmPayment(t *testing.T) {
	o := twoSellerOrder(t, MethodCard)
	require.NoError(t, o.ConfirmPayment(t0))
	assert.Equal(t, StatusHold, o.PaymentStatus)
	require.NotNil(t, o.PaymentConfirmedAt)

	err := o.ConfirmPayment(t0)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestConfirmDelivery_RequiresHold(t *testing.T) {
	o := twoSellerOrder(t, MethodCard)

	err := o.ConfirmDelivery(t0)
	var terr *TransitionError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, StatusPending, terr.From)
	assert.Equal(t, StatusPending, o.PaymentStatus)
}

func TestConfirmDelivery_PayOnDeliveryStampsPayment(t *testing.T) {
	o := twoSellerOrder(t, MethodPayOnDelivery)
	require.NoError(t, o.ConfirmDelivery(t0))
	assert.Equal(t, StatusPaid, o.PaymentStatus)
	assert.NotNil(t, o.PaymentConfirmedAt)
	assert.NotNil(t, o.DeliveredAt)
	assert.Nil(t, o.SellerPaidAt)
}

func TestTerminalStatesNeverMove(t *testing.T) {
	paid := twoSellerOrder(t, MethodPayOnDelivery)
	require.NoError(t, paid.ConfirmDelivery(t0))

	failed := twoSellerOrder(t, MethodCard)
	require.NoError(t, failed.Fail("declined", t0))
	assert.Equal(t, "declined", failed.FailureReason)

	for _, o := range []*Order{paid, failed} {
		before := o.PaymentStatus
		assert.ErrorIs(t, o.ConfirmPayment(t0), ErrInvalidTransition)
		assert.ErrorIs(t, o.ConfirmDelivery(t0), ErrInvalidTransition)
		assert.ErrorIs(t, o.Fail("again", t0), ErrInvalidTransition)
		assert.Equal(t, before, o.PaymentStatus)
	}
}

func TestMarkSettled(t *testing.T) {
	o := twoSellerOrder(t, MethodPayOnDelivery)
	assert.ErrorIs(t, o.MarkSettled(t0), ErrInvalidTransition)

	require.NoError(t, o.ConfirmDelivery(t0))
	o.MarkPartiallySettled(t0)
	assert.Equal(t, SettlementPartial, o.SettlementStatus)

	require.NoError(t, o.MarkSettled(t0))
	assert.Equal(t, SettlementDone, o.SettlementStatus)
	require.NotNil(t, o.SellerPaidAt)

	o.MarkPartiallySettled(t0)
	assert.Equal(t, SettlementDone, o.SettlementStatus)
}

func TestSellerIDs(t *testing.T) {
	o := twoSellerOrder(t, MethodCard)
	assert.Equal(t, []string{"seller-x", "seller-y"}, o.SellerIDs())
	assert.True(t, o.HasSeller("seller-y"))
	assert.False(t, o.HasSeller("seller-z"))
}
