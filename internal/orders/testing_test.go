package orders

import (
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func shipping() ShippingInfo {
	return ShippingInfo{
		FirstName: "Ada", LastName: "Obi", Email: "ada@example.com", Phone: "+2348000000000",
		Address: "1 Marina", City: "Lagos", State: "Lagos", Country: "NG",
	}
}

func ngn(a int64) money.Money { return money.New(a, "NGN") }

// twoSellerOrder: productA x2 @1000 from seller-x, productB x1 @500 from seller-y.
func twoSellerOrder(t *testing.T, method PaymentMethod) *Order {
	t.Helper()
	o, err := NewOrder(NewOrderInput{
		BuyerID:  "buyer-1",
		Shipping: shipping(),
		Method:   method,
		Currency: "NGN",
		Items: []LineItem{
			{ProductID: "productA", SellerID: "seller-x", Quantity: 2, UnitPrice: ngn(1000)},
			{ProductID: "productB", SellerID: "seller-y", Quantity: 1, UnitPrice: ngn(500)},
		},
	}, t0)
	require.NoError(t, err)
	return o
}
