package cart

import (
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func item(id string, qty int, price int64) Item {
	return Item{ProductID: id, SellerID: "seller-" + id, Quantity: qty, UnitPrice: money.New(price, "NGN")}
}

func TestAddItem_MergesByProduct(t *testing.T) {
	var c Cart
	require.NoError(t, c.AddItem(item("a", 1, 1000)))
	require.NoError(t, c.AddItem(item("b", 1, 500)))
	require.NoError(t, c.AddItem(item("a", 1, 1000)))

	require.Len(t, c.Items, 2)
	assert.Equal(t, 2, c.Items[0].Quantity)

	total, err := c.Total("NGN")
	require.NoError(t, err)
	assert.Equal(t, int64(2500), total.Amount)
}

func TestAddItem_InvalidQuantity(t *testing.T) {
	var c Cart
	err := c.AddItem(item("a", 0, 1000))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	var ve *orders.ValidationError
	assert.ErrorAs(t, err, &ve)
	assert.True(t, c.Empty())
}

func TestAddItem_QuantityCapped(t *testing.T) {
	var c Cart
	err := c.AddItem(item("a", orders.MaxQuantity+1, 1000))
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.True(t, c.Empty())

	require.NoError(t, c.AddItem(item("a", orders.MaxQuantity, 1000)))
	err = c.AddItem(item("a", 1, 1000))
	var ve *orders.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, orders.MaxQuantity, c.Items[0].Quantity)
}

func TestDecreaseQuantity(t *testing.T) {
	var c Cart
	require.NoError(t, c.AddItem(item("a", 2, 1000)))

	c.DecreaseQuantity("a")
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)

	c.DecreaseQuantity("a")
	assert.True(t, c.Empty())

	c.DecreaseQuantity("missing")
	assert.True(t, c.Empty())
}

func TestRemoveItem(t *testing.T) {
	var c Cart
	require.NoError(t, c.AddItem(item("a", 3, 1000)))
	require.NoError(t, c.AddItem(item("b", 1, 500)))

	c.RemoveItem("a")
	require.Len(t, c.Items, 1)
	assert.Equal(t, "b", c.Items[0].ProductID)

	c.RemoveItem("a")
	assert.Len(t, c.Items, 1)
}
