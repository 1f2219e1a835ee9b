package cart

import (
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"time"
)

var ErrInvalidQuantity = errors.New("quantity must be between 1 and 10000")

// Item snapshots price, seller and title when added. Sync refreshes them from the catalog.
type Item struct {
	ProductID string      `json:"product_id"`
	SellerID  string      `json:"seller_id"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
}

func (it Item) Subtotal() (money.Money, error) { return it.UnitPrice.Mul(it.Quantity) }

func validQuantity(q int) bool { return q >= 1 && q <= orders.MaxQuantity }

// Cart holds at most one item per product.
type Cart struct {
	Owner        string     `json:"owner"`
	Items        []Item     `json:"items"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (c *Cart) index(productID string) int {
	for i, it := range c.Items {
		if it.ProductID == productID {
			return i
		}
	}
	return -1
}

// AddItem appends the item, or increases the quantity of the one already present.
func (c *Cart) AddItem(it Item) error {
	if !validQuantity(it.Quantity) {
		return &orders.ValidationError{Msg: "invalid quantity", Fields: []string{it.ProductID}, Err: ErrInvalidQuantity}
	}
	if i := c.index(it.ProductID); i >= 0 {
		q := c.Items[i].Quantity + it.Quantity
		if !validQuantity(q) {
			return &orders.ValidationError{Msg: "invalid quantity", Fields: []string{it.ProductID}, Err: ErrInvalidQuantity}
		}
		c.Items[i].Quantity = q
		return nil
	}
	c.Items = append(c.Items, it)
	return nil
}

// DecreaseQuantity drops one unit and removes the item at zero.
func (c *Cart) DecreaseQuantity(productID string) {
	i := c.index(productID)
	if i < 0 {
		return
	}
	if c.Items[i].Quantity <= 1 {
		c.RemoveItem(productID)
		return
	}
	c.Items[i].Quantity--
}

func (c *Cart) RemoveItem(productID string) {
	if i := c.index(productID); i >= 0 {
		c.Items = append(c.Items[:i], c.Items[i+1:]...)
	}
}

func (c *Cart) Empty() bool { return len(c.Items) == 0 }

func (c *Cart) Total(currency string) (money.Money, error) {
	subs := make([]money.Money, len(c.Items))
	for i, it := range c.Items {
		sub, err := it.Subtotal()
		if err != nil {
			return money.Money{}, err
		}
		subs[i] = sub
	}
	return money.Sum(currency, subs...)
}

func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = append([]Item(nil), c.Items...)
	if c.LastSyncedAt != nil {
		t := *c.LastSyncedAt
		cp.LastSyncedAt = &t
	}
	return &cp
}
