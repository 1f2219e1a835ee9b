package orders

import (
	"github.com/ariefcatur/go-marketplace-orders/internal/money"
	"time"
)

type PaymentMethod string

const (
	MethodCard          PaymentMethod = "card"
	MethodBankTransfer  PaymentMethod = "bank_transfer"
	MethodPayOnDelivery PaymentMethod = "pay_on_delivery"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodBankTransfer, MethodPayOnDelivery:
		return true
	}
	return false
}

// RequiresGateway reports whether checkout with this method goes through authorization.
func (m PaymentMethod) RequiresGateway() bool { return m != MethodPayOnDelivery }

// ShippingInfo is captured at checkout and never follows later profile edits.
type ShippingInfo struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Address   string `json:"address"`
	City      string `json:"city"`
	State     string `json:"state"`
	Country   string `json:"country"`
}

// LineItem is frozen at order creation: price and seller are never re-resolved.
type LineItem struct {
	ProductID string      `json:"product_id"`
	SellerID  string      `json:"seller_id"`
	Title     string      `json:"title"`
	Quantity  int         `json:"quantity"`
	UnitPrice money.Money `json:"unit_price"`
}

// MaxQuantity bounds a single line so subtotals stay well inside int64.
const MaxQuantity = 10_000

func (li LineItem) Subtotal() (money.Money, error) { return li.UnitPrice.Mul(li.Quantity) }

type Order struct {
	ID               string           `json:"id"`
	BuyerID          string           `json:"buyer_id"`
	Shipping         ShippingInfo     `json:"shipping_info"`
	Items            []LineItem       `json:"items"`
	Total            money.Money      `json:"total_amount"`
	PaymentStatus    Status           `json:"payment_status"`
	PaymentMethod    PaymentMethod    `json:"payment_method"`
	SettlementStatus SettlementStatus `json:"settlement_status"`
	GatewayRef       string           `json:"gateway_reference,omitempty"`
	FailureReason    string           `json:"failure_reason,omitempty"`
	Version          int              `json:"version"`

	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	PaymentConfirmedAt *time.Time `json:"payment_confirmed_at,omitempty"`
	DeliveredAt        *time.Time `json:"delivered_at,omitempty"`
	SellerPaidAt       *time.Time `json:"seller_paid_at,omitempty"`
}

// Clone returns a deep copy so callers cannot alias stored items.
func (o *Order) Clone() *Order {
	c := *o
	c.Items = append([]LineItem(nil), o.Items...)
	c.PaymentConfirmedAt = cloneTime(o.PaymentConfirmedAt)
	c.DeliveredAt = cloneTime(o.DeliveredAt)
	c.SellerPaidAt = cloneTime(o.SellerPaidAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SellerItems returns the line items belonging to one seller.
func (o *Order) SellerItems(sellerID string) []LineItem {
	var out []LineItem
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			out = append(out, it)
		}
	}
	return out
}

func (o *Order) HasSeller(sellerID string) bool {
	for _, it := range o.Items {
		if it.SellerID == sellerID {
			return true
		}
	}
	return false
}

type PayoutStatus string

const (
	PayoutPending    PayoutStatus = "pending"
	PayoutProcessing PayoutStatus = "processing"
	PayoutPaid       PayoutStatus = "paid"
	PayoutFailed     PayoutStatus = "failed"   // transient, retried by the reconciler
	PayoutRejected   PayoutStatus = "rejected" // permanent, needs manual intervention
)

// SettlementRecord is one seller's share of a delivered order.
type SettlementRecord struct {
	OrderID    string       `json:"order_id"`
	SellerID   string       `json:"seller_id"`
	Gross      money.Money  `json:"gross_amount"`
	Fee        money.Money  `json:"fee_amount"`
	Payable    money.Money  `json:"payable_amount"`
	Status     PayoutStatus `json:"payout_status"`
	Reference  string       `json:"payout_reference"`
	TransferID string       `json:"transfer_id,omitempty"`
	Reason     string       `json:"reason,omitempty"`
	Attempts   int          `json:"attempts"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	PaidAt     *time.Time   `json:"paid_at,omitempty"`
}
