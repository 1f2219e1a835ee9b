package orders

import (
	"encoding/json"
	"github.com/google/uuid"
	"time"
)

const (
	EventOrderPlaced          = "OrderPlaced"
	EventPaymentConfirmed     = "PaymentConfirmed"
	EventPaymentFailed        = "PaymentFailed"
	EventDeliveryConfirmed    = "DeliveryConfirmed"
	EventSettlementIncomplete = "SettlementIncomplete"
	EventOrderSettled         = "OrderSettled"
)

type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a payload in a v1 envelope correlated to an order.
func NewEnvelope(eventType, producer, orderID string, payload any) (Envelope, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      producer,
		CorrelationID: orderID,
		Payload:       b,
	}, nil
}

// ---- payloads ----

type OrderPlacedPayload struct {
	OrderID       string        `json:"order_id"`
	BuyerID       string        `json:"buyer_id"`
	PaymentMethod PaymentMethod `json:"payment_method"`
	PaymentStatus Status        `json:"payment_status"`
	Currency      string        `json:"currency"`
	TotalAmount   int64         `json:"total_amount"`
	Sellers       []string      `json:"sellers"`
}

type PaymentConfirmedPayload struct {
	OrderID    string `json:"order_id"`
	GatewayRef string `json:"gateway_reference"`
	Amount     int64  `json:"amount"`
}

type PaymentFailedPayload struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type DeliveryConfirmedPayload struct {
	OrderID string   `json:"order_id"`
	Sellers []string `json:"sellers"`
}

type SellerPayout struct {
	SellerID string       `json:"seller_id"`
	Amount   int64        `json:"amount"`
	Status   PayoutStatus `json:"payout_status"`
	Reason   string       `json:"reason,omitempty"`
}

type SettlementPayload struct {
	OrderID string         `json:"order_id"`
	Payouts []SellerPayout `json:"payouts"`
}

func NewOrderPlaced(o *Order) OrderPlacedPayload {
	return OrderPlacedPayload{
		OrderID:       o.ID,
		BuyerID:       o.BuyerID,
		PaymentMethod: o.PaymentMethod,
		PaymentStatus: o.PaymentStatus,
		Currency:      o.Total.Currency,
		TotalAmount:   o.Total.Amount,
		Sellers:       o.SellerIDs(),
	}
}

// SellerIDs lists distinct sellers in first-seen order.
func (o *Order) SellerIDs() []string {
	seen := map[string]bool{}
	var out []string
	for _, it := range o.Items {
		if !seen[it.SellerID] {
			seen[it.SellerID] = true
			out = append(out, it.SellerID)
		}
	}
	return out
}
