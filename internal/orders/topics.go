package orders

import "context"

const (
	TopicOrderPlaced          = "order.placed"
	TopicPaymentConfirmed     = "order.payment.confirmed"
	TopicPaymentFailed        = "order.payment.failed"
	TopicDeliveryConfirmed    = "order.delivery.confirmed"
	TopicSettlementIncomplete = "order.settlement.incomplete"
	TopicOrderSettled         = "order.settled"
)

// Partition key = order id, so every event of one order keeps its order.
func PartitionKey(orderID string) []byte { return []byte(orderID) }

// Publisher emits lifecycle events. Publishing is best effort; the database stays the source of truth.
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, env Envelope) error
}

// Emit builds the envelope and publishes it.
func Emit(ctx context.Context, p Publisher, producer, topic, eventType, orderID string, payload any) error {
	if p == nil {
		return nil
	}
	env, err := NewEnvelope(eventType, producer, orderID, payload)
	if err != nil {
		return err
	}
	return p.PublishEvent(ctx, topic, env)
}
