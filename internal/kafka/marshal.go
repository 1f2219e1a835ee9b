package kafka

import (
	"encoding/json"
	"fmt"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
)

// DecodeEnvelope reads a v1 envelope from a message value.
func DecodeEnvelope(b []byte) (orders.Envelope, error) {
	var env orders.Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return env, fmt.Errorf("decode envelope: %w", err)
	}
	if env.EventVersion != 1 {
		return env, fmt.Errorf("unsupported event version %d", env.EventVersion)
	}
	return env, nil
}

// UnwrapPayload decodes the event-specific payload.
func UnwrapPayload[T any](payload json.RawMessage) (T, error) {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return t, fmt.Errorf("decode payload: %w", err)
	}
	return t, nil
}
