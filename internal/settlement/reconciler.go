package settlement

import (
	"context"
	"errors"
	kafkax "github.com/ariefcatur/go-marketplace-orders/internal/kafka"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
	"time"
)

// Reconciler consumes SettlementIncomplete events and retries the transient payouts.
// Rejected payouts wait for an operator.
type Reconciler struct {
	Engine *Engine
	Dedup  *redisx.Dedup
	// Delay before retrying, so a gateway outage has time to clear.
	Delay time.Duration
	Log   zerolog.Logger
}

func (r *Reconciler) HandleSettlementIncomplete(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.DecodeEnvelope(m.Value)
	if err != nil {
		r.Log.Error().Err(err).Int64("offset", m.Offset).Msg("skip undecodable event")
		return nil
	}
	if env.EventType != orders.EventSettlementIncomplete {
		return nil
	}

	first, err := r.Dedup.First(ctx, env.EventID)
	if err != nil {
		return err
	}
	if !first {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.SettlementPayload](env.Payload)
	if err != nil {
		r.Log.Error().Err(err).Str("event_id", env.EventID).Msg("skip bad payload")
		return nil
	}

	if r.Delay > 0 {
		select {
		case <-time.After(r.Delay):
		case <-ctx.Done():
			_ = r.Dedup.Forget(context.WithoutCancel(ctx), env.EventID)
			return ctx.Err()
		}
	}

	_, err = r.Engine.Retry(ctx, p.OrderID, false)
	var pe *PartialError
	switch {
	case err == nil:
		r.Log.Info().Str("order_id", p.OrderID).Msg("settlement completed by reconciler")
		return nil
	case errors.As(err, &pe):
		// the periodic sweep picks up what is still transient
		r.Log.Warn().Err(err).Str("order_id", p.OrderID).Msg("settlement still incomplete")
		return nil
	}
	_ = r.Dedup.Forget(context.WithoutCancel(ctx), env.EventID)
	return err
}
