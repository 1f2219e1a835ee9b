package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"sync"
	"time"
)

var ErrClosed = errors.New("producer closed")

// Producer buffers lifecycle events and writes them from one goroutine.
// The topic travels on each message so one writer serves every order topic.
type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}
	log     zerolog.Logger
	service string

	mu     sync.RWMutex
	closed bool
}

func NewProducer(brokers []string, service string, buf int, log zerolog.Logger) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			BatchTimeout: 10 * time.Millisecond,
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
		log:     log.With().Str("component", "kafka-producer").Logger(),
		service: service,
	}
}

func (p *Producer) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := p.w.WriteMessages(ctx, m); err != nil {
				p.log.Error().Err(err).Str("topic", m.Topic).Str("key", string(m.Key)).Msg("publish failed")
			}
			cancel()
		}
		if err := p.w.Close(); err != nil {
			p.log.Warn().Err(err).Msg("close writer")
		}
	}()
}

// PublishEvent implements orders.Publisher.
func (p *Producer) PublishEvent(ctx context.Context, topic string, env orders.Envelope) error {
	if env.Producer == "" {
		env.Producer = p.service
	}
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return p.Publish(ctx, topic, orders.PartitionKey(env.CorrelationID), b,
		kafka.Header{Key: "x-event-type", Value: []byte(env.EventType)},
		kafka.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (p *Producer) Publish(ctx context.Context, topic string, key, value []byte, headers ...kafka.Header) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.inbox <- kafka.Message{Topic: topic, Key: key, Value: value, Time: time.Now(), Headers: headers}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops intake; the loop flushes what is buffered and closes the writer.
func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

// Wait until the loop has flushed.
func (p *Producer) WaitClosed() { <-p.closeCh }
