// ABOUTME: NATS-backed Bus implementation using github.com/nats-io/nats.go
// ABOUTME: Grounded on the retrieval pack's NATS event-bus bindings

package bus

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
)

// NATSBus implements Bus over a single *nats.Conn connection. Subjects here
// are one-per-user (never wildcarded), matching the subject codec's
// namespace design.
type NATSBus struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// NewNATSBus connects to a NATS server at url. logger may be nil, in which
// case slog.Default() is used.
func NewNATSBus(url string, logger *slog.Logger) (*NATSBus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bus")

	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}

	logger.Info("connected to bus", "url", url)
	return &NATSBus{conn: conn, logger: logger}, nil
}

// Publish hands the payload to the NATS client library and then flushes the
// connection, blocking until the server has answered the flush round-trip.
func (b *NATSBus) Publish(ctx context.Context, subject string, payload []byte) error {
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publishing to %s: %w", subject, err)
	}
	if err := b.conn.Flush(); err != nil {
		return fmt.Errorf("flushing publish to %s: %w", subject, err)
	}
	return nil
}

type natsSubscription struct {
	sub *nats.Subscription
}

func (s *natsSubscription) Unsubscribe() error {
	if !s.sub.IsValid() {
		return nil
	}
	return s.sub.Unsubscribe()
}

// Subscribe registers a per-subject NATS subscription. handler is invoked
// with the raw message payload on a nats.go-owned goroutine.
func (b *NATSBus) Subscribe(subject string, handler func(payload []byte)) (Subscription, error) {
	sub, err := b.conn.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Data)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", subject, err)
	}
	return &natsSubscription{sub: sub}, nil
}

// Close closes the underlying NATS connection without draining it.
func (b *NATSBus) Close() error {
	b.logger.Info("closing bus connection")
	b.conn.Close()
	return nil
}
