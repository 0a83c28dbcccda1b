// ABOUTME: Bus interface abstracting the pub/sub broker used for group-channel traffic
// ABOUTME: Concrete implementations live in nats.go (production) and memory.go (tests)

package bus

import "context"

// Subscription is a live subject subscription. Unsubscribe is idempotent.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the publish/subscribe contract the Dispatch Loop and Subscription
// Registry depend on. Subjects are opaque strings produced by the subject
// codec; payloads are pre-serialized bytes (UTF-8 JSON in production).
type Bus interface {
	// Publish sends payload to subject. It blocks until the broker accepts
	// the message.
	Publish(ctx context.Context, subject string, payload []byte) error

	// Subscribe registers handler to be invoked for every message received
	// on subject. handler must not block for long; NATSBus calls it on a
	// broker-owned goroutine, MemoryBus synchronously on the publishing
	// goroutine.
	Subscribe(subject string, handler func(payload []byte)) (Subscription, error)

	// Close releases any resources held by the bus.
	Close() error
}
