package bus

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a closed client
var ErrClosed = errors.New("bus client closed")

// Message is a single delivery from a topic
type Message struct {
	// ID is a transport assigned identifier, used for logging only
	ID string

	// Key is the routing key, e.g. "Source.availability_check"
	Key string

	// Data is the raw payload
	Data []byte

	ack func() error
}

// NewMessage creates a message whose Ack calls ack (nil means no-op)
func NewMessage(id, key string, data []byte, ack func() error) *Message {
	return &Message{ID: id, Key: key, Data: data, ack: ack}
}

// Ack acknowledges the delivery
func (m *Message) Ack() error {
	if m == nil || m.ack == nil {
		return nil
	}
	return m.ack()
}

// Handler processes one delivered message
type Handler func(ctx context.Context, msg *Message)

// Subscription identifies what a consumer listens to
type Subscription struct {
	// Topic is the topic (subject) name
	Topic string

	// Group is the consumer group; members of one group share deliveries
	Group string
}

// Client is the message bus surface the worker and the correlator need
type Client interface {
	// Subscribe delivers messages to handler one at a time and blocks until
	// ctx is cancelled or the client is closed.
	Subscribe(ctx context.Context, sub Subscription, handler Handler) error

	// Publish sends a message to topic
	Publish(ctx context.Context, topic string, msg *Message) error

	// Close releases the connection
	Close() error
}

// Opener opens a new, exclusively owned client connection
type Opener func(ctx context.Context) (Client, error)
