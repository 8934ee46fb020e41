package natsbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	// Header carrying the routing key ("Model.method")
	headerKey = "X-Message-Key"
	// Header carrying the publisher assigned message id
	headerID = "X-Message-Id"

	deliveryBuffer = 64
)

// Config holds the NATS connection settings
type Config struct {
	URL           string
	Name          string
	ReconnectWait time.Duration
	MaxReconnects int
}

// Client is a bus.Client backed by a NATS connection
type Client struct {
	conn *nats.Conn

	closeOnce sync.Once
}

var _ bus.Client = (*Client)(nil)

// Opener returns a bus.Opener that dials a fresh connection on every call
func Opener(cfg Config) bus.Opener {
	return func(ctx context.Context) (bus.Client, error) {
		return Connect(cfg)
	}
}

// Connect dials NATS
func Connect(cfg Config) (*Client, error) {
	name := cfg.Name
	if name == "" {
		name = "satellite-operations-" + uuid.New().String()
	}
	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	logger := log.WithComponent("natsbus")
	conn, err := nats.Connect(cfg.URL,
		nats.Name(name),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("Disconnected from NATS")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("Reconnected to NATS")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", cfg.URL, err)
	}

	return &Client{conn: conn}, nil
}

// Subscribe joins the queue group and delivers messages until ctx is done
func (c *Client) Subscribe(ctx context.Context, sub bus.Subscription, handler bus.Handler) error {
	if c.conn.IsClosed() {
		return bus.ErrClosed
	}

	ch := make(chan *nats.Msg, deliveryBuffer)
	var (
		s   *nats.Subscription
		err error
	)
	if sub.Group != "" {
		s, err = c.conn.ChanQueueSubscribe(sub.Topic, sub.Group, ch)
	} else {
		s, err = c.conn.ChanSubscribe(sub.Topic, ch)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", sub.Topic, err)
	}
	defer func() {
		_ = s.Unsubscribe()
	}()

	closed := c.conn.StatusChanged(nats.CLOSED)

	for {
		select {
		case m := <-ch:
			handler(ctx, toMessage(m))
		case <-ctx.Done():
			return nil
		case <-closed:
			return nil
		}
	}
}

// Publish sends msg on topic with its key and id carried in headers
func (c *Client) Publish(ctx context.Context, topic string, msg *bus.Message) error {
	if c.conn.IsClosed() {
		return bus.ErrClosed
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}

	m := nats.NewMsg(topic)
	m.Data = msg.Data
	m.Header.Set(headerID, id)
	if msg.Key != "" {
		m.Header.Set(headerKey, msg.Key)
	}

	if err := c.conn.PublishMsg(m); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return c.conn.FlushWithContext(ctx)
}

// Close drains and closes the connection
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		err = c.conn.Drain()
		if err != nil {
			c.conn.Close()
		}
	})
	return err
}

// toMessage converts a NATS delivery. Core NATS has no acknowledgement, so
// Ack only applies to JetStream deliveries.
func toMessage(m *nats.Msg) *bus.Message {
	var id, key string
	if m.Header != nil {
		id = m.Header.Get(headerID)
		key = m.Header.Get(headerKey)
	}
	return bus.NewMessage(id, key, m.Data, func() error {
		if m.Reply == "" {
			return nil
		}
		if _, err := m.Metadata(); err != nil {
			// not a JetStream delivery
			return nil
		}
		return m.Ack()
	})
}
