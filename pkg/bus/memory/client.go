package memory

import (
	"context"
	"sync"

	"github.com/cuemby/satellite-operations/pkg/bus"
)

// Client is a connection to a Broker
type Client struct {
	broker *Broker

	closeOnce sync.Once
	stopCh    chan struct{}
}

var _ bus.Client = (*Client)(nil)

// Subscribe delivers messages sequentially until ctx is done or the client closes
func (c *Client) Subscribe(ctx context.Context, sub bus.Subscription, handler bus.Handler) error {
	select {
	case <-c.stopCh:
		return bus.ErrClosed
	default:
	}

	s := c.broker.subscribe(sub)
	defer c.broker.unsubscribe(sub.Topic, s)

	for {
		select {
		case msg := <-s.ch:
			handler(ctx, msg)
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		case <-c.broker.stopCh:
			return nil
		}
	}
}

// Publish sends msg to every consumer group on topic
func (c *Client) Publish(ctx context.Context, topic string, msg *bus.Message) error {
	select {
	case <-c.stopCh:
		return bus.ErrClosed
	default:
	}
	return c.broker.publish(ctx, topic, msg)
}

// Close closes the client; active subscriptions return
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.stopCh)
	})
	return nil
}
