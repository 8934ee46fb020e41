package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/google/uuid"
)

const subscriberBuffer = 50

// subscriber is one member of a consumer group
type subscriber struct {
	ch chan *bus.Message
}

// group round-robins deliveries across its members
type group struct {
	members []*subscriber
	next    int
}

// Broker is an in-memory topic broker with consumer group semantics
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[string]*group
	stopCh chan struct{}
	closed bool

	published atomic.Int64
	acked     atomic.Int64
}

// NewBroker creates a new in-memory broker
func NewBroker() *Broker {
	return &Broker{
		topics: make(map[string]map[string]*group),
		stopCh: make(chan struct{}),
	}
}

// Opener returns a bus.Opener whose clients all share this broker
func (b *Broker) Opener() bus.Opener {
	return func(ctx context.Context) (bus.Client, error) {
		return &Client{broker: b, stopCh: make(chan struct{})}, nil
	}
}

// Stop stops the broker and unblocks every subscriber
func (b *Broker) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.stopCh)
}

// Published returns the number of messages published
func (b *Broker) Published() int64 {
	return b.published.Load()
}

// Acked returns the number of messages acknowledged by consumers
func (b *Broker) Acked() int64 {
	return b.acked.Load()
}

// SubscriberCount returns the number of subscribers on topic
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := 0
	for _, g := range b.topics[topic] {
		count += len(g.members)
	}
	return count
}

func (b *Broker) subscribe(sub bus.Subscription) *subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	groups, ok := b.topics[sub.Topic]
	if !ok {
		groups = make(map[string]*group)
		b.topics[sub.Topic] = groups
	}

	name := sub.Group
	if name == "" {
		// Ungrouped subscribers each receive every message
		name = "_" + uuid.New().String()
	}
	g, ok := groups[name]
	if !ok {
		g = &group{}
		groups[name] = g
	}

	s := &subscriber{ch: make(chan *bus.Message, subscriberBuffer)}
	g.members = append(g.members, s)
	return s
}

func (b *Broker) unsubscribe(topic string, s *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for name, g := range b.topics[topic] {
		for i, m := range g.members {
			if m != s {
				continue
			}
			g.members = append(g.members[:i], g.members[i+1:]...)
			if len(g.members) == 0 {
				delete(b.topics[topic], name)
			} else if g.next >= len(g.members) {
				g.next = 0
			}
			return
		}
	}
}

// targets picks one member per group for the next delivery
func (b *Broker) targets(topic string) []*subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []*subscriber
	for _, g := range b.topics[topic] {
		if len(g.members) == 0 {
			continue
		}
		out = append(out, g.members[g.next%len(g.members)])
		g.next = (g.next + 1) % len(g.members)
	}
	return out
}

func (b *Broker) publish(ctx context.Context, topic string, msg *bus.Message) error {
	select {
	case <-b.stopCh:
		return bus.ErrClosed
	default:
	}

	id := msg.ID
	if id == "" {
		id = uuid.New().String()
	}
	b.published.Add(1)

	for _, s := range b.targets(topic) {
		delivery := bus.NewMessage(id, msg.Key, msg.Data, func() error {
			b.acked.Add(1)
			return nil
		})
		select {
		case s.ch <- delivery:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.stopCh:
			return bus.ErrClosed
		}
	}
	return nil
}
