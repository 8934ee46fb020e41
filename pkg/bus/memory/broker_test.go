package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func subscribeAsync(t *testing.T, b *Broker, sub bus.Subscription, handler bus.Handler) (context.CancelFunc, <-chan error) {
	t.Helper()

	client, err := b.Opener()(context.Background())
	require.NoError(t, err)

	before := b.SubscriberCount(sub.Topic)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- client.Subscribe(ctx, sub, handler)
	}()

	require.Eventually(t, func() bool {
		return b.SubscriberCount(sub.Topic) == before+1
	}, time.Second, 5*time.Millisecond)

	return cancel, done
}

func TestPublishDelivers(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	received := make(chan *bus.Message, 1)
	cancel, done := subscribeAsync(t, b, bus.Subscription{Topic: "ops", Group: "workers"}, func(ctx context.Context, msg *bus.Message) {
		received <- msg
	})

	client, _ := b.Opener()(context.Background())
	err := client.Publish(context.Background(), "ops", &bus.Message{Key: "Source.availability_check", Data: []byte(`{}`)})
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "Source.availability_check", msg.Key)
		assert.NotEmpty(t, msg.ID)
		require.NoError(t, msg.Ack())
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}

	assert.Equal(t, int64(1), b.Published())
	assert.Equal(t, int64(1), b.Acked())

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 0, b.SubscriberCount("ops"))
}

func TestGroupSharesDeliveries(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	var mu sync.Mutex
	counts := make(map[string]int)
	handler := func(name string) bus.Handler {
		return func(ctx context.Context, msg *bus.Message) {
			mu.Lock()
			counts[name]++
			mu.Unlock()
		}
	}

	sub := bus.Subscription{Topic: "ops", Group: "workers"}
	cancelA, _ := subscribeAsync(t, b, sub, handler("a"))
	defer cancelA()
	cancelB, _ := subscribeAsync(t, b, sub, handler("b"))
	defer cancelB()

	client, _ := b.Opener()(context.Background())
	for i := 0; i < 4; i++ {
		require.NoError(t, client.Publish(context.Background(), "ops", &bus.Message{Data: []byte("x")}))
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return counts["a"]+counts["b"] == 4
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, counts["a"])
	assert.Equal(t, 2, counts["b"])
}

func TestUngroupedSubscribersEachReceive(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	first := make(chan struct{}, 1)
	second := make(chan struct{}, 1)
	cancelA, _ := subscribeAsync(t, b, bus.Subscription{Topic: "responses"}, func(ctx context.Context, msg *bus.Message) { first <- struct{}{} })
	defer cancelA()
	cancelB, _ := subscribeAsync(t, b, bus.Subscription{Topic: "responses"}, func(ctx context.Context, msg *bus.Message) { second <- struct{}{} })
	defer cancelB()

	client, _ := b.Opener()(context.Background())
	require.NoError(t, client.Publish(context.Background(), "responses", &bus.Message{Data: []byte("x")}))

	for _, ch := range []chan struct{}{first, second} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive message")
		}
	}
}

func TestClosedClient(t *testing.T) {
	b := NewBroker()
	defer b.Stop()

	client, _ := b.Opener()(context.Background())
	require.NoError(t, client.Close())
	require.NoError(t, client.Close())

	err := client.Publish(context.Background(), "ops", &bus.Message{})
	assert.ErrorIs(t, err, bus.ErrClosed)

	err = client.Subscribe(context.Background(), bus.Subscription{Topic: "ops"}, func(context.Context, *bus.Message) {})
	assert.ErrorIs(t, err, bus.ErrClosed)
}

func TestStopUnblocksSubscribers(t *testing.T) {
	b := NewBroker()

	_, done := subscribeAsync(t, b, bus.Subscription{Topic: "ops"}, func(context.Context, *bus.Message) {})
	b.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return after Stop")
	}
}
