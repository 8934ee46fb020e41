package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/bus/memory"
	"github.com/cuemby/satellite-operations/pkg/inventory"
	"github.com/cuemby/satellite-operations/pkg/operations"
	"github.com/cuemby/satellite-operations/pkg/receptor"
	"github.com/cuemby/satellite-operations/pkg/storage"
	"github.com/cuemby/satellite-operations/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// environment is a controller and a Sources API backed by fixed data
type environment struct {
	controller *httptest.Server
	sources    *httptest.Server

	mu      sync.Mutex
	jobs    []string
	patches map[string]types.StatusUpdate
}

var (
	endpointNodes = map[string]string{"1": "node-1", "2": "node-2", "3": "node-3"}
	nodeStatuses  = map[string]string{"node-1": "connected", "node-2": "disconnected", "node-3": "connected"}
	nodeJobIDs    = map[string]string{"node-1": "abc", "node-3": "xyz"}
)

func newEnvironment(t *testing.T) *environment {
	env := &environment{patches: map[string]types.StatusUpdate{}}

	ctrl := http.NewServeMux()
	ctrl.HandleFunc("/connection/status", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			NodeID string `json:"node_id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": nodeStatuses[body.NodeID]})
	})
	ctrl.HandleFunc("/job", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Recipient string `json:"recipient"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		env.mu.Lock()
		env.jobs = append(env.jobs, body.Recipient)
		env.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]string{"id": nodeJobIDs[body.Recipient]})
	})
	env.controller = httptest.NewServer(ctrl)
	t.Cleanup(env.controller.Close)

	env.sources = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, inventory.DefaultBasePath)
		switch r.Method {
		case http.MethodGet:
			sourceID := strings.TrimSuffix(strings.TrimPrefix(path, "/sources/"), "/endpoints")
			fmt.Fprintf(w, `{"data":[{"id":"1%s","source_id":"%s","default":true,"receptor_node":"%s"}]}`,
				sourceID, sourceID, endpointNodes[sourceID])
		case http.MethodPatch:
			var update types.StatusUpdate
			_ = json.NewDecoder(r.Body).Decode(&update)
			env.mu.Lock()
			env.patches[path] = update
			env.mu.Unlock()
			w.WriteHeader(http.StatusOK)
		}
	}))
	t.Cleanup(env.sources.Close)

	return env
}

func (env *environment) patch(path string) (types.StatusUpdate, bool) {
	env.mu.Lock()
	defer env.mu.Unlock()
	u, ok := env.patches[path]
	return u, ok
}

func (env *environment) jobCount() int {
	env.mu.Lock()
	defer env.mu.Unlock()
	return len(env.jobs)
}

type harness struct {
	env       *environment
	broker    *memory.Broker
	publisher bus.Client
	receptor  *receptor.Client
	worker    *Worker
	store     *storage.BoltStore
	cancel    context.CancelFunc
	done      chan error
}

func startHarness(t *testing.T) *harness {
	t.Helper()
	env := newEnvironment(t)
	broker := memory.NewBroker()
	t.Cleanup(broker.Stop)

	rcfg := receptor.DefaultConfig()
	rcfg.Host = env.controller.URL
	rc := receptor.NewClient(rcfg, broker.Opener())

	icfg := inventory.DefaultConfig()
	icfg.Host = env.sources.URL

	store, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	dispatcher := operations.NewDispatcher(nil)
	operations.RegisterSource(dispatcher, operations.SourceDeps{
		Connect: func(account string) operations.NodeConnection {
			return receptor.NewConnection(account, rc)
		},
		Inventory: inventory.NewClient(icfg),
		Store:     store,
	})

	h := &harness{
		env:      env,
		broker:   broker,
		receptor: rc,
		worker:   NewWorker(Config{}, broker.Opener(), rc, dispatcher, store),
		store:    store,
		done:     make(chan error, 1),
	}

	h.publisher, err = broker.Opener()(context.Background())
	require.NoError(t, err)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	go func() { h.done <- h.worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return broker.SubscriberCount(DefaultOperationsTopic) == 1 &&
			broker.SubscriberCount(receptor.DefaultResponseTopic) == 1
	}, 2*time.Second, 5*time.Millisecond)

	return h
}

func (h *harness) stop(t *testing.T) {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func (h *harness) availabilityCheck(t *testing.T, sourceID string) {
	t.Helper()
	data := fmt.Sprintf(`{"params":{"source_id":%q,"source_uid":"1234-5678","source_ref":"9101112-13141516","external_tenant":"12345"}}`, sourceID)
	require.NoError(t, h.publisher.Publish(context.Background(), DefaultOperationsTopic,
		&bus.Message{Key: "Source.availability_check", Data: []byte(data)}))
}

func (h *harness) respond(t *testing.T, frame string) {
	t.Helper()
	require.NoError(t, h.publisher.Publish(context.Background(), receptor.DefaultResponseTopic,
		&bus.Message{Data: []byte(frame)}))
}

func TestWorkerAvailableSource(t *testing.T) {
	h := startHarness(t)
	defer h.stop(t)

	h.availabilityCheck(t, "1")
	require.Eventually(t, func() bool { return h.receptor.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, persisted := h.env.patch("/sources/1")
	assert.False(t, persisted, "nothing persisted before the response")

	h.respond(t, `{"in_response_to":"abc","code":0,"message_type":"response","payload":{"result":"ok","fifi_status":true,"message":"ready"}}`)
	h.respond(t, `{"in_response_to":"abc","code":0,"message_type":"eof","payload":""}`)

	require.Eventually(t, func() bool {
		_, ok := h.env.patch("/endpoints/11")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	source, _ := h.env.patch("/sources/1")
	assert.Equal(t, types.StatusAvailable, source.AvailabilityStatus)
	endpoint, _ := h.env.patch("/endpoints/11")
	assert.Equal(t, types.StatusAvailable, endpoint.AvailabilityStatus)

	require.Eventually(t, func() bool { return h.receptor.Pending() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestWorkerDisconnectedNode(t *testing.T) {
	h := startHarness(t)
	defer h.stop(t)

	h.availabilityCheck(t, "2")

	require.Eventually(t, func() bool {
		_, ok := h.env.patch("/endpoints/12")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	source, _ := h.env.patch("/sources/2")
	assert.Equal(t, types.StatusUnavailable, source.AvailabilityStatus)
	assert.Equal(t, types.ReasonReceptorNodeDisconnected.Message(), source.AvailabilityStatusError)
	assert.Zero(t, h.env.jobCount(), "no directive for a disconnected node")
}

func TestWorkerTimeout(t *testing.T) {
	h := startHarness(t)
	defer h.stop(t)

	h.availabilityCheck(t, "3")
	require.Eventually(t, func() bool { return h.receptor.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.respond(t, `{"in_response_to":"xyz","code":0,"message_type":"timeout"}`)

	require.Eventually(t, func() bool {
		_, ok := h.env.patch("/endpoints/13")
		return ok
	}, 2*time.Second, 5*time.Millisecond)

	source, _ := h.env.patch("/sources/3")
	assert.Equal(t, types.StatusUnavailable, source.AvailabilityStatus)
	assert.Equal(t, types.ReasonReceptorNotResponding.Message(), source.AvailabilityStatusError)
}

func TestWorkerShutdownAbandonsPending(t *testing.T) {
	h := startHarness(t)

	h.availabilityCheck(t, "1")
	require.Eventually(t, func() bool { return h.receptor.Pending() == 1 }, 2*time.Second, 5*time.Millisecond)

	h.stop(t)

	assert.Equal(t, 0, h.broker.SubscriberCount(DefaultOperationsTopic))
	assert.Equal(t, 0, h.broker.SubscriberCount(receptor.DefaultResponseTopic))
	_, persisted := h.env.patch("/sources/1")
	assert.False(t, persisted, "abandoned checks are never persisted")

	directives, err := h.store.ListDirectives()
	require.NoError(t, err)
	require.Len(t, directives, 1)

	// the next run clears what the previous one left behind
	h.worker.clearAbandonedDirectives()
	directives, err = h.store.ListDirectives()
	require.NoError(t, err)
	assert.Empty(t, directives)
}

func TestWorkerUnknownOperationIsAcked(t *testing.T) {
	h := startHarness(t)
	defer h.stop(t)

	require.NoError(t, h.publisher.Publish(context.Background(), DefaultOperationsTopic,
		&bus.Message{Key: "Source.refresh", Data: []byte(`{"params":{}}`)}))

	require.Eventually(t, func() bool { return h.broker.Acked() == 1 }, 2*time.Second, 5*time.Millisecond)
}
