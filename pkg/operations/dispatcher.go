package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/rs/zerolog"
)

// Status is the outcome of processing one operation
type Status string

const (
	StatusSuccess        Status = metrics.StatusSuccess
	StatusError          Status = metrics.StatusError
	StatusNotImplemented Status = metrics.StatusNotImplemented
	StatusSkipped        Status = metrics.StatusSkipped
)

// unroutedOperation labels metrics for messages with no registered handler
const unroutedOperation = "unrouted"

var (
	// ErrNotImplemented is returned by handlers that do not support an operation
	ErrNotImplemented = errors.New("operation not implemented")

	// ErrInvalidRoute is returned when registering an empty model or method
	ErrInvalidRoute = errors.New("invalid route")

	// ErrDuplicateRoute is returned when a route is registered twice
	ErrDuplicateRoute = errors.New("route already registered")

	// ErrMissingParam is returned when a required parameter is absent
	ErrMissingParam = errors.New("missing required parameter")
)

// Request is one decoded operation
type Request struct {
	Model          string
	Method         string
	MessageID      string
	Params         Params
	RequestContext json.RawMessage
}

// Operation returns "Model.method"
func (r *Request) Operation() string {
	return r.Model + "." + r.Method
}

// HandlerFunc processes one operation. A nil error with an empty status is
// success.
type HandlerFunc func(ctx context.Context, req *Request) (Status, error)

// Toucher records liveness after each processed message
type Toucher interface {
	Touch()
}

type payload struct {
	Params         Params          `json:"params"`
	RequestContext json.RawMessage `json:"request_context"`
}

// Dispatcher routes operations to handlers by "Model.method"
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	liveness Toucher
	logger   zerolog.Logger
}

// NewDispatcher creates an empty dispatcher. liveness may be nil.
func NewDispatcher(liveness Toucher) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		liveness: liveness,
		logger:   log.WithComponent("dispatcher"),
	}
}

// Register adds a handler for model.method
func (d *Dispatcher) Register(model, method string, h HandlerFunc) error {
	if model == "" || method == "" || strings.Contains(model, ".") || h == nil {
		return fmt.Errorf("%w: %q.%q", ErrInvalidRoute, model, method)
	}

	key := model + "." + method
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.handlers[key]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateRoute, key)
	}
	d.handlers[key] = h
	d.logger.Debug().Str("operation", key).Msg("Registered operation handler")
	return nil
}

// MustRegister is Register that panics on error, for startup wiring
func (d *Dispatcher) MustRegister(model, method string, h HandlerFunc) {
	if err := d.Register(model, method, h); err != nil {
		panic(err)
	}
}

// Routes returns the registered "Model.method" keys, sorted
func (d *Dispatcher) Routes() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	routes := make([]string, 0, len(d.handlers))
	for key := range d.handlers {
		routes = append(routes, key)
	}
	sort.Strings(routes)
	return routes
}

// ParseRoutingKey splits a routing key on its first "."
func ParseRoutingKey(key string) (model, method string, ok bool) {
	model, method, ok = strings.Cut(key, ".")
	if !ok || model == "" || method == "" {
		return "", "", false
	}
	return model, method, true
}

// Process handles one bus message. It never panics; the message is always
// acknowledged and liveness is always recorded.
func (d *Dispatcher) Process(ctx context.Context, msg *bus.Message) (status Status) {
	timer := metrics.NewTimer()
	operation := unroutedOperation
	logger := log.WithOperation(msg.Key).With().Str("component", "dispatcher").Str("bus_message_id", msg.ID).Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Operation panicked")
			status = StatusError
		}

		if err := msg.Ack(); err != nil {
			logger.Warn().Err(err).Msg("Failed to ack operation message")
		}
		if d.liveness != nil {
			d.liveness.Touch()
		}
		metrics.RecordOperation(operation, string(status))
		timer.ObserveDurationVec(metrics.OperationDuration, operation)
	}()

	model, method, ok := ParseRoutingKey(msg.Key)
	if !ok {
		logger.Warn().Msg("Invalid routing key, expected Model.method")
		return StatusNotImplemented
	}

	var body payload
	if len(msg.Data) > 0 {
		if err := json.Unmarshal(msg.Data, &body); err != nil {
			logger.Error().Err(err).Str("payload", string(msg.Data)).Msg("Failed to decode operation payload")
			return StatusError
		}
	}

	req := &Request{
		Model:          model,
		Method:         method,
		MessageID:      msg.ID,
		Params:         body.Params,
		RequestContext: body.RequestContext,
	}

	d.mu.RLock()
	h, found := d.handlers[req.Operation()]
	d.mu.RUnlock()

	progress := fmt.Sprintf("Processing %s#%s [%s]...", model, method, req.Params)
	logger.Info().Msg(progress)

	if !found {
		logger.Warn().Msg(progress + "Not Implemented!")
		return StatusNotImplemented
	}
	operation = req.Operation()

	status, err := h(ctx, req)
	switch {
	case errors.Is(err, ErrNotImplemented):
		logger.Warn().Msg(progress + "Not Implemented!")
		return StatusNotImplemented
	case err != nil:
		logger.Error().Err(err).Msg(progress + "Failed")
		return StatusError
	}
	if status == "" {
		status = StatusSuccess
	}

	logger.Info().Str("status", string(status)).Msg(progress + "Complete")
	return status
}
