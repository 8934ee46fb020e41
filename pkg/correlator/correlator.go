package correlator

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/rs/zerolog"
)

// Policy decides what happens to frames with a non-zero code
type Policy string

const (
	// DropRemoteErrors logs and drops frames with a non-zero code
	DropRemoteErrors Policy = "drop"
	// RouteRemoteErrors delivers non-zero codes for known IDs to OnError and retires them
	RouteRemoteErrors Policy = "route"
)

// Frame handling results, used as the "result" metric label
const (
	resultDispatched  = "dispatched"
	resultRetired     = "retired"
	resultUnknown     = "unknown_id"
	resultRemoteError = "remote_error"
	resultMalformed   = "malformed"
	resultMissingID   = "missing_id"
	resultPanic       = "callback_panic"
)

// Config holds correlator configuration
type Config struct {
	// Topic is the response topic published by the receptor controller
	Topic string

	// Group is the consumer group; empty means every process sees every frame
	Group string

	// RemoteErrors is the policy for frames with a non-zero code
	RemoteErrors Policy
}

// Correlator consumes the response topic and dispatches frames to the
// callbacks registered for their message IDs
type Correlator struct {
	cfg      Config
	open     bus.Opener
	registry *Registry
	logger   zerolog.Logger
}

// New creates a new correlator; Run starts listening
func New(cfg Config, open bus.Opener) *Correlator {
	if cfg.RemoteErrors == "" {
		cfg.RemoteErrors = DropRemoteErrors
	}
	return &Correlator{
		cfg:      cfg,
		open:     open,
		registry: NewRegistry(),
		logger:   log.WithComponent("correlator"),
	}
}

// Register records that a response for messageID should be delivered to cb
func (c *Correlator) Register(messageID string, cb Callback) error {
	if err := c.registry.Register(messageID, cb); err != nil {
		return err
	}
	metrics.ReceptorPendingRequests.Set(float64(c.registry.Len()))
	return nil
}

// Pending returns the number of in-flight requests
func (c *Correlator) Pending() int {
	return c.registry.Len()
}

// Registry exposes the underlying registry
func (c *Correlator) Registry() *Registry {
	return c.registry
}

// Run opens a dedicated bus connection and processes frames until ctx is
// cancelled. Pending requests left at return are abandoned.
func (c *Correlator) Run(ctx context.Context) error {
	client, err := c.open(ctx)
	if err != nil {
		return fmt.Errorf("failed to open response topic connection: %w", err)
	}
	defer client.Close()

	c.logger.Info().
		Str("topic", c.cfg.Topic).
		Str("group", c.cfg.Group).
		Msg("Receptor response worker started")

	err = client.Subscribe(ctx, bus.Subscription{Topic: c.cfg.Topic, Group: c.cfg.Group}, func(ctx context.Context, msg *bus.Message) {
		c.HandleMessage(ctx, msg.Data)
		if err := msg.Ack(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to ack response frame")
		}
	})
	if err != nil {
		return fmt.Errorf("response topic subscription failed: %w", err)
	}

	if pending := c.registry.Len(); pending > 0 {
		c.logger.Warn().
			Int("pending", pending).
			Strs("message_ids", c.registry.IDs()).
			Msg("Receptor response worker stopped with directives still pending")
	} else {
		c.logger.Info().Msg("Receptor response worker stopped")
	}
	return nil
}

// HandleMessage processes one raw frame. It never panics.
func (c *Correlator) HandleMessage(ctx context.Context, data []byte) {
	frame, err := ParseFrame(data)
	if err != nil {
		if errors.Is(err, ErrMissingMessageID) {
			c.logger.Error().Str("frame", string(data)).Msg("Message id (in_response_to) not received")
			c.count(frame.MessageType, resultMissingID)
			return
		}
		c.logger.Error().Err(err).Str("frame", string(data)).Msg("Failed to parse response frame")
		c.count("", resultMalformed)
		return
	}

	logger := c.logger.With().
		Str("message_id", frame.InResponseTo).
		Str("message_type", string(frame.MessageType)).
		Logger()

	if frame.Code != 0 {
		if c.cfg.RemoteErrors == RouteRemoteErrors {
			if req, ok := c.take(frame.InResponseTo); ok {
				logger.Warn().Int("code", frame.Code).Str("sender", frame.Sender).Msg("Directive failed in receptor node")
				c.invoke(logger, func() {
					req.Callback.OnError(ctx, frame.InResponseTo, frame.Code, frame.Payload)
				})
				c.count(frame.MessageType, resultRetired)
				return
			}
		}
		logger.Error().
			Int("code", frame.Code).
			Str("sender", frame.Sender).
			Str("payload", string(frame.Payload)).
			Msg("Directive failed in receptor node")
		c.count(frame.MessageType, resultRemoteError)
		return
	}

	req, ok := c.registry.Resolve(frame.InResponseTo)
	if !ok {
		logger.Warn().Str("frame", string(data)).Msg("Received unknown receptor message id")
		c.count(frame.MessageType, resultUnknown)
		return
	}

	result := resultDispatched
	if frame.MessageType.Terminal() {
		// Retire before invoking so a slow callback cannot see a second terminal frame
		if _, ok := c.take(frame.InResponseTo); !ok {
			logger.Warn().Msg("Registration retired concurrently, dropping frame")
			c.count(frame.MessageType, resultUnknown)
			return
		}
		result = resultRetired
	}

	ok = c.invoke(logger, func() {
		switch frame.MessageType {
		case KindError:
			req.Callback.OnError(ctx, frame.InResponseTo, frame.Code, frame.Payload)
		case KindTimeout:
			req.Callback.OnTimeout(ctx, frame.InResponseTo)
		default:
			req.Callback.OnResponse(ctx, frame.InResponseTo, frame.MessageType, frame.Payload)
		}
	})
	if !ok {
		result = resultPanic
	}
	c.count(frame.MessageType, result)
}

// take resolves and retires messageID in one step
func (c *Correlator) take(messageID string) (*PendingRequest, bool) {
	req, ok := c.registry.Resolve(messageID)
	if !ok || !c.registry.Retire(messageID) {
		return nil, false
	}
	metrics.ReceptorPendingRequests.Set(float64(c.registry.Len()))
	return req, true
}

// invoke runs a callback, recovering from panics
func (c *Correlator) invoke(logger zerolog.Logger, fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Interface("panic", r).
				Str("stack", string(debug.Stack())).
				Msg("Receptor callback panicked")
			ok = false
		}
	}()
	fn()
	return true
}

func (c *Correlator) count(kind Kind, result string) {
	if kind == "" {
		kind = "unknown"
	}
	metrics.ReceptorFramesTotal.WithLabelValues(string(kind), result).Inc()
}
