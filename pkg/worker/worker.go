package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/cuemby/satellite-operations/pkg/operations"
	"github.com/cuemby/satellite-operations/pkg/storage"
	"github.com/rs/zerolog"
)

// Defaults for the operations topic
const (
	DefaultOperationsTopic = "platform.topological-inventory.operations-satellite"
	DefaultGroup           = "topological-inventory-operations-satellite"
)

// Receptor is the lifecycle of the process's receptor client
type Receptor interface {
	Start(ctx context.Context) *correlator.Correlator
	Stop()
}

// Config holds worker configuration
type Config struct {
	OperationsTopic string
	Group           string
}

// Worker consumes the operations topic and feeds each message to the dispatcher
type Worker struct {
	cfg        Config
	open       bus.Opener
	receptor   Receptor
	dispatcher *operations.Dispatcher
	store      storage.Store
	logger     zerolog.Logger
}

// NewWorker creates a worker. store may be nil.
func NewWorker(cfg Config, open bus.Opener, receptor Receptor, dispatcher *operations.Dispatcher, store storage.Store) *Worker {
	if cfg.OperationsTopic == "" {
		cfg.OperationsTopic = DefaultOperationsTopic
	}
	if cfg.Group == "" {
		cfg.Group = DefaultGroup
	}
	return &Worker{
		cfg:        cfg,
		open:       open,
		receptor:   receptor,
		dispatcher: dispatcher,
		store:      store,
		logger:     log.WithComponent("worker"),
	}
}

// Run processes operations until ctx is cancelled. On return the
// subscription has stopped, the receptor listener has been joined and the bus
// connection is closed. Directives still pending are abandoned.
func (w *Worker) Run(ctx context.Context) error {
	w.clearAbandonedDirectives()

	client, err := w.open(ctx)
	if err != nil {
		metrics.RegisterComponent("bus", false, err.Error())
		return fmt.Errorf("failed to connect to operations topic: %w", err)
	}
	metrics.RegisterComponent("bus", true, "connected")

	// The listener outlives ctx so it stops after the subscription
	w.receptor.Start(context.WithoutCancel(ctx))

	w.logger.Info().
		Str("topic", w.cfg.OperationsTopic).
		Str("group", w.cfg.Group).
		Strs("routes", w.dispatcher.Routes()).
		Msg("Satellite Operations worker started")

	err = client.Subscribe(ctx, bus.Subscription{Topic: w.cfg.OperationsTopic, Group: w.cfg.Group}, func(ctx context.Context, msg *bus.Message) {
		w.dispatcher.Process(ctx, msg)
	})

	w.logger.Info().Msg("Stopping Satellite Operations worker")
	w.receptor.Stop()
	if cerr := client.Close(); cerr != nil {
		w.logger.Warn().Err(cerr).Msg("Failed to close bus connection")
	}
	metrics.UpdateComponent("bus", false, "closed")

	if err != nil && !errors.Is(err, bus.ErrClosed) {
		return fmt.Errorf("operations subscription failed: %w", err)
	}
	return nil
}

// clearAbandonedDirectives drops directives left pending by a previous run.
// Their responses went to a correlator that no longer exists.
func (w *Worker) clearAbandonedDirectives() {
	if w.store == nil {
		return
	}

	directives, err := w.store.ListDirectives()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to list pending directives")
		return
	}
	for _, d := range directives {
		w.logger.Warn().
			Str("source_id", d.SourceID).
			Str("message_id", d.MessageID).
			Time("sent_at", d.CheckedAt).
			Msg("Abandoned availability check directive from previous run")
		if err := w.store.DeleteDirective(d.MessageID); err != nil {
			w.logger.Warn().Err(err).Str("message_id", d.MessageID).Msg("Failed to clear pending directive")
		}
	}
}
