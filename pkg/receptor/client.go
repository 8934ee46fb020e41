package receptor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/identity"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/cuemby/satellite-operations/pkg/types"
	"github.com/rs/zerolog"
)

// Request endpoint labels
const (
	endpointStatus = "connection_status"
	endpointJob    = "job"
)

// maxErrorBody limits how much of a failed response body is kept
const maxErrorBody = 4096

var (
	// ErrNoMessageID is returned when the controller accepts a directive without an id
	ErrNoMessageID = errors.New("receptor controller returned no message id")

	// ErrNotStarted is returned by SendDirective before Start
	ErrNotStarted = errors.New("receptor client not started")
)

// HTTPError is a non-2xx response from the controller
type HTTPError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("receptor controller %s returned %d: %s", e.URL, e.StatusCode, e.Body)
}

// Directive is one job sent to a receptor node
type Directive struct {
	Account string
	NodeID  string
	Name    string
	Payload interface{}
}

type statusRequest struct {
	Account string `json:"account"`
	NodeID  string `json:"node_id"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type jobRequest struct {
	Account   string      `json:"account"`
	Recipient string      `json:"recipient"`
	Payload   interface{} `json:"payload"`
	Directive string      `json:"directive"`
}

type jobResponse struct {
	ID string `json:"id"`
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithIdentity replaces the identity header builder
func WithIdentity(fn identity.Func) Option {
	return func(c *Client) {
		c.identity = fn
	}
}

// Client talks to the receptor controller and owns the process's single
// response correlator
type Client struct {
	cfg      Config
	open     bus.Opener
	http     *http.Client
	identity identity.Func
	logger   zerolog.Logger

	mu         sync.Mutex
	correlator *correlator.Correlator
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewClient creates a controller client. open is used by the response
// listener for its own bus connection.
func NewClient(cfg Config, open bus.Opener, opts ...Option) *Client {
	cfg = cfg.Normalize()
	c := &Client{
		cfg:      cfg,
		open:     open,
		http:     &http.Client{Timeout: cfg.Timeout},
		identity: identity.Header,
		logger:   log.WithComponent("receptor"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Config returns the normalised configuration
func (c *Client) Config() Config {
	return c.cfg
}

// Start creates the correlator and its listener goroutine. Calls after the
// first return the running correlator.
func (c *Client) Start(ctx context.Context) *correlator.Correlator {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.correlator != nil {
		return c.correlator
	}

	c.correlator = correlator.New(correlator.Config{
		Topic:        c.cfg.ResponseTopic,
		Group:        c.cfg.ResponseGroup,
		RemoteErrors: c.cfg.RemoteErrors,
	}, c.open)

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})

	metrics.RegisterComponent("correlator", true, "listening")
	go c.listen(runCtx, c.correlator, c.done)

	return c.correlator
}

// listen keeps the correlator running until ctx is cancelled
func (c *Client) listen(ctx context.Context, corr *correlator.Correlator, done chan struct{}) {
	defer close(done)

	for {
		err := corr.Run(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.logger.Error().Err(err).Dur("retry_in", c.cfg.RetryInterval).Msg("Receptor response listener failed")
			metrics.UpdateComponent("correlator", false, err.Error())
		} else {
			c.logger.Warn().Dur("retry_in", c.cfg.RetryInterval).Msg("Receptor response listener stopped unexpectedly")
			metrics.UpdateComponent("correlator", false, "subscription closed")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryInterval):
			metrics.UpdateComponent("correlator", true, "listening")
		}
	}
}

// Stop cancels the listener and waits for it to exit. Pending requests are
// abandoned.
func (c *Client) Stop() {
	c.mu.Lock()
	cancel, done := c.cancel, c.done
	c.correlator, c.cancel, c.done = nil, nil, nil
	c.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	metrics.UpdateComponent("correlator", false, "stopped")
}

// Pending returns the number of directives awaiting a terminal frame
func (c *Client) Pending() int {
	c.mu.Lock()
	corr := c.correlator
	c.mu.Unlock()

	if corr == nil {
		return 0
	}
	return corr.Pending()
}

// Status asks the controller whether nodeID is connected for account
func (c *Client) Status(ctx context.Context, account, nodeID string) (types.NodeStatus, error) {
	var resp statusResponse
	if err := c.post(ctx, endpointStatus, c.cfg.ConnectionStatusURL(), account, statusRequest{
		Account: account,
		NodeID:  nodeID,
	}, &resp); err != nil {
		return types.NodeUnknown, err
	}
	return types.ParseNodeStatus(resp.Status), nil
}

// SendDirective posts a directive and registers cb for its responses. The
// registration is complete before SendDirective returns.
func (c *Client) SendDirective(ctx context.Context, d Directive, cb correlator.Callback) (string, error) {
	c.mu.Lock()
	corr := c.correlator
	c.mu.Unlock()

	if corr == nil {
		return "", ErrNotStarted
	}

	var resp jobResponse
	if err := c.post(ctx, endpointJob, c.cfg.JobURL(), d.Account, jobRequest{
		Account:   d.Account,
		Recipient: d.NodeID,
		Payload:   d.Payload,
		Directive: d.Name,
	}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", ErrNoMessageID
	}

	if err := corr.Register(resp.ID, cb); err != nil {
		return "", fmt.Errorf("failed to register directive %s: %w", resp.ID, err)
	}

	c.logger.Debug().
		Str("message_id", resp.ID).
		Str("directive", d.Name).
		Str("node_id", d.NodeID).
		Msg("Directive sent")
	return resp.ID, nil
}

// post sends body as JSON and decodes the response into out
func (c *Client) post(ctx context.Context, endpoint, url, account string, body, out interface{}) (err error) {
	timer := metrics.NewTimer()
	status := "error"
	defer func() {
		timer.ObserveDurationVec(metrics.ReceptorRequestDuration, endpoint)
		metrics.ReceptorRequestsTotal.WithLabelValues(endpoint, status).Inc()
	}()

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	header, err := c.identity(account)
	if err != nil {
		return err
	}
	req.Header.Set(identity.HeaderName, header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{URL: url, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		status = "invalid_body"
		return fmt.Errorf("failed to decode response from %s: %w", url, err)
	}
	return nil
}
