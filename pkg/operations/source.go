package operations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/identity"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/cuemby/satellite-operations/pkg/storage"
	"github.com/cuemby/satellite-operations/pkg/types"
	"github.com/rs/zerolog"
)

// Source operation names
const (
	SourceModel              = "Source"
	AvailabilityCheckMethod  = "availability_check"
	opAvailabilityResponse   = "Source.availability_check_response"
	opAvailabilityError      = "Source.availability_check_error"
	opAvailabilityTimeout    = "Source.availability_check_timeout"
	resultNotReady           = "not_ready"
	resultRemoteError        = "remote_error"
	defaultRemoteErrorFormat = "Receptor directive failed with code %d"
)

// NodeConnection is a receptor connection bound to one tenant account
type NodeConnection interface {
	Status(ctx context.Context, nodeID string) (types.NodeStatus, error)
	SendAvailabilityCheck(ctx context.Context, sourceRef, nodeID string, cb correlator.Callback) (string, error)
}

// Connector returns the receptor connection for an account
type Connector func(account string) NodeConnection

// Inventory reads endpoints from and writes availability to the Sources API
type Inventory interface {
	DefaultEndpoint(ctx context.Context, tenant, sourceID string) (*types.Endpoint, error)
	UpdateSource(ctx context.Context, tenant, sourceID string, update types.StatusUpdate) error
	UpdateEndpoint(ctx context.Context, tenant, endpointID string, update types.StatusUpdate) error
}

// SourceDeps are the collaborators shared by every Source check
type SourceDeps struct {
	Connect   Connector
	Inventory Inventory

	// Store keeps check history; nil disables the recency window
	Store storage.Store
	// CheckWindow skips a check when the Source was checked more recently; 0 disables
	CheckWindow time.Duration

	// Now defaults to time.Now
	Now func() time.Time
}

func (d SourceDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// RegisterSource registers the Source operations with the dispatcher
func RegisterSource(d *Dispatcher, deps SourceDeps) {
	d.MustRegister(SourceModel, AvailabilityCheckMethod, func(ctx context.Context, req *Request) (Status, error) {
		return NewSource(deps, req).AvailabilityCheck(ctx)
	})
}

// Source checks the availability of one Source. It is the correlator.Callback
// for the health check directive it sends, so one Source value lives until
// that directive resolves.
type Source struct {
	deps   SourceDeps
	req    types.CheckRequest
	logger zerolog.Logger

	mu        sync.Mutex
	state     types.CheckState
	endpoint  *types.Endpoint
	messageID string
}

var _ correlator.Callback = (*Source)(nil)

// NewSource creates a check for the Source named by req's params
func NewSource(deps SourceDeps, req *Request) *Source {
	params := req.Params
	check := types.CheckRequest{
		SourceID:       params.Get("source_id"),
		SourceUID:      params.Get("source_uid"),
		SourceRef:      params.Get("source_ref"),
		ExternalTenant: params.Get("external_tenant"),
	}
	if check.ExternalTenant == "" {
		check.ExternalTenant = tenantFromContext(req.RequestContext)
	}

	return &Source{
		deps:   deps,
		req:    check,
		logger: log.WithSourceID(check.SourceID).With().Str("component", "source").Logger(),
		state:  types.CheckNotStarted,
	}
}

// tenantFromContext reads the account from an x-rh-identity request context
func tenantFromContext(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var headers map[string]string
	if err := json.Unmarshal(raw, &headers); err != nil {
		return ""
	}
	header, ok := headers[identity.HeaderName]
	if !ok {
		return ""
	}
	account, err := identity.Decode(header)
	if err != nil {
		return ""
	}
	return account
}

// Request returns the check parameters
func (s *Source) Request() types.CheckRequest {
	return s.req
}

// State returns the current check state
func (s *Source) State() types.CheckState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// MessageID returns the directive's message ID once sent
func (s *Source) MessageID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.messageID
}

func (s *Source) setState(state types.CheckState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != types.CheckResolved {
		s.state = state
	}
}

// AvailabilityCheck runs the synchronous part of the check. When a directive
// is sent it returns without persisting; one of the callbacks resolves it.
func (s *Source) AvailabilityCheck(ctx context.Context) (Status, error) {
	s.setState(types.CheckValidating)

	if err := s.validate(); err != nil {
		s.logger.Error().Err(err).Msg("Invalid availability_check request")
		return StatusError, err
	}

	if s.checkedRecently() {
		return StatusSkipped, nil
	}

	s.setState(types.CheckCheckingNetwork)

	endpoint, err := s.deps.Inventory.DefaultEndpoint(ctx, s.req.ExternalTenant, s.req.SourceID)
	if err != nil {
		return StatusError, fmt.Errorf("failed to look up endpoint for source %s: %w", s.req.SourceID, err)
	}
	if endpoint == nil {
		s.unavailable(ctx, types.ReasonEndpointNotFound)
		return StatusSuccess, nil
	}

	s.mu.Lock()
	s.endpoint = endpoint
	s.mu.Unlock()

	if endpoint.ReceptorNode == "" {
		s.unavailable(ctx, types.ReasonReceptorNodeNotDefined)
		return StatusSuccess, nil
	}

	conn := s.deps.Connect(s.req.ExternalTenant)
	logger := s.logger.With().Str("receptor_node", endpoint.ReceptorNode).Logger()

	nodeStatus, err := conn.Status(ctx, endpoint.ReceptorNode)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to query receptor node status")
		s.unavailable(ctx, types.ReasonReceptorNodeDisconnected)
		return StatusSuccess, nil
	}
	if nodeStatus != types.NodeConnected {
		logger.Info().Str("node_status", string(nodeStatus)).Msg("Receptor node is not connected")
		s.unavailable(ctx, types.ReasonReceptorNodeDisconnected)
		return StatusSuccess, nil
	}

	messageID, err := conn.SendAvailabilityCheck(ctx, s.req.SourceRef, endpoint.ReceptorNode, s)
	if err != nil || messageID == "" {
		logger.Error().Err(err).Msg("Failed to send availability check directive")
		s.unavailable(ctx, types.ReasonReceptorNetworkUnreachable)
		return StatusSuccess, nil
	}

	s.directiveSent(messageID, logger)
	return StatusSuccess, nil
}

func (s *Source) validate() error {
	if s.req.SourceID == "" {
		return fmt.Errorf("%w: source_id", ErrMissingParam)
	}
	if s.req.SourceRef == "" {
		return fmt.Errorf("%w: source_ref", ErrMissingParam)
	}
	return nil
}

// checkedRecently reports whether the Source was resolved, or has a directive
// in flight, within the check window. Attempts that persisted nothing leave no
// trace, so the next trigger retries them.
func (s *Source) checkedRecently() bool {
	if s.deps.Store == nil || s.deps.CheckWindow <= 0 {
		return false
	}

	now := s.deps.now()
	recent := func(t time.Time) bool { return now.Sub(t) < s.deps.CheckWindow }

	last, err := s.deps.Store.GetCheck(s.req.SourceID)
	switch {
	case err == nil && last.Status != "" && recent(last.CheckedAt):
		s.logger.Info().
			Time("last_checked_at", last.CheckedAt).
			Str("last_status", string(last.Status)).
			Dur("window", s.deps.CheckWindow).
			Msg("Source checked recently, skipping")
		return true
	case err != nil && !errors.Is(err, storage.ErrNotFound):
		s.logger.Warn().Err(err).Msg("Failed to read check history")
	}

	directives, err := s.deps.Store.ListDirectives()
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to read pending directives")
		return false
	}
	for _, d := range directives {
		if d.SourceID == s.req.SourceID && recent(d.CheckedAt) {
			s.logger.Info().
				Str("message_id", d.MessageID).
				Time("sent_at", d.CheckedAt).
				Msg("Availability check already in flight, skipping")
			return true
		}
	}
	return false
}

// directiveSent moves to directive_sent unless a callback already resolved the check
func (s *Source) directiveSent(messageID string, logger zerolog.Logger) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == types.CheckResolved {
		logger.Debug().Str("message_id", messageID).Msg("Availability check resolved before directive returned")
		return
	}
	s.state = types.CheckDirectiveSent
	s.messageID = messageID

	if s.deps.Store != nil {
		if err := s.deps.Store.SaveDirective(&types.CheckRecord{
			SourceID:  s.req.SourceID,
			CheckedAt: s.deps.now(),
			MessageID: messageID,
		}); err != nil {
			logger.Warn().Err(err).Msg("Failed to record pending directive")
		}
	}
	logger.Info().Str("message_id", messageID).Msg("Availability check directive sent")
}

// OnResponse handles response and eof frames for the health check directive
func (s *Source) OnResponse(ctx context.Context, messageID string, kind correlator.Kind, payload json.RawMessage) {
	logger := s.logger.With().Str("message_id", messageID).Str("message_type", string(kind)).Logger()

	if kind == correlator.KindEOF {
		if s.State() != types.CheckResolved {
			logger.Warn().Msg("Response stream closed without a result")
		}
		return
	}

	result, ok := parseHealthCheck(payload)
	if !ok {
		logger.Debug().Str("payload", string(payload)).Msg("Informational response frame")
		return
	}

	if result.available() {
		if s.resolve(ctx, types.StatusAvailable, "", "") {
			metrics.RecordOperation(opAvailabilityResponse, metrics.StatusSuccess)
		}
		return
	}

	message := result.Message
	if message == "" {
		message = fmt.Sprintf("Satellite instance not ready (result: %s)", result.Result)
	}
	logger.Warn().Str("reason", message).Msg("Source is unavailable")
	if s.resolve(ctx, types.StatusUnavailable, resultNotReady, message) {
		metrics.RecordOperation(opAvailabilityResponse, metrics.StatusSuccess)
	}
}

// OnError persists the raw error payload as the unavailable reason
func (s *Source) OnError(ctx context.Context, messageID string, code int, payload json.RawMessage) {
	message := unwrapString(payload)
	if message == "" || message == "null" {
		message = fmt.Sprintf(defaultRemoteErrorFormat, code)
	}

	s.logger.Error().
		Str("message_id", messageID).
		Int("code", code).
		Str("payload", message).
		Msg("Availability check directive failed")

	if s.resolve(ctx, types.StatusUnavailable, resultRemoteError, message) {
		metrics.RecordOperation(opAvailabilityError, metrics.StatusError)
	}
}

// OnTimeout persists receptor_not_responding
func (s *Source) OnTimeout(ctx context.Context, messageID string) {
	s.logger.Warn().Str("message_id", messageID).Msg("Availability check directive timed out")

	if s.unavailable(ctx, types.ReasonReceptorNotResponding) {
		metrics.RecordOperation(opAvailabilityTimeout, metrics.StatusError)
	}
}

func (s *Source) unavailable(ctx context.Context, reason types.UnavailableReason) bool {
	return s.resolve(ctx, types.StatusUnavailable, string(reason), reason.Message())
}

// resolve persists the outcome once. Later calls return false.
func (s *Source) resolve(ctx context.Context, status types.AvailabilityStatus, result, message string) bool {
	s.mu.Lock()
	if s.state == types.CheckResolved {
		s.mu.Unlock()
		return false
	}
	s.state = types.CheckResolved
	endpoint, messageID := s.endpoint, s.messageID
	s.mu.Unlock()

	now := s.deps.now()
	update := types.NewStatusUpdate(status, message, now)
	tenant := s.req.ExternalTenant

	if err := s.deps.Inventory.UpdateSource(ctx, tenant, s.req.SourceID, update); err != nil {
		s.logger.Error().Err(err).Msg("Failed to update Source")
	}
	if endpoint != nil {
		if err := s.deps.Inventory.UpdateEndpoint(ctx, tenant, endpoint.ID, update); err != nil {
			s.logger.Error().Err(err).Str("endpoint_id", endpoint.ID).Msg("Failed to update Endpoint")
		}
	}

	if s.deps.Store != nil {
		rec := &types.CheckRecord{
			SourceID:  s.req.SourceID,
			CheckedAt: now,
			MessageID: messageID,
			Status:    status,
			Reason:    types.UnavailableReason(result),
		}
		if err := s.deps.Store.RecordCheck(rec); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to record check")
		}
		if messageID != "" {
			if err := s.deps.Store.DeleteDirective(messageID); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to clear pending directive")
			}
		}
	}

	if result == "" {
		result = string(status)
	}
	metrics.AvailabilityChecksTotal.WithLabelValues(result).Inc()

	s.logger.Info().
		Str("status", string(status)).
		Str("reason", message).
		Msg("Availability check resolved")
	return true
}

// healthCheck is the result document of the satellite health check directive
type healthCheck struct {
	Result     string      `json:"result"`
	FifiStatus interface{} `json:"fifi_status"`
	Message    string      `json:"message"`
}

func (h healthCheck) available() bool {
	return h.Result == "ok" && truthy(h.FifiStatus)
}

// parseHealthCheck decodes a response payload, which may be a JSON document
// or a JSON string holding one. ok is false for frames without a result.
func parseHealthCheck(payload json.RawMessage) (healthCheck, bool) {
	raw := []byte(unwrapString(payload))

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return healthCheck{}, false
	}
	if _, ok := fields["result"]; !ok {
		return healthCheck{}, false
	}

	var h healthCheck
	if err := json.Unmarshal(raw, &h); err != nil {
		return healthCheck{}, false
	}
	return h, true
}

// unwrapString returns the contents of a JSON string, or the raw text otherwise
func unwrapString(payload json.RawMessage) string {
	var s string
	if err := json.Unmarshal(payload, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(payload))
}

func truthy(v interface{}) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val == 1
	case string:
		return val == "true" || val == "1"
	default:
		return false
	}
}
