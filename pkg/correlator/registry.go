package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrAlreadyRegistered is returned when a message ID already has a pending request
	ErrAlreadyRegistered = errors.New("message id already registered")

	// ErrInvalidRegistration is returned for an empty message ID or nil callback
	ErrInvalidRegistration = errors.New("invalid registration")
)

// Callback receives the asynchronous outcome of a directive. Implementations
// are invoked from the correlator's listener goroutine.
type Callback interface {
	// OnResponse is called for every response frame and for the closing eof frame
	OnResponse(ctx context.Context, messageID string, kind Kind, payload json.RawMessage)

	// OnError is called for an error frame
	OnError(ctx context.Context, messageID string, code int, payload json.RawMessage)

	// OnTimeout is called when the controller reports that no response arrived in time
	OnTimeout(ctx context.Context, messageID string)
}

// PendingRequest is one in-flight directive
type PendingRequest struct {
	MessageID    string
	Callback     Callback
	RegisteredAt time.Time
}

// Registry maps message IDs to pending requests
type Registry struct {
	mu      sync.Mutex
	pending map[string]*PendingRequest
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{pending: make(map[string]*PendingRequest)}
}

// Register stores a pending request. A second registration for the same ID
// fails and leaves the existing entry untouched.
func (r *Registry) Register(messageID string, cb Callback) error {
	if messageID == "" || cb == nil {
		return ErrInvalidRegistration
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.pending[messageID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, messageID)
	}
	r.pending[messageID] = &PendingRequest{
		MessageID:    messageID,
		Callback:     cb,
		RegisteredAt: time.Now(),
	}
	return nil
}

// Resolve returns the pending request for messageID
func (r *Registry) Resolve(messageID string) (*PendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	req, ok := r.pending[messageID]
	return req, ok
}

// Retire removes the pending request and reports whether it existed
func (r *Registry) Retire(messageID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.pending[messageID]; !ok {
		return false
	}
	delete(r.pending, messageID)
	return true
}

// Len returns the number of in-flight requests
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// IDs returns the message IDs currently pending
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.pending))
	for id := range r.pending {
		ids = append(ids, id)
	}
	return ids
}
