package types

import (
	"time"
)

// AvailabilityStatus is the persisted availability of a Source or Endpoint
type AvailabilityStatus string

const (
	StatusAvailable   AvailabilityStatus = "available"
	StatusUnavailable AvailabilityStatus = "unavailable"
)

// UnavailableReason classifies why an availability check resolved to unavailable
type UnavailableReason string

const (
	ReasonEndpointNotFound           UnavailableReason = "endpoint_not_found"
	ReasonReceptorNodeNotDefined     UnavailableReason = "receptor_node_not_defined"
	ReasonReceptorNodeDisconnected   UnavailableReason = "receptor_node_disconnected"
	ReasonReceptorNetworkUnreachable UnavailableReason = "receptor_network_unreachable"
	ReasonReceptorNotResponding      UnavailableReason = "receptor_not_responding"
)

// reasonMessages holds the human readable text persisted as availability_status_error
var reasonMessages = map[UnavailableReason]string{
	ReasonEndpointNotFound:           "Source's endpoint not found",
	ReasonReceptorNodeNotDefined:     "Receptor node not defined for the Source's endpoint",
	ReasonReceptorNodeDisconnected:   "Receptor node is disconnected",
	ReasonReceptorNetworkUnreachable: "Receptor network unreachable",
	ReasonReceptorNotResponding:      "Receptor node is not responding",
}

// Message returns the human readable text for a reason
func (r UnavailableReason) Message() string {
	if msg, ok := reasonMessages[r]; ok {
		return msg
	}
	return string(r)
}

// Reasons returns every known unavailable reason
func Reasons() []UnavailableReason {
	return []UnavailableReason{
		ReasonEndpointNotFound,
		ReasonReceptorNodeNotDefined,
		ReasonReceptorNodeDisconnected,
		ReasonReceptorNetworkUnreachable,
		ReasonReceptorNotResponding,
	}
}

// NodeStatus is the connection state of a receptor node as seen by the controller
type NodeStatus string

const (
	NodeConnected    NodeStatus = "connected"
	NodeDisconnected NodeStatus = "disconnected"
	NodeUnknown      NodeStatus = "unknown"
)

// ParseNodeStatus maps the controller's status string to a NodeStatus
func ParseNodeStatus(s string) NodeStatus {
	switch NodeStatus(s) {
	case NodeConnected:
		return NodeConnected
	case NodeDisconnected:
		return NodeDisconnected
	default:
		return NodeUnknown
	}
}

// Source is the inventory entity whose availability is checked
type Source struct {
	ID                      string             `json:"id"`
	UID                     string             `json:"uid,omitempty"`
	AvailabilityStatus      AvailabilityStatus `json:"availability_status,omitempty"`
	AvailabilityStatusError string             `json:"availability_status_error,omitempty"`
	LastCheckedAt           *time.Time         `json:"last_checked_at,omitempty"`
	LastAvailableAt         *time.Time         `json:"last_available_at,omitempty"`
}

// Endpoint is a Source sub-resource pointing at a receptor node
type Endpoint struct {
	ID                      string             `json:"id"`
	SourceID                string             `json:"source_id"`
	Default                 bool               `json:"default"`
	ReceptorNode            string             `json:"receptor_node,omitempty"`
	AvailabilityStatus      AvailabilityStatus `json:"availability_status,omitempty"`
	AvailabilityStatusError string             `json:"availability_status_error,omitempty"`
}

// StatusUpdate is the partial document PATCHed onto a Source or Endpoint
type StatusUpdate struct {
	AvailabilityStatus      AvailabilityStatus `json:"availability_status"`
	AvailabilityStatusError string             `json:"availability_status_error"`
	LastCheckedAt           *time.Time         `json:"last_checked_at,omitempty"`
	LastAvailableAt         *time.Time         `json:"last_available_at,omitempty"`
}

// NewStatusUpdate builds the update for one check outcome. last_available_at is
// only moved forward when the source is available.
func NewStatusUpdate(status AvailabilityStatus, errMsg string, checkedAt time.Time) StatusUpdate {
	checked := checkedAt.UTC()
	update := StatusUpdate{
		AvailabilityStatus:      status,
		AvailabilityStatusError: errMsg,
		LastCheckedAt:           &checked,
	}
	if status == StatusAvailable {
		update.AvailabilityStatusError = ""
		update.LastAvailableAt = &checked
	}
	return update
}

// CheckRequest carries the parameters of one availability check
type CheckRequest struct {
	SourceID       string
	SourceUID      string
	SourceRef      string
	ExternalTenant string
}

// CheckState is the position of an availability check in its lifecycle
type CheckState string

const (
	CheckNotStarted      CheckState = "not_started"
	CheckValidating      CheckState = "validating"
	CheckCheckingNetwork CheckState = "checking_network"
	CheckDirectiveSent   CheckState = "directive_sent"
	CheckResolved        CheckState = "resolved"
)

// CheckRecord is the locally stored history of the last check for a Source
type CheckRecord struct {
	SourceID  string             `json:"source_id"`
	CheckedAt time.Time          `json:"checked_at"`
	MessageID string             `json:"message_id,omitempty"`
	Status    AvailabilityStatus `json:"status,omitempty"`
	Reason    UnavailableReason  `json:"reason,omitempty"`
}
