package correlator

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind is the message_type of a response frame
type Kind string

const (
	// KindResponse carries a payload; more frames may follow for the same ID
	KindResponse Kind = "response"
	// KindEOF closes the stream for an ID and carries no payload
	KindEOF Kind = "eof"
	// KindError reports that the directive failed
	KindError Kind = "error"
	// KindTimeout reports that the controller gave up waiting for the node
	KindTimeout Kind = "timeout"
)

// Terminal reports whether a frame of this kind retires its registration
func (k Kind) Terminal() bool {
	switch k {
	case KindEOF, KindError, KindTimeout:
		return true
	default:
		return false
	}
}

// ErrMissingMessageID is returned for a frame without in_response_to
var ErrMissingMessageID = errors.New("frame has no in_response_to")

// Frame is one message on the receptor controller's response topic
type Frame struct {
	InResponseTo string          `json:"in_response_to"`
	Code         int             `json:"code"`
	MessageType  Kind            `json:"message_type"`
	Sender       string          `json:"sender,omitempty"`
	MessageID    string          `json:"message_id,omitempty"`
	Serial       int             `json:"serial,omitempty"`
	Payload      json.RawMessage `json:"payload,omitempty"`
}

// ParseFrame decodes a response frame
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse response frame: %w", err)
	}
	if f.InResponseTo == "" {
		return &f, ErrMissingMessageID
	}
	if f.MessageType == "" {
		f.MessageType = KindResponse
	}
	return &f, nil
}
