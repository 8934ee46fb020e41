package storage

import (
	"errors"

	"github.com/cuemby/satellite-operations/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// Store defines the interface for the worker's local check history
type Store interface {
	// Checks, keyed by source ID (last resolved check per source)
	RecordCheck(rec *types.CheckRecord) error
	GetCheck(sourceID string) (*types.CheckRecord, error)
	ListChecks() ([]*types.CheckRecord, error)
	DeleteCheck(sourceID string) error

	// Directives awaiting an asynchronous response, keyed by message ID
	SaveDirective(rec *types.CheckRecord) error
	ListDirectives() ([]*types.CheckRecord, error)
	DeleteDirective(messageID string) error

	// Utility
	Close() error
}
