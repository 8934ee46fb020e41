package health

import (
	"context"
	"fmt"
	"time"
)

// CheckType represents the type of dependency probe
type CheckType string

const (
	CheckTypeHTTP CheckType = "http"
	CheckTypeTCP  CheckType = "tcp"
)

// Result represents the outcome of a probe
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

func result(start time.Time, healthy bool, format string, args ...interface{}) Result {
	return Result{
		Healthy:   healthy,
		Message:   fmt.Sprintf(format, args...),
		CheckedAt: start,
		Duration:  time.Since(start),
	}
}

// Checker is the interface that all dependency probes implement
type Checker interface {
	// Check performs the probe and returns the result
	Check(ctx context.Context) Result

	// Type returns the type of probe
	Type() CheckType
}

// Config controls how often a dependency is probed
type Config struct {
	// Interval is the time between probes
	Interval time.Duration

	// Timeout is the maximum time to wait for one probe
	Timeout time.Duration

	// Retries is the number of consecutive failures before reporting unhealthy
	Retries int
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: 30 * time.Second,
		Timeout:  5 * time.Second,
		Retries:  3,
	}
}

// Status tracks the current health of one probed dependency
type Status struct {
	ConsecutiveFailures  int
	ConsecutiveSuccesses int
	LastCheck            time.Time
	LastResult           Result
	Healthy              bool
}

// NewStatus creates a new Status; dependencies start healthy
func NewStatus() *Status {
	return &Status{Healthy: true}
}

// Update updates the status based on a new probe result
func (s *Status) Update(result Result, config Config) {
	s.LastCheck = result.CheckedAt
	s.LastResult = result

	if result.Healthy {
		s.ConsecutiveSuccesses++
		s.ConsecutiveFailures = 0
		s.Healthy = true
		return
	}

	s.ConsecutiveFailures++
	s.ConsecutiveSuccesses = 0
	if s.ConsecutiveFailures >= config.Retries {
		s.Healthy = false
	}
}
