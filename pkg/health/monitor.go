package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/satellite-operations/pkg/log"
)

// ReportFunc receives the health of a named dependency
type ReportFunc func(name string, healthy bool, message string)

// Probe binds a checker to the component name it reports under
type Probe struct {
	Name    string
	Checker Checker
}

// Monitor periodically probes the worker's dependencies and reports their
// health, applying the retry threshold from Config
type Monitor struct {
	probes []Probe
	config Config
	report ReportFunc

	statuses map[string]*Status
	mu       sync.Mutex

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewMonitor creates a new dependency monitor
func NewMonitor(probes []Probe, config Config, report ReportFunc) *Monitor {
	statuses := make(map[string]*Status, len(probes))
	for _, p := range probes {
		statuses[p.Name] = NewStatus()
	}
	return &Monitor{
		probes:   probes,
		config:   config,
		report:   report,
		statuses: statuses,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs one probe round immediately, then one per interval
func (m *Monitor) Start() {
	go m.monitorLoop()
}

// Stop stops the monitor and waits for the loop to exit
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
	})
	<-m.doneCh
}

// Status returns a copy of the current status of a probe
func (m *Monitor) Status(name string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.statuses[name]
	if !ok {
		return Status{}, false
	}
	return *s, true
}

func (m *Monitor) monitorLoop() {
	defer close(m.doneCh)

	interval := m.config.Interval
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.ProbeOnce(context.Background())
	for {
		select {
		case <-ticker.C:
			m.ProbeOnce(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// ProbeOnce runs every probe once and reports the resulting health
func (m *Monitor) ProbeOnce(ctx context.Context) {
	logger := log.WithComponent("health")

	for _, p := range m.probes {
		checkCtx := ctx
		var cancel context.CancelFunc = func() {}
		if m.config.Timeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		}
		result := p.Checker.Check(checkCtx)
		cancel()

		m.mu.Lock()
		status := m.statuses[p.Name]
		status.Update(result, m.config)
		healthy := status.Healthy
		m.mu.Unlock()

		if !result.Healthy {
			logger.Warn().
				Str("dependency", p.Name).
				Str("type", string(p.Checker.Type())).
				Str("result", result.Message).
				Msg("Dependency probe failed")
		}
		if m.report != nil {
			m.report(p.Name, healthy, result.Message)
		}
	}
}
