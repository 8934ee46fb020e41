package metrics

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Overall states reported by /health and /ready
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
	StateReady     = "ready"
	StateNotReady  = "not_ready"
)

// Components the worker cannot process operations without
var defaultCriticalComponents = []string{"bus", "correlator"}

// Report is the JSON body of the health endpoints
type Report struct {
	Status        string            `json:"status"`
	Timestamp     time.Time         `json:"timestamp"`
	Components    map[string]string `json:"components,omitempty"`
	Message       string            `json:"message,omitempty"`
	Version       string            `json:"version,omitempty"`
	Uptime        string            `json:"uptime,omitempty"`
	LastOperation *time.Time        `json:"last_operation,omitempty"`
}

// Component is the last reported state of one dependency
type Component struct {
	Healthy bool
	Message string
	Updated time.Time
}

// Registry holds component states. Critical components decide readiness;
// a failing non-critical component only degrades health.
type Registry struct {
	mu            sync.RWMutex
	components    map[string]Component
	critical      map[string]bool
	started       time.Time
	lastOperation time.Time
	version       string
}

// NewRegistry creates a registry with the given critical components
func NewRegistry(critical ...string) *Registry {
	r := &Registry{
		components: make(map[string]Component),
		started:    time.Now(),
	}
	r.setCritical(critical)
	return r
}

var registry = NewRegistry(defaultCriticalComponents...)

func (r *Registry) setCritical(names []string) {
	r.critical = make(map[string]bool, len(names))
	for _, name := range names {
		r.critical[name] = true
	}
}

// Set records the state of a component
func (r *Registry) Set(name string, healthy bool, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[name] = Component{Healthy: healthy, Message: message, Updated: time.Now()}
}

// Get returns the last reported state of a component
func (r *Registry) Get(name string) (Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[name]
	return c, ok
}

// Health summarises every component
func (r *Registry) Health() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := r.report(StateHealthy)
	for name, c := range r.components {
		if c.Healthy {
			report.Components[name] = StateHealthy
			continue
		}
		report.Components[name] = StateUnhealthy + ": " + c.Message
		if r.critical[name] {
			report.Status = StateUnhealthy
		} else if report.Status == StateHealthy {
			report.Status = StateDegraded
		}
	}
	return report
}

// Readiness reports whether every critical component is up
func (r *Registry) Readiness() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.critical))
	for name := range r.critical {
		names = append(names, name)
	}
	sort.Strings(names)

	report := r.report(StateReady)
	for _, name := range names {
		c, ok := r.components[name]
		switch {
		case !ok:
			report.Components[name] = "not registered"
		case !c.Healthy:
			report.Components[name] = "not ready: " + c.Message
		default:
			report.Components[name] = StateReady
			continue
		}
		if report.Status == StateReady {
			report.Status = StateNotReady
			report.Message = "waiting for " + name
		}
	}
	return report
}

// report must be called with r.mu held
func (r *Registry) report(status string) Report {
	rep := Report{
		Status:     status,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    r.version,
		Uptime:     time.Since(r.started).Round(time.Second).String(),
	}
	if !r.lastOperation.IsZero() {
		last := r.lastOperation
		rep.LastOperation = &last
	}
	return rep
}

func (r *Registry) markOperation() {
	r.mu.Lock()
	r.lastOperation = time.Now()
	r.mu.Unlock()
}

// SetVersion sets the version reported by the health endpoints
func SetVersion(version string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.version = version
}

// SetCriticalComponents replaces the components required for readiness
func SetCriticalComponents(names ...string) {
	registry.mu.Lock()
	defer registry.mu.Unlock()
	registry.setCritical(names)
}

// RegisterComponent records the initial state of a component
func RegisterComponent(name string, healthy bool, message string) {
	registry.Set(name, healthy, message)
}

// UpdateComponent records a state change. It matches health.ReportFunc.
func UpdateComponent(name string, healthy bool, message string) {
	registry.Set(name, healthy, message)
}

// GetHealth returns the health report of the process registry
func GetHealth() Report {
	return registry.Health()
}

// GetReadiness returns the readiness report of the process registry
func GetReadiness() Report {
	return registry.Readiness()
}

func writeReport(w http.ResponseWriter, report Report, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(report)
}

// HealthHandler serves /health. A degraded process still answers 200.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := GetHealth()
		writeReport(w, report, report.Status != StateUnhealthy)
	}
}

// ReadyHandler serves /ready
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		report := GetReadiness()
		writeReport(w, report, report.Status == StateReady)
	}
}

// LivenessHandler serves /live. It answers 200 while the process runs.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		registry.mu.RLock()
		report := registry.report("alive")
		registry.mu.RUnlock()
		writeReport(w, report, true)
	}
}
