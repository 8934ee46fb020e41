package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withRegistry swaps the process registry for the duration of a test
func withRegistry(t *testing.T, r *Registry) {
	t.Helper()
	saved := registry
	registry = r
	t.Cleanup(func() { registry = saved })
}

func TestRegistrySetAndGet(t *testing.T) {
	r := NewRegistry("bus")

	r.Set("bus", true, "connected")
	r.Set("bus", false, "closed")

	c, ok := r.Get("bus")
	require.True(t, ok)
	assert.False(t, c.Healthy)
	assert.Equal(t, "closed", c.Message)

	_, ok = r.Get("inventory")
	assert.False(t, ok)
}

func TestRegistryHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		want       string
	}{
		{
			name:       "all healthy",
			components: map[string]bool{"bus": true, "correlator": true, "inventory": true},
			want:       StateHealthy,
		},
		{
			name:       "probe down degrades",
			components: map[string]bool{"bus": true, "correlator": true, "inventory": false},
			want:       StateDegraded,
		},
		{
			name:       "critical down is unhealthy",
			components: map[string]bool{"bus": false, "correlator": true, "inventory": false},
			want:       StateUnhealthy,
		},
		{
			name:       "no components",
			components: map[string]bool{},
			want:       StateHealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(defaultCriticalComponents...)
			for name, healthy := range tt.components {
				r.Set(name, healthy, "probe failed")
			}

			report := r.Health()
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Components, len(tt.components))
		})
	}
}

func TestRegistryHealthComponentMessage(t *testing.T) {
	r := NewRegistry(defaultCriticalComponents...)
	r.Set("bus", false, "not connected")

	assert.Equal(t, "unhealthy: not connected", r.Health().Components["bus"])
}

func TestRegistryReadiness(t *testing.T) {
	r := NewRegistry(defaultCriticalComponents...)
	r.Set("inventory", true, "")

	report := r.Readiness()
	assert.Equal(t, StateNotReady, report.Status)
	assert.Equal(t, "waiting for bus", report.Message)
	assert.Equal(t, "not registered", report.Components["correlator"])
	assert.NotContains(t, report.Components, "inventory")

	r.Set("bus", true, "connected")
	r.Set("correlator", false, "subscription closed")
	report = r.Readiness()
	assert.Equal(t, StateNotReady, report.Status)
	assert.Equal(t, "not ready: subscription closed", report.Components["correlator"])

	r.Set("correlator", true, "listening")
	report = r.Readiness()
	assert.Equal(t, StateReady, report.Status)
	assert.Empty(t, report.Message)
}

func TestHealthHandler(t *testing.T) {
	r := NewRegistry(defaultCriticalComponents...)
	withRegistry(t, r)
	SetVersion("test")

	UpdateComponent("inventory", false, "connection refused")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, StateDegraded, report.Status)
	assert.Equal(t, "test", report.Version)

	UpdateComponent("bus", false, "closed")

	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandler(t *testing.T) {
	withRegistry(t, NewRegistry(defaultCriticalComponents...))

	w := httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	RegisterComponent("bus", true, "connected")
	RegisterComponent("correlator", true, "listening")

	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, StateReady, report.Status)
}

func TestLivenessHandler(t *testing.T) {
	withRegistry(t, NewRegistry(defaultCriticalComponents...))
	UpdateComponent("bus", false, "closed")

	w := httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var report Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, "alive", report.Status)
	assert.NotEmpty(t, report.Uptime)
	assert.Nil(t, report.LastOperation)

	RecordOperation("Source.availability_check", StatusSkipped)

	w = httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest(http.MethodGet, "/live", nil))
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.NotNil(t, report.LastOperation)
}
