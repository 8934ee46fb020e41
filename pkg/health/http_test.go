package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHTTPCheckerStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		min     int
		max     int
		healthy bool
	}{
		{name: "ok", status: http.StatusOK, healthy: true},
		{name: "no route on the controller root", status: http.StatusNotFound, healthy: true},
		{name: "method not allowed", status: http.StatusMethodNotAllowed, healthy: true},
		{name: "server error", status: http.StatusInternalServerError, healthy: false},
		{name: "bad gateway", status: http.StatusBadGateway, healthy: false},
		{name: "narrowed range", status: http.StatusNotFound, min: 200, max: 299, healthy: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			methods := make(chan string, 1)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				methods <- r.Method
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			checker := NewHTTPChecker(server.URL)
			if tt.max > 0 {
				checker.WithStatusRange(tt.min, tt.max)
			}

			res := checker.Check(context.Background())
			assert.Equal(t, tt.healthy, res.Healthy, res.Message)
			assert.Equal(t, http.MethodHead, <-methods)
			assert.Contains(t, res.Message, server.URL)
			assert.Positive(t, res.Duration)
		})
	}
}

func TestHTTPCheckerSendsIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-rh-identity") != "e30=" || r.Header.Get("Accept") != "application/json" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res := NewHTTPChecker(server.URL).
		WithHeader("x-rh-identity", "e30=").
		WithHeaders(map[string]string{"Accept": "application/json"}).
		Check(context.Background())

	assert.True(t, res.Healthy, res.Message)
}

func TestHTTPCheckerTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	res := NewHTTPChecker(server.URL).WithTimeout(50 * time.Millisecond).Check(context.Background())

	assert.False(t, res.Healthy)
	assert.Contains(t, res.Message, "unreachable")
}

func TestHTTPCheckerInvalidURL(t *testing.T) {
	res := NewHTTPChecker("http://[::1]:namedport").Check(context.Background())

	assert.False(t, res.Healthy)
	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker("http://localhost:9090").Type())
}
