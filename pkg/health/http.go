package health

import (
	"context"
	"net/http"
	"time"
)

// HTTPChecker reports whether an HTTP dependency answers. The receptor
// controller and the Sources API have no health route, so any status below
// 500 counts as reachable unless WithStatusRange narrows it.
type HTTPChecker struct {
	URL    string
	Method string
	Header http.Header

	// MinStatus and MaxStatus bound the statuses counted as healthy
	MinStatus int
	MaxStatus int

	Client *http.Client
}

// NewHTTPChecker probes url with HEAD requests
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:       url,
		Method:    http.MethodHead,
		Header:    make(http.Header),
		MinStatus: http.StatusOK,
		MaxStatus: http.StatusInternalServerError - 1,
		Client:    &http.Client{Timeout: DefaultConfig().Timeout},
	}
}

func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, h.Method, h.URL, nil)
	if err != nil {
		return result(start, false, "invalid probe request for %s: %v", h.URL, err)
	}
	req.Header = h.Header.Clone()

	resp, err := h.Client.Do(req)
	if err != nil {
		return result(start, false, "%s unreachable: %v", h.URL, err)
	}
	resp.Body.Close()

	if resp.StatusCode < h.MinStatus || resp.StatusCode > h.MaxStatus {
		return result(start, false, "%s answered %d, want %d-%d", h.URL, resp.StatusCode, h.MinStatus, h.MaxStatus)
	}
	return result(start, true, "%s answered %d", h.URL, resp.StatusCode)
}

func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithHeader sets one request header, such as x-rh-identity
func (h *HTTPChecker) WithHeader(key, value string) *HTTPChecker {
	h.Header.Set(key, value)
	return h
}

func (h *HTTPChecker) WithHeaders(headers map[string]string) *HTTPChecker {
	for k, v := range headers {
		h.Header.Set(k, v)
	}
	return h
}

func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.MinStatus, h.MaxStatus = min, max
	return h
}

func (h *HTTPChecker) WithTimeout(timeout time.Duration) *HTTPChecker {
	h.Client.Timeout = timeout
	return h
}
