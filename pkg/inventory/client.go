// Package inventory is a small client for the Sources API: it lists a
// Source's endpoints and PATCHes availability status onto Sources and
// Endpoints.
package inventory

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cuemby/satellite-operations/pkg/identity"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/cuemby/satellite-operations/pkg/types"
)

// Defaults for the Sources API
const (
	DefaultScheme   = "http"
	DefaultHost     = "localhost:3000"
	DefaultBasePath = "/api/sources/v3.0"
	DefaultTimeout  = 10 * time.Second
)

const maxErrorBody = 4096

// APIError is a non-2xx response from the Sources API
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sources api %s %s returned %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Config holds Sources API configuration
type Config struct {
	Scheme   string
	Host     string
	BasePath string
	Timeout  time.Duration
}

// DefaultConfig returns the default Sources API configuration
func DefaultConfig() Config {
	return Config{
		Scheme:   DefaultScheme,
		Host:     DefaultHost,
		BasePath: DefaultBasePath,
		Timeout:  DefaultTimeout,
	}
}

// BaseURL returns scheme://host/base_path
func (c Config) BaseURL() string {
	scheme := strings.TrimSuffix(c.Scheme, "://")
	if scheme == "" {
		scheme = DefaultScheme
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.Host, "https://"), "http://")
	host = strings.TrimRight(host, "/")
	if host == "" {
		host = DefaultHost
	}
	base := c.BasePath
	if base == "" {
		base = DefaultBasePath
	}
	return scheme + "://" + host + "/" + strings.Trim(base, "/")
}

type endpointList struct {
	Data []types.Endpoint `json:"data"`
}

// Client is a Sources API client. Every call is made on behalf of a tenant.
type Client struct {
	baseURL  string
	http     *http.Client
	identity identity.Func
}

// NewClient creates a Sources API client
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:  cfg.BaseURL(),
		http:     &http.Client{Timeout: timeout},
		identity: identity.Header,
	}
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListEndpoints returns the endpoints of a Source
func (c *Client) ListEndpoints(ctx context.Context, tenant, sourceID string) ([]types.Endpoint, error) {
	var list endpointList
	path := "/sources/" + url.PathEscape(sourceID) + "/endpoints"
	if err := c.do(ctx, http.MethodGet, path, tenant, nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// DefaultEndpoint returns the Source's default endpoint, or nil when it has none
func (c *Client) DefaultEndpoint(ctx context.Context, tenant, sourceID string) (*types.Endpoint, error) {
	endpoints, err := c.ListEndpoints(ctx, tenant, sourceID)
	if err != nil {
		return nil, err
	}
	for i := range endpoints {
		if endpoints[i].Default {
			return &endpoints[i], nil
		}
	}
	return nil, nil
}

// UpdateSource PATCHes availability fields onto a Source
func (c *Client) UpdateSource(ctx context.Context, tenant, sourceID string, update types.StatusUpdate) error {
	return c.do(ctx, http.MethodPatch, "/sources/"+url.PathEscape(sourceID), tenant, update, nil)
}

// UpdateEndpoint PATCHes availability fields onto an Endpoint
func (c *Client) UpdateEndpoint(ctx context.Context, tenant, endpointID string, update types.StatusUpdate) error {
	return c.do(ctx, http.MethodPatch, "/endpoints/"+url.PathEscape(endpointID), tenant, update, nil)
}

func (c *Client) do(ctx context.Context, method, path, tenant string, body, out interface{}) error {
	status := "error"
	defer func() {
		metrics.InventoryRequestsTotal.WithLabelValues(method, status).Inc()
	}()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	header, err := c.identity(tenant)
	if err != nil {
		return err
	}
	req.Header.Set(identity.HeaderName, header)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sources api %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	status = strconv.Itoa(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		status = "invalid_body"
		return fmt.Errorf("failed to decode sources api response: %w", err)
	}
	return nil
}
