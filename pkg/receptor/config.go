package receptor

import (
	"regexp"
	"strings"
	"time"

	"github.com/cuemby/satellite-operations/pkg/correlator"
)

// Defaults for the receptor controller
const (
	DefaultScheme               = "http"
	DefaultHost                 = "localhost:9090"
	DefaultConnectionStatusPath = "/connection/status"
	DefaultJobPath              = "/job"
	DefaultResponseTopic        = "platform.receptor-controller.responses"
	DefaultTimeout              = 10 * time.Second
	DefaultRetryInterval        = 5 * time.Second
)

var schemePrefix = regexp.MustCompile(`^https?://`)

// Config holds receptor controller configuration
type Config struct {
	Scheme               string
	Host                 string
	ConnectionStatusPath string
	JobPath              string

	// ResponseTopic carries the controller's response frames
	ResponseTopic string
	// ResponseGroup is empty so every process sees every frame
	ResponseGroup string
	// RemoteErrors is the policy for frames with a non-zero code
	RemoteErrors correlator.Policy

	// Timeout bounds each controller HTTP call
	Timeout time.Duration
	// RetryInterval is the wait before the response listener reconnects
	RetryInterval time.Duration
}

// DefaultConfig returns the default controller configuration
func DefaultConfig() Config {
	return Config{
		Scheme:               DefaultScheme,
		Host:                 DefaultHost,
		ConnectionStatusPath: DefaultConnectionStatusPath,
		JobPath:              DefaultJobPath,
		ResponseTopic:        DefaultResponseTopic,
		RemoteErrors:         correlator.DropRemoteErrors,
		Timeout:              DefaultTimeout,
		RetryInterval:        DefaultRetryInterval,
	}
}

// NormalizeScheme strips a trailing "://" from scheme
func NormalizeScheme(scheme string) string {
	return strings.TrimSuffix(strings.TrimSpace(scheme), "://")
}

// NormalizeHost strips an http(s):// prefix and anything after the first slash
func NormalizeHost(host string) string {
	host = schemePrefix.ReplaceAllString(strings.TrimSpace(host), "")
	if i := strings.Index(host, "/"); i >= 0 {
		host = host[:i]
	}
	return host
}

// Normalize returns a copy with scheme and host normalised and empty fields defaulted
func (c Config) Normalize() Config {
	def := DefaultConfig()
	c.Scheme = NormalizeScheme(c.Scheme)
	c.Host = NormalizeHost(c.Host)
	if c.Scheme == "" {
		c.Scheme = def.Scheme
	}
	if c.Host == "" {
		c.Host = def.Host
	}
	if c.ConnectionStatusPath == "" {
		c.ConnectionStatusPath = def.ConnectionStatusPath
	}
	if c.JobPath == "" {
		c.JobPath = def.JobPath
	}
	if c.ResponseTopic == "" {
		c.ResponseTopic = def.ResponseTopic
	}
	if c.RemoteErrors == "" {
		c.RemoteErrors = def.RemoteErrors
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = def.RetryInterval
	}
	return c
}

// ControllerURL returns scheme://host without trailing slashes
func (c Config) ControllerURL() string {
	return strings.TrimRight(NormalizeScheme(c.Scheme)+"://"+NormalizeHost(c.Host), "/")
}

// ConnectionStatusURL returns the node status endpoint
func (c Config) ConnectionStatusURL() string {
	return joinURL(c.ControllerURL(), c.ConnectionStatusPath)
}

// JobURL returns the directive endpoint
func (c Config) JobURL() string {
	return joinURL(c.ControllerURL(), c.JobPath)
}

func joinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
