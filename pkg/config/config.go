// Package config loads the worker configuration from a YAML file, applies
// environment overrides and converts it into the settings of each component.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus/natsbus"
	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/health"
	"github.com/cuemby/satellite-operations/pkg/inventory"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/receptor"
	"github.com/cuemby/satellite-operations/pkg/worker"
	"gopkg.in/yaml.v3"
)

// Bus drivers
const (
	DriverNATS   = "nats"
	DriverMemory = "memory"
)

// Config is the complete worker configuration
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Bus       BusConfig       `yaml:"bus"`
	Receptor  ReceptorConfig  `yaml:"receptor"`
	Inventory InventoryConfig `yaml:"inventory"`
	Worker    WorkerConfig    `yaml:"worker"`
	Storage   StorageConfig   `yaml:"storage"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

type BusConfig struct {
	Driver        string        `yaml:"driver"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Name          string        `yaml:"name"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	MaxReconnects int           `yaml:"max_reconnects"`
}

type ReceptorConfig struct {
	Scheme               string        `yaml:"scheme"`
	Host                 string        `yaml:"host"`
	ConnectionStatusPath string        `yaml:"connection_status_path"`
	JobPath              string        `yaml:"job_path"`
	ResponseTopic        string        `yaml:"response_topic"`
	ResponseGroup        string        `yaml:"response_group"`
	RemoteErrors         string        `yaml:"remote_errors"`
	Timeout              time.Duration `yaml:"timeout"`
	RetryInterval        time.Duration `yaml:"retry_interval"`
}

type InventoryConfig struct {
	Scheme   string        `yaml:"scheme"`
	Host     string        `yaml:"host"`
	BasePath string        `yaml:"base_path"`
	Timeout  time.Duration `yaml:"timeout"`
}

type WorkerConfig struct {
	OperationsTopic string        `yaml:"operations_topic"`
	Group           string        `yaml:"group"`
	CheckWindow     time.Duration `yaml:"check_window"`
	LivenessFile    string        `yaml:"liveness_file"`
}

// StorageConfig locates the check history database; an empty DataDir disables it
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

type MetricsConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Addr          string        `yaml:"addr"`
	ProbeInterval time.Duration `yaml:"probe_interval"`
}

// Default returns the built-in configuration
func Default() *Config {
	rc := receptor.DefaultConfig()
	ic := inventory.DefaultConfig()

	return &Config{
		Log: LogConfig{Level: string(log.InfoLevel)},
		Bus: BusConfig{
			Driver:        DriverNATS,
			Host:          "localhost",
			Port:          4222,
			ReconnectWait: 2 * time.Second,
			MaxReconnects: -1,
		},
		Receptor: ReceptorConfig{
			Scheme:               rc.Scheme,
			Host:                 rc.Host,
			ConnectionStatusPath: rc.ConnectionStatusPath,
			JobPath:              rc.JobPath,
			ResponseTopic:        rc.ResponseTopic,
			RemoteErrors:         string(rc.RemoteErrors),
			Timeout:              rc.Timeout,
			RetryInterval:        rc.RetryInterval,
		},
		Inventory: InventoryConfig{
			Scheme:   ic.Scheme,
			Host:     ic.Host,
			BasePath: ic.BasePath,
			Timeout:  ic.Timeout,
		},
		Worker: WorkerConfig{
			OperationsTopic: worker.DefaultOperationsTopic,
			Group:           worker.DefaultGroup,
			CheckWindow:     time.Minute,
			LivenessFile:    health.DefaultLivenessFile,
		},
		Storage: StorageConfig{DataDir: "/var/lib/satellite-operations"},
		Metrics: MetricsConfig{
			Enabled:       true,
			Addr:          ":9394",
			ProbeInterval: 30 * time.Second,
		},
	}
}

// Load reads path over the defaults and applies environment overrides. An
// empty path uses the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv applies the environment overrides read through lookup
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("QUEUE_HOST", &c.Bus.Host)
	set("RECEPTOR_CONTROLLER_SCHEME", &c.Receptor.Scheme)
	set("RECEPTOR_CONTROLLER_HOST", &c.Receptor.Host)
	set("SOURCES_SCHEME", &c.Inventory.Scheme)
	set("SOURCES_HOST", &c.Inventory.Host)
	set("LOG_LEVEL", &c.Log.Level)

	if v, ok := lookup("QUEUE_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid QUEUE_PORT %q: %w", v, err)
		}
		c.Bus.Port = port
	}
	return nil
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	var errs []error

	switch c.Bus.Driver {
	case DriverNATS:
		if c.Bus.Host == "" {
			errs = append(errs, errors.New("bus.host is required for the nats driver"))
		}
		if c.Bus.Port <= 0 || c.Bus.Port > 65535 {
			errs = append(errs, fmt.Errorf("bus.port %d out of range", c.Bus.Port))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown bus.driver %q", c.Bus.Driver))
	}

	switch correlator.Policy(c.Receptor.RemoteErrors) {
	case "", correlator.DropRemoteErrors, correlator.RouteRemoteErrors:
	default:
		errs = append(errs, fmt.Errorf("unknown receptor.remote_errors %q", c.Receptor.RemoteErrors))
	}

	if receptor.NormalizeHost(c.Receptor.Host) == "" {
		errs = append(errs, errors.New("receptor.host is required"))
	}
	if c.Inventory.Host == "" {
		errs = append(errs, errors.New("inventory.host is required"))
	}
	if c.Worker.CheckWindow < 0 {
		errs = append(errs, errors.New("worker.check_window must not be negative"))
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}

	return errors.Join(errs...)
}

// LogSettings returns the logger settings
func (c *Config) LogSettings() log.Config {
	return log.Config{
		Level:      log.ParseLevel(c.Log.Level),
		JSONOutput: c.Log.JSON,
	}
}

// NATS returns the NATS connection settings
func (c *Config) NATS() natsbus.Config {
	return natsbus.Config{
		URL:           "nats://" + net.JoinHostPort(c.Bus.Host, strconv.Itoa(c.Bus.Port)),
		Name:          c.Bus.Name,
		ReconnectWait: c.Bus.ReconnectWait,
		MaxReconnects: c.Bus.MaxReconnects,
	}
}

// ReceptorSettings returns the receptor controller client settings
func (c *Config) ReceptorSettings() receptor.Config {
	return receptor.Config{
		Scheme:               c.Receptor.Scheme,
		Host:                 c.Receptor.Host,
		ConnectionStatusPath: c.Receptor.ConnectionStatusPath,
		JobPath:              c.Receptor.JobPath,
		ResponseTopic:        c.Receptor.ResponseTopic,
		ResponseGroup:        c.Receptor.ResponseGroup,
		RemoteErrors:         correlator.Policy(c.Receptor.RemoteErrors),
		Timeout:              c.Receptor.Timeout,
		RetryInterval:        c.Receptor.RetryInterval,
	}.Normalize()
}

// InventorySettings returns the Sources API client settings
func (c *Config) InventorySettings() inventory.Config {
	return inventory.Config{
		Scheme:   c.Inventory.Scheme,
		Host:     c.Inventory.Host,
		BasePath: c.Inventory.BasePath,
		Timeout:  c.Inventory.Timeout,
	}
}

// WorkerSettings returns the operations consumer settings
func (c *Config) WorkerSettings() worker.Config {
	return worker.Config{
		OperationsTopic: c.Worker.OperationsTopic,
		Group:           c.Worker.Group,
	}
}
