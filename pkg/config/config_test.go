package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/satellite-operations/pkg/correlator"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "nats://localhost:4222", cfg.NATS().URL)
	assert.Equal(t, "http://localhost:9090/job", cfg.ReceptorSettings().JobURL())
	assert.Equal(t, "http://localhost:3000/api/sources/v3.0", cfg.InventorySettings().BaseURL())
	assert.Equal(t, "platform.topological-inventory.operations-satellite", cfg.WorkerSettings().OperationsTopic)
	assert.Equal(t, time.Minute, cfg.Worker.CheckWindow)
	assert.Equal(t, correlator.DropRemoteErrors, cfg.ReceptorSettings().RemoteErrors)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  json: true
bus:
  driver: memory
receptor:
  host: https://receptor.example.com/api
  scheme: https://
  remote_errors: route
  timeout: 3s
worker:
  check_window: 0s
storage:
  data_dir: ""
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, DriverMemory, cfg.Bus.Driver)
	assert.Equal(t, log.DebugLevel, cfg.LogSettings().Level)
	assert.True(t, cfg.LogSettings().JSONOutput)

	rc := cfg.ReceptorSettings()
	assert.Equal(t, "https://receptor.example.com", rc.ControllerURL())
	assert.Equal(t, correlator.RouteRemoteErrors, rc.RemoteErrors)
	assert.Equal(t, 3*time.Second, rc.Timeout)
	assert.Equal(t, "/connection/status", rc.ConnectionStatusPath, "unset keys keep defaults")

	assert.Zero(t, cfg.Worker.CheckWindow)
	assert.Empty(t, cfg.Storage.DataDir)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bus: [unclosed"), 0644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := cfg.ApplyEnv(env(map[string]string{
		"QUEUE_HOST":                 "nats.internal",
		"QUEUE_PORT":                 "14222",
		"RECEPTOR_CONTROLLER_SCHEME": "https",
		"RECEPTOR_CONTROLLER_HOST":   "receptor:9090",
		"SOURCES_SCHEME":             "https",
		"SOURCES_HOST":               "sources:8000",
		"LOG_LEVEL":                  "WARN",
		"UNRELATED":                  "x",
	}))
	require.NoError(t, err)

	assert.Equal(t, "nats://nats.internal:14222", cfg.NATS().URL)
	assert.Equal(t, "https://receptor:9090", cfg.ReceptorSettings().ControllerURL())
	assert.Equal(t, "https://sources:8000/api/sources/v3.0", cfg.InventorySettings().BaseURL())
	assert.Equal(t, log.WarnLevel, cfg.LogSettings().Level)
}

func TestApplyEnvInvalidPort(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.ApplyEnv(env(map[string]string{"QUEUE_PORT": "not-a-port"})))
}

func TestApplyEnvIgnoresEmpty(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(env(map[string]string{"QUEUE_HOST": ""})))
	assert.Equal(t, "localhost", cfg.Bus.Host)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"unknown driver", func(c *Config) { c.Bus.Driver = "kafka" }},
		{"bad port", func(c *Config) { c.Bus.Port = 0 }},
		{"no bus host", func(c *Config) { c.Bus.Host = "" }},
		{"unknown policy", func(c *Config) { c.Receptor.RemoteErrors = "ignore" }},
		{"no receptor host", func(c *Config) { c.Receptor.Host = "" }},
		{"no inventory host", func(c *Config) { c.Inventory.Host = "" }},
		{"negative window", func(c *Config) { c.Worker.CheckWindow = -time.Second }},
		{"metrics without addr", func(c *Config) { c.Metrics.Addr = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
