package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/bus/memory"
	"github.com/cuemby/satellite-operations/pkg/bus/natsbus"
	"github.com/cuemby/satellite-operations/pkg/config"
	"github.com/cuemby/satellite-operations/pkg/health"
	"github.com/cuemby/satellite-operations/pkg/inventory"
	"github.com/cuemby/satellite-operations/pkg/log"
	"github.com/cuemby/satellite-operations/pkg/metrics"
	"github.com/cuemby/satellite-operations/pkg/operations"
	"github.com/cuemby/satellite-operations/pkg/receptor"
	"github.com/cuemby/satellite-operations/pkg/storage"
	"github.com/cuemby/satellite-operations/pkg/worker"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the operations worker",
	Long: `Run the operations worker until SIGINT or SIGTERM.

Configuration is read from --config, then from the environment
(QUEUE_HOST, QUEUE_PORT, RECEPTOR_CONTROLLER_SCHEME, RECEPTOR_CONTROLLER_HOST,
SOURCES_SCHEME, SOURCES_HOST, LOG_LEVEL), then from flags.

Examples:
  # Run against a local NATS server
  satellite-operations run --queue-host localhost --queue-port 4222

  # Run with a config file and JSON logs
  satellite-operations run -c /etc/satellite-operations.yaml --log-json`,
	RunE: runWorker,
}

func init() {
	runCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	runCmd.Flags().Bool("log-json", false, "Output logs in JSON format")
	runCmd.Flags().String("bus", "", "Bus driver (nats, memory)")
	runCmd.Flags().String("queue-host", "", "Message bus host")
	runCmd.Flags().Int("queue-port", 0, "Message bus port")
	runCmd.Flags().String("data-dir", "", "Directory for the check history database")
	runCmd.Flags().Duration("check-window", 0, "Skip checks of a Source checked within this window (0 disables)")
	runCmd.Flags().String("remote-errors", "", "Policy for receptor frames with a non-zero code (drop, route)")
	runCmd.Flags().String("metrics-addr", "", "Address for /metrics and health endpoints")
}

// loadConfig loads the configuration and applies flags that were set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("bus") {
		cfg.Bus.Driver, _ = flags.GetString("bus")
	}
	if flags.Changed("queue-host") {
		cfg.Bus.Host, _ = flags.GetString("queue-host")
	}
	if flags.Changed("queue-port") {
		cfg.Bus.Port, _ = flags.GetInt("queue-port")
	}
	if flags.Changed("data-dir") {
		cfg.Storage.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("check-window") {
		cfg.Worker.CheckWindow, _ = flags.GetDuration("check-window")
	}
	if flags.Changed("remote-errors") {
		cfg.Receptor.RemoteErrors, _ = flags.GetString("remote-errors")
	}
	if flags.Changed("metrics-addr") {
		cfg.Metrics.Addr, _ = flags.GetString("metrics-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func busOpener(cfg *config.Config) bus.Opener {
	if cfg.Bus.Driver == config.DriverMemory {
		return memory.NewBroker().Opener()
	}
	return natsbus.Opener(cfg.NATS())
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Init(cfg.LogSettings())
	metrics.SetVersion(Version)
	logger := log.WithComponent("main")

	var store storage.Store
	if cfg.Storage.DataDir != "" {
		bolt, err := storage.NewBoltStore(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("failed to open check history: %w", err)
		}
		defer bolt.Close()
		store = bolt
	}

	opener := busOpener(cfg)
	receptorClient := receptor.NewClient(cfg.ReceptorSettings(), opener)
	inventoryClient := inventory.NewClient(cfg.InventorySettings())

	dispatcher := operations.NewDispatcher(health.NewFileToucher(cfg.Worker.LivenessFile))
	operations.RegisterSource(dispatcher, operations.SourceDeps{
		Connect: func(account string) operations.NodeConnection {
			return receptor.NewConnection(account, receptorClient)
		},
		Inventory:   inventoryClient,
		Store:       store,
		CheckWindow: cfg.Worker.CheckWindow,
	})

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.NewServeMux(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logger.Info().Str("addr", cfg.Metrics.Addr).Msg("Metrics server listening")
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("Metrics server failed")
			}
		}()
	}

	collector := metrics.NewCollector(receptorClient, 15*time.Second)
	collector.Start()
	defer collector.Stop()

	probeConfig := health.DefaultConfig()
	probeConfig.Interval = cfg.Metrics.ProbeInterval
	probes := []health.Probe{
		{Name: "receptor_controller", Checker: health.NewHTTPChecker(cfg.ReceptorSettings().ControllerURL()).WithTimeout(probeConfig.Timeout)},
		{Name: "inventory", Checker: health.NewHTTPChecker(inventoryClient.BaseURL()).WithTimeout(probeConfig.Timeout)},
	}
	if cfg.Bus.Driver == config.DriverNATS {
		probes = append(probes, health.Probe{
			Name:    "bus_endpoint",
			Checker: health.NewTCPChecker(net.JoinHostPort(cfg.Bus.Host, strconv.Itoa(cfg.Bus.Port))),
		})
	}
	monitor := health.NewMonitor(probes, probeConfig, metrics.UpdateComponent)
	monitor.Start()
	defer monitor.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.NewWorker(cfg.WorkerSettings(), opener, receptorClient, dispatcher, store)
	runErr := w.Run(ctx)

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("Metrics server shutdown failed")
		}
	}

	if runErr != nil {
		return runErr
	}
	logger.Info().Msg("Shutdown complete")
	return nil
}
