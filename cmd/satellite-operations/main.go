package main

import (
	"fmt"
	"os"

	"github.com/cuemby/satellite-operations/pkg/config"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "satellite-operations",
	Short: "Satellite operations worker for the Sources platform",
	Long: `satellite-operations consumes Source operations from the message bus and
checks the availability of Satellite instances through the receptor
controller, writing the result back to the Sources API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), versionString())
	},
}

func versionString() string {
	return fmt.Sprintf("satellite-operations version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
}

func init() {
	rootCmd.SetVersionTemplate(versionString())
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to YAML configuration file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfigFile loads --config with environment overrides and validates it
func loadConfigFile(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
