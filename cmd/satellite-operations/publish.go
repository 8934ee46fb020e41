package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cuemby/satellite-operations/pkg/bus"
	"github.com/cuemby/satellite-operations/pkg/bus/natsbus"
	"github.com/cuemby/satellite-operations/pkg/operations"
	"github.com/spf13/cobra"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an operation to the operations topic",
	Long: `Publish one operation message, for manual testing against a running worker.

Examples:
  # Trigger an availability check
  satellite-operations publish --param source_id=1 --param source_ref=9101112-13141516 \
    --param external_tenant=12345

  # Publish another operation
  satellite-operations publish --key Source.refresh --param source_id=1`,
	RunE: runPublish,
}

func init() {
	publishCmd.Flags().String("key", "Source.availability_check", "Routing key (Model.method)")
	publishCmd.Flags().StringToString("param", nil, "Operation parameter as key=value (repeatable)")
	publishCmd.Flags().Duration("timeout", 10*time.Second, "Publish timeout")
}

func runPublish(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	key, _ := cmd.Flags().GetString("key")
	params, _ := cmd.Flags().GetStringToString("param")
	timeout, _ := cmd.Flags().GetDuration("timeout")

	cfg, err := loadConfigFile(path)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	// the memory driver is process-local, so publishing always goes to NATS
	if err := publishOperation(ctx, natsbus.Opener(cfg.NATS()), cfg.Worker.OperationsTopic, key, params); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "✓ Published %s to %s\n", key, cfg.Worker.OperationsTopic)
	return nil
}

// publishOperation sends one {"params": ...} operation message under key
func publishOperation(ctx context.Context, open bus.Opener, topic, key string, params map[string]string) error {
	if _, _, ok := operations.ParseRoutingKey(key); !ok {
		return fmt.Errorf("invalid routing key %q, expected Model.method", key)
	}

	data, err := json.Marshal(map[string]interface{}{"params": params})
	if err != nil {
		return fmt.Errorf("failed to encode operation: %w", err)
	}

	client, err := open(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to bus: %w", err)
	}
	defer client.Close()

	if err := client.Publish(ctx, topic, &bus.Message{Key: key, Data: data}); err != nil {
		return fmt.Errorf("failed to publish operation: %w", err)
	}
	return nil
}
