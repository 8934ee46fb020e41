package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/satellite-operations/pkg/storage"
	"github.com/cuemby/satellite-operations/pkg/types"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Inspect and maintain the local check history",
}

var historyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the last check of every Source and pending directives",
	RunE:  runHistoryList,
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete check records older than --older-than",
	Long: `Delete check records older than --older-than.

The database is backed up before records are deleted. Stop the worker first;
the database file is locked while the worker runs.

Examples:
  # Show what would be deleted
  satellite-operations history prune --older-than 720h --dry-run

  # Delete records older than 30 days
  satellite-operations history prune --older-than 720h`,
	RunE: runHistoryPrune,
}

func init() {
	historyCmd.PersistentFlags().String("data-dir", "", "Check history directory (default from config)")

	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Age of records to delete")
	historyPruneCmd.Flags().Bool("dry-run", false, "Show what would be deleted without making changes")
	historyPruneCmd.Flags().String("backup", "", "Backup path (default: <data-dir>/satellite-operations.db.backup)")

	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyPruneCmd)
}

func openHistory(cmd *cobra.Command) (*storage.BoltStore, string, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	if dataDir == "" {
		path, _ := cmd.Flags().GetString("config")
		cfg, err := loadConfigFile(path)
		if err != nil {
			return nil, "", err
		}
		dataDir = cfg.Storage.DataDir
	}
	if dataDir == "" {
		return nil, "", fmt.Errorf("check history is disabled (storage.data_dir is empty)")
	}

	dbPath := filepath.Join(dataDir, storage.DBFile)
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return nil, "", fmt.Errorf("database not found at %s", dbPath)
	}

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return nil, "", err
	}
	return store, dbPath, nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	store, _, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	checks, err := store.ListChecks()
	if err != nil {
		return fmt.Errorf("failed to list checks: %w", err)
	}
	directives, err := store.ListDirectives()
	if err != nil {
		return fmt.Errorf("failed to list directives: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Checks (%d):\n", len(checks))
	for _, c := range checks {
		fmt.Fprintf(out, "  %-12s %-25s %-12s %s\n", c.SourceID, c.CheckedAt.Format(time.RFC3339), statusOf(c), c.Reason)
	}
	fmt.Fprintf(out, "\nPending directives (%d):\n", len(directives))
	for _, d := range directives {
		fmt.Fprintf(out, "  %-38s source=%s sent=%s\n", d.MessageID, d.SourceID, d.CheckedAt.Format(time.RFC3339))
	}
	return nil
}

func statusOf(c *types.CheckRecord) string {
	if c.Status == "" {
		return "in-progress"
	}
	return string(c.Status)
}

func runHistoryPrune(cmd *cobra.Command, args []string) error {
	olderThan, _ := cmd.Flags().GetDuration("older-than")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	backupPath, _ := cmd.Flags().GetString("backup")

	store, dbPath, err := openHistory(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Database: %s\n", dbPath)
	fmt.Fprintf(out, "Dry run: %v\n", dryRun)

	if !dryRun {
		if backupPath == "" {
			backupPath = dbPath + ".backup"
		}
		if err := store.Backup(backupPath); err != nil {
			return fmt.Errorf("failed to create backup: %w", err)
		}
		fmt.Fprintf(out, "✓ Backup created: %s\n", backupPath)
	}

	pruned, err := store.PruneChecks(time.Now().Add(-olderThan), dryRun)
	if err != nil {
		return fmt.Errorf("prune failed: %w", err)
	}

	for _, c := range pruned {
		fmt.Fprintf(out, "  %s (checked %s)\n", c.SourceID, c.CheckedAt.Format(time.RFC3339))
	}
	if dryRun {
		fmt.Fprintf(out, "\nDry run completed: %d record(s) would be deleted.\n", len(pruned))
	} else {
		fmt.Fprintf(out, "\n✓ Deleted %d record(s)\n", len(pruned))
	}
	return nil
}
