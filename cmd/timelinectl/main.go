// Command timelinectl manages persisted timeline documents: saving and
// loading scenes, storage maintenance, JSONL export/import and the
// background sync daemon.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clipforge/timeline/internal/config"
	"github.com/clipforge/timeline/internal/logging"
)

var (
	configPath string
	dbPath     string

	cfg  *config.Config
	logs *logging.Factory
)

var rootCmd = &cobra.Command{
	Use:   "timelinectl",
	Short: "Timeline document store and sync engine",
	Long: `timelinectl saves, loads and maintains per-scene timeline documents.

Documents live in a SQLite database (.timeline/timeline.db by default).
Every save keeps the previous version as a backup, loads fall back to the
backup and to legacy entries, and the daemon reconciles writes made by
other processes.

Configuration is read from timeline.yaml in the working directory or
~/.config/timeline, overridden by TIMELINE_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if dbPath != "" {
			cfg.Store.Path = dbPath
		}

		logs, err = logging.New(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: timeline.yaml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides store.path)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "scenes", Title: "Scene Commands:"},
		&cobra.Group{ID: "maintenance", Title: "Maintenance Commands:"},
	)
}

// execute runs the root command and closes the log outputs it opened.
func execute() error {
	err := rootCmd.Execute()
	if logs != nil {
		_ = logs.Close()
		logs = nil
	}
	return err
}

func main() {
	if err := execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}
