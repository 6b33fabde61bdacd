package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/clipforge/timeline/internal/timeline/daemon"
	timelinesync "github.com/clipforge/timeline/internal/timeline/sync"
	"github.com/clipforge/timeline/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "maintenance",
	Short:   "Run the sync daemon",
	Long: `Run the background daemon for the configured database.

The daemon:
  1. Migrates any legacy entries
  2. Watches the database for writes by other processes and resolves
     conflicting versions with the configured strategy
  3. Runs cleanup on daemon.cleanup_schedule
  4. Serves the live dashboard when --port (or dashboard.port) is set

Example usage:
  timelinectl daemon
  timelinectl daemon --port 8080 --strategy local`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port := cfg.Dashboard.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		strategy := cfg.Strategy()
		if cmd.Flags().Changed("strategy") {
			raw, _ := cmd.Flags().GetString("strategy")
			parsed, err := timelinesync.ParseStrategy(raw)
			if err != nil {
				return err
			}
			strategy = parsed
		}

		syncOpts := timelinesync.DefaultOptions()
		syncOpts.Strategy = strategy
		syncOpts.Timeout = cfg.Sync.Timeout
		syncOpts.ConflictWindow = cfg.Sync.ConflictWindow

		d, err := daemon.New(&daemon.Config{
			DBPath:           cfg.Store.Path,
			PollInterval:     cfg.Daemon.PollInterval,
			CleanupSchedule:  cfg.Daemon.CleanupSchedule,
			ChangeRetention:  cfg.Daemon.ChangeRetention,
			DashboardPort:    port,
			DashboardOrigins: cfg.Dashboard.AllowedOrigins,
			Store:            storeConfig(),
			Sync:             syncOpts,
			Logger:           logs.Logger("daemon"),
			ComponentLogger:  logs.Logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create daemon: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Daemon running on %s\n", ui.RenderAccent("🔄"), cfg.Store.Path)
		fmt.Fprintf(out, "   Strategy: %s\n", strategy)
		if port > 0 {
			fmt.Fprintf(out, "   Dashboard: http://localhost:%d\n", port)
			fmt.Fprintf(out, "   WebSocket: ws://localhost:%d/ws\n", port)
		}
		fmt.Fprintln(out, "\nPress Ctrl+C to stop...")

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		if err := d.Run(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "Daemon stopped")
		return nil
	},
}

func init() {
	daemonCmd.Flags().IntP("port", "p", 0, "Dashboard port (0 disables, default: dashboard.port)")
	daemonCmd.Flags().String("strategy", "", "Conflict strategy: local, remote, merge or manual (default: sync.strategy)")

	rootCmd.AddCommand(daemonCmd)
}
