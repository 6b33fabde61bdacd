package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/clipforge/timeline/internal/timeline/daemon"
	"github.com/clipforge/timeline/internal/ui"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "maintenance",
	Short:   "Show storage status",
	Long: `Display the number of saved scenes and the storage usage against the
configured budget. Cleanup runs automatically on save once usage passes
store.cleanup_threshold.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if _, err := os.Stat(cfg.Store.Path); os.IsNotExist(err) {
			fmt.Fprintf(out, "\n%s No database at %s\n", ui.RenderWarn("⚠"), cfg.Store.Path)
			fmt.Fprintf(out, "   Run 'timelinectl save' to create it\n\n")
			return nil
		}

		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		status, err := daemon.Snapshot(cmd.Context(), st, nil)
		if err != nil {
			return fmt.Errorf("failed to read status: %w", err)
		}

		fmt.Fprintf(out, "\n%s Timeline store\n\n", ui.RenderAccent("📊"))
		fmt.Fprint(out, ui.KeyValue(12,
			[2]string{"Database", cfg.Store.Path},
			[2]string{"Scenes", strconv.Itoa(status.Scenes)},
			[2]string{"Usage", fmt.Sprintf("%d / %d bytes (%.1f%%)", status.UsageBytes, cfg.Store.BudgetBytes, status.UsagePercent)},
			[2]string{"Threshold", fmt.Sprintf("%.0f%%", cfg.Store.CleanupThreshold*100)},
			[2]string{"Max age", cfg.Store.MaxAge.String()},
		))
		fmt.Fprintln(out)
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:     "cleanup",
	GroupID: "maintenance",
	Short:   "Remove stale and unreadable entries",
	Long: `Remove every stored entry that cannot be parsed or whose last save is
older than store.max_age. Primary, backup and legacy entries are all
scanned.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		out := cmd.OutOrStdout()
		start := time.Now()
		report := st.Cleanup(cmd.Context())

		fmt.Fprintf(out, "%s Cleanup complete in %v\n", ui.RenderPass("✓"), time.Since(start).Round(time.Millisecond))
		fmt.Fprintf(out, "   Scanned: %d\n", report.Scanned)
		fmt.Fprintf(out, "   Removed: %d\n", report.Removed)
		for _, key := range report.RemovedKeys {
			fmt.Fprintf(out, "     %s\n", ui.RenderMuted(key))
		}
		for _, err := range report.Errors {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ui.RenderWarn("⚠"), err)
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	GroupID: "maintenance",
	Short:   "Migrate every legacy entry to the current format",
	Long: `Rewrite every legacy timeline entry as a current document and remove
the legacy entry. Scenes that already have a current document are skipped
and their legacy entry is left in place.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		report, err := st.MigrateLegacy(cmd.Context())
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s Migration complete\n", ui.RenderPass("✓"))
		fmt.Fprintf(out, "   Migrated: %d\n", len(report.Migrated))
		fmt.Fprintf(out, "   Skipped: %d\n", len(report.Skipped))
		if len(report.Failed) > 0 {
			fmt.Fprintf(out, "   Failed: %d\n", len(report.Failed))
			for id, err := range report.Failed {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %s: %v\n", ui.RenderWarn("⚠"), id, err)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, cleanupCmd, migrateCmd)
}
