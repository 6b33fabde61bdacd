package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/clipforge/timeline/internal/timeline/migrate"
	"github.com/clipforge/timeline/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export <file.jsonl>",
	GroupID: "maintenance",
	Short:   "Export every scene document to JSONL",
	Long: `Write every current scene document to a JSONL file, one document per
line. The file is written atomically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		result, err := migrate.Export(cmd.Context(), st, migrate.ExportOptions{ToJSONL: args[0]})
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s Exported %d documents to %s\n", ui.RenderPass("✓"), result.Exported, args[0])
		printWarnings(cmd.ErrOrStderr(), result.Errors)
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file.jsonl>",
	GroupID: "maintenance",
	Short:   "Import scene documents from JSONL",
	Long: `Import scene documents from a JSONL file. Each document goes through
the normal save path, so it is validated and the previous version is kept
as a backup.

Scenes that already have a document are skipped unless --overwrite is set.

Examples:
  timelinectl import backup.jsonl --dry-run
  timelinectl import backup.jsonl --overwrite --backup`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")
		overwrite, _ := cmd.Flags().GetBool("overwrite")

		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		result, err := migrate.Import(cmd.Context(), st, migrate.ImportOptions{
			FromJSONL: args[0],
			DryRun:    dryRun,
			Backup:    backup,
			Overwrite: overwrite,
		})
		if err != nil {
			return fmt.Errorf("import failed: %w", err)
		}

		out := cmd.OutOrStdout()
		if dryRun {
			fmt.Fprintf(out, "%s Dry run: would import %d documents\n", ui.RenderAccent("🔍"), result.Imported)
		} else {
			fmt.Fprintf(out, "%s Imported %d documents\n", ui.RenderPass("✓"), result.Imported)
		}
		fmt.Fprintf(out, "   Skipped: %d\n", result.Skipped)
		if result.BackupCreated != "" {
			fmt.Fprintf(out, "   Backup: %s\n", result.BackupCreated)
		}
		printWarnings(cmd.ErrOrStderr(), result.Errors)
		return nil
	},
}

func init() {
	importCmd.Flags().Bool("dry-run", false, "Preview without writing")
	importCmd.Flags().Bool("backup", false, "Copy the input file before importing")
	importCmd.Flags().Bool("overwrite", false, "Replace scenes that already have a document")

	rootCmd.AddCommand(exportCmd, importCmd)
}
