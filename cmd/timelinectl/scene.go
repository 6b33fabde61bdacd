package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/store"
	"github.com/clipforge/timeline/internal/ui"
)

// savePayload is the input accepted by the save command.
type savePayload struct {
	Clips    []schema.Clip `json:"clips"`
	Playhead float64       `json:"playhead"`
	Edits    schema.Edits  `json:"edits"`
}

func readPayload(stdin io.Reader, path string) (*savePayload, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var p savePayload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return nil, fmt.Errorf("failed to parse input: %w", err)
	}
	return &p, nil
}

var saveCmd = &cobra.Command{
	Use:     "save <scene-id>",
	GroupID: "scenes",
	Short:   "Validate and save a scene's timeline",
	Long: `Save a scene's timeline from a JSON file of the form

  {"clips": [...], "playhead": 1.5, "edits": {...}}

Invalid clips are dropped with a warning. When no valid clip survives the
save is rejected, nothing is written and the command exits with status 2.
The previous document is kept as the scene's backup.

Examples:
  timelinectl save scene-1 --file timeline.json
  cat timeline.json | timelinectl save scene-1 --file -`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")
		index, _ := cmd.Flags().GetInt("index")
		duration, _ := cmd.Flags().GetFloat64("duration")
		origin, _ := cmd.Flags().GetString("origin")
		out := cmd.OutOrStdout()

		payload, err := readPayload(cmd.InOrStdin(), file)
		if err != nil {
			return err
		}

		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		res := st.Save(cmd.Context(), store.SaveRequest{
			Scene:    schema.Scene{ID: args[0], Index: index, OriginalDuration: duration},
			Clips:    payload.Clips,
			Playhead: payload.Playhead,
			Edits:    payload.Edits,
			Origin:   events.Origin(origin),
		})
		printWarnings(cmd.ErrOrStderr(), res.Warnings)
		if !res.OK {
			fmt.Fprintf(out, "%s Save rejected for %s\n", ui.RenderFail("✗"), args[0])
			fmt.Fprint(out, ui.List("-", res.Errors))
			return &exitError{Code: exitRejected, Message: "save rejected for " + args[0], Err: res.Err}
		}

		doc := res.Document
		fmt.Fprintf(out, "%s Saved %s\n", ui.RenderPass("✓"), doc.SceneID)
		fmt.Fprintf(out, "   Clips: %d\n", len(doc.Clips))
		fmt.Fprintf(out, "   Save count: %d\n", doc.Metadata.SaveCount)
		fmt.Fprintf(out, "   Checksum: %s\n", doc.Metadata.Checksum)
		if res.CleanedUp > 0 {
			fmt.Fprintf(out, "   Cleaned up: %d stale entries\n", res.CleanedUp)
		}
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:     "load <scene-id>",
	GroupID: "scenes",
	Short:   "Load a scene's timeline",
	Long: `Load a scene's document and print it to stdout.

The primary entry is tried first, then the backup, then a legacy entry.
A legacy entry is migrated to the current format on the way.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		if format != "json" && format != "yaml" {
			return fmt.Errorf("unknown format %q (want json or yaml)", format)
		}

		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		res := st.Load(cmd.Context(), args[0])
		printWarnings(cmd.ErrOrStderr(), res.Warnings)
		if !res.OK {
			return fmt.Errorf("failed to load %s: %w", args[0], res.Err)
		}
		if res.Source != store.SourcePrimary {
			fmt.Fprintf(cmd.ErrOrStderr(), "%s Loaded from %s entry\n", ui.RenderWarn("⚠"), res.Source)
		}

		return writeDocument(cmd.OutOrStdout(), res.Document, format)
	},
}

var deleteCmd = &cobra.Command{
	Use:     "delete <scene-id>",
	GroupID: "scenes",
	Short:   "Delete a scene's document and backup",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		if err := st.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to delete %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:     "list",
	GroupID: "scenes",
	Short:   "List scenes that have a saved document",
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, st, err := openStore()
		if err != nil {
			return err
		}
		defer backend.Close()

		scenes, err := st.ListScenes(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to list scenes: %w", err)
		}
		for _, id := range scenes {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
		return nil
	},
}

func writeDocument(w io.Writer, doc *schema.Document, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

func printWarnings(w io.Writer, warnings []string) {
	for _, msg := range warnings {
		fmt.Fprintf(w, "%s %s\n", ui.RenderWarn("⚠"), msg)
	}
}

func init() {
	saveCmd.Flags().StringP("file", "f", "-", "JSON input file (- for stdin)")
	saveCmd.Flags().Int("index", 0, "Scene index within the project")
	saveCmd.Flags().Float64("duration", schema.DefaultOriginalDuration, "Original scene duration in seconds")
	saveCmd.Flags().String("origin", string(events.OriginSurfaceA), "Editing surface recorded on the save notification")

	loadCmd.Flags().String("format", "json", "Output format: json or yaml")

	rootCmd.AddCommand(saveCmd, loadCmd, deleteCmd, listCmd)
}
