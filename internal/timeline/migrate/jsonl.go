// Package migrate dumps and restores timeline documents as JSONL, one
// document per line.
package migrate

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/store"
)

// ExportOptions contains configuration for an export
type ExportOptions struct {
	ToJSONL string // Output JSONL file path
}

// ExportResult contains statistics about an export
type ExportResult struct {
	Exported int
	Errors   []string
}

// ImportOptions contains configuration for an import
type ImportOptions struct {
	FromJSONL string // Input JSONL file path
	DryRun    bool   // Preview without writing
	Backup    bool   // Copy the input file before importing
	Overwrite bool   // Replace scenes that already have a document
}

// ImportResult contains statistics about an import
type ImportResult struct {
	Imported      int
	Skipped       int
	BackupCreated string
	Errors        []string
}

// ReadJSONL decodes one document per line.
func ReadJSONL(r io.Reader) ([]*schema.Document, error) {
	var docs []*schema.Document
	decoder := json.NewDecoder(r)
	lineNum := 0

	for {
		var doc schema.Document
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON at line %d: %w", lineNum+1, err)
		}
		lineNum++
		if doc.Clips == nil {
			doc.Clips = []schema.Clip{}
		}
		docs = append(docs, &doc)
	}

	return docs, nil
}

// FromJSONL reads a JSONL file and returns the parsed documents
func FromJSONL(path string) ([]*schema.Document, error) {
	// #nosec G304 - controlled path from CLI
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open JSONL file: %w", err)
	}
	defer file.Close()
	return ReadJSONL(file)
}

// WriteJSONL writes documents to w, one per line.
func WriteJSONL(w io.Writer, docs []*schema.Document) error {
	encoder := json.NewEncoder(w)
	for _, doc := range docs {
		if err := encoder.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode %s: %w", doc.SceneID, err)
		}
	}
	return nil
}

// Export writes every scene that loads successfully to opts.ToJSONL. The
// file is written atomically via a temp file.
func Export(ctx context.Context, st *store.Store, opts ExportOptions) (*ExportResult, error) {
	result := &ExportResult{}

	scenes, err := st.ListScenes(ctx)
	if err != nil {
		return nil, err
	}

	var docs []*schema.Document
	for _, sceneID := range scenes {
		res := st.Load(ctx, sceneID)
		if !res.OK {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to load %s: %v", sceneID, res.Err))
			continue
		}
		docs = append(docs, res.Document)
	}

	if err := os.MkdirAll(filepath.Dir(opts.ToJSONL), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	tmpPath := opts.ToJSONL + ".tmp"
	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	buf := bufio.NewWriter(file)
	if err := WriteJSONL(buf, docs); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := buf.Flush(); err != nil {
		file.Close()
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, opts.ToJSONL); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename temp file: %w", err)
	}

	result.Exported = len(docs)
	return result, nil
}

// Import saves every document in opts.FromJSONL through the store, so each
// one is validated and backed up like any other save.
func Import(ctx context.Context, st *store.Store, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}

	if _, err := os.Stat(opts.FromJSONL); err != nil {
		return nil, fmt.Errorf("input file does not exist: %w", err)
	}

	if opts.Backup && !opts.DryRun {
		backupPath := opts.FromJSONL + ".backup." + time.Now().Format("20060102-150405")
		input, err := os.ReadFile(opts.FromJSONL)
		if err != nil {
			return nil, fmt.Errorf("failed to read input for backup: %w", err)
		}
		if err := os.WriteFile(backupPath, input, 0600); err != nil {
			return nil, fmt.Errorf("failed to create backup: %w", err)
		}
		result.BackupCreated = backupPath
	}

	docs, err := FromJSONL(opts.FromJSONL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JSONL: %w", err)
	}

	for _, doc := range docs {
		if !opts.Overwrite {
			_, exists, err := st.Backend().Get(ctx, schema.PrimaryKey(doc.SceneID))
			if err != nil {
				result.Errors = append(result.Errors,
					fmt.Sprintf("failed to check %s: %v", doc.SceneID, err))
				continue
			}
			if exists {
				result.Skipped++
				continue
			}
		}

		if opts.DryRun {
			result.Imported++
			continue
		}

		res := st.Save(ctx, store.SaveRequest{
			Scene: schema.Scene{
				ID:               doc.SceneID,
				Index:            doc.SceneIndex,
				OriginalDuration: doc.OriginalDuration,
			},
			Clips:    doc.Clips,
			Playhead: doc.Playhead,
			Edits:    doc.Edits,
			Origin:   events.OriginSystem,
		})
		if !res.OK {
			result.Errors = append(result.Errors,
				fmt.Sprintf("failed to import %s: %v", doc.SceneID, res.Errors))
			continue
		}
		result.Imported++
	}

	return result, nil
}
