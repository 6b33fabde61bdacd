package store

import (
	"context"
	"fmt"

	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

// Source names the entry a document was loaded from.
type Source string

const (
	SourcePrimary Source = "primary"
	SourceBackup  Source = "backup"
	SourceLegacy  Source = "legacy"
)

// LoadResult reports the outcome of Load.
type LoadResult struct {
	OK       bool
	Document *schema.Document
	Source   Source

	// Migrated is set when the document came from a legacy entry and was
	// rewritten under the primary key.
	Migrated bool

	Warnings []string
	Errors   []string
	Err      error
}

// Load returns a scene's document, falling back from the primary entry to
// the backup entry and then to a legacy entry. A source is skipped when it
// is missing, cannot be parsed, or fails validation beyond recovery.
func (s *Store) Load(ctx context.Context, sceneID string) *LoadResult {
	s.mu.Lock()
	res := s.loadLocked(ctx, sceneID)
	s.mu.Unlock()

	if !res.OK {
		return res
	}
	s.config.Metrics.RecordLoad(string(res.Source))
	s.publish(events.Notification{
		Kind:     events.KindLoad,
		SceneID:  sceneID,
		Origin:   events.OriginSystem,
		Document: res.Document.Clone(),
	})
	return res
}

func (s *Store) loadLocked(ctx context.Context, sceneID string) *LoadResult {
	res := &LoadResult{}
	sawCorruption := false

	sources := []struct {
		source Source
		key    string
	}{
		{SourcePrimary, schema.PrimaryKey(sceneID)},
		{SourceBackup, schema.BackupKey(sceneID)},
	}
	for _, src := range sources {
		value, ok, err := s.backend.Get(ctx, src.key)
		if err != nil {
			res.Err = fmt.Errorf("failed to read %s entry: %w", src.source, err)
			res.Errors = append(res.Errors, res.Err.Error())
			return res
		}
		if !ok {
			continue
		}
		doc, warnings, err := s.decode(value)
		if err != nil {
			sawCorruption = true
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s entry unusable: %v", src.source, err))
			s.logger.Printf("Warning: %s entry for %s unusable: %v", src.source, sceneID, err)
			continue
		}
		res.OK = true
		res.Document = doc
		res.Source = src.source
		res.Warnings = append(res.Warnings, warnings...)
		return res
	}

	value, ok, err := s.backend.Get(ctx, schema.LegacyKey(sceneID))
	if err != nil {
		res.Err = fmt.Errorf("failed to read legacy entry: %w", err)
		res.Errors = append(res.Errors, res.Err.Error())
		return res
	}
	if ok {
		doc, warnings, err := s.migrateLocked(ctx, sceneID, value)
		res.Warnings = append(res.Warnings, warnings...)
		if err == nil {
			res.OK = true
			res.Document = doc
			res.Source = SourceLegacy
			res.Migrated = true
			return res
		}
		sawCorruption = true
		res.Warnings = append(res.Warnings, fmt.Sprintf("legacy entry unusable: %v", err))
	}

	if sawCorruption {
		res.Err = fmt.Errorf("no usable document for scene %s: %w", sceneID, schema.ErrCorruption)
	} else {
		res.Err = fmt.Errorf("no document for scene %s: %w", sceneID, schema.ErrNotFound)
	}
	res.Errors = append(res.Errors, res.Err.Error())
	return res
}

// decode parses and validates a stored value, applying any recovery.
func (s *Store) decode(value string) (*schema.Document, []string, error) {
	raw, err := schema.ParseRaw(value)
	if err != nil {
		return nil, nil, err
	}
	doc, vres, err := validate.DecodeAt(raw, s.config.Now())
	if err != nil {
		return nil, vres.Warnings, err
	}
	return doc, vres.Warnings, nil
}
