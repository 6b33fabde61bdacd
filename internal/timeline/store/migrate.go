package store

import (
	"context"
	"fmt"

	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

// MigrationReport summarizes a MigrateLegacy pass.
type MigrationReport struct {
	Migrated []string
	Skipped  []string
	Failed   map[string]error
}

// MigrateLegacy converts every legacy entry that has no primary document.
// Legacy entries shadowed by a primary document are left for cleanup.
func (s *Store) MigrateLegacy(ctx context.Context) (*MigrationReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, err := s.backend.ListKeys(ctx, schema.LegacyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list legacy entries: %w", err)
	}

	report := &MigrationReport{Failed: make(map[string]error)}
	for _, key := range keys {
		kind, sceneID := schema.ParseKey(key)
		if kind != schema.KeyLegacy {
			continue
		}
		if _, exists, err := s.backend.Get(ctx, schema.PrimaryKey(sceneID)); err != nil {
			report.Failed[sceneID] = err
			continue
		} else if exists {
			report.Skipped = append(report.Skipped, sceneID)
			continue
		}

		value, ok, err := s.backend.Get(ctx, key)
		if err != nil {
			report.Failed[sceneID] = err
			continue
		}
		if !ok {
			continue
		}
		if _, _, err := s.migrateLocked(ctx, sceneID, value); err != nil {
			report.Failed[sceneID] = err
			continue
		}
		report.Migrated = append(report.Migrated, sceneID)
	}
	s.logger.Printf("Migrated %d legacy entries (%d skipped, %d failed)",
		len(report.Migrated), len(report.Skipped), len(report.Failed))
	return report, nil
}

// migrateLocked upgrades a legacy value to the current schema, writes it
// under the primary key and removes the legacy entry. If the primary write
// fails the document is still returned and the legacy entry is kept.
func (s *Store) migrateLocked(ctx context.Context, sceneID, value string) (*schema.Document, []string, error) {
	legacy, err := schema.ParseRaw(value)
	if err != nil {
		return nil, nil, err
	}

	raw := map[string]any{
		"schemaVersion":    schema.SchemaVersion,
		"sceneId":          sceneID,
		"sceneIndex":       legacyField(legacy, "sceneIndex", 0.0),
		"originalDuration": legacyField(legacy, "originalDuration", schema.DefaultOriginalDuration),
		"clips":            legacyField(legacy, "clips", []any{}),
		"playhead":         legacyField(legacy, "playhead", 0.0),
		"edits":            legacyField(legacy, "edits", map[string]any{}),
	}

	now := s.config.Now()
	doc, vres, err := validate.DecodeAt(raw, now)
	if err != nil {
		return nil, vres.Warnings, err
	}
	// Legacy entries carry no metadata block; start a fresh history.
	doc.Metadata.LastSaved = now
	doc.Metadata.LastModified = now
	doc.Metadata.SaveCount = 1
	doc.Metadata.Checksum = validate.DocumentChecksum(doc)

	// The synthesized-metadata warning describes the upgrade itself.
	var warnings []string
	for _, w := range vres.Warnings {
		if w != validate.WarnMetadataMissing {
			warnings = append(warnings, w)
		}
	}

	stored, err := doc.Marshal()
	if err != nil {
		return nil, warnings, err
	}
	if err := s.backend.Set(ctx, schema.PrimaryKey(sceneID), stored); err != nil {
		s.logger.Printf("Warning: failed to persist migrated document for %s: %v", sceneID, err)
		return doc, append(warnings, fmt.Sprintf("migration not persisted: %v", err)), nil
	}
	if err := s.backend.Delete(ctx, schema.LegacyKey(sceneID)); err != nil {
		s.logger.Printf("Warning: failed to remove legacy entry for %s: %v", sceneID, err)
		warnings = append(warnings, fmt.Sprintf("legacy entry not removed: %v", err))
	}
	s.logger.Printf("Migrated legacy entry for %s", sceneID)
	return doc, warnings, nil
}

func legacyField(legacy map[string]any, name string, fallback any) any {
	if v, ok := legacy[name]; ok && v != nil {
		return v
	}
	return fallback
}
