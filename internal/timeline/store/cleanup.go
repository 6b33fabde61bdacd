package store

import (
	"context"
	"fmt"
	"time"

	"github.com/clipforge/timeline/internal/timeline/schema"
)

// CleanupReport summarizes a Cleanup pass.
type CleanupReport struct {
	Scanned     int
	Removed     int
	RemovedKeys []string

	// Errors holds per-key failures. They do not abort the pass.
	Errors []error
}

// Cleanup evicts timeline and legacy entries older than MaxAge, and entries
// that cannot be parsed. Entries without any recorded time are kept.
func (s *Store) Cleanup(ctx context.Context) *CleanupReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanupLocked(ctx)
}

func (s *Store) cleanupLocked(ctx context.Context) *CleanupReport {
	report := &CleanupReport{}
	now := s.config.Now()

	for _, prefix := range []string{schema.KeyPrefix, schema.LegacyPrefix} {
		keys, err := s.backend.ListKeys(ctx, prefix)
		if err != nil {
			report.Errors = append(report.Errors, fmt.Errorf("failed to list %s entries: %w", prefix, err))
			continue
		}
		for _, key := range keys {
			report.Scanned++
			value, ok, err := s.backend.Get(ctx, key)
			if err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("failed to read %s: %w", key, err))
				continue
			}
			if !ok {
				continue
			}

			reason := ""
			raw, err := schema.ParseRaw(value)
			if err != nil {
				reason = "unparseable"
			} else if at, ok := recordedAt(raw); ok && now.Sub(at) > s.config.MaxAge {
				reason = fmt.Sprintf("last saved %s", at.Format(time.RFC3339))
			}
			if reason == "" {
				continue
			}

			if err := s.backend.Delete(ctx, key); err != nil {
				report.Errors = append(report.Errors, fmt.Errorf("failed to delete %s: %w", key, err))
				continue
			}
			report.Removed++
			report.RemovedKeys = append(report.RemovedKeys, key)
			s.logger.Printf("Cleanup removed %s (%s)", key, reason)
		}
	}

	s.config.Metrics.RecordCleanup(report.Removed)
	return report
}

// recordedAt finds the time an entry was last written. Current documents
// carry it in metadata; legacy entries may carry a top-level lastSaved or
// timestamp, either as an RFC 3339 string or as epoch milliseconds.
func recordedAt(raw map[string]any) (time.Time, bool) {
	if meta, ok := raw["metadata"].(map[string]any); ok {
		for _, field := range []string{"lastSaved", "lastModified"} {
			if t, ok := schema.ParseTimestamp(meta[field]); ok {
				return t, true
			}
		}
	}
	for _, field := range []string{"lastSaved", "timestamp"} {
		if t, ok := schema.ParseTimestamp(raw[field]); ok {
			return t, true
		}
	}
	return time.Time{}, false
}
