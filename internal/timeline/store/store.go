package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/clipforge/timeline/internal/metrics"
	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/kv"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

const (
	// DefaultBudgetBytes is the storage budget the cleanup threshold is
	// measured against.
	DefaultBudgetBytes = 50 * 1024 * 1024

	// DefaultCleanupThreshold is the fraction of the budget above which
	// Save cleans up first.
	DefaultCleanupThreshold = 0.8

	// DefaultMaxAge is how old an entry must be before cleanup evicts it.
	DefaultMaxAge = 30 * 24 * time.Hour
)

// Config holds configuration for the store.
type Config struct {
	BudgetBytes      int64
	CleanupThreshold float64
	MaxAge           time.Duration

	// Logger for store activity (default: stderr logger)
	Logger *log.Logger

	// Metrics is optional.
	Metrics *metrics.Metrics

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BudgetBytes:      DefaultBudgetBytes,
		CleanupThreshold: DefaultCleanupThreshold,
		MaxAge:           DefaultMaxAge,
		Logger:           log.New(os.Stderr, "[store] ", log.LstdFlags),
		Now:              time.Now,
	}
}

// Store reads and writes timeline documents.
type Store struct {
	backend kv.Backend
	bus     *events.Bus
	config  *Config
	logger  *log.Logger

	mu sync.Mutex
}

// New creates a Store over backend. bus may be nil, in which case no
// notifications are published.
func New(backend kv.Backend, bus *events.Bus, config *Config) (*Store, error) {
	if backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	defaults := DefaultConfig()
	if config == nil {
		config = defaults
	}
	if config.BudgetBytes <= 0 {
		config.BudgetBytes = defaults.BudgetBytes
	}
	if config.CleanupThreshold <= 0 || config.CleanupThreshold > 1 {
		config.CleanupThreshold = defaults.CleanupThreshold
	}
	if config.MaxAge <= 0 {
		config.MaxAge = defaults.MaxAge
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	return &Store{
		backend: backend,
		bus:     bus,
		config:  config,
		logger:  config.Logger,
	}, nil
}

// Backend returns the underlying key-value backend.
func (s *Store) Backend() kv.Backend {
	return s.backend
}

// SaveRequest is a candidate document produced by an editing surface.
type SaveRequest struct {
	Scene    schema.Scene
	Clips    []schema.Clip
	Playhead float64
	Edits    schema.Edits
	Origin   events.Origin
}

// SaveResult reports the outcome of Save.
type SaveResult struct {
	OK       bool
	Document *schema.Document
	Errors   []string
	Warnings []string
	Err      error

	// CleanedUp is the number of entries evicted by a pre-save cleanup.
	CleanedUp int
}

// Save validates and persists a scene's document. On fatal validation
// errors nothing is written.
func (s *Store) Save(ctx context.Context, req SaveRequest) *SaveResult {
	res := s.save(ctx, req)
	if !res.OK {
		s.config.Metrics.RecordSave("rejected")
		return res
	}
	s.config.Metrics.RecordSave("ok")

	origin := req.Origin
	if origin == "" {
		origin = events.OriginSystem
	}
	s.publish(events.Notification{
		Kind:    events.KindSave,
		SceneID: res.Document.SceneID,
		Origin:  origin,
		Save: &events.SaveInfo{
			ClipCount: len(res.Document.Clips),
			Playhead:  res.Document.Playhead,
			SaveCount: res.Document.Metadata.SaveCount,
		},
		Document: res.Document.Clone(),
	})
	return res
}

func (s *Store) save(ctx context.Context, req SaveRequest) *SaveResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := &SaveResult{}
	now := s.config.Now()

	usage, err := s.usageLocked(ctx)
	if err != nil {
		s.logger.Printf("Warning: failed to measure storage usage: %v", err)
	} else if usage.Percent > s.config.CleanupThreshold*100 {
		s.logger.Printf("Storage at %.1f%% of budget, cleaning up before save", usage.Percent)
		report := s.cleanupLocked(ctx)
		res.CleanedUp = report.Removed
		for _, cerr := range report.Errors {
			res.Warnings = append(res.Warnings, fmt.Sprintf("cleanup: %v", cerr))
		}
	}

	primaryKey := schema.PrimaryKey(req.Scene.ID)
	previous, hasPrevious, err := s.backend.Get(ctx, primaryKey)
	if err != nil {
		return failSave(res, fmt.Errorf("failed to read current document: %w", err))
	}

	doc := &schema.Document{
		SchemaVersion:    schema.SchemaVersion,
		SceneID:          req.Scene.ID,
		SceneIndex:       req.Scene.Index,
		OriginalDuration: req.Scene.OriginalDuration,
		Clips:            append([]schema.Clip{}, req.Clips...),
		Playhead:         req.Playhead,
		Edits:            req.Edits,
		Metadata: schema.Metadata{
			LastSaved:    now,
			LastModified: now,
			SaveCount:    1,
		},
	}
	doc.Metadata.Checksum = validate.DocumentChecksum(doc)
	if hasPrevious {
		carryForward(doc, previous)
	}

	raw, err := doc.ToMap()
	if err != nil {
		return failSave(res, err)
	}
	validated, vres, err := validate.DecodeAt(raw, now)
	for _, w := range vres.Warnings {
		// The candidate checksum predates clip recovery and is recomputed below.
		if !strings.HasPrefix(w, "checksum mismatch") {
			res.Warnings = append(res.Warnings, w)
		}
	}
	if err != nil {
		res.Errors = append(res.Errors, vres.Errors...)
		res.Err = err
		return res
	}
	// Recovery may have dropped clips; the stored checksum must describe
	// what is actually written.
	validated.Metadata.Checksum = validate.DocumentChecksum(validated)

	value, err := validated.Marshal()
	if err != nil {
		return failSave(res, err)
	}

	if hasPrevious {
		if err := s.backend.Set(ctx, schema.BackupKey(req.Scene.ID), previous); err != nil {
			return failSave(res, fmt.Errorf("failed to write backup: %w", err))
		}
	}
	if err := s.backend.Set(ctx, primaryKey, value); err != nil {
		return failSave(res, fmt.Errorf("failed to write document: %w", err))
	}

	res.OK = true
	res.Document = validated
	return res
}

// carryForward continues the save count of the previous primary document
// and keeps its lastModified when the content is unchanged.
func carryForward(doc *schema.Document, previous string) {
	raw, err := schema.ParseRaw(previous)
	if err != nil {
		return
	}
	meta, ok := raw["metadata"].(map[string]any)
	if !ok {
		return
	}
	if n, ok := meta["saveCount"].(float64); ok && n >= 1 {
		doc.Metadata.SaveCount = int(n) + 1
	}
	if sum, _ := meta["checksum"].(string); sum == doc.Metadata.Checksum {
		if s, ok := meta["lastModified"].(string); ok {
			if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
				doc.Metadata.LastModified = t
			}
		}
	}
}

func failSave(res *SaveResult, err error) *SaveResult {
	res.OK = false
	res.Err = err
	res.Errors = append(res.Errors, err.Error())
	return res
}

// Delete removes a scene's primary and backup entries. Missing entries are
// not an error.
func (s *Store) Delete(ctx context.Context, sceneID string) error {
	s.mu.Lock()
	var errs []error
	for _, key := range []string{schema.PrimaryKey(sceneID), schema.BackupKey(sceneID)} {
		if err := s.backend.Delete(ctx, key); err != nil {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", key, err))
		}
	}
	s.mu.Unlock()

	if err := errors.Join(errs...); err != nil {
		return err
	}

	s.config.Metrics.RecordDelete()
	s.publish(events.Notification{
		Kind:    events.KindDelete,
		SceneID: sceneID,
		Origin:  events.OriginSystem,
	})
	return nil
}

// ListScenes returns the ids of scenes with a primary document.
func (s *Store) ListScenes(ctx context.Context) ([]string, error) {
	keys, err := s.backend.ListKeys(ctx, schema.KeyPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to list scenes: %w", err)
	}
	var ids []string
	for _, key := range keys {
		if kind, id := schema.ParseKey(key); kind == schema.KeyPrimary {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *Store) publish(n events.Notification) {
	if s.bus == nil {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = s.config.Now()
	}
	// Listener failures are already logged by the bus.
	_ = s.bus.Publish(n)
}
