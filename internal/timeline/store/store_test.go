package store

import (
	"context"
	"errors"
	"io"
	"log"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/clipforge/timeline/internal/metrics"
	"github.com/clipforge/timeline/internal/timeline/events"
	"github.com/clipforge/timeline/internal/timeline/kv"
	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

var baseTime = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

// testClock is a manually advanced clock.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestStore(t *testing.T, backend kv.Backend, bus *events.Bus) (*Store, *testClock) {
	t.Helper()
	clock := &testClock{now: baseTime}
	config := DefaultConfig()
	config.Logger = log.New(io.Discard, "", 0)
	config.Metrics = metrics.New(nil)
	config.Now = clock.Now
	s, err := New(backend, bus, config)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return s, clock
}

func testClips() []schema.Clip {
	return []schema.Clip{
		{ID: "c1", StartTime: 0, Duration: 2, MediaStart: 0, MediaEnd: 2, Kind: schema.ClipVideo},
		{ID: "c2", StartTime: 2, Duration: 3, MediaStart: 1, MediaEnd: 4, Kind: schema.ClipAudio},
	}
}

func testRequest(sceneID string) SaveRequest {
	return SaveRequest{
		Scene:    schema.Scene{ID: sceneID, Index: 1, OriginalDuration: 12},
		Clips:    testClips(),
		Playhead: 1.5,
		Edits:    schema.Edits{Volume: schema.Float(80)},
		Origin:   events.OriginSurfaceA,
	}
}

func TestNewRequiresBackend(t *testing.T) {
	if _, err := New(nil, nil, nil); err == nil {
		t.Fatal("New(nil) should fail")
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kv.NewMemory(), nil)

	saved := s.Save(ctx, testRequest("scene-1"))
	if !saved.OK {
		t.Fatalf("Save() failed: %v", saved.Errors)
	}
	if saved.Document.Metadata.SaveCount != 1 {
		t.Errorf("SaveCount = %d, want 1", saved.Document.Metadata.SaveCount)
	}

	loaded := s.Load(ctx, "scene-1")
	if !loaded.OK {
		t.Fatalf("Load() failed: %v", loaded.Errors)
	}
	if loaded.Source != SourcePrimary {
		t.Errorf("Source = %s, want primary", loaded.Source)
	}
	if diff := cmp.Diff(testClips(), loaded.Document.Clips); diff != "" {
		t.Errorf("clips mismatch (-want +got):\n%s", diff)
	}
	if loaded.Document.Playhead != 1.5 {
		t.Errorf("Playhead = %v, want 1.5", loaded.Document.Playhead)
	}
	if loaded.Document.Edits.Volume == nil || *loaded.Document.Edits.Volume != 80 {
		t.Errorf("Edits.Volume = %v, want 80", loaded.Document.Edits.Volume)
	}
	if len(loaded.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", loaded.Warnings)
	}
}

func TestSaveIncrementsSaveCount(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, kv.NewMemory(), nil)

	for i := 1; i <= 3; i++ {
		res := s.Save(ctx, testRequest("scene-1"))
		if !res.OK {
			t.Fatalf("Save() #%d failed: %v", i, res.Errors)
		}
		if res.Document.Metadata.SaveCount != i {
			t.Errorf("Save() #%d SaveCount = %d", i, res.Document.Metadata.SaveCount)
		}
		clock.Advance(time.Minute)
	}
}

func TestSaveChecksumStable(t *testing.T) {
	ctx := context.Background()
	s, clock := newTestStore(t, kv.NewMemory(), nil)

	first := s.Save(ctx, testRequest("scene-1"))
	clock.Advance(time.Hour)
	second := s.Save(ctx, testRequest("scene-1"))
	if !first.OK || !second.OK {
		t.Fatalf("Save() failed: %v %v", first.Errors, second.Errors)
	}
	if first.Document.Metadata.Checksum != second.Document.Metadata.Checksum {
		t.Errorf("checksum changed for identical content: %s vs %s",
			first.Document.Metadata.Checksum, second.Document.Metadata.Checksum)
	}
	if !second.Document.Metadata.LastModified.Equal(baseTime) {
		t.Errorf("LastModified = %v, want unchanged %v", second.Document.Metadata.LastModified, baseTime)
	}
	if !second.Document.Metadata.LastSaved.Equal(baseTime.Add(time.Hour)) {
		t.Errorf("LastSaved = %v, want %v", second.Document.Metadata.LastSaved, baseTime.Add(time.Hour))
	}

	changed := testRequest("scene-1")
	changed.Playhead = 3
	third := s.Save(ctx, changed)
	if third.Document.Metadata.Checksum == second.Document.Metadata.Checksum {
		t.Error("checksum should change when the playhead moves")
	}
}

func TestSaveRejectsUnrecoverable(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	tests := []struct {
		name string
		req  SaveRequest
	}{
		{"missing scene id", SaveRequest{Clips: testClips()}},
		{"no clips", SaveRequest{Scene: schema.Scene{ID: "scene-1"}}},
		{"only invalid clips", SaveRequest{
			Scene: schema.Scene{ID: "scene-1"},
			Clips: []schema.Clip{{ID: "bad", Duration: -1, MediaEnd: 1, Kind: schema.ClipVideo}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := s.Save(ctx, tt.req)
			if res.OK {
				t.Fatal("Save() should fail")
			}
			if len(res.Errors) == 0 {
				t.Error("expected errors")
			}
			if !errors.Is(res.Err, schema.ErrValidation) {
				t.Errorf("Err = %v, want ErrValidation", res.Err)
			}
		})
	}

	keys, _ := backend.ListKeys(ctx, "")
	if len(keys) != 0 {
		t.Errorf("rejected saves wrote keys: %v", keys)
	}
}

func TestSaveRejectedKeepsPreviousState(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	if res := s.Save(ctx, testRequest("scene-1")); !res.OK {
		t.Fatalf("Save() failed: %v", res.Errors)
	}
	before, _, _ := backend.Get(ctx, schema.PrimaryKey("scene-1"))

	bad := testRequest("scene-1")
	bad.Clips = nil
	if res := s.Save(ctx, bad); res.OK {
		t.Fatal("Save() with no clips should fail")
	}

	after, _, _ := backend.Get(ctx, schema.PrimaryKey("scene-1"))
	if before != after {
		t.Error("primary entry changed after a rejected save")
	}
	if _, ok, _ := backend.Get(ctx, schema.BackupKey("scene-1")); ok {
		t.Error("rejected save should not write a backup")
	}
}

func TestSaveDropsInvalidClips(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kv.NewMemory(), nil)

	req := testRequest("scene-1")
	req.Clips = append(req.Clips, schema.Clip{ID: "", Duration: 1, MediaEnd: 1, Kind: schema.ClipText})
	res := s.Save(ctx, req)
	if !res.OK {
		t.Fatalf("Save() failed: %v", res.Errors)
	}
	if len(res.Document.Clips) != 2 {
		t.Errorf("saved %d clips, want 2", len(res.Document.Clips))
	}
	if len(res.Warnings) == 0 {
		t.Error("expected a warning for the dropped clip")
	}
	if got := validate.DocumentChecksum(res.Document); got != res.Document.Metadata.Checksum {
		t.Errorf("stored checksum %s does not describe stored content (%s)", res.Document.Metadata.Checksum, got)
	}

	loaded := s.Load(ctx, "scene-1")
	if len(loaded.Warnings) != 0 {
		t.Errorf("reload warnings: %v", loaded.Warnings)
	}
}

func TestSaveWritesBackup(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	s.Save(ctx, testRequest("scene-1"))
	if _, ok, _ := backend.Get(ctx, schema.BackupKey("scene-1")); ok {
		t.Error("first save should not create a backup")
	}
	first, _, _ := backend.Get(ctx, schema.PrimaryKey("scene-1"))

	s.Save(ctx, testRequest("scene-1"))
	backup, ok, _ := backend.Get(ctx, schema.BackupKey("scene-1"))
	if !ok {
		t.Fatal("second save should create a backup")
	}
	if backup != first {
		t.Error("backup should be the previous primary value verbatim")
	}
}

func TestSavePublishesNotification(t *testing.T) {
	ctx := context.Background()
	bus := events.NewBus(log.New(io.Discard, "", 0))
	s, _ := newTestStore(t, kv.NewMemory(), bus)

	var got []events.Notification
	bus.Subscribe(events.KindSave, func(n events.Notification) error {
		got = append(got, n)
		return nil
	})

	s.Save(ctx, testRequest("scene-1"))
	if len(got) != 1 {
		t.Fatalf("got %d notifications, want 1", len(got))
	}
	n := got[0]
	if n.SceneID != "scene-1" || n.Origin != events.OriginSurfaceA {
		t.Errorf("notification = %+v", n)
	}
	want := &events.SaveInfo{ClipCount: 2, Playhead: 1.5, SaveCount: 1}
	if diff := cmp.Diff(want, n.Save); diff != "" {
		t.Errorf("save info mismatch (-want +got):\n%s", diff)
	}
	if !n.Timestamp.Equal(baseTime) {
		t.Errorf("Timestamp = %v, want %v", n.Timestamp, baseTime)
	}
}

func TestLoadFallsBackToBackup(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	s.Save(ctx, testRequest("scene-42"))
	s.Save(ctx, testRequest("scene-42"))
	if err := backend.Set(ctx, schema.PrimaryKey("scene-42"), "{not json"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	res := s.Load(ctx, "scene-42")
	if !res.OK {
		t.Fatalf("Load() failed: %v", res.Errors)
	}
	if res.Source != SourceBackup {
		t.Errorf("Source = %s, want backup", res.Source)
	}
	if res.Document.Metadata.SaveCount != 1 {
		t.Errorf("SaveCount = %d, want the backup's 1", res.Document.Metadata.SaveCount)
	}
	if len(res.Warnings) == 0 || !strings.Contains(res.Warnings[0], "primary") {
		t.Errorf("expected a warning about the primary entry, got %v", res.Warnings)
	}
}

func TestLoadFallsBackOnUnrecoverablePrimary(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	s.Save(ctx, testRequest("scene-1"))
	s.Save(ctx, testRequest("scene-1"))
	backend.Set(ctx, schema.PrimaryKey("scene-1"), `{"sceneId":"scene-1","clips":"nope"}`)

	res := s.Load(ctx, "scene-1")
	if !res.OK || res.Source != SourceBackup {
		t.Fatalf("Load() = ok %v source %s, want backup", res.OK, res.Source)
	}
}

func TestLoadMigratesLegacy(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	bus := events.NewBus(log.New(io.Discard, "", 0))
	s, _ := newTestStore(t, backend, bus)

	legacy := `{"clips":[{"id":"a","startTime":0,"duration":2,"mediaStart":0,"mediaEnd":2,"type":"video"}],"playhead":1}`
	backend.Set(ctx, schema.LegacyKey("scene-7"), legacy)

	var loads int
	bus.Subscribe(events.KindLoad, func(n events.Notification) error {
		loads++
		return nil
	})

	res := s.Load(ctx, "scene-7")
	if !res.OK {
		t.Fatalf("Load() failed: %v", res.Errors)
	}
	if res.Source != SourceLegacy || !res.Migrated {
		t.Errorf("Source = %s Migrated = %v, want legacy migration", res.Source, res.Migrated)
	}
	doc := res.Document
	if doc.SchemaVersion != schema.SchemaVersion || doc.SceneID != "scene-7" {
		t.Errorf("document header = %s/%s", doc.SchemaVersion, doc.SceneID)
	}
	if len(doc.Clips) != 1 || doc.Playhead != 1 {
		t.Errorf("document content = %d clips, playhead %v", len(doc.Clips), doc.Playhead)
	}
	if doc.Metadata.SaveCount != 1 || doc.Metadata.Checksum == "" {
		t.Errorf("metadata = %+v", doc.Metadata)
	}
	if loads != 1 {
		t.Errorf("load notifications = %d, want 1", loads)
	}

	if _, ok, _ := backend.Get(ctx, schema.LegacyKey("scene-7")); ok {
		t.Error("legacy entry should be removed after migration")
	}
	if _, ok, _ := backend.Get(ctx, schema.PrimaryKey("scene-7")); !ok {
		t.Error("migrated document should be stored under the primary key")
	}

	again := s.Load(ctx, "scene-7")
	if !again.OK || again.Source != SourcePrimary || again.Migrated {
		t.Errorf("second Load() = source %s migrated %v", again.Source, again.Migrated)
	}
}

func TestLoadNotFound(t *testing.T) {
	s, _ := newTestStore(t, kv.NewMemory(), nil)

	res := s.Load(context.Background(), "missing")
	if res.OK {
		t.Fatal("Load() should fail")
	}
	if !errors.Is(res.Err, schema.ErrNotFound) {
		t.Errorf("Err = %v, want ErrNotFound", res.Err)
	}
}

func TestLoadAllSourcesCorrupt(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	backend.Set(ctx, schema.PrimaryKey("scene-1"), "garbage")
	backend.Set(ctx, schema.BackupKey("scene-1"), "null")

	res := s.Load(ctx, "scene-1")
	if res.OK {
		t.Fatal("Load() should fail")
	}
	if !errors.Is(res.Err, schema.ErrCorruption) {
		t.Errorf("Err = %v, want ErrCorruption", res.Err)
	}
	if len(res.Warnings) != 2 {
		t.Errorf("warnings = %v, want one per source", res.Warnings)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	bus := events.NewBus(log.New(io.Discard, "", 0))
	s, _ := newTestStore(t, backend, bus)

	var deleted []string
	bus.Subscribe(events.KindDelete, func(n events.Notification) error {
		deleted = append(deleted, n.SceneID)
		return nil
	})

	s.Save(ctx, testRequest("scene-1"))
	s.Save(ctx, testRequest("scene-1"))
	if err := s.Delete(ctx, "scene-1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	keys, _ := backend.ListKeys(ctx, "")
	if len(keys) != 0 {
		t.Errorf("keys after delete: %v", keys)
	}
	if res := s.Load(ctx, "scene-1"); res.OK {
		t.Error("Load() after Delete() should fail")
	}
	if diff := cmp.Diff([]string{"scene-1"}, deleted); diff != "" {
		t.Errorf("delete notifications mismatch (-want +got):\n%s", diff)
	}

	if err := s.Delete(ctx, "never-saved"); err != nil {
		t.Errorf("Delete() of a missing scene failed: %v", err)
	}
}

func TestListScenes(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStore(t, kv.NewMemory(), nil)

	s.Save(ctx, testRequest("scene-2"))
	s.Save(ctx, testRequest("scene-1"))
	s.Save(ctx, testRequest("scene-1"))

	ids, err := s.ListScenes(ctx)
	if err != nil {
		t.Fatalf("ListScenes() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"scene-1", "scene-2"}, ids); diff != "" {
		t.Errorf("scenes mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadRepairsFieldsInPlace(t *testing.T) {
	ctx := context.Background()
	backend := kv.NewMemory()
	s, _ := newTestStore(t, backend, nil)

	clips := []schema.Clip{{ID: "a", Duration: 2, MediaEnd: 2, Kind: schema.ClipVideo}}
	checksum := validate.Checksum(clips, 0, schema.Edits{})
	saved := baseTime.Add(-time.Hour)
	value := `{"schemaVersion":"1.0.0","sceneId":"scene-1","sceneIndex":1e20,"originalDuration":10,` +
		`"clips":[{"id":"a","startTime":0,"duration":2,"mediaStart":0,"mediaEnd":2,"type":"video"}],` +
		`"playhead":0,"edits":{},"metadata":{"lastSaved":` + strconv.FormatInt(saved.UnixMilli(), 10) +
		`,"lastModified":"` + saved.Format(time.RFC3339) + `","saveCount":7,"checksum":"` + checksum + `"}}`
	backend.Set(ctx, schema.PrimaryKey("scene-1"), value)

	res := s.Load(ctx, "scene-1")
	if !res.OK {
		t.Fatalf("Load() failed: %v", res.Err)
	}
	if res.Source != SourcePrimary {
		t.Errorf("Source = %s, want primary", res.Source)
	}
	if res.Document.SceneIndex != 0 {
		t.Errorf("sceneIndex = %d, want 0", res.Document.SceneIndex)
	}
	if res.Document.Metadata.SaveCount != 7 {
		t.Errorf("saveCount = %d, want 7", res.Document.Metadata.SaveCount)
	}
	if !res.Document.Metadata.LastSaved.Equal(saved) {
		t.Errorf("lastSaved = %v, want %v", res.Document.Metadata.LastSaved, saved)
	}
}
