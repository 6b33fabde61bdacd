package kv

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// testDBPath returns a temporary path for test databases
func testDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "timeline.db")
}

func openTestSQLite(t *testing.T, path string) *SQLite {
	t.Helper()
	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLite_SetGetDelete(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t, testDBPath(t))

	if err := db.Set(ctx, "timeline::s1", `{"a":1}`); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := db.Set(ctx, "timeline::s1", `{"a":2}`); err != nil {
		t.Fatalf("second Set() failed: %v", err)
	}

	v, ok, err := db.Get(ctx, "timeline::s1")
	if err != nil || !ok {
		t.Fatalf("Get() = ok:%v err:%v", ok, err)
	}
	if v != `{"a":2}` {
		t.Errorf("value = %q, want the overwritten value", v)
	}

	if err := db.Delete(ctx, "timeline::s1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	if _, ok, _ := db.Get(ctx, "timeline::s1"); ok {
		t.Error("key still present after Delete()")
	}
	if err := db.Delete(ctx, "timeline::s1"); err != nil {
		t.Errorf("Delete() of a missing key should not fail: %v", err)
	}
}

func TestSQLite_ListKeysByPrefix(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t, testDBPath(t))

	for _, k := range []string{"timeline::b", "timeline::a", "timeline::backup::a", "timeline-z", "x"} {
		if err := db.Set(ctx, k, "{}"); err != nil {
			t.Fatalf("Set(%s) failed: %v", k, err)
		}
	}

	keys, err := db.ListKeys(ctx, "timeline::")
	if err != nil {
		t.Fatalf("ListKeys() failed: %v", err)
	}
	want := []string{"timeline::a", "timeline::b", "timeline::backup::a"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("ListKeys() mismatch (-want +got):\n%s", diff)
	}
}

func TestSQLite_ChangesSinceSkipsOwnWrites(t *testing.T) {
	ctx := context.Background()
	path := testDBPath(t)
	a := openTestSQLite(t, path)
	b := openTestSQLite(t, path)

	if err := a.Set(ctx, "timeline::s1", "{}"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := b.Set(ctx, "timeline::s2", "{}"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	if err := a.Delete(ctx, "timeline::s1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}

	changes, err := b.ChangesSince(ctx, 0)
	if err != nil {
		t.Fatalf("ChangesSince() failed: %v", err)
	}
	if len(changes) != 2 {
		t.Fatalf("got %d changes, want 2 (a's set and delete)", len(changes))
	}
	if changes[0].Key != "timeline::s1" || changes[0].Deleted {
		t.Errorf("first change = %+v, want set of timeline::s1", changes[0])
	}
	if !changes[1].Deleted {
		t.Errorf("second change = %+v, want delete", changes[1])
	}
	for _, c := range changes {
		if c.Writer == b.WriterID() {
			t.Errorf("own change returned: %+v", c)
		}
	}
}

func TestSQLite_PruneChanges(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t, testDBPath(t))

	if err := db.Set(ctx, "k", "v"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	n, err := db.PruneChanges(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("PruneChanges() failed: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d entries, want 1", n)
	}

	seq, err := db.LatestSeq(ctx)
	if err != nil {
		t.Fatalf("LatestSeq() failed: %v", err)
	}
	if seq != 0 {
		t.Errorf("LatestSeq() = %d after pruning everything, want 0", seq)
	}
}

func TestSQLite_SizeBytes(t *testing.T) {
	ctx := context.Background()
	db := openTestSQLite(t, testDBPath(t))

	if err := db.Set(ctx, "abc", "12345"); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}
	size, err := db.SizeBytes(ctx)
	if err != nil {
		t.Fatalf("SizeBytes() failed: %v", err)
	}
	if size != 8 {
		t.Errorf("SizeBytes() = %d, want 8", size)
	}
}
