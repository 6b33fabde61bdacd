package schema

import (
	"testing"
	"time"
)

func sampleDocument() *Document {
	now := time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)
	return &Document{
		SchemaVersion:    SchemaVersion,
		SceneID:          "scene-1",
		SceneIndex:       2,
		OriginalDuration: 12,
		Clips: []Clip{
			{ID: "c1", Duration: 4, MediaEnd: 4, Kind: ClipVideo},
		},
		Playhead: 1.5,
		Edits:    Edits{Volume: Float(80)},
		Metadata: Metadata{LastSaved: now, LastModified: now, SaveCount: 3, Checksum: "abc"},
	}
}

func TestParseRaw_Corrupt(t *testing.T) {
	for _, value := range []string{"{not json", "null", "[1,2]"} {
		if _, err := ParseRaw(value); !IsCorruption(err) {
			t.Errorf("ParseRaw(%q) error = %v, want corruption", value, err)
		}
	}
}

func TestDocument_MapRoundTrip(t *testing.T) {
	doc := sampleDocument()

	raw, err := doc.ToMap()
	if err != nil {
		t.Fatalf("ToMap() failed: %v", err)
	}
	if raw["sceneId"] != "scene-1" {
		t.Errorf("sceneId = %v, want scene-1", raw["sceneId"])
	}

	back, err := FromMap(raw)
	if err != nil {
		t.Fatalf("FromMap() failed: %v", err)
	}
	if back.Metadata.SaveCount != 3 {
		t.Errorf("saveCount = %d, want 3", back.Metadata.SaveCount)
	}
	if back.Edits.Volume == nil || *back.Edits.Volume != 80 {
		t.Errorf("volume = %v, want 80", back.Edits.Volume)
	}
}

func TestDocument_CloneIsDeep(t *testing.T) {
	doc := sampleDocument()
	cp := doc.Clone()

	cp.Clips[0].ID = "changed"
	*cp.Edits.Volume = 10

	if doc.Clips[0].ID != "c1" {
		t.Error("Clone shares the clips slice with the original")
	}
	if *doc.Edits.Volume != 80 {
		t.Error("Clone shares edit pointers with the original")
	}
}
