package validate

import (
	"testing"

	"github.com/clipforge/timeline/internal/timeline/schema"
)

func TestChecksum_Deterministic(t *testing.T) {
	clips := []schema.Clip{
		{ID: "a", Duration: 1, MediaEnd: 1, Kind: schema.ClipVideo},
		{ID: "b", StartTime: 1, Duration: 2, MediaEnd: 2, Kind: schema.ClipAudio},
	}
	edits := schema.Edits{Volume: schema.Float(50), Brightness: schema.Float(10)}

	first := Checksum(clips, 1, edits)
	second := Checksum(clips, 1, edits)
	if first != second {
		t.Fatalf("checksum not deterministic: %s != %s", first, second)
	}
	if len(first) != 8 {
		t.Errorf("checksum %q should be 8 hex digits", first)
	}
}

func TestChecksum_ClipOrderMatters(t *testing.T) {
	a := schema.Clip{ID: "a", Duration: 1, MediaEnd: 1, Kind: schema.ClipVideo}
	b := schema.Clip{ID: "b", Duration: 1, MediaEnd: 1, Kind: schema.ClipVideo}

	if Checksum([]schema.Clip{a, b}, 0, schema.Edits{}) == Checksum([]schema.Clip{b, a}, 0, schema.Edits{}) {
		t.Error("reordering clips should change the checksum")
	}
}

func TestChecksum_DetectsDrift(t *testing.T) {
	clips := []schema.Clip{{ID: "a", Duration: 1, MediaEnd: 1, Kind: schema.ClipVideo}}

	base := Checksum(clips, 0, schema.Edits{})
	if Checksum(clips, 0.5, schema.Edits{}) == base {
		t.Error("moving the playhead should change the checksum")
	}
	if Checksum(clips, 0, schema.Edits{FadeIn: schema.Float(1)}) == base {
		t.Error("adding an edit should change the checksum")
	}
}

func TestChecksum_NilAndEmptyClipsAgree(t *testing.T) {
	if Checksum(nil, 0, schema.Edits{}) != Checksum([]schema.Clip{}, 0, schema.Edits{}) {
		t.Error("nil and empty clip lists should hash identically")
	}
}

func TestChecksum_StableAcrossRawRoundTrip(t *testing.T) {
	doc := &schema.Document{
		SchemaVersion:    schema.SchemaVersion,
		SceneID:          "scene-1",
		OriginalDuration: 5,
		Clips:            []schema.Clip{{ID: "a", Duration: 1, MediaEnd: 1, Kind: schema.ClipText, OriginalDuration: schema.Float(3)}},
		Playhead:         0.25,
		Edits:            schema.Edits{TextOverlays: []schema.TextOverlay{{ID: "t", Text: "hi", Duration: 1}}},
	}
	doc.Metadata = schema.Metadata{LastSaved: testNow, LastModified: testNow, SaveCount: 1, Checksum: DocumentChecksum(doc)}

	raw, err := doc.ToMap()
	if err != nil {
		t.Fatalf("ToMap() failed: %v", err)
	}
	res := ValidateDocumentAt(raw, testNow)
	if hasMessage(res.Warnings, "checksum") {
		t.Errorf("round-tripped document reported checksum warnings: %v", res.Warnings)
	}
}
