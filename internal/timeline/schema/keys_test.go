package schema

import "testing"

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      string
		wantKind KeyKind
		wantID   string
	}{
		{"timeline::scene-1", KeyPrimary, "scene-1"},
		{"timeline::backup::scene-1", KeyBackup, "scene-1"},
		{"timeline-scene-1", KeyLegacy, "scene-1"},
		{"other::scene-1", KeyUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			kind, id := ParseKey(tt.key)
			if kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
			if id != tt.wantID {
				t.Errorf("id = %q, want %q", id, tt.wantID)
			}
		})
	}
}

func TestKeyHelpers_RoundTrip(t *testing.T) {
	for _, key := range []string{PrimaryKey("s"), BackupKey("s"), LegacyKey("s")} {
		if _, id := ParseKey(key); id != "s" {
			t.Errorf("ParseKey(%q) id = %q, want %q", key, id, "s")
		}
	}
}

func TestClipKind_Valid(t *testing.T) {
	for _, k := range []ClipKind{ClipVideo, ClipAudio, ClipText} {
		if !k.Valid() {
			t.Errorf("%q should be valid", k)
		}
	}
	if ClipKind("image").Valid() {
		t.Error("image should not be a valid clip kind")
	}
}
