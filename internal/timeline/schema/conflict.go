package schema

import "time"

// ConflictKind names the signal that flagged a conflict.
type ConflictKind string

const (
	ConflictTimestamp ConflictKind = "timestamp"
	ConflictVersion   ConflictKind = "version"
	ConflictChecksum  ConflictKind = "checksum"
)

// Conflict is two divergent documents observed for the same scene at
// nearly the same time.
type Conflict struct {
	ID         string       `json:"id"`
	SceneID    string       `json:"sceneId"`
	Local      *Document    `json:"localDocument"`
	Remote     *Document    `json:"remoteDocument"`
	Kind       ConflictKind `json:"type"`
	DetectedAt time.Time    `json:"detectedAt"`
}
