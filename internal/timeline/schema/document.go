package schema

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	// SchemaVersion is the version stamped on every document written today.
	SchemaVersion = "1.0.0"

	// DefaultOriginalDuration is substituted when a document carries no
	// usable originalDuration (seconds).
	DefaultOriginalDuration = 30.0
)

// Metadata is the bookkeeping block of a document.
type Metadata struct {
	LastSaved    time.Time `json:"lastSaved" yaml:"lastSaved"`
	LastModified time.Time `json:"lastModified" yaml:"lastModified"`
	SaveCount    int       `json:"saveCount" yaml:"saveCount"`
	Checksum     string    `json:"checksum" yaml:"checksum"`
}

// Document is the persisted unit, one per scene.
type Document struct {
	SchemaVersion    string   `json:"schemaVersion" yaml:"schemaVersion"`
	SceneID          string   `json:"sceneId" yaml:"sceneId"`
	SceneIndex       int      `json:"sceneIndex" yaml:"sceneIndex"`
	OriginalDuration float64  `json:"originalDuration" yaml:"originalDuration"`
	Clips            []Clip   `json:"clips" yaml:"clips"`
	Playhead         float64  `json:"playhead" yaml:"playhead"`
	Edits            Edits    `json:"edits" yaml:"edits"`
	Metadata         Metadata `json:"metadata" yaml:"metadata"`
}

// Scene identifies the scene a document belongs to.
type Scene struct {
	ID               string
	Index            int
	OriginalDuration float64
}

// Marshal serializes the document in its stored form.
func (d *Document) Marshal() (string, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("failed to marshal document %s: %w", d.SceneID, err)
	}
	return string(data), nil
}

// ToMap converts the document to a generic JSON object, the shape the
// validator works on.
func (d *Document) ToMap() (map[string]any, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document %s: %w", d.SceneID, err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to convert document %s: %w", d.SceneID, err)
	}
	return raw, nil
}

// Clone returns a deep copy of the document.
func (d *Document) Clone() *Document {
	data, err := json.Marshal(d)
	if err != nil {
		cp := *d
		return &cp
	}
	var cp Document
	if err := json.Unmarshal(data, &cp); err != nil {
		cp = *d
	}
	return &cp
}

// ParseRaw decodes a stored value into a generic JSON object.
// A value that is not a JSON object is reported as corruption.
func ParseRaw(value string) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(value), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: value is not an object", ErrCorruption)
	}
	return raw, nil
}

// FromMap decodes a generic JSON object into a Document.
func FromMap(raw map[string]any) (*Document, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to encode raw document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruption, err)
	}
	if doc.Clips == nil {
		doc.Clips = []Clip{}
	}
	return &doc, nil
}
