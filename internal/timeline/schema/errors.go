package schema

import "errors"

// Errors shared by the store and sync packages.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, schema.ErrCorruption) {
//	    // fall back to the backup copy
//	}
var (
	// ErrValidation is returned when a document has fatal structural
	// problems: missing scene id, clips that are not a list, or no valid clips.
	ErrValidation = errors.New("document failed validation")

	// ErrCorruption is returned when a stored value cannot be parsed.
	ErrCorruption = errors.New("stored document is corrupt")

	// ErrNotFound is returned when no primary, backup or legacy entry
	// exists for a scene.
	ErrNotFound = errors.New("timeline document not found")

	// ErrConflict marks divergent concurrent documents for one scene.
	ErrConflict = errors.New("conflicting timeline documents")

	// ErrNoPendingConflict is returned when resolving a scene that has no
	// queued conflict.
	ErrNoPendingConflict = errors.New("no pending conflict for scene")
)

// IsCorruption reports whether err indicates unparseable stored content.
func IsCorruption(err error) bool {
	return errors.Is(err, ErrCorruption)
}

// IsValidation reports whether err indicates a fatal validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
