package sync

import (
	"time"

	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

// Detector decides whether two documents for one scene conflict.
type Detector interface {
	Detect(local, remote *schema.Document) (schema.ConflictKind, bool)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(local, remote *schema.Document) (schema.ConflictKind, bool)

// Detect implements Detector.
func (f DetectorFunc) Detect(local, remote *schema.Document) (schema.ConflictKind, bool) {
	return f(local, remote)
}

// HeuristicDetector flags conflicts from save recency and save count trend.
//
//   - identical content never conflicts
//   - a remote save count ahead of the local one is linear history
//   - a remote save count behind the local one is a version conflict
//   - equal save counts saved within Window of each other are a timestamp
//     conflict, otherwise a checksum conflict
type HeuristicDetector struct {
	Window time.Duration
}

// Detect implements Detector.
func (d HeuristicDetector) Detect(local, remote *schema.Document) (schema.ConflictKind, bool) {
	if local == nil || remote == nil {
		return "", false
	}
	if validate.DocumentChecksum(local) == validate.DocumentChecksum(remote) {
		return "", false
	}

	lc, rc := local.Metadata.SaveCount, remote.Metadata.SaveCount
	switch {
	case rc > lc:
		return "", false
	case rc < lc:
		return schema.ConflictVersion, true
	}

	gap := remote.Metadata.LastSaved.Sub(local.Metadata.LastSaved)
	if gap < 0 {
		gap = -gap
	}
	if gap <= d.Window {
		return schema.ConflictTimestamp, true
	}
	return schema.ConflictChecksum, true
}
