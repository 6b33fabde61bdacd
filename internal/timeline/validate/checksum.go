// Package validate checks timeline documents for structural soundness and
// computes the drift-detection checksum stored in their metadata.
//
// Nothing in this package performs I/O. The store package runs every
// candidate document through ValidateDocument before writing it and every
// loaded document before returning it.
package validate

import (
	"encoding/json"
	"fmt"

	"github.com/clipforge/timeline/internal/timeline/schema"
)

// Checksum computes a 32-bit rolling hash over a canonical serialization of
// the document content. Clip order is significant; object key order is not.
//
// The digest detects accidental drift and corruption only. It is trivially
// forgeable and must never be used as tamper evidence.
func Checksum(clips []schema.Clip, playhead float64, edits schema.Edits) string {
	if clips == nil {
		clips = []schema.Clip{}
	}
	data, err := canonicalJSON(map[string]any{
		"clips":    clips,
		"playhead": playhead,
		"edits":    edits,
	})
	if err != nil {
		// Only reachable with NaN or Inf values, which validation rejects.
		data = []byte(fmt.Sprintf("%v|%v|%v", clips, playhead, edits))
	}

	var h uint32
	for _, b := range data {
		h = h*31 + uint32(b)
	}
	return fmt.Sprintf("%08x", h)
}

// DocumentChecksum computes the checksum of a document's content fields.
func DocumentChecksum(doc *schema.Document) string {
	return Checksum(doc.Clips, doc.Playhead, doc.Edits)
}

// canonicalJSON encodes v with sorted object keys. encoding/json sorts map
// keys, so a round trip through a generic value canonicalizes struct field
// order as well.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
