package validate

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/clipforge/timeline/internal/timeline/schema"
)

// WarnMetadataMissing is reported when a document has no metadata block and
// a fresh one is synthesized.
const WarnMetadataMissing = "metadata is missing, synthesizing a fresh block"

// Result separates fatal errors from informational warnings.
//
// Errors block a write and fail a load. Warnings never block. When
// CanRecover is true, Recovered holds the corrected top-level fields to
// merge over the raw input.
type Result struct {
	Valid      bool
	Errors     []string
	Warnings   []string
	CanRecover bool
	Recovered  map[string]any
}

// Err returns nil when the document is usable, or an ErrValidation wrapping
// the fatal reasons.
func (r *Result) Err() error {
	if r.CanRecover {
		return nil
	}
	return fmt.Errorf("%w: %s", schema.ErrValidation, strings.Join(r.Errors, "; "))
}

// Apply returns a copy of raw with the recovered fields merged over it.
func (r *Result) Apply(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw)+len(r.Recovered))
	for k, v := range raw {
		out[k] = v
	}
	for k, v := range r.Recovered {
		out[k] = v
	}
	return out
}

func (r *Result) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *Result) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ValidateClip returns one error string per invariant the clip violates.
func ValidateClip(c schema.Clip) []string {
	return clipErrors(c)
}

// clipErrors checks a typed or raw clip against the clip schema and the
// media range rule.
func clipErrors(v any) []string {
	instance, err := normalize(v)
	if err != nil {
		return []string{err.Error()}
	}

	errs := violations("clip.schema.json", clipSchema, instance)
	if obj, ok := instance.(map[string]any); ok {
		start, okStart := number(obj["mediaStart"])
		end, okEnd := number(obj["mediaEnd"])
		if okStart && okEnd && end <= start {
			errs = append(errs, fmt.Sprintf("mediaEnd must be > mediaStart (got %v <= %v)", end, start))
		}
	}
	return errs
}

// ValidateDocument checks a raw decoded document.
func ValidateDocument(raw map[string]any) *Result {
	return ValidateDocumentAt(raw, time.Now())
}

// ValidateDocumentAt is ValidateDocument with an explicit clock, used when
// synthesizing missing metadata.
func ValidateDocumentAt(raw map[string]any, now time.Time) *Result {
	r := &Result{Recovered: map[string]any{}}
	if raw == nil {
		r.errorf("document is empty")
		return r
	}

	switch v, ok := raw["schemaVersion"].(string); {
	case !ok || v == "":
		r.warnf("schemaVersion missing, assuming %s", schema.SchemaVersion)
		r.Recovered["schemaVersion"] = schema.SchemaVersion
	case v != schema.SchemaVersion:
		r.warnf("schemaVersion %q differs from current %s", v, schema.SchemaVersion)
		r.Recovered["schemaVersion"] = schema.SchemaVersion
	}

	if instance, err := normalize(raw); err != nil {
		r.errorf("document %v", err)
	} else {
		for _, msg := range violations("document.schema.json", documentSchema, instance) {
			r.errorf("%s", msg)
		}
	}

	if idx, ok := number(raw["sceneIndex"]); !ok || idx < 0 || idx != math.Trunc(idx) || idx > math.MaxInt32 {
		r.warnf("sceneIndex is missing or invalid, defaulting to 0")
		r.Recovered["sceneIndex"] = 0
	}

	if d, ok := number(raw["originalDuration"]); !ok || d <= 0 {
		r.warnf("originalDuration is missing or invalid, defaulting to %v", schema.DefaultOriginalDuration)
		r.Recovered["originalDuration"] = schema.DefaultOriginalDuration
	}

	clips, clipsOK := validateClips(r, raw["clips"])

	playhead, ok := number(raw["playhead"])
	if !ok || playhead < 0 {
		r.warnf("playhead is missing or invalid, defaulting to 0")
		r.Recovered["playhead"] = 0.0
		playhead = 0
	}

	edits := validateEdits(r, raw["edits"])

	if clipsOK {
		validateMetadata(r, raw["metadata"], Checksum(clips, playhead, edits), now)
	}

	r.Valid = len(r.Errors) == 0
	r.CanRecover = r.Valid
	if !r.CanRecover {
		r.Recovered = nil
	}
	return r
}

func validateClips(r *Result, v any) ([]schema.Clip, bool) {
	// A missing or non-list clips field is reported by the document schema.
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}

	kept := make([]schema.Clip, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			r.warnf("dropped clip %d: not an object", i)
			continue
		}
		if errs := clipErrors(obj); len(errs) > 0 {
			r.warnf("dropped clip %d (%v): %s", i, obj["id"], strings.Join(errs, ", "))
			continue
		}
		var c schema.Clip
		if err := decodeInto(obj, &c); err != nil {
			r.warnf("dropped clip %d: %v", i, err)
			continue
		}
		kept = append(kept, c)
	}

	if len(kept) == 0 {
		r.errorf("document has no valid clips")
		return nil, false
	}
	if len(kept) != len(list) {
		r.Recovered["clips"] = kept
	}
	return kept, true
}

func validateEdits(r *Result, v any) schema.Edits {
	var edits schema.Edits
	obj, ok := v.(map[string]any)
	if !ok {
		r.warnf("edits is missing or not an object, defaulting to empty")
		r.Recovered["edits"] = map[string]any{}
		return edits
	}
	if err := decodeInto(obj, &edits); err != nil {
		r.warnf("edits could not be decoded (%v), defaulting to empty", err)
		r.Recovered["edits"] = map[string]any{}
		return schema.Edits{}
	}
	return edits
}

func validateMetadata(r *Result, v any, checksum string, now time.Time) {
	obj, ok := v.(map[string]any)
	if !ok {
		r.Warnings = append(r.Warnings, WarnMetadataMissing)
		r.Recovered["metadata"] = schema.Metadata{
			LastSaved:    now,
			LastModified: now,
			SaveCount:    1,
			Checksum:     checksum,
		}
		return
	}

	// Each field is checked on its own so one unusable value does not
	// discard the rest of the history.
	var meta schema.Metadata
	fixed := false

	if n, ok := number(obj["saveCount"]); ok && n >= 1 && n == math.Trunc(n) && n <= math.MaxInt32 {
		meta.SaveCount = int(n)
	} else {
		r.warnf("metadata.saveCount is missing or invalid (%v), defaulting to 1", obj["saveCount"])
		meta.SaveCount = 1
		fixed = true
	}

	if t, ok := schema.ParseTimestamp(obj["lastSaved"]); ok {
		meta.LastSaved = t
		if _, isString := obj["lastSaved"].(string); !isString {
			fixed = true
		}
	} else {
		r.warnf("metadata.lastSaved is missing or invalid, using the current time")
		meta.LastSaved = now
		fixed = true
	}

	if t, ok := schema.ParseTimestamp(obj["lastModified"]); ok {
		meta.LastModified = t
		if _, isString := obj["lastModified"].(string); !isString {
			fixed = true
		}
	} else {
		r.warnf("metadata.lastModified is missing or invalid, using lastSaved")
		meta.LastModified = meta.LastSaved
		fixed = true
	}

	stored, _ := obj["checksum"].(string)
	switch {
	case stored == "":
		r.warnf("metadata.checksum is missing, recomputed")
		meta.Checksum = checksum
		fixed = true
	case stored != checksum:
		meta.Checksum = stored
		r.warnf("checksum mismatch: stored %s, computed %s (possible corruption)", stored, checksum)
	default:
		meta.Checksum = stored
	}

	if fixed {
		r.Recovered["metadata"] = meta
	}
}

// Decode validates raw, merges recovered fields and decodes the result.
// The returned Result is never nil.
func Decode(raw map[string]any) (*schema.Document, *Result, error) {
	return DecodeAt(raw, time.Now())
}

// DecodeAt is Decode with an explicit clock.
func DecodeAt(raw map[string]any, now time.Time) (*schema.Document, *Result, error) {
	res := ValidateDocumentAt(raw, now)
	if err := res.Err(); err != nil {
		return nil, res, err
	}
	doc, err := schema.FromMap(res.Apply(raw))
	if err != nil {
		return nil, res, err
	}
	return doc, res, nil
}

func decodeInto(obj map[string]any, out any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func number(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	return f, finite(f)
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
