package sync

import (
	"encoding/json"
	"fmt"

	"github.com/clipforge/timeline/internal/timeline/schema"
	"github.com/clipforge/timeline/internal/timeline/validate"
)

// Strategy is the policy applied to settle a conflict.
type Strategy string

const (
	// StrategyLocal keeps the local document.
	StrategyLocal Strategy = "local"

	// StrategyRemote adopts the remote document.
	StrategyRemote Strategy = "remote"

	// StrategyMerge combines both documents, see Merge.
	StrategyMerge Strategy = "merge"

	// StrategyManual leaves the conflict queued for an explicit Resolve.
	StrategyManual Strategy = "manual"
)

// Strategies lists every valid strategy.
var Strategies = []Strategy{StrategyLocal, StrategyRemote, StrategyMerge, StrategyManual}

// ParseStrategy converts a configuration string to a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown resolution strategy %q", s)
}

// Resolver picks a strategy for a conflict. Returning "" defers to the next
// resolver in line: per-scene, then default, then Options.Strategy.
type Resolver func(c *schema.Conflict) Strategy

// Merge reconciles two documents for the same scene. The side with the
// later lastModified contributes clips and playhead wholesale; on a tie the
// local side wins. Edits are merged key by key with local keys taking
// precedence. The checksum is recomputed over the result.
func Merge(local, remote *schema.Document) *schema.Document {
	newer := local
	if remote.Metadata.LastModified.After(local.Metadata.LastModified) {
		newer = remote
	}

	merged := local.Clone()
	merged.Clips = append([]schema.Clip{}, newer.Clone().Clips...)
	merged.Playhead = newer.Playhead
	merged.Edits = mergeEdits(local.Edits, remote.Edits)

	merged.Metadata.LastModified = newer.Metadata.LastModified
	if remote.Metadata.SaveCount > merged.Metadata.SaveCount {
		merged.Metadata.SaveCount = remote.Metadata.SaveCount
	}
	if remote.Metadata.LastSaved.After(merged.Metadata.LastSaved) {
		merged.Metadata.LastSaved = remote.Metadata.LastSaved
	}
	merged.Metadata.Checksum = validate.DocumentChecksum(merged)
	return merged
}

// mergeEdits overlays local edit keys on remote ones. Keys are compared in
// their stored form so unset fields never override set ones.
func mergeEdits(local, remote schema.Edits) schema.Edits {
	out, err := editsMap(remote)
	if err != nil {
		return local
	}
	localMap, err := editsMap(local)
	if err != nil {
		return local
	}
	for k, v := range localMap {
		out[k] = v
	}

	data, err := json.Marshal(out)
	if err != nil {
		return local
	}
	var merged schema.Edits
	if err := json.Unmarshal(data, &merged); err != nil {
		return local
	}
	return merged
}

func editsMap(e schema.Edits) (map[string]any, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
