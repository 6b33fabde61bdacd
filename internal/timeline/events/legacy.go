package events

import (
	"fmt"
	"time"
)

// Legacy event names, still emitted by older editing surfaces.
//
// Deprecated: publish Notification values with Bus.Publish instead.
const (
	LegacySaved    = "timelineSaved"
	LegacyLoaded   = "timelineLoaded"
	LegacyDeleted  = "timelineDeleted"
	LegacyConflict = "timelineConflict"
)

var legacyKinds = map[string]Kind{
	LegacySaved:    KindSave,
	LegacyLoaded:   KindLoad,
	LegacyDeleted:  KindDelete,
	LegacyConflict: KindConflict,
}

var legacyOrigins = map[string]Origin{
	"timeline":      OriginSurfaceA,
	"surface-a":     OriginSurfaceA,
	"scene-editor":  OriginSurfaceB,
	"surface-b":     OriginSurfaceB,
	"system":        OriginSystem,
	"storage-event": OriginExternal,
}

// NormalizeLegacy converts a legacy event into a Notification.
//
// Legacy details are loose maps: {"sceneId": "...", "timestamp": <unix ms>,
// "source": "...", "clipCount": n, "playhead": n, "saveCount": n,
// "error": "..."}. Unknown sources map to OriginExternal.
func NormalizeLegacy(name string, detail map[string]any) (Notification, error) {
	kind, ok := legacyKinds[name]
	if !ok {
		return Notification{}, fmt.Errorf("unknown legacy event %q", name)
	}

	sceneID, _ := detail["sceneId"].(string)
	if sceneID == "" {
		return Notification{}, fmt.Errorf("legacy event %q has no sceneId", name)
	}

	n := Notification{
		Kind:      kind,
		SceneID:   sceneID,
		Timestamp: time.Now(),
		Origin:    OriginExternal,
	}

	if ms, ok := detail["timestamp"].(float64); ok && ms > 0 {
		n.Timestamp = time.UnixMilli(int64(ms))
	}
	if src, ok := detail["source"].(string); ok {
		if origin, known := legacyOrigins[src]; known {
			n.Origin = origin
		}
	}
	if msg, ok := detail["error"].(string); ok && msg != "" {
		n.Err = fmt.Errorf("%s", msg)
	}

	if kind == KindSave {
		info := &SaveInfo{}
		if v, ok := detail["clipCount"].(float64); ok {
			info.ClipCount = int(v)
		}
		if v, ok := detail["playhead"].(float64); ok {
			info.Playhead = v
		}
		if v, ok := detail["saveCount"].(float64); ok {
			info.SaveCount = int(v)
		}
		n.Save = info
	}

	return n, nil
}

// PublishLegacy normalizes a legacy event and publishes it.
//
// Deprecated: use Publish.
func (b *Bus) PublishLegacy(name string, detail map[string]any) error {
	n, err := NormalizeLegacy(name, detail)
	if err != nil {
		return err
	}
	return b.Publish(n)
}
