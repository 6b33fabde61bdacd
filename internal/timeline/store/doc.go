// Package store persists timeline documents in a key-value backend.
//
// # Overview
//
// The store is the only writer of timeline keys. Every write goes through
// validation, and every overwrite first copies the previous primary value
// verbatim to the scene's backup key:
//
//	Save(scene) ──► validate ──► primary → backup ──► write primary ──► publish "save"
//
//	Load(scene) ──► primary ──(missing/corrupt)──► backup ──(missing/corrupt)──► legacy
//	                                                                                │
//	                                             migrate to primary, delete legacy ◄┘
//
// # Storage Budget
//
// Usage is estimated as the sum of key and value lengths over every entry.
// When usage exceeds the cleanup threshold (80% of a 50 MB budget by
// default), Save runs Cleanup before writing. Cleanup evicts entries older
// than MaxAge and entries that cannot be parsed at all.
//
// # Results
//
// Save and Load never panic or return bare errors for expected failures.
// They return result values carrying an OK flag, fatal Errors and
// non-fatal Warnings.
//
// Example:
//
//	st, err := store.New(backend, bus, nil)
//	if err != nil {
//	    return err
//	}
//	res := st.Save(ctx, store.SaveRequest{
//	    Scene:    schema.Scene{ID: "scene-1"},
//	    Clips:    clips,
//	    Playhead: 2.5,
//	    Origin:   events.OriginSurfaceA,
//	})
//	if !res.OK {
//	    log.Printf("save rejected: %v", res.Errors)
//	}
package store
