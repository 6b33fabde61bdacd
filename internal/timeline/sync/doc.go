// Package sync detects and resolves conflicting writes to timeline documents.
//
// # Overview
//
// A Manager listens to the in-process event bus and, optionally, to a
// cross-process change source. Writes made by other processes are turned
// into "save" notifications with the external origin, so every write that
// was not made by the system itself goes through the same detection path:
//
//	events.Bus ──save (surface-a / surface-b / external)──► Manager.detect
//	kv.ChangeSource ──► "external" save notification ──────┘      │
//	                                                              ▼
//	                                   Detector(lastKnown, incoming)
//	                                                              │
//	                         ┌──────────── conflict ──────────────┤
//	                         ▼                                    ▼
//	          resolve (local | remote | merge)            no conflict: remember
//	          or queue (manual / offline)
//
// # Lifetime
//
// There is no package level instance. The owner constructs a Manager with
// New, calls Start to subscribe, and Close to tear it down.
//
// # Detection
//
// The default HeuristicDetector compares the document this process last
// saw for a scene with the incoming one. In-process saves always advance
// the save count, so it only fires when two writers produced the same save
// generation with different content, or when an incoming document is older
// than the one already seen. Supply a Detector with access to an
// authoritative remote copy for stronger detection.
//
// # Resolution
//
// Resolutions other than manual are written back through store.Save with
// the system origin, so validation and backup rules apply to them. Each
// resolution runs under Options.Timeout; a resolution that fails or times
// out leaves the conflict pending.
package sync
