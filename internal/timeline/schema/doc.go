// Package schema defines the persisted timeline document format.
//
// # Overview
//
// Every editable scene owns exactly one timeline document. The document is
// stored as a JSON value in a key-value backend under three possible keys:
//
//	timeline::<sceneId>          primary (current schema)
//	timeline::backup::<sceneId>  single-generation backup of the previous primary
//	timeline-<sceneId>           legacy, pre-versioning shape (read and migrate only)
//
// Example primary value:
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "sceneId": "scene-42",
//	  "sceneIndex": 3,
//	  "originalDuration": 12.5,
//	  "clips": [
//	    {"id": "c1", "startTime": 0, "duration": 4, "mediaStart": 0, "mediaEnd": 4, "type": "video", "selected": false}
//	  ],
//	  "playhead": 1.25,
//	  "edits": {"volume": 80},
//	  "metadata": {
//	    "lastSaved": "2026-10-19T10:00:00Z",
//	    "lastModified": "2026-10-19T10:00:00Z",
//	    "saveCount": 7,
//	    "checksum": "1f2e3d4c"
//	  }
//	}
//
// # Design Principles
//
//   - JSON field names are stable; absent edit fields mean "unmodified"
//   - Validation with recovery lives in the validate package, not here
//   - Types in this package are plain data with no I/O
package schema
