package schema

import (
	"math"
	"time"
)

// ParseTimestamp reads a stored timestamp: an RFC 3339 string, or epoch
// milliseconds as older writers recorded it.
func ParseTimestamp(v any) (time.Time, bool) {
	switch t := v.(type) {
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	case float64:
		if t <= 0 || t >= math.MaxInt64 || math.IsNaN(t) {
			return time.Time{}, false
		}
		return time.UnixMilli(int64(t)).UTC(), true
	case time.Time:
		return t, !t.IsZero()
	}
	return time.Time{}, false
}
