package schema

import (
	"testing"
	"time"
)

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2025, 10, 9, 8, 53, 20, 0, time.UTC)

	tests := []struct {
		name   string
		input  any
		want   time.Time
		wantOK bool
	}{
		{name: "rfc3339", input: "2025-10-09T08:53:20Z", want: want, wantOK: true},
		{name: "epoch millis", input: float64(want.UnixMilli()), want: want, wantOK: true},
		{name: "time value", input: want, want: want, wantOK: true},
		{name: "garbage string", input: "yesterday"},
		{name: "negative millis", input: -5.0},
		{name: "out of range millis", input: 1e300},
		{name: "wrong type", input: true},
		{name: "missing", input: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseTimestamp(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("ParseTimestamp(%v) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if ok && !got.Equal(tt.want) {
				t.Errorf("ParseTimestamp(%v) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
