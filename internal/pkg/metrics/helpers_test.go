package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestFrameEventLabel(t *testing.T) {
	tests := []struct {
		event    string
		expected string
	}{
		{event: "connected", expected: "connected"},
		{event: "unread-count", expected: "unread-count"},
		{event: "notification", expected: "notification"},
		{event: "", expected: "unknown"},
		{event: "heartbeat", expected: "other"},
		{event: "job-12345-updated", expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			if got := frameEventLabel(tt.event); got != tt.expected {
				t.Errorf("frameEventLabel(%q) = %q, want %q", tt.event, got, tt.expected)
			}
		})
	}
}

func TestRecordFrameFoldsServerEventNames(t *testing.T) {
	other := StreamFrames.WithLabelValues("other", "ignored")
	beforeOther := testutil.ToFloat64(other)
	before := testutil.CollectAndCount(StreamFrames)

	for _, event := range []string{"evt-a", "evt-b", "evt-c"} {
		RecordFrame(event, "ignored")
	}

	if got := testutil.ToFloat64(other) - beforeOther; got != 3 {
		t.Errorf("other delta = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(StreamFrames); got != before {
		t.Errorf("series count grew from %d to %d", before, got)
	}
}
