package coordinator

import (
	"testing"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
)

func TestBuildFilename(t *testing.T) {
	at := time.Date(2026, 3, 9, 14, 5, 33, 0, time.UTC)

	tests := []struct {
		name   string
		title  string
		format protocol.Format
		want   string
	}{
		{"plain title", "Weekly Sync", protocol.FormatWebM, "Meet_2026-03-09_14-05_Weekly_Sync.webm"},
		{"unsafe characters", `Q1: plan / review?`, protocol.FormatWAV, "Meet_2026-03-09_14-05_Q1_plan_review.wav"},
		{"empty title", "", protocol.FormatWebM, "Meet_2026-03-09_14-05_call.webm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildFilename("Meet", tt.title, at, tt.format)
			if got != tt.want {
				t.Errorf("BuildFilename() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithExtension(t *testing.T) {
	tests := []struct {
		in     string
		format protocol.Format
		want   string
	}{
		{"Meet_2026-03-09_14-05_call.mp3", protocol.FormatWebM, "Meet_2026-03-09_14-05_call.webm"},
		{"Meet_2026-03-09_14-05_call.wav", protocol.FormatWAV, "Meet_2026-03-09_14-05_call.wav"},
		{"no_extension", protocol.FormatWebM, "no_extension.webm"},
	}

	for _, tt := range tests {
		if got := withExtension(tt.in, tt.format); got != tt.want {
			t.Errorf("withExtension(%q, %q) = %q, want %q", tt.in, tt.format, got, tt.want)
		}
	}
}
