package util

import (
	"errors"
	"strings"
	"testing"
)

func TestWrapError(t *testing.T) {
	base := errors.New("pipe closed")
	wrapped := WrapError("write artifact", base)
	if wrapped.Error() != "failed to write artifact: pipe closed" {
		t.Errorf("wrapped = %q", wrapped)
	}
	if !errors.Is(wrapped, base) {
		t.Error("wrapped error lost its cause")
	}
	if WrapError("anything", nil) != nil {
		t.Error("wrapping nil should stay nil")
	}
}

func TestExtractLastError(t *testing.T) {
	tests := []struct {
		name   string
		stderr string
		want   string
	}{
		{"last line wins", "frame=1\nframe=2\npipe:0: Invalid data found", "pipe:0: Invalid data found"},
		{"skips trailing blanks", "real error\n\n  \n", "real error"},
		{"empty input", "   \n \n", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractLastError(tt.stderr); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}

	long := strings.Repeat("x", 300)
	got := ExtractLastError(long)
	if len(got) != maxErrorLineLength+3 || !strings.HasSuffix(got, "...") {
		t.Errorf("long line not truncated: len=%d", len(got))
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{45, "45s"},
		{154, "2m 34s"},
		{5012, "1h 23m"},
		{0, "0s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.seconds); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}
