package util

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Weekly Sync", "Weekly_Sync"},
		{"collapses whitespace", "a  \t b\n\nc", "a_b_c"},
		{"drops unsafe characters", `a/b\c:d*e?f"g<h>i|j`, "abcdefghij"},
		{"drops control characters", "plan\x00ning\x1f", "planning"},
		{"trims leading and trailing separators", "  .meeting.  ", "meeting"},
		{"empty degrades", "", "call"},
		{"only unsafe degrades", `///???`, "call"},
		{"unicode preserved", "Réunion générale", "Réunion_générale"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeTitle(tt.in); got != tt.want {
				t.Errorf("SanitizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeTitleTruncates(t *testing.T) {
	long := strings.Repeat("a", 200)
	got := SanitizeTitle(long)
	if len(got) != 80 {
		t.Errorf("len = %d, want 80", len(got))
	}

	// Truncation must not leave a dangling separator.
	atBoundary := strings.Repeat("b", 79) + "_tail"
	got = SanitizeTitle(atBoundary)
	if strings.HasSuffix(got, "_") || strings.HasSuffix(got, ".") {
		t.Errorf("truncated title ends with separator: %q", got)
	}
}

func TestSanitizeTitleTruncatesOnRuneBoundary(t *testing.T) {
	// Multibyte titles must never be cut mid-rune.
	long := strings.Repeat("é", 200)
	got := SanitizeTitle(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated title is not valid UTF-8: %q", got)
	}
	if n := utf8.RuneCountInString(got); n != 80 {
		t.Errorf("rune count = %d, want 80", n)
	}
}
