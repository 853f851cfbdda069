package eventlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "events.jsonl")
	l, err := NewLogger(path)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	defer l.Close()

	count := 3
	if err := l.LogCall(CallDetected, "tab-1", "Weekly Sync", &count); err != nil {
		t.Fatalf("log call: %v", err)
	}
	if err := l.LogRecording(RecordingStarted, &RecordingDetails{Filename: "a.webm"}); err != nil {
		t.Fatalf("log recording: %v", err)
	}
	if err := l.LogRecording(RecordingError, &RecordingDetails{Error: "boom"}); err != nil {
		t.Fatalf("log error: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("line is not valid JSON: %v", err)
		}
		events = append(events, ev)
	}

	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Type != CallDetected || events[1].Type != RecordingStarted || events[2].Type != RecordingError {
		t.Errorf("types = %s %s %s", events[0].Type, events[1].Type, events[2].Type)
	}
	for i, ev := range events {
		if ev.Timestamp.IsZero() {
			t.Errorf("event %d has no timestamp", i)
		}
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.LogRecording(RecordingStarted, nil); err != nil {
		t.Errorf("nil logger: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil close: %v", err)
	}
}
