// Package eventlog provides unified event logging for the recorder.
// It captures call detection and recording lifecycle events in a single
// JSON lines file so a session can be audited after the fact.
package eventlog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/meetcap/meetcap/internal/util"
)

// EventType represents the type of event.
type EventType string

// Call detection event types.
const (
	CallDetected EventType = "call_detected"
	CallEnded    EventType = "call_ended"
)

// Recording lifecycle event types.
const (
	RecordingStarted   EventType = "recording_started"
	RecordingPaused    EventType = "recording_paused"
	RecordingResumed   EventType = "recording_resumed"
	RecordingFinalized EventType = "recording_finalized"
	RecordingError     EventType = "recording_error"
	RecordingDeleted   EventType = "recording_deleted"
	PersistFailed      EventType = "persist_failed"
	UploadCompleted    EventType = "upload_completed"
	UploadFailed       EventType = "upload_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// CallDetails contains call detection event details.
type CallDetails struct {
	TabID            string `json:"tab_id,omitempty"`
	MeetingTitle     string `json:"meeting_title,omitempty"`
	ParticipantCount *int   `json:"participant_count,omitempty"`
}

// RecordingDetails contains recording lifecycle event details.
type RecordingDetails struct {
	Filename         string  `json:"filename,omitempty"`
	RequestedFormat  string  `json:"requested_format,omitempty"`
	NegotiatedFormat string  `json:"negotiated_format,omitempty"`
	DurationSec      float64 `json:"duration_sec,omitempty"`
	SizeBytes        int64   `json:"size_bytes,omitempty"`
	RecordID         string  `json:"record_id,omitempty"`
	S3Key            string  `json:"s3_key,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file.
type Logger struct {
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, util.WrapError("create log directory", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, util.WrapError("open log file", err)
	}

	return &Logger{
		file:    file,
		encoder: json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file. A nil logger discards events so
// callers never need to branch on whether event logging is configured.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogCall logs a call detection event.
func (l *Logger) LogCall(eventType EventType, tabID, title string, participants *int) error {
	return l.Log(&Event{
		Type: eventType,
		Details: &CallDetails{
			TabID:            tabID,
			MeetingTitle:     title,
			ParticipantCount: participants,
		},
	})
}

// LogRecording logs a recording lifecycle event.
func (l *Logger) LogRecording(eventType EventType, details *RecordingDetails) error {
	return l.Log(&Event{
		Type:    eventType,
		Details: details,
	})
}

// Close closes the underlying log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
