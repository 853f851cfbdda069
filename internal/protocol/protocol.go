// Package protocol defines the message contracts shared by the observer,
// the coordinator, and the capture worker. All cross-component coordination
// state is serialized into these payloads; no component reaches into
// another's memory.
package protocol

import (
	"encoding/json"
	"time"
)

// Message type identifiers for observer/UI -> coordinator requests.
const (
	MsgCallStatusUpdate = "CALL_STATUS_UPDATE"
	MsgStartRecording   = "START_RECORDING"
	MsgPauseRecording   = "PAUSE_RECORDING"
	MsgResumeRecording  = "RESUME_RECORDING"
	MsgStopRecording    = "STOP_RECORDING"
	MsgGetState         = "GET_STATE"
	MsgListRecordings   = "LIST_RECORDINGS"
	MsgDeleteRecording  = "DELETE_RECORDING"
)

// Message type identifiers for coordinator pushes and worker reports.
const (
	MsgStateChanged       = "STATE_CHANGED"
	MsgRecordingFinalized = "RECORDING_FINALIZED"
)

// Message is a request envelope crossing a component boundary.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Response is the uniform reply for every request/response pair.
type Response struct {
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Ok returns a successful response carrying an optional result.
func Ok(result any) Response {
	return Response{OK: true, Result: result}
}

// Fail returns an error response.
func Fail(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// Phase is the coordinator-owned recording lifecycle state.
type Phase string

// Recording lifecycle phases.
const (
	PhaseIdle      Phase = "idle"
	PhaseRecording Phase = "recording"
	PhasePaused    Phase = "paused"
)

// SourceMode selects which audio streams a session acquires.
type SourceMode string

// Supported source modes.
const (
	SourceBoth   SourceMode = "both"
	SourceSystem SourceMode = "system"
	SourceMic    SourceMode = "mic"
)

// IsValid reports whether the source mode is one of the supported values.
func (m SourceMode) IsValid() bool {
	switch m {
	case SourceBoth, SourceSystem, SourceMic:
		return true
	}
	return false
}

// NeedsSystem reports whether the mode requires the tab/system stream.
func (m SourceMode) NeedsSystem() bool {
	return m == SourceBoth || m == SourceSystem
}

// NeedsMic reports whether the mode requires the microphone stream.
func (m SourceMode) NeedsMic() bool {
	return m == SourceBoth || m == SourceMic
}

// Format is an output container format. The format a caller requests and the
// format a session actually produces may differ; the negotiated value is
// authoritative.
type Format string

// Supported output formats.
const (
	FormatWebM Format = "webm"
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
)

// IsValid reports whether the format is one of the supported values.
func (f Format) IsValid() bool {
	switch f {
	case FormatWebM, FormatWAV, FormatMP3:
		return true
	}
	return false
}

// Extension returns the file extension for the format, without the dot.
func (f Format) Extension() string {
	return string(f)
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	switch f {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	default:
		return "audio/webm"
	}
}

// CallObservation is the observer's per-poll view of the meeting page.
// It is transient: recomputed every cycle and compared against the previous
// one to decide whether a report is worth sending.
type CallObservation struct {
	CallActive       bool   `json:"call_active"`
	MeetingTitle     string `json:"meeting_title"`
	ParticipantCount *int   `json:"participant_count"`
}

// Equal reports whether two observations carry the same three signals.
func (o CallObservation) Equal(other CallObservation) bool {
	if o.CallActive != other.CallActive || o.MeetingTitle != other.MeetingTitle {
		return false
	}
	if (o.ParticipantCount == nil) != (other.ParticipantCount == nil) {
		return false
	}
	return o.ParticipantCount == nil || *o.ParticipantCount == *other.ParticipantCount
}

// Badge is the at-a-glance indicator derived from the recording state.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// RecordingState is the coordinator-owned single source of truth, pushed to
// every listening context after each mutation.
type RecordingState struct {
	CallActive       bool       `json:"call_active"`
	CallTabID        string     `json:"call_tab_id,omitempty"`
	CallTitle        string     `json:"call_title"`
	ParticipantCount *int       `json:"participant_count"`
	Phase            Phase      `json:"recording_state"`
	StartedAt        *time.Time `json:"recording_started_at"`
	LastError        string     `json:"last_error,omitempty"`
	CurrentFilename  string     `json:"current_filename,omitempty"`
	LatestArtifactID string     `json:"latest_artifact_id,omitempty"`
	Badge            Badge      `json:"badge"`
}

// StartRequest is the payload of a START_RECORDING message.
type StartRequest struct {
	Notes string `json:"notes,omitempty" validate:"max=2000"`
}

// DeleteRequest is the payload of a DELETE_RECORDING message.
type DeleteRequest struct {
	ID string `json:"id" validate:"required,uuid4"`
}

// SessionMetadata describes the call a capture session belongs to.
type SessionMetadata struct {
	MeetingTitle     string    `json:"meeting_title"`
	ParticipantCount *int      `json:"participant_count"`
	StartedAt        time.Time `json:"started_at"`
	Notes            string    `json:"notes,omitempty"`
	Transcript       string    `json:"transcript,omitempty"`
}

// CaptureStart is the payload commanding the capture worker to begin a
// session. Token is the single-use grant for tab audio; it may be empty only
// when SourceMode is mic-only.
type CaptureStart struct {
	Token       string           `json:"token"`
	TabID       string           `json:"tab_id"`
	SourceMode  SourceMode       `json:"source_mode"`
	Format      Format           `json:"format"`
	BeepOnStart bool             `json:"beep_on_start"`
	Metadata    *SessionMetadata `json:"metadata"`
}

// FinalizedRecording is the worker's report carrying the encoded artifact.
// NegotiatedFormat is authoritative: the session may have degraded the
// requested format (mp3 always degrades, wav degrades on conversion failure).
type FinalizedRecording struct {
	RequestedFormat  Format `json:"requested_format"`
	NegotiatedFormat Format `json:"negotiated_format"`
	Transcript       string `json:"transcript,omitempty"`
	Artifact         []byte `json:"-"`
}

// RecordingRecord is one entry in the persisted recording history.
type RecordingRecord struct {
	ID               string    `json:"id"`
	Filename         string    `json:"filename"`
	ArtifactID       string    `json:"artifact_id"`
	CreatedAt        time.Time `json:"created_at"`
	StartedAt        time.Time `json:"started_at"`
	EndedAt          time.Time `json:"ended_at"`
	DurationSec      float64   `json:"duration_sec"`
	MeetingTitle     string    `json:"meeting_title"`
	ParticipantCount *int      `json:"participant_count"`
	Notes            string    `json:"notes,omitempty"`
	Format           Format    `json:"format"`
	Folder           string    `json:"folder"`
}
