// Package coordinator owns the recording state machine. All state mutations
// happen on a single command loop: external commands, call status reports,
// and finalize callbacks are queued onto one channel and applied strictly in
// order, so no two transitions can ever overlap.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meetcap/meetcap/internal/config"
	"github.com/meetcap/meetcap/internal/eventlog"
	"github.com/meetcap/meetcap/internal/protocol"
)

// Sentinel errors for recording preconditions.
var (
	ErrConsentRequired  = errors.New("recording consent has not been accepted")
	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrNotPaused        = errors.New("recording is not paused")
)

// Badge presets keyed to state.
var (
	badgeRecording  = protocol.Badge{Text: "REC", Color: "#d93025"}
	badgeCallActive = protocol.Badge{Text: "CALL", Color: "#188038"}
	badgeIdle       = protocol.Badge{}
)

// captureCommander is the slice of the capture worker the coordinator
// drives.
type captureCommander interface {
	Running(ctx context.Context) (bool, error)
	Start(ctx context.Context, req *protocol.CaptureStart) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Stop(ctx context.Context) error
}

// tabResolver binds a recording to the live call tab and mints capture
// grants.
type tabResolver interface {
	ResolveCallTab() (tabID, title string, err error)
	GrantCapture(tabID string) (string, error)
}

// persister stores finalized artifacts and the history index.
type persister interface {
	SaveArtifact(folder, filename string, data []byte) (string, error)
	WriteSidecar(artifactID string, meta *protocol.SessionMetadata) error
	AppendRecord(record *protocol.RecordingRecord) error
	List() ([]protocol.RecordingRecord, error)
	Delete(id string) error
}

// BroadcastFunc pushes a state snapshot to every listener after a mutation.
type BroadcastFunc func(state protocol.RecordingState)

// FinalizedHook observes each persisted recording, e.g. for notifications or
// mirroring. Hooks run off the command loop and must not block it.
type FinalizedHook func(record *protocol.RecordingRecord, artifactPath string)

type request struct {
	msg   *protocol.Message
	obs   *callStatusReport
	fin   *finalizeReport
	reply chan protocol.Response
}

type callStatusReport struct {
	obs   protocol.CallObservation
	tabID string
}

type finalizeReport struct {
	rec  *protocol.FinalizedRecording
	meta *protocol.SessionMetadata
	err  error
}

// Coordinator applies commands to the recording state machine.
type Coordinator struct {
	cfg       *config.Config
	worker    captureCommander
	tabs      tabResolver
	store     persister
	events    *eventlog.Logger
	broadcast BroadcastFunc
	hooks     []FinalizedHook

	reqs  chan request
	state protocol.RecordingState
}

// New creates a coordinator. Run must be started before commands are
// dispatched.
func New(cfg *config.Config, worker captureCommander, tabs tabResolver, st persister, events *eventlog.Logger, broadcast BroadcastFunc) *Coordinator {
	return &Coordinator{
		cfg:       cfg,
		worker:    worker,
		tabs:      tabs,
		store:     st,
		events:    events,
		broadcast: broadcast,
		reqs:      make(chan request, 16),
		state:     protocol.RecordingState{Phase: protocol.PhaseIdle},
	}
}

// OnFinalized registers a hook invoked after each recording is persisted.
// Must be called before Run.
func (c *Coordinator) OnFinalized(hook FinalizedHook) {
	c.hooks = append(c.hooks, hook)
}

// Run consumes commands until the context is canceled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req := <-c.reqs:
			c.handle(ctx, req)
		}
	}
}

func (c *Coordinator) handle(ctx context.Context, req request) {
	switch {
	case req.msg != nil:
		resp := c.handleMessage(ctx, req.msg)
		if req.reply != nil {
			req.reply <- resp
		}
	case req.obs != nil:
		c.applyCallStatus(ctx, req.obs.obs, req.obs.tabID)
	case req.fin != nil:
		c.handleFinalize(ctx, req.fin)
	}
}

// Dispatch submits one protocol message and waits for its response. Safe for
// concurrent callers; the command loop serializes them.
func (c *Coordinator) Dispatch(ctx context.Context, msg *protocol.Message) protocol.Response {
	reply := make(chan protocol.Response, 1)
	select {
	case c.reqs <- request{msg: msg, reply: reply}:
	case <-ctx.Done():
		return protocol.Fail(ctx.Err())
	}
	select {
	case resp := <-reply:
		return resp
	case <-ctx.Done():
		return protocol.Fail(ctx.Err())
	}
}

// ReportCallStatus feeds an observation from the detection loop. Fire and
// forget; a full queue drops the report because a newer one follows within a
// poll interval.
func (c *Coordinator) ReportCallStatus(obs protocol.CallObservation, tabID string) {
	select {
	case c.reqs <- request{obs: &callStatusReport{obs: obs, tabID: tabID}}:
	default:
		slog.Warn("call status report dropped, command queue full")
	}
}

// Finalized is the capture worker's finalize callback.
func (c *Coordinator) Finalized(rec *protocol.FinalizedRecording, meta *protocol.SessionMetadata, err error) {
	c.reqs <- request{fin: &finalizeReport{rec: rec, meta: meta, err: err}}
}

func (c *Coordinator) handleMessage(ctx context.Context, msg *protocol.Message) protocol.Response {
	switch msg.Type {
	case protocol.MsgGetState:
		return protocol.Ok(c.state)

	case protocol.MsgListRecordings:
		records, err := c.store.List()
		if err != nil {
			return protocol.Fail(err)
		}
		return protocol.Ok(records)

	case protocol.MsgDeleteRecording:
		var req protocol.DeleteRequest
		if err := protocol.Decode(msg, &req); err != nil {
			return protocol.Fail(err)
		}
		if err := c.store.Delete(req.ID); err != nil {
			return protocol.Fail(err)
		}
		c.logEvent(eventlog.RecordingDeleted, &eventlog.RecordingDetails{RecordID: req.ID})
		return protocol.Ok(nil)

	case protocol.MsgStartRecording:
		var req protocol.StartRequest
		if err := protocol.Decode(msg, &req); err != nil {
			return protocol.Fail(err)
		}
		return c.handleStart(ctx, req.Notes)

	case protocol.MsgPauseRecording:
		return c.handlePause(ctx)

	case protocol.MsgResumeRecording:
		return c.handleResume(ctx)

	case protocol.MsgStopRecording:
		return c.handleStop(ctx)

	case protocol.MsgCallStatusUpdate:
		var obs protocol.CallObservation
		if err := protocol.Decode(msg, &obs); err != nil {
			return protocol.Fail(err)
		}
		c.applyCallStatus(ctx, obs, c.state.CallTabID)
		return protocol.Ok(nil)

	default:
		return protocol.Fail(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (c *Coordinator) handleStart(ctx context.Context, notes string) protocol.Response {
	settings := c.cfg.CurrentSettings()

	if !settings.ConsentAccepted {
		return protocol.Fail(ErrConsentRequired)
	}
	if c.state.Phase != protocol.PhaseIdle {
		return protocol.Fail(ErrAlreadyRecording)
	}

	tabID, title, err := c.tabs.ResolveCallTab()
	if err != nil {
		return protocol.Fail(err)
	}

	var token string
	if settings.SourceMode.NeedsSystem() {
		token, err = c.tabs.GrantCapture(tabID)
		if err != nil {
			return protocol.Fail(err)
		}
	}

	if _, err := c.worker.Running(ctx); err != nil {
		return protocol.Fail(fmt.Errorf("capture worker unavailable: %w", err))
	}

	if notes == "" {
		notes = settings.Notes
	}
	now := time.Now()
	meta := &protocol.SessionMetadata{
		MeetingTitle:     title,
		ParticipantCount: c.state.ParticipantCount,
		StartedAt:        now,
		Notes:            notes,
	}

	snap := c.cfg.Snapshot()
	filename := BuildFilename(snap.AppName, title, now, settings.Format)

	// The transition commits before the worker is commanded; a worker
	// failure rolls it back. Broadcasts always trail the mutation they
	// describe.
	c.state.Phase = protocol.PhaseRecording
	c.state.StartedAt = &now
	c.state.CurrentFilename = filename
	c.state.CallTabID = tabID
	c.state.LastError = ""
	c.broadcastState()

	err = c.worker.Start(ctx, &protocol.CaptureStart{
		Token:       token,
		TabID:       tabID,
		SourceMode:  settings.SourceMode,
		Format:      settings.Format,
		BeepOnStart: settings.BeepOnStart,
		Metadata:    meta,
	})
	if err != nil {
		c.state.Phase = protocol.PhaseIdle
		c.state.StartedAt = nil
		c.state.CurrentFilename = ""
		c.state.LastError = err.Error()
		c.broadcastState()
		return protocol.Fail(err)
	}

	c.logEvent(eventlog.RecordingStarted, &eventlog.RecordingDetails{
		Filename:        filename,
		RequestedFormat: string(settings.Format),
	})
	return protocol.Ok(c.state)
}

func (c *Coordinator) handlePause(ctx context.Context) protocol.Response {
	if c.state.Phase != protocol.PhaseRecording {
		return protocol.Fail(ErrNotRecording)
	}
	if err := c.worker.Pause(ctx); err != nil {
		return protocol.Fail(err)
	}
	c.state.Phase = protocol.PhasePaused
	c.broadcastState()
	c.logEvent(eventlog.RecordingPaused, nil)
	return protocol.Ok(c.state)
}

func (c *Coordinator) handleResume(ctx context.Context) protocol.Response {
	if c.state.Phase != protocol.PhasePaused {
		return protocol.Fail(ErrNotPaused)
	}
	if err := c.worker.Resume(ctx); err != nil {
		return protocol.Fail(err)
	}
	c.state.Phase = protocol.PhaseRecording
	c.broadcastState()
	c.logEvent(eventlog.RecordingResumed, nil)
	return protocol.Ok(c.state)
}

func (c *Coordinator) handleStop(ctx context.Context) protocol.Response {
	if c.state.Phase == protocol.PhaseIdle {
		return protocol.Fail(ErrNotRecording)
	}

	// State stays Recording/Paused until the finalize callback lands; the
	// machine never claims Idle while the encoder is still flushing.
	if err := c.worker.Stop(ctx); err != nil {
		// The worker lost its session. Without a session there will be no
		// finalize callback, so reset here instead of waiting forever.
		c.state.Phase = protocol.PhaseIdle
		c.state.StartedAt = nil
		c.state.CurrentFilename = ""
		c.state.LastError = err.Error()
		c.broadcastState()
		return protocol.Fail(err)
	}
	return protocol.Ok(c.state)
}

func (c *Coordinator) applyCallStatus(ctx context.Context, obs protocol.CallObservation, tabID string) {
	wasActive := c.state.CallActive

	c.state.CallActive = obs.CallActive
	c.state.CallTitle = obs.MeetingTitle
	c.state.ParticipantCount = obs.ParticipantCount
	if tabID != "" {
		c.state.CallTabID = tabID
	}

	if obs.CallActive && !wasActive {
		c.logCallEvent(eventlog.CallDetected, tabID, &obs)
	}
	if !obs.CallActive && wasActive {
		c.logCallEvent(eventlog.CallEnded, tabID, &obs)
	}

	c.broadcastState()

	// Auto-stop: a recording must not outlive its call.
	if !obs.CallActive && c.state.Phase != protocol.PhaseIdle {
		slog.Info("call ended while recording, stopping")
		if resp := c.handleStop(ctx); !resp.OK {
			slog.Error("auto-stop failed", "error", resp.Error)
		}
	}
}

func (c *Coordinator) handleFinalize(ctx context.Context, fin *finalizeReport) {
	if fin.err != nil {
		c.state.LastError = fin.err.Error()
		c.logEvent(eventlog.RecordingError, &eventlog.RecordingDetails{Error: fin.err.Error()})
	}

	if fin.rec != nil && fin.meta != nil {
		c.persistRecording(ctx, fin.rec, fin.meta)
	}

	if err := c.cfg.ClearNotes(); err != nil {
		slog.Warn("failed to clear notes", "error", err)
	}

	// Unconditional: whatever happened above, the machine returns to Idle.
	// A persistence failure must never strand the state in Recording.
	c.state.Phase = protocol.PhaseIdle
	c.state.StartedAt = nil
	c.state.CurrentFilename = ""
	c.broadcastState()
}

func (c *Coordinator) persistRecording(ctx context.Context, rec *protocol.FinalizedRecording, meta *protocol.SessionMetadata) {
	settings := c.cfg.CurrentSettings()
	now := time.Now()

	filename := withExtension(c.state.CurrentFilename, rec.NegotiatedFormat)
	if c.state.CurrentFilename == "" {
		snap := c.cfg.Snapshot()
		filename = BuildFilename(snap.AppName, meta.MeetingTitle, meta.StartedAt, rec.NegotiatedFormat)
	}

	artifactID, err := c.store.SaveArtifact(settings.Folder, filename, rec.Artifact)
	if err != nil {
		c.state.LastError = err.Error()
		slog.Error("failed to persist artifact", "filename", filename, "error", err)
		c.logEvent(eventlog.PersistFailed, &eventlog.RecordingDetails{Filename: filename, Error: err.Error()})
		return
	}

	if rec.Transcript != "" {
		meta.Transcript = rec.Transcript
	}
	if err := c.store.WriteSidecar(artifactID, meta); err != nil {
		slog.Warn("failed to write sidecar", "artifact", artifactID, "error", err)
	}

	record := &protocol.RecordingRecord{
		ID:               uuid.NewString(),
		Filename:         filename,
		ArtifactID:       artifactID,
		CreatedAt:        now,
		StartedAt:        meta.StartedAt,
		EndedAt:          now,
		DurationSec:      now.Sub(meta.StartedAt).Seconds(),
		MeetingTitle:     meta.MeetingTitle,
		ParticipantCount: meta.ParticipantCount,
		Notes:            meta.Notes,
		Format:           rec.NegotiatedFormat,
		Folder:           settings.Folder,
	}
	if err := c.store.AppendRecord(record); err != nil {
		c.state.LastError = err.Error()
		slog.Error("failed to append history record", "error", err)
		c.logEvent(eventlog.PersistFailed, &eventlog.RecordingDetails{Filename: filename, Error: err.Error()})
		return
	}

	c.state.LatestArtifactID = artifactID
	c.logEvent(eventlog.RecordingFinalized, &eventlog.RecordingDetails{
		Filename:         filename,
		RequestedFormat:  string(rec.RequestedFormat),
		NegotiatedFormat: string(rec.NegotiatedFormat),
		DurationSec:      record.DurationSec,
		SizeBytes:        int64(len(rec.Artifact)),
		RecordID:         record.ID,
	})

	artifactPath := artifactID
	if p, ok := c.store.(interface{ ArtifactPath(string) string }); ok {
		artifactPath = p.ArtifactPath(artifactID)
	}
	for _, hook := range c.hooks {
		go hook(record, artifactPath)
	}
}

func (c *Coordinator) broadcastState() {
	c.state.Badge = c.badgeForState()
	if c.broadcast != nil {
		c.broadcast(c.state)
	}
}

func (c *Coordinator) badgeForState() protocol.Badge {
	switch {
	case c.state.Phase != protocol.PhaseIdle:
		return badgeRecording
	case c.state.CallActive:
		return badgeCallActive
	default:
		return badgeIdle
	}
}

func (c *Coordinator) logEvent(eventType eventlog.EventType, details *eventlog.RecordingDetails) {
	if err := c.events.LogRecording(eventType, details); err != nil {
		slog.Warn("failed to write event log", "type", eventType, "error", err)
	}
}

func (c *Coordinator) logCallEvent(eventType eventlog.EventType, tabID string, obs *protocol.CallObservation) {
	if err := c.events.LogCall(eventType, tabID, obs.MeetingTitle, obs.ParticipantCount); err != nil {
		slog.Warn("failed to write event log", "type", eventType, "error", err)
	}
}

// State returns the last snapshot. Only safe from the command loop's own
// callbacks; external readers go through Dispatch with a GET_STATE message.
func (c *Coordinator) State() protocol.RecordingState {
	return c.state
}
