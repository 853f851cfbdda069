package capture

import (
	"context"
	"log/slog"

	"github.com/meetcap/meetcap/internal/protocol"
)

// FinalizeFunc receives the finished recording after a stop. When the
// session failed to produce an artifact, rec is nil and err says why; the
// receiver must still run its finalize path so state is never left stuck.
type FinalizeFunc func(rec *protocol.FinalizedRecording, meta *protocol.SessionMetadata, err error)

type cmdKind int

const (
	cmdEnsure cmdKind = iota
	cmdStart
	cmdPause
	cmdResume
	cmdStop
)

type workerCmd struct {
	kind  cmdKind
	start *protocol.CaptureStart
	reply chan cmdResult
}

type cmdResult struct {
	running bool
	err     error
}

// TranscriptFactory opens a transcript sink for a new session. A nil factory
// or a factory error disables transcription for that session.
type TranscriptFactory func(ctx context.Context) (TranscriptSink, error)

// Worker owns the capture session. All session mutations go through its
// command loop, so session state needs no locking and commands are applied
// strictly in order.
type Worker struct {
	ffmpegPath  string
	micDevice   string
	tabs        TabStreamOpener
	transcripts TranscriptFactory
	finalize    FinalizeFunc
	cmds        chan workerCmd
}

// NewWorker creates a capture worker. Run must be called before any command
// is issued.
func NewWorker(ffmpegPath, micDevice string, tabs TabStreamOpener, transcripts TranscriptFactory, finalize FinalizeFunc) *Worker {
	return &Worker{
		ffmpegPath:  ffmpegPath,
		micDevice:   micDevice,
		tabs:        tabs,
		transcripts: transcripts,
		finalize:    finalize,
		cmds:        make(chan workerCmd),
	}
}

// Run processes commands until the context is canceled. Any live session is
// torn down on exit.
func (w *Worker) Run(ctx context.Context) {
	var (
		session *Session
		meta    *protocol.SessionMetadata
	)

	teardown := func() {
		if session != nil {
			session.Teardown()
			session = nil
			meta = nil
		}
	}
	defer teardown()

	for {
		select {
		case <-ctx.Done():
			return

		case cmd := <-w.cmds:
			switch cmd.kind {
			case cmdEnsure:
				cmd.reply <- cmdResult{running: session != nil}

			case cmdStart:
				// A stale session from a crashed or interrupted run must
				// never leak into the new one.
				teardown()
				var sink TranscriptSink
				if w.transcripts != nil {
					var err error
					if sink, err = w.transcripts(ctx); err != nil {
						slog.Warn("transcription unavailable for this session", "error", err)
						sink = nil
					}
				}
				s, err := StartSession(ctx, SessionOptions{
					FFmpegPath: w.ffmpegPath,
					MicDevice:  w.micDevice,
					Tabs:       w.tabs,
					Transcript: sink,
					Request:    cmd.start,
				})
				if err == nil {
					session, meta = s, cmd.start.Metadata
				} else if sink != nil {
					// The session never took ownership; without this the
					// transcript connection leaks on every failed start.
					_ = sink.Close()
				}
				cmd.reply <- cmdResult{err: err}

			case cmdPause:
				if session == nil {
					cmd.reply <- cmdResult{err: ErrNotRunning}
					break
				}
				session.SetPaused(true)
				cmd.reply <- cmdResult{}

			case cmdResume:
				if session == nil {
					cmd.reply <- cmdResult{err: ErrNotRunning}
					break
				}
				if !session.Paused() {
					cmd.reply <- cmdResult{err: ErrNotPaused}
					break
				}
				session.SetPaused(false)
				cmd.reply <- cmdResult{}

			case cmdStop:
				if session == nil {
					cmd.reply <- cmdResult{err: ErrNotRunning}
					break
				}
				s, m := session, meta
				session, meta = nil, nil
				cmd.reply <- cmdResult{}

				// Finalization runs off the command loop so a slow encoder
				// flush or wav conversion never blocks the next session.
				go func() {
					rec, err := s.Finalize(ctx)
					if err != nil {
						slog.Error("session finalize failed", "error", err)
					}
					w.finalize(rec, m, err)
				}()
			}
		}
	}
}

func (w *Worker) send(ctx context.Context, cmd workerCmd) cmdResult {
	cmd.reply = make(chan cmdResult, 1)
	select {
	case w.cmds <- cmd:
	case <-ctx.Done():
		return cmdResult{err: ctx.Err()}
	}
	select {
	case res := <-cmd.reply:
		return res
	case <-ctx.Done():
		return cmdResult{err: ctx.Err()}
	}
}

// Running reports whether a session is live. It doubles as the liveness
// probe: a reply at all means the worker loop is up.
func (w *Worker) Running(ctx context.Context) (bool, error) {
	res := w.send(ctx, workerCmd{kind: cmdEnsure})
	return res.running, res.err
}

// Start begins a new session, tearing down any previous one first.
func (w *Worker) Start(ctx context.Context, req *protocol.CaptureStart) error {
	return w.send(ctx, workerCmd{kind: cmdStart, start: req}).err
}

// Pause gates the encoder input.
func (w *Worker) Pause(ctx context.Context) error {
	return w.send(ctx, workerCmd{kind: cmdPause}).err
}

// Resume reopens the encoder input.
func (w *Worker) Resume(ctx context.Context) error {
	return w.send(ctx, workerCmd{kind: cmdResume}).err
}

// Stop ends the session. The acknowledgement returns immediately; the
// finalized recording is delivered asynchronously through the FinalizeFunc.
func (w *Worker) Stop(ctx context.Context) error {
	return w.send(ctx, workerCmd{kind: cmdStop}).err
}
