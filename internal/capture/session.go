package capture

import (
	"context"
	"log/slog"
	"sync"

	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// TabStreamOpener opens the system (tab) audio stream. The token is the
// single-use capture grant minted when recording was authorized; presenting
// it a second time fails.
type TabStreamOpener interface {
	OpenStream(ctx context.Context, token string) (Source, error)
}

// TranscriptSink receives a copy of the mixed audio and yields the collected
// transcript when the session ends. Feed must never block.
type TranscriptSink interface {
	Feed(pcm []byte)
	Text() string
	Close() error
}

// SessionOptions carries everything needed to assemble one recording session.
type SessionOptions struct {
	FFmpegPath string
	MicDevice  string
	Tabs       TabStreamOpener
	Transcript TranscriptSink // optional
	Request    *protocol.CaptureStart
}

// Session is one live recording: the acquired sources, the mixer joining
// them, and the encoder consuming the mix.
type Session struct {
	requested  protocol.Format
	ffmpegPath string
	mixer      *Mixer
	enc        *encodeSession
	transcript TranscriptSink
	feedDone   chan struct{}

	mu      sync.Mutex
	feedErr error
	paused  bool
}

// StartSession acquires audio sources per the requested source mode and
// begins encoding. Acquisition rules: system audio requires the capture
// token and its failure is fatal; a mic failure is fatal only in mic-only
// mode, in "both" mode it degrades to system-only.
func StartSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	req := opts.Request
	var sources []Source

	fail := func(err error) (*Session, error) {
		for _, src := range sources {
			_ = src.Close()
		}
		return nil, err
	}

	if req.SourceMode.NeedsSystem() {
		if req.Token == "" {
			return fail(ErrTokenRequired)
		}
		tab, err := opts.Tabs.OpenStream(ctx, req.Token)
		if err != nil {
			return fail(util.WrapError("acquire tab audio", err))
		}
		sources = append(sources, tab)
	}

	if req.SourceMode.NeedsMic() {
		mic, err := OpenMic(ctx, opts.FFmpegPath, opts.MicDevice)
		if err != nil {
			if req.SourceMode == protocol.SourceMic {
				return fail(util.WrapError("acquire microphone", err))
			}
			slog.Warn("mic acquisition failed, continuing with system audio only", "error", err)
		} else {
			sources = append(sources, mic)
		}
	}

	if len(sources) == 0 {
		return fail(ErrNoAudioSource)
	}

	enc, err := startEncoder(ctx, opts.FFmpegPath, selectProfile(opts.FFmpegPath))
	if err != nil {
		return fail(err)
	}

	s := &Session{
		requested:  req.Format,
		ffmpegPath: opts.FFmpegPath,
		mixer:      Mix(sources...),
		enc:        enc,
		transcript: opts.Transcript,
		feedDone:   make(chan struct{}),
	}

	if req.BeepOnStart {
		if err := enc.Feed(startBeepPCM()); err != nil {
			slog.Warn("failed to write start tone", "error", err)
		}
	}

	go s.feedLoop()
	return s, nil
}

func (s *Session) feedLoop() {
	defer close(s.feedDone)

	for frame := range s.mixer.Frames() {
		if s.transcript != nil {
			s.transcript.Feed(frame)
		}
		if err := s.enc.Feed(frame); err != nil {
			s.mu.Lock()
			s.feedErr = err
			s.mu.Unlock()
			slog.Error("encoder feed failed", "error", err)
			return
		}
	}

	if err := s.mixer.Err(); err != nil {
		s.mu.Lock()
		s.feedErr = err
		s.mu.Unlock()
		slog.Error("audio source failed", "error", err)
	}
}

// SetPaused gates the encoder input. Paused audio is discarded, not
// buffered.
func (s *Session) SetPaused(paused bool) {
	s.mu.Lock()
	s.paused = paused
	s.mu.Unlock()
	s.enc.SetPaused(paused)
}

// Paused reports whether the session is currently paused.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused
}

// Finalize stops capture, flushes the encoder, and performs any requested
// format conversion. Conversion failures degrade to the native format rather
// than losing the recording; the returned negotiated format is authoritative.
func (s *Session) Finalize(ctx context.Context) (*protocol.FinalizedRecording, error) {
	_ = s.mixer.Close()
	<-s.feedDone

	var transcriptText string
	if s.transcript != nil {
		transcriptText = s.transcript.Text()
		_ = s.transcript.Close()
	}

	encoded, err := s.enc.Finish()
	if err != nil && len(encoded) == 0 {
		return nil, err
	}
	if err != nil {
		slog.Warn("encoder finished with error, keeping partial artifact", "error", err)
	}

	negotiated := Negotiate(s.requested)
	data := encoded

	if s.requested == protocol.FormatWAV {
		converted, format, convErr := ConvertToWAV(ctx, s.ffmpegPath, encoded)
		if convErr != nil {
			slog.Warn("wav conversion failed, emitting native format", "error", convErr)
		}
		data, negotiated = converted, format
	}

	return &protocol.FinalizedRecording{
		RequestedFormat:  s.requested,
		NegotiatedFormat: negotiated,
		Transcript:       transcriptText,
		Artifact:         data,
	}, nil
}

// Teardown aborts the session and releases all resources. It is safe to call
// on an already finished session.
func (s *Session) Teardown() {
	_ = s.mixer.Close()
	<-s.feedDone
	if s.transcript != nil {
		_ = s.transcript.Close()
	}
	s.enc.Abort()
}
