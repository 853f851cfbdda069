package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
)

type trackingSink struct {
	mu     sync.Mutex
	closed bool
}

func (s *trackingSink) Feed(pcm []byte) {}
func (s *trackingSink) Text() string    { return "" }
func (s *trackingSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *trackingSink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestStartFailureClosesTranscriptSink(t *testing.T) {
	sink := &trackingSink{}
	w := NewWorker("ffmpeg", "", nil, func(ctx context.Context) (TranscriptSink, error) {
		return sink, nil
	}, func(rec *protocol.FinalizedRecording, meta *protocol.SessionMetadata, err error) {})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	// System capture without a token fails before any source is acquired,
	// so the sink the worker just opened is the only live resource.
	err := w.Start(ctx, &protocol.CaptureStart{
		SourceMode: protocol.SourceSystem,
		Format:     protocol.FormatWebM,
	})
	if !errors.Is(err, ErrTokenRequired) {
		t.Fatalf("Start() = %v, want %v", err, ErrTokenRequired)
	}

	deadline := time.After(2 * time.Second)
	for !sink.Closed() {
		select {
		case <-deadline:
			t.Fatal("transcript sink was not closed after failed start")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
