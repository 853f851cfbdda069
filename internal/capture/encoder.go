package capture

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/meetcap/meetcap/internal/util"
)

const encodeReadChunk = 32 * 1024

// encodeSession wraps one FFmpeg encoding process. Mixed PCM goes in through
// stdin; the encoded WebM stream is collected from stdout as an ordered list
// of chunks until the session finishes. While paused, fed audio is dropped so
// the artifact contains no gap for the paused span.
type encodeSession struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stderr *bytes.Buffer

	mu     sync.Mutex
	paused bool

	readDone chan struct{}
	chunks   [][]byte
}

func startEncoder(ctx context.Context, ffmpegPath string, profile encoderProfile) (*encodeSession, error) {
	ctx, cancel := context.WithCancel(ctx)

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"-i", "pipe:0",
		"-c:a", profile.Codec,
		"-b:a", profile.Bitrate,
		"-f", "webm",
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.WaitDelay = 10 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("open encoder stdin", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("open encoder stdout", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, util.WrapError("start encoder", err)
	}

	e := &encodeSession{
		cmd:      cmd,
		cancel:   cancel,
		stdin:    stdin,
		stderr:   &stderr,
		readDone: make(chan struct{}),
	}
	go e.collect(stdout)
	return e, nil
}

func (e *encodeSession) collect(stdout io.ReadCloser) {
	defer close(e.readDone)

	for {
		buf := make([]byte, encodeReadChunk)
		n, err := stdout.Read(buf)
		if n > 0 {
			e.mu.Lock()
			e.chunks = append(e.chunks, buf[:n])
			e.mu.Unlock()
		}
		if err != nil {
			return
		}
	}
}

// Feed writes mixed PCM into the encoder. Audio fed while paused is dropped.
func (e *encodeSession) Feed(frame []byte) error {
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return nil
	}

	if _, err := e.stdin.Write(frame); err != nil {
		if msg := util.ExtractLastError(e.stderr.String()); msg != "" {
			return fmt.Errorf("encoder: %s", msg)
		}
		return util.WrapError("feed encoder", err)
	}
	return nil
}

func (e *encodeSession) SetPaused(paused bool) {
	e.mu.Lock()
	e.paused = paused
	e.mu.Unlock()
}

// Finish closes the input, waits for the encoder to flush, and returns the
// complete encoded artifact.
func (e *encodeSession) Finish() ([]byte, error) {
	_ = e.stdin.Close()
	waitErr := e.cmd.Wait()
	<-e.readDone

	e.mu.Lock()
	var size int
	for _, c := range e.chunks {
		size += len(c)
	}
	encoded := make([]byte, 0, size)
	for _, c := range e.chunks {
		encoded = append(encoded, c...)
	}
	e.mu.Unlock()

	if waitErr != nil {
		if msg := util.ExtractLastError(e.stderr.String()); msg != "" {
			return encoded, fmt.Errorf("encoder exited: %s", msg)
		}
		return encoded, util.WrapError("encoder exited", waitErr)
	}
	if len(encoded) == 0 {
		return nil, fmt.Errorf("encoder produced no output")
	}
	return encoded, nil
}

// Abort kills the encoder without collecting output.
func (e *encodeSession) Abort() {
	_ = e.stdin.Close()
	e.cancel()
	_ = e.cmd.Wait()
	<-e.readDone
}
