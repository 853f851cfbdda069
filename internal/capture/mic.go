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

// micFilterChain cleans up speech before mixing: high-pass to drop rumble,
// spectral denoise, and speech-targeted gain normalization.
const micFilterChain = "highpass=f=80,afftdn=nf=-25,speechnorm=e=6.25:r=0.0001:l=1"

const micReadChunk = 4096

// micCaptureConfig defines platform-specific microphone capture.
type micCaptureConfig struct {
	// InputFormat is the FFmpeg input device format (e.g. "pulse", "avfoundation").
	InputFormat string

	// DefaultDevice is used when no device is configured.
	DefaultDevice string

	// DevicePrefix is prepended to device IDs (e.g. "audio=" for DirectShow).
	DevicePrefix string
}

func buildMicArgs(cfg micCaptureConfig, device string) []string {
	if device == "" {
		device = cfg.DefaultDevice
	}
	return []string{
		"-hide_banner",
		"-loglevel", "warning",
		"-nostdin",
		"-f", cfg.InputFormat,
		"-i", cfg.DevicePrefix + device,
		"-vn",
		"-af", micFilterChain,
		"-f", "s16le",
		"-ac", fmt.Sprint(Channels),
		"-ar", fmt.Sprint(SampleRate),
		"pipe:1",
	}
}

// micSource captures microphone audio through an FFmpeg subprocess.
type micSource struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	frames chan []byte
	done   chan struct{}
	stderr *bytes.Buffer

	mu      sync.Mutex
	readErr error
	closed  bool
}

// OpenMic starts microphone capture. The device identifier is platform
// specific; empty selects the platform default.
func OpenMic(ctx context.Context, ffmpegPath, device string) (Source, error) {
	cfg := getMicPlatformConfig()

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, ffmpegPath, buildMicArgs(cfg, device)...)
	cmd.Cancel = func() error { return util.GracefulSignal(cmd.Process) }
	cmd.WaitDelay = 5 * time.Second

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, util.WrapError("open mic stdout", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, util.WrapError("start mic capture", err)
	}

	m := &micSource{
		cmd:    cmd,
		cancel: cancel,
		frames: make(chan []byte, 8),
		done:   make(chan struct{}),
		stderr: &stderr,
	}
	go m.readLoop(stdout)
	return m, nil
}

func (m *micSource) readLoop(stdout io.ReadCloser) {
	defer close(m.frames)

	for {
		buf := make([]byte, micReadChunk)
		n, err := io.ReadFull(stdout, buf)
		if n > 0 {
			select {
			case m.frames <- buf[:n]:
			case <-m.done:
				return
			}
		}
		if err != nil {
			m.mu.Lock()
			if err != io.EOF && err != io.ErrUnexpectedEOF && !m.closed {
				if msg := util.ExtractLastError(m.stderr.String()); msg != "" {
					m.readErr = fmt.Errorf("mic capture: %s", msg)
				} else {
					m.readErr = util.WrapError("mic capture", err)
				}
			}
			m.mu.Unlock()
			return
		}
	}
}

func (m *micSource) Frames() <-chan []byte {
	return m.frames
}

func (m *micSource) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readErr
}

func (m *micSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.done)
	m.cancel()
	_ = m.cmd.Wait()
	return nil
}
