// Package capture implements the audio pipeline: source acquisition, mixing,
// encoding through FFmpeg, and format conversion of the finished artifact.
package capture

import "errors"

// PCM wire format shared by every source. All sources deliver interleaved
// 16-bit little-endian stereo at 48 kHz.
const (
	SampleRate     = 48000
	Channels       = 2
	BytesPerSample = 2
	FrameBytes     = Channels * BytesPerSample
)

// Sentinel errors for capture operations.
var (
	ErrNoAudioSource  = errors.New("no audio source available")
	ErrAlreadyRunning = errors.New("capture session already running")
	ErrNotRunning     = errors.New("no capture session running")
	ErrNotPaused      = errors.New("capture session not paused")
	ErrTokenRequired  = errors.New("capture token required for system audio")
)

// Source delivers PCM audio frames from one input (tab audio or microphone).
// Frames returns a channel that is closed when the source ends; after the
// close, Err reports why. Close releases the underlying resources and is safe
// to call more than once.
type Source interface {
	Frames() <-chan []byte
	Err() error
	Close() error
}
