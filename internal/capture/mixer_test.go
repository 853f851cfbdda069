package capture

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

type stubSource struct {
	frames chan []byte
	err    error
	closed bool
}

func newStubSource() *stubSource {
	return &stubSource{frames: make(chan []byte, 16)}
}

func (s *stubSource) Frames() <-chan []byte { return s.frames }
func (s *stubSource) Err() error            { return s.err }
func (s *stubSource) Close() error {
	s.closed = true
	return nil
}

func pcm16(samples ...int16) []byte {
	buf := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*BytesPerSample:], uint16(s))
	}
	return buf
}

func collectFrames(t *testing.T, m *Mixer) []byte {
	t.Helper()
	var out []byte
	timeout := time.After(5 * time.Second)
	for {
		select {
		case frame, ok := <-m.Frames():
			if !ok {
				return out
			}
			out = append(out, frame...)
		case <-timeout:
			t.Fatal("mixer output did not complete")
		}
	}
}

func TestAddSaturating(t *testing.T) {
	tests := []struct {
		name string
		a, b int16
		want int16
	}{
		{"simple sum", 100, 200, 300},
		{"negative sum", -100, -200, -300},
		{"clamps high", math.MaxInt16, 1000, math.MaxInt16},
		{"clamps low", math.MinInt16, -1000, math.MinInt16},
		{"cancellation", 5000, -5000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := pcm16(tt.a)
			addSaturating(dst, pcm16(tt.b))
			if got := int16(binary.LittleEndian.Uint16(dst)); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMixTwoSources(t *testing.T) {
	a, b := newStubSource(), newStubSource()

	a.frames <- pcm16(100, 100, 200, 200)
	b.frames <- pcm16(10, 10, 20, 20)
	close(a.frames)
	close(b.frames)

	m := Mix(a, b)
	got := collectFrames(t, m)

	want := pcm16(110, 110, 220, 220)
	if len(got) != len(want) {
		t.Fatalf("mixed %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestMixContinuesAfterSourceEnds(t *testing.T) {
	a, b := newStubSource(), newStubSource()

	a.frames <- pcm16(100, 100)
	close(a.frames) // Mic died mid-session
	b.frames <- pcm16(10, 10, 20, 20)
	close(b.frames)

	m := Mix(a, b)
	got := collectFrames(t, m)

	// The overlap is mixed, the remainder passes through.
	want := pcm16(110, 110, 20, 20)
	if len(got) != len(want) {
		t.Fatalf("mixed %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestMixDropsSubFrameResidueOfDeadSource(t *testing.T) {
	a, b := newStubSource(), newStubSource()

	// A killed capture process can end on a partial frame. That residue must
	// not hold back the surviving sources' audio.
	a.frames <- []byte{1, 2}
	close(a.frames)
	b.frames <- pcm16(10, 10, 20, 20)
	close(b.frames)

	m := Mix(a, b)
	got := collectFrames(t, m)

	want := pcm16(10, 10, 20, 20)
	if len(got) != len(want) {
		t.Fatalf("mixed %d bytes, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("byte %d = %#x, want %#x", i, got[i], want[i])
		}
	}
}

func TestMixReportsSourceError(t *testing.T) {
	src := newStubSource()
	src.err = errors.New("stream interrupted")
	close(src.frames)

	m := Mix(src)
	collectFrames(t, m)

	if m.Err() == nil || m.Err().Error() != "stream interrupted" {
		t.Errorf("Err() = %v, want source error", m.Err())
	}
}

func TestMixCloseClosesSources(t *testing.T) {
	a, b := newStubSource(), newStubSource()
	m := Mix(a, b)

	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !a.closed || !b.closed {
		t.Error("mixer close did not close its sources")
	}

	// Idempotent.
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestStartBeepPCM(t *testing.T) {
	beep := startBeepPCM()

	wantLen := SampleRate * beepDurationMs / 1000 * FrameBytes
	if len(beep) != wantLen {
		t.Fatalf("len = %d, want %d", len(beep), wantLen)
	}

	// Fades in from silence.
	if got := int16(binary.LittleEndian.Uint16(beep[0:2])); got != 0 {
		t.Errorf("first sample = %d, want 0", got)
	}

	// Amplitude stays within the configured ceiling.
	ceiling := beepAmplitude * float64(math.MaxInt16)
	limit := int16(ceiling) + 1
	var peak int16
	for i := 0; i+1 < len(beep); i += BytesPerSample {
		s := int16(binary.LittleEndian.Uint16(beep[i:]))
		if s > peak {
			peak = s
		}
		if s > limit || s < -limit {
			t.Fatalf("sample %d = %d exceeds amplitude limit %d", i/BytesPerSample, s, limit)
		}
	}
	if peak == 0 {
		t.Error("beep is silent")
	}

	// Both channels carry the same signal.
	for i := 0; i+FrameBytes <= len(beep); i += FrameBytes {
		l := int16(binary.LittleEndian.Uint16(beep[i:]))
		r := int16(binary.LittleEndian.Uint16(beep[i+BytesPerSample:]))
		if l != r {
			t.Fatalf("frame %d: left %d != right %d", i/FrameBytes, l, r)
		}
	}
}
