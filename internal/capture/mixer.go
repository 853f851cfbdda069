package capture

import (
	"encoding/binary"
	"math"
	"sync"
)

// Mixer combines PCM from multiple sources into a single stream by
// saturating addition of 16-bit samples. Sources run at different paces, so
// each gets a staging buffer; the mixer emits the largest frame-aligned span
// every live source can cover. A source that ends mid-session simply stops
// contributing.
type Mixer struct {
	mu     sync.Mutex
	cond   *sync.Cond
	inputs []*mixerInput
	out    chan []byte
	done   chan struct{}
	closed bool
	err    error
}

type mixerInput struct {
	src  Source
	buf  []byte
	dead bool
}

// Mix starts mixing the given sources. The mixer owns the sources and closes
// them when it is closed.
func Mix(sources ...Source) *Mixer {
	m := &Mixer{
		out:  make(chan []byte, 8),
		done: make(chan struct{}),
	}
	m.cond = sync.NewCond(&m.mu)

	for _, src := range sources {
		in := &mixerInput{src: src}
		m.inputs = append(m.inputs, in)
		go m.drain(in)
	}
	go m.mixLoop()
	return m
}

func (m *Mixer) drain(in *mixerInput) {
	for frame := range in.src.Frames() {
		m.mu.Lock()
		in.buf = append(in.buf, frame...)
		m.cond.Signal()
		m.mu.Unlock()
	}

	m.mu.Lock()
	in.dead = true
	if err := in.src.Err(); err != nil && m.err == nil {
		m.err = err
	}
	m.cond.Signal()
	m.mu.Unlock()
}

// takeLocked returns the next mixable span, or nil when more input is needed.
func (m *Mixer) takeLocked() []byte {
	n := math.MaxInt
	any := false
	for _, in := range m.inputs {
		// A dead source can leave a sub-frame residue (process killed
		// mid-frame); it will never grow, so it must not cap the span.
		if in.dead && len(in.buf) < FrameBytes {
			continue
		}
		any = true
		if len(in.buf) < n {
			n = len(in.buf)
		}
	}
	n -= n % FrameBytes
	if !any || n == 0 {
		return nil
	}

	mixed := make([]byte, n)
	first := true
	for _, in := range m.inputs {
		if len(in.buf) < n {
			continue
		}
		if first {
			copy(mixed, in.buf[:n])
			first = false
		} else {
			addSaturating(mixed, in.buf[:n])
		}
		in.buf = in.buf[n:]
	}
	return mixed
}

func (m *Mixer) allDeadLocked() bool {
	for _, in := range m.inputs {
		if !in.dead || len(in.buf) >= FrameBytes {
			return false
		}
	}
	return true
}

func (m *Mixer) mixLoop() {
	for {
		m.mu.Lock()
		var chunk []byte
		for !m.closed {
			if chunk = m.takeLocked(); chunk != nil {
				break
			}
			if m.allDeadLocked() {
				break
			}
			m.cond.Wait()
		}
		finished := m.closed || (chunk == nil && m.allDeadLocked())
		m.mu.Unlock()

		if chunk != nil {
			select {
			case m.out <- chunk:
			case <-m.done:
				close(m.out)
				return
			}
		}
		if finished {
			close(m.out)
			return
		}
	}
}

// addSaturating adds src samples into dst, clamping at the int16 range.
func addSaturating(dst, src []byte) {
	for i := 0; i+1 < len(dst); i += BytesPerSample {
		a := int32(int16(binary.LittleEndian.Uint16(dst[i:])))
		b := int32(int16(binary.LittleEndian.Uint16(src[i:])))
		sum := a + b
		if sum > math.MaxInt16 {
			sum = math.MaxInt16
		} else if sum < math.MinInt16 {
			sum = math.MinInt16
		}
		binary.LittleEndian.PutUint16(dst[i:], uint16(int16(sum)))
	}
}

// Frames returns the mixed output stream.
func (m *Mixer) Frames() <-chan []byte {
	return m.out
}

// Err reports the first source failure observed, if any.
func (m *Mixer) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Close stops mixing and closes all sources.
func (m *Mixer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()

	close(m.done)
	for _, in := range m.inputs {
		_ = in.src.Close()
	}
	return nil
}
