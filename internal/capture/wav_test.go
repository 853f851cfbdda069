package capture

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/meetcap/meetcap/internal/protocol"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := make([]byte, 9600) // 50ms of stereo s16le at 48kHz
	out := EncodeWAV(pcm, SampleRate, Channels)

	if len(out) != wavHeaderSize+len(pcm) {
		t.Fatalf("len = %d, want %d", len(out), wavHeaderSize+len(pcm))
	}

	if !bytes.Equal(out[0:4], []byte("RIFF")) {
		t.Errorf("chunk ID = %q, want RIFF", out[0:4])
	}
	if got := binary.LittleEndian.Uint32(out[4:8]); got != uint32(36+len(pcm)) {
		t.Errorf("chunk size = %d, want %d", got, 36+len(pcm))
	}
	if !bytes.Equal(out[8:12], []byte("WAVE")) {
		t.Errorf("format = %q, want WAVE", out[8:12])
	}
	if !bytes.Equal(out[12:16], []byte("fmt ")) {
		t.Errorf("sub-chunk ID = %q, want 'fmt '", out[12:16])
	}
	if got := binary.LittleEndian.Uint32(out[16:20]); got != 16 {
		t.Errorf("fmt chunk size = %d, want 16", got)
	}
	if got := binary.LittleEndian.Uint16(out[20:22]); got != 1 {
		t.Errorf("audio format = %d, want 1 (PCM)", got)
	}
	if got := binary.LittleEndian.Uint16(out[22:24]); got != Channels {
		t.Errorf("channels = %d, want %d", got, Channels)
	}
	if got := binary.LittleEndian.Uint32(out[24:28]); got != SampleRate {
		t.Errorf("sample rate = %d, want %d", got, SampleRate)
	}
	if got := binary.LittleEndian.Uint32(out[28:32]); got != SampleRate*Channels*BytesPerSample {
		t.Errorf("byte rate = %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[32:34]); got != Channels*BytesPerSample {
		t.Errorf("block align = %d", got)
	}
	if got := binary.LittleEndian.Uint16(out[34:36]); got != 16 {
		t.Errorf("bits per sample = %d, want 16", got)
	}
	if !bytes.Equal(out[36:40], []byte("data")) {
		t.Errorf("data chunk ID = %q", out[36:40])
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != uint32(len(pcm)) {
		t.Errorf("data size = %d, want %d", got, len(pcm))
	}
	if !bytes.Equal(out[wavHeaderSize:], pcm) {
		t.Error("payload does not follow the header unchanged")
	}
}

func TestEncodeWAVEmptyPayload(t *testing.T) {
	out := EncodeWAV(nil, SampleRate, Channels)
	if len(out) != wavHeaderSize {
		t.Fatalf("len = %d, want header only", len(out))
	}
	if got := binary.LittleEndian.Uint32(out[40:44]); got != 0 {
		t.Errorf("data size = %d, want 0", got)
	}
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		requested protocol.Format
		want      protocol.Format
	}{
		{protocol.FormatWebM, protocol.FormatWebM},
		{protocol.FormatWAV, protocol.FormatWAV},
		{protocol.FormatMP3, protocol.FormatWebM},
	}
	for _, tt := range tests {
		if got := Negotiate(tt.requested); got != tt.want {
			t.Errorf("Negotiate(%q) = %q, want %q", tt.requested, got, tt.want)
		}
	}
}
