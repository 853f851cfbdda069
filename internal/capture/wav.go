package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
	"github.com/meetcap/meetcap/internal/util"
)

// wavHeaderSize is the canonical RIFF/WAVE preamble: RIFF chunk descriptor,
// fmt sub-chunk, and data sub-chunk header.
const wavHeaderSize = 44

const convertTimeout = 2 * time.Minute

// EncodeWAV wraps raw interleaved 16-bit little-endian PCM in a canonical
// WAV container.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	byteRate := sampleRate * channels * BytesPerSample
	blockAlign := channels * BytesPerSample

	buf := make([]byte, wavHeaderSize, wavHeaderSize+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(buf[20:22], 1)  // linear PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], 16) // bits per sample

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))

	return append(buf, pcm...)
}

// ConvertToWAV decodes an encoded WebM artifact back to raw samples and
// re-wraps them as WAV. On any decode failure the original artifact is
// returned unchanged together with its native format, so a conversion
// problem never loses a recording.
func ConvertToWAV(ctx context.Context, ffmpegPath string, encoded []byte) (data []byte, format protocol.Format, err error) {
	pcm, err := decodeToPCM(ctx, ffmpegPath, encoded)
	if err != nil {
		return encoded, protocol.FormatWebM, util.WrapError("decode for wav conversion", err)
	}
	return EncodeWAV(pcm, SampleRate, Channels), protocol.FormatWAV, nil
}

func decodeToPCM(ctx context.Context, ffmpegPath string, encoded []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, convertTimeout)
	defer cancel()

	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-i", "pipe:0",
		"-f", "s16le",
		"-ar", fmt.Sprint(SampleRate),
		"-ac", fmt.Sprint(Channels),
		"pipe:1",
	}

	cmd := exec.CommandContext(ctx, ffmpegPath, args...)
	cmd.Stdin = bytes.NewReader(encoded)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := util.ExtractLastError(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%w: %s", err, msg)
		}
		return nil, err
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("decoder produced no samples")
	}
	return stdout.Bytes(), nil
}
