package capture

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/meetcap/meetcap/internal/protocol"
)

// encoderProfile describes one FFmpeg encoding configuration. The pipeline
// always encodes into a WebM container; the codec inside it depends on what
// the local FFmpeg build provides.
type encoderProfile struct {
	Codec   string
	Bitrate string
}

var (
	opusProfile   = encoderProfile{Codec: "libopus", Bitrate: "128k"}
	vorbisProfile = encoderProfile{Codec: "libvorbis", Bitrate: "160k"}
)

var (
	probeOnce    sync.Once
	probedOpus   bool
	probeTimeout = 10 * time.Second
)

// selectProfile picks the best encoder the FFmpeg binary supports. Opus is
// preferred; builds without libopus fall back to Vorbis. The probe runs once
// per process.
func selectProfile(ffmpegPath string) encoderProfile {
	probeOnce.Do(func() {
		probedOpus = hasEncoder(ffmpegPath, "libopus")
		if !probedOpus {
			slog.Warn("ffmpeg build lacks libopus, falling back to vorbis")
		}
	})
	if probedOpus {
		return opusProfile
	}
	return vorbisProfile
}

func hasEncoder(ffmpegPath, name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders")
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		slog.Warn("ffmpeg encoder probe failed", "error", err)
		return false
	}

	for line := range strings.Lines(stdout.String()) {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return true
		}
	}
	return false
}

// Negotiate maps the requested output format to what the pipeline actually
// produces. MP3 has no native encoder and always degrades to WebM. WAV is a
// post-stop conversion, so during encoding it is carried as WebM too; the
// conversion step reports the final negotiated format.
func Negotiate(requested protocol.Format) protocol.Format {
	if requested == protocol.FormatMP3 {
		return protocol.FormatWebM
	}
	return requested
}
