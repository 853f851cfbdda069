package capture

import "math"

// Start-beep parameters. A short audible tone at the head of the recording
// signals to everyone on the call that capture has begun.
const (
	beepDurationMs = 150
	beepFrequency  = 880.0
	beepAmplitude  = 0.3
)

// startBeepPCM renders the start tone as interleaved stereo PCM in the
// pipeline wire format. A short linear fade at both ends avoids clicks.
func startBeepPCM() []byte {
	sampleCount := SampleRate * beepDurationMs / 1000
	fadeSamples := SampleRate * 5 / 1000

	buf := make([]byte, sampleCount*FrameBytes)
	for i := range sampleCount {
		v := beepAmplitude * math.Sin(2*math.Pi*beepFrequency*float64(i)/SampleRate)

		if i < fadeSamples {
			v *= float64(i) / float64(fadeSamples)
		} else if remaining := sampleCount - i; remaining < fadeSamples {
			v *= float64(remaining) / float64(fadeSamples)
		}

		sample := int16(v * math.MaxInt16)
		for ch := range Channels {
			off := (i*Channels + ch) * BytesPerSample
			buf[off] = byte(sample)
			buf[off+1] = byte(sample >> 8)
		}
	}
	return buf
}
