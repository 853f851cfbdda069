//go:build windows

package capture

func getMicPlatformConfig() micCaptureConfig {
	return micCaptureConfig{
		InputFormat:  "dshow",
		DevicePrefix: "audio=",
		// Windows has no universal default device name; "virtual-audio-capturer"
		// ships with the screen-capture-recorder pack commonly installed for
		// meeting capture setups.
		DefaultDevice: "virtual-audio-capturer",
	}
}
