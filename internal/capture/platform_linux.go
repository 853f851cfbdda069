//go:build linux

package capture

func getMicPlatformConfig() micCaptureConfig {
	return micCaptureConfig{
		InputFormat:   "pulse",
		DefaultDevice: "default",
	}
}
