//go:build darwin

package capture

func getMicPlatformConfig() micCaptureConfig {
	return micCaptureConfig{
		InputFormat:   "avfoundation",
		DefaultDevice: ":0",
	}
}
