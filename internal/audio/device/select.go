package device

import "fmt"

// NewCapture selects a CaptureDevice implementation by kind ("portaudio" or
// "wavfile"), per config.Config.AudioDevice.
func NewCapture(kind, inputFile string) (CaptureDevice, error) {
	switch kind {
	case "portaudio":
		return NewPortaudioCapture()
	case "wavfile":
		return NewWavCapture(inputFile)
	default:
		return nil, fmt.Errorf("device: unknown capture device kind %q", kind)
	}
}

// NewPlayback selects a PlaybackDevice implementation by kind ("portaudio"
// or "wavfile"), per config.Config.AudioDevice.
func NewPlayback(kind, outputFile string) (PlaybackDevice, error) {
	switch kind {
	case "portaudio":
		return NewPortaudioPlayback()
	case "wavfile":
		return NewWavPlayback(outputFile)
	default:
		return nil, fmt.Errorf("device: unknown playback device kind %q", kind)
	}
}
