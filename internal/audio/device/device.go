// Package device is the audio I/O boundary of spec.md §6: opaque capture
// and playback devices exchanging fixed-size 48kHz mono 16-bit PCM frames.
package device

import "context"

// FrameSamples is the fixed frame length (20ms at 48kHz) every device
// implementation reads or writes at a time.
const FrameSamples = 960

// CaptureDevice produces PCM frames from an input source (microphone, or a
// WAV file standing in for one in tests and diagnostics).
type CaptureDevice interface {
	// Read blocks until one frame is available or ctx is done.
	Read(ctx context.Context) ([]int16, error)
	Close() error
}

// PlaybackDevice consumes PCM frames, sending them to an output sink
// (speakers, or a WAV file).
type PlaybackDevice interface {
	Write(ctx context.Context, frame []int16) error
	Close() error
}
