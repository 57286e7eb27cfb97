package device

import (
	"context"
	"fmt"
	"strings"

	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 48000
	channels   = 1
)

// portaudioCapture reads frames from the system's default input device. Grounded on rustyguts-bken/client's StreamParameters setup,
// adapted to int16 samples and a blocking Read call instead of a
// free-running goroutine feeding a channel.
type portaudioCapture struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewPortaudioCapture opens the default input device at the module's fixed
// format. Device-open failure here is the one audio-path error spec.md §7
// treats as fatal.
func NewPortaudioCapture() (CaptureDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initializing portaudio: %w", err)
	}

	buf := make([]int16, FrameSamples)
	stream, err := portaudio.OpenDefaultStream(channels, 0, float64(sampleRate), FrameSamples, buf)
	if err != nil {
		return nil, fmt.Errorf("device: opening capture stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: starting capture stream: %w", err)
	}

	return &portaudioCapture{stream: stream, buf: buf}, nil
}

func (d *portaudioCapture) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.stream.Read(); err != nil && !isInputOverflow(err) {
		return nil, fmt.Errorf("device: reading capture frame: %w", err)
	}
	frame := make([]int16, len(d.buf))
	copy(frame, d.buf)
	return frame, nil
}

// isInputOverflow reports whether err is PortAudio's paInputOverflowed
// condition: the driver dropped samples because the capture loop fell
// behind. spec.md §4.4/§6 require capture to tolerate this rather than
// treat it as a fatal device error, so a buffer still containing the
// latest (possibly overflowed) samples is returned instead of aborting.
func isInputOverflow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "overflow")
}

func (d *portaudioCapture) Close() error {
	d.stream.Stop()
	return d.stream.Close()
}

// portaudioPlayback writes frames to the system's default output device.
type portaudioPlayback struct {
	stream *portaudio.Stream
	buf    []int16
}

// NewPortaudioPlayback opens the default output device at the module's
// fixed format.
func NewPortaudioPlayback() (PlaybackDevice, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("device: initializing portaudio: %w", err)
	}

	buf := make([]int16, FrameSamples)
	stream, err := portaudio.OpenDefaultStream(0, channels, float64(sampleRate), FrameSamples, buf)
	if err != nil {
		return nil, fmt.Errorf("device: opening playback stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("device: starting playback stream: %w", err)
	}

	return &portaudioPlayback{stream: stream, buf: buf}, nil
}

func (d *portaudioPlayback) Write(ctx context.Context, frame []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := copy(d.buf, frame)
	for i := n; i < len(d.buf); i++ {
		d.buf[i] = 0
	}
	if err := d.stream.Write(); err != nil {
		return fmt.Errorf("device: writing playback frame: %w", err)
	}
	return nil
}

func (d *portaudioPlayback) Close() error {
	d.stream.Stop()
	return d.stream.Close()
}
