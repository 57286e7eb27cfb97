package device

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavCapture reads fixed-size frames out of a WAV file in a loop, standing
// in for a microphone in tests and headless diagnostics. Grounded on the
// teacher's FileAudioInputDevice, adapted from its channel/goroutine
// push model to CaptureDevice's blocking Read.
type wavCapture struct {
	file    *os.File
	decoder *wav.Decoder
	buf     *goaudio.IntBuffer
	samples []int
	pos     int
}

// NewWavCapture opens audioFilePath and decodes it fully into memory; Read
// loops back to the start once the file is exhausted.
func NewWavCapture(audioFilePath string) (CaptureDevice, error) {
	f, err := os.Open(audioFilePath)
	if err != nil {
		return nil, fmt.Errorf("device: opening wav capture file: %w", err)
	}

	decoder := wav.NewDecoder(f)
	if !decoder.IsValidFile() {
		f.Close()
		return nil, fmt.Errorf("device: %s is not a valid wav file", audioFilePath)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("device: reading wav pcm buffer: %w", err)
	}

	return &wavCapture{file: f, decoder: decoder, buf: buf, samples: buf.Data}, nil
}

func (d *wavCapture) Read(ctx context.Context) ([]int16, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := make([]int16, FrameSamples)
	for i := range frame {
		if d.pos >= len(d.samples) {
			d.pos = 0
		}
		if len(d.samples) == 0 {
			break
		}
		frame[i] = int16(d.samples[d.pos])
		d.pos++
	}
	return frame, nil
}

func (d *wavCapture) Close() error {
	return d.file.Close()
}

// wavPlayback appends every written frame to a WAV file, standing in for
// speakers in tests and headless diagnostics. The file is only a valid WAV
// once Close has run the encoder's trailer write.
type wavPlayback struct {
	file    *os.File
	encoder *wav.Encoder
}

// NewWavPlayback creates (or truncates) audioFilePath and prepares it to
// receive the module's fixed-format frames.
func NewWavPlayback(audioFilePath string) (PlaybackDevice, error) {
	f, err := os.Create(audioFilePath)
	if err != nil {
		return nil, fmt.Errorf("device: creating wav playback file: %w", err)
	}

	encoder := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	return &wavPlayback{file: f, encoder: encoder}, nil
}

func (d *wavPlayback) Write(ctx context.Context, frame []int16) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{SampleRate: sampleRate, NumChannels: channels},
		Data:           make([]int, len(frame)),
		SourceBitDepth: 16,
	}
	for i, s := range frame {
		buf.Data[i] = int(s)
	}

	if err := d.encoder.Write(buf); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("device: writing wav playback frame: %w", err)
	}
	return nil
}

func (d *wavPlayback) Close() error {
	if err := d.encoder.Close(); err != nil {
		d.file.Close()
		return fmt.Errorf("device: closing wav encoder: %w", err)
	}
	return d.file.Close()
}
