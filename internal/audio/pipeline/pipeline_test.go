package pipeline

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/teenxsky/roar/internal/audio/codec"
	"github.com/teenxsky/roar/internal/audio/device"
	"github.com/teenxsky/roar/internal/audio/jitter"
)

type fakeCodec struct {
	decodeCalls  int
	concealCalls int
}

func (f *fakeCodec) Encode(pcm []int16) ([]byte, error) {
	return []byte{1, 2, 3}, nil
}

func (f *fakeCodec) Decode(packet []byte) ([]int16, error) {
	f.decodeCalls++
	frame := make([]int16, device.FrameSamples)
	for i := range frame {
		frame[i] = 100
	}
	return frame, nil
}

func (f *fakeCodec) ConcealLoss() ([]int16, error) {
	f.concealCalls++
	return make([]int16, device.FrameSamples), nil
}

type fakeCaptureDevice struct {
	frames chan []int16
}

func (f *fakeCaptureDevice) Read(ctx context.Context) ([]int16, error) {
	select {
	case frame, ok := <-f.frames:
		if !ok {
			return nil, context.Canceled
		}
		return frame, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeCaptureDevice) Close() error { return nil }

type recordingSender struct {
	packets chan []byte
}

func (r *recordingSender) SendAudio(packet []byte) {
	r.packets <- packet
}

func loudFrame() []int16 {
	f := make([]int16, device.FrameSamples)
	for i := range f {
		f[i] = 5000
	}
	return f
}

func TestCaptureEncodesLoudFramesOnly(t *testing.T) {
	frames := make(chan []int16, 1)
	dev := &fakeCaptureDevice{frames: frames}
	sender := &recordingSender{packets: make(chan []byte, 1)}
	c := NewCapture(dev, &fakeCodec{}, sender, slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	frames <- loudFrame()

	select {
	case <-sender.packets:
	case <-time.After(time.Second):
		t.Fatalf("expected an encoded packet to be sent")
	}
	cancel()
}

type fakePlaybackDevice struct {
	written chan []int16
}

func (f *fakePlaybackDevice) Write(ctx context.Context, frame []int16) error {
	select {
	case f.written <- frame:
	default:
	}
	return nil
}

func (f *fakePlaybackDevice) Close() error { return nil }

func TestPlaybackMixesQueuedPeerAudio(t *testing.T) {
	dev := &fakePlaybackDevice{written: make(chan []int16, 10)}
	codecs := &fakeCodec{}
	p := NewPlayback(dev, func() codec.EncoderDecoder { return codecs }, 10*time.Millisecond, jitter.DefaultTarget, jitter.MinTarget, jitter.MaxTarget, slog.New(slog.DiscardHandler))

	for i := 0; i < 8; i++ {
		p.Push("peer1:9000", []byte{1})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	select {
	case frame := <-dev.written:
		if len(frame) != device.FrameSamples {
			t.Fatalf("expected %d samples, got %d", device.FrameSamples, len(frame))
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a written playback frame")
	}
}
