// Package pipeline wires the capture and playback audio paths of spec.md
// §4.4: capture reads a frame, gates it with VAD, and encodes it for the
// network; playback drains the per-peer jitter queues, decodes and sums
// whatever arrived, applies PLC for a queue whose outage has passed the
// concealment threshold, runs AGC, and writes the result to the output
// device.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/teenxsky/roar/internal/audio/agc"
	"github.com/teenxsky/roar/internal/audio/codec"
	"github.com/teenxsky/roar/internal/audio/device"
	"github.com/teenxsky/roar/internal/audio/jitter"
	"github.com/teenxsky/roar/internal/audio/vad"
)

// Sender is the capture path's outlet: one encoded frame per tick, destined
// for every connected peer (spec.md §4.4 capture path, §4.3 Broadcast).
type Sender interface {
	SendAudio(packet []byte)
}

// Capture runs the read→VAD→encode loop on its own goroutine until ctx is
// done or the capture device fails.
type Capture struct {
	logger *slog.Logger
	dev    device.CaptureDevice
	gate   *vad.Gate
	codec  codec.EncoderDecoder
	sender Sender
}

// NewCapture constructs a Capture stage from its component dependencies.
func NewCapture(dev device.CaptureDevice, c codec.EncoderDecoder, sender Sender, logger *slog.Logger) *Capture {
	if logger == nil {
		logger = slog.Default()
	}
	return &Capture{
		logger: logger.With("component", "audio-capture"),
		dev:    dev,
		gate:   vad.New(),
		codec:  c,
		sender: sender,
	}
}

// Run reads frames from the capture device until ctx is done, gating each
// through VAD and encoding only the ones that pass.
func (c *Capture) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		frame, err := c.dev.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Warn("capture read failed", "err", err)
			}
			return
		}

		if !c.gate.ShouldTransmit(frame) {
			continue
		}

		packet, err := c.codec.Encode(frame)
		if err != nil {
			c.logger.Warn("encode failed, dropping frame", "err", err)
			continue
		}
		if len(packet) == 0 {
			continue
		}

		c.sender.SendAudio(packet)
	}
}

// Playback owns one jitter queue per currently-known peer and mixes every
// peer's drained frames into a single output frame each tick (spec.md §4.4
// "queue-mix").
type Playback struct {
	logger *slog.Logger
	dev    device.PlaybackDevice
	newDec func() codec.EncoderDecoder
	gain   *agc.AGC
	tick   time.Duration

	jitterTarget int
	jitterMin    int
	jitterMax    int

	mu      sync.Mutex
	queues  map[string]*jitter.Queue
	decoder map[string]codec.EncoderDecoder
}

// NewPlayback constructs a Playback stage. newDecoder is called once per
// newly-seen peer address to give each peer its own decoder state (Opus
// decoders carry per-stream history and must not be shared across peers).
// jitterTarget/jitterMin/jitterMax seed and bound every peer's jitter queue
// (internal/config's TargetJitter/MinJitter/MaxJitter).
func NewPlayback(dev device.PlaybackDevice, newDecoder func() codec.EncoderDecoder, tick time.Duration, jitterTarget, jitterMin, jitterMax int, logger *slog.Logger) *Playback {
	if logger == nil {
		logger = slog.Default()
	}
	return &Playback{
		logger:       logger.With("component", "audio-playback"),
		dev:          dev,
		newDec:       newDecoder,
		gain:         agc.New(),
		tick:         tick,
		jitterTarget: jitterTarget,
		jitterMin:    jitterMin,
		jitterMax:    jitterMax,
		queues:       make(map[string]*jitter.Queue),
		decoder:      make(map[string]codec.EncoderDecoder),
	}
}

// Push enqueues a received audio packet from peerAddress for the next
// playback tick, creating that peer's queue and decoder on first sight.
func (p *Playback) Push(peerAddress string, packet []byte) {
	p.mu.Lock()
	q, ok := p.queues[peerAddress]
	if !ok {
		q = jitter.NewWithBounds(p.jitterTarget, p.jitterMin, p.jitterMax)
		p.queues[peerAddress] = q
		p.decoder[peerAddress] = p.newDec()
	}
	p.mu.Unlock()

	q.Push(packet)
}

// RemovePeer drops a peer's jitter queue and decoder, e.g. once its
// connection closes.
func (p *Playback) RemovePeer(peerAddress string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.queues, peerAddress)
	delete(p.decoder, peerAddress)
}

// Run drains every peer's queue on each tick, decodes and sums the result,
// applies AGC, and writes the mixed frame to the output device, until ctx
// is done.
func (p *Playback) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mixed := p.mixTick()
		p.gain.Apply(mixed)

		if err := p.dev.Write(ctx, mixed); err != nil {
			if ctx.Err() == nil {
				p.logger.Warn("playback write failed", "err", err)
			}
			return
		}
	}
}

func (p *Playback) mixTick() []int16 {
	p.mu.Lock()
	peers := make([]string, 0, len(p.queues))
	for addr := range p.queues {
		peers = append(peers, addr)
	}
	p.mu.Unlock()

	mixed := make([]int16, device.FrameSamples)

	for _, addr := range peers {
		p.mu.Lock()
		q := p.queues[addr]
		dec := p.decoder[addr]
		p.mu.Unlock()
		if q == nil || dec == nil {
			continue
		}

		packets, conceal := q.Drain()
		if conceal {
			concealed, err := dec.ConcealLoss()
			if err != nil {
				p.logger.Warn("plc failed", "peer", addr, "err", err)
				continue
			}
			sumInto(mixed, concealed)
			continue
		}

		for _, packet := range packets {
			pcm, err := dec.Decode(packet)
			if err != nil {
				p.logger.Warn("decode failed, dropping packet", "peer", addr, "err", err)
				continue
			}
			sumInto(mixed, pcm)
		}
	}

	return mixed
}

func sumInto(mixed, frame []int16) {
	n := min(len(mixed), len(frame))
	for i := 0; i < n; i++ {
		sum := int32(mixed[i]) + int32(frame[i])
		mixed[i] = clampInt16(sum)
	}
}

func clampInt16(v int32) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
