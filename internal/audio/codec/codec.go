// Package codec wraps the Opus codec behind the EncoderDecoder interface
// spec.md §4.4 requires for the capture and playback paths, at the fixed
// 48kHz mono format used throughout this module.
package codec

import (
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	sampleRate = 48000
	channels   = 1
	// FrameSize is the fixed 20ms-at-48kHz frame length used throughout the
	// audio pipeline (spec.md §4.4).
	FrameSize      = 960
	bitrate        = 24000
	maxPacketBytes = 1275 // RFC 6716 maximum Opus packet size
)

// EncoderDecoder turns PCM frames into wire-ready Opus packets and back.
// ConcealLoss triggers the codec's native packet-loss concealment path
// (spec.md §4.4) for a missing packet; Decode is only for packets that
// actually arrived.
type EncoderDecoder interface {
	Encode(pcm []int16) ([]byte, error)
	Decode(packet []byte) ([]int16, error)
	ConcealLoss() ([]int16, error)
}

// opusCodec is the production EncoderDecoder, grounded on the Opus
// configuration used for the same purpose in the example client (VoIP
// application profile, ~24kbit/s for voice-grade mono speech).
type opusCodec struct {
	encoder *opus.Encoder
	decoder *opus.Decoder
}

// New constructs an Opus-backed EncoderDecoder at the module's fixed
// sample rate and frame size.
func New() (EncoderDecoder, error) {
	encoder, err := opus.NewEncoder(sampleRate, channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("codec: creating opus encoder: %w", err)
	}
	if err := encoder.SetBitrate(bitrate); err != nil {
		return nil, fmt.Errorf("codec: setting opus bitrate: %w", err)
	}

	decoder, err := opus.NewDecoder(sampleRate, channels)
	if err != nil {
		return nil, fmt.Errorf("codec: creating opus decoder: %w", err)
	}

	return &opusCodec{encoder: encoder, decoder: decoder}, nil
}

func (c *opusCodec) Encode(pcm []int16) ([]byte, error) {
	if len(pcm) != FrameSize {
		return nil, fmt.Errorf("codec: encode expects %d samples, got %d", FrameSize, len(pcm))
	}
	buf := make([]byte, maxPacketBytes)
	n, err := c.encoder.Encode(pcm, buf)
	if err != nil {
		return nil, fmt.Errorf("codec: encoding frame: %w", err)
	}
	return buf[:n], nil
}

func (c *opusCodec) Decode(packet []byte) ([]int16, error) {
	pcm := make([]int16, FrameSize)
	n, err := c.decoder.Decode(packet, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: decoding frame: %w", err)
	}
	return pcm[:n], nil
}

// ConcealLoss synthesizes a replacement frame for a missing packet using
// the codec's own packet-loss concealment, triggered by passing a nil
// packet to Decode (spec.md §4.4 "PLC").
func (c *opusCodec) ConcealLoss() ([]int16, error) {
	pcm := make([]int16, FrameSize)
	n, err := c.decoder.Decode(nil, pcm)
	if err != nil {
		return nil, fmt.Errorf("codec: concealing lost frame: %w", err)
	}
	return pcm[:n], nil
}

// NullEncoderDecoder is a no-op fallback used when Opus initialization
// fails; audio continues flowing as silence rather than crashing the node
// (spec.md §7: only device-open failure is fatal, not codec failure).
type NullEncoderDecoder struct{}

func (NullEncoderDecoder) Encode(pcm []int16) ([]byte, error) { return nil, nil }

func (NullEncoderDecoder) Decode(packet []byte) ([]int16, error) {
	return make([]int16, FrameSize), nil
}

func (NullEncoderDecoder) ConcealLoss() ([]int16, error) {
	return make([]int16, FrameSize), nil
}
