// Package vad implements an energy-based voice activity gate for mono
// int16 PCM audio at 48kHz, 960-sample (20ms) frames (spec.md §4.4 capture
// path "VAD gate").
package vad

import "math"

const (
	// DefaultThreshold is the RMS level below which a frame is treated as
	// silence.
	DefaultThreshold = 250.0

	// DefaultHangover is the number of silent frames to keep transmitting
	// after speech ends (~400ms at 20ms/frame), so word endings are not cut
	// off mid-utterance.
	DefaultHangover = 20
)

// Gate is a single-channel voice activity detector. The zero value is not
// usable; use New.
type Gate struct {
	threshold float64
	hangover  int
	remaining int
}

// New returns a Gate with DefaultThreshold and DefaultHangover.
func New() *Gate {
	return &Gate{threshold: DefaultThreshold, hangover: DefaultHangover}
}

// ShouldTransmit reports whether frame should be encoded and sent, updating
// the hangover counter as a side effect.
func (g *Gate) ShouldTransmit(frame []int16) bool {
	if rms(frame) > g.threshold {
		g.remaining = g.hangover
		return true
	}
	if g.remaining > 0 {
		g.remaining--
		return true
	}
	return false
}

// Reset clears the hangover counter.
func (g *Gate) Reset() {
	g.remaining = 0
}

func rms(frame []int16) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}
