// Package agc implements the automatic gain control stage of spec.md §4.4's
// playback path: a single smoothed gain multiplier applied to each mixed
// frame before it reaches the output device.
package agc

import "math"

const (
	// TargetRMS is the desired post-gain RMS level, in the int16 domain.
	// spec.md §4.4 specifies target_gain = 0.3/RMS on RMS normalized to
	// [0,1]; scaled into the int16 domain that is 0.3*32768.
	TargetRMS = 0.3 * 32768.0

	smoothingOld = 0.9
	smoothingNew = 0.1

	// MinGain and MaxGain bound the smoothed gain (spec.md §4.4 AGC).
	MinGain = 0.5
	MaxGain = 4.0

	// minRMS avoids boosting near-silence to MaxGain. spec.md §4.4 acts
	// only when normalized RMS > 0.01; scaled into the int16 domain that
	// is 0.01*32768.
	minRMS = 0.01 * 32768.0
)

// AGC is a single-channel automatic gain control processor. The zero value
// has gain 0 and is not usable; use New.
type AGC struct {
	gain float64
}

// New returns an AGC with unity gain.
func New() *AGC {
	return &AGC{gain: 1.0}
}

// Apply scales frame in-place by the current gain, then updates the gain
// toward the target for the next frame using the exact smoothing rule of
// spec.md §4.4: gain = 0.9*gain + 0.1*target_gain, clamped to [0.5, 4.0].
func (a *AGC) Apply(frame []int16) {
	if len(frame) == 0 {
		return
	}

	r := rms(frame)

	for i, s := range frame {
		v := float64(s) * a.gain
		frame[i] = clampSample(v)
	}

	if r < minRMS {
		return
	}

	targetGain := TargetRMS / r
	if targetGain < MinGain {
		targetGain = MinGain
	} else if targetGain > MaxGain {
		targetGain = MaxGain
	}

	a.gain = smoothingOld*a.gain + smoothingNew*targetGain
	if a.gain < MinGain {
		a.gain = MinGain
	} else if a.gain > MaxGain {
		a.gain = MaxGain
	}
}

// Gain returns the current linear gain multiplier.
func (a *AGC) Gain() float64 { return a.gain }

func rms(frame []int16) float64 {
	var sum float64
	for _, s := range frame {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func clampSample(v float64) int16 {
	const (
		maxInt16 = float64(32767)
		minInt16 = float64(-32768)
	)
	if v > maxInt16 {
		return 32767
	}
	if v < minInt16 {
		return -32768
	}
	return int16(v)
}
