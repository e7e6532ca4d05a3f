// Package agc implements the single-pass automatic gain control used on the
// detection branch of a group's audio pipeline.
package agc

import "math"

const (
	// noiseGateRMS is the RMS threshold below which input is treated as
	// near-silence: gain glides back toward unity instead of chasing the
	// target.
	noiseGateRMS = 100.0

	targetRMS   = 20000.0
	maxGain     = 30.0
	minGain     = 0.05
	attackCoef  = 0.2
	releaseCoef = 0.01
)

// AGC applies RMS-driven gain smoothing to 16-bit PCM chunks in place. A
// single instance is stateful across calls so gain changes stay smooth
// across chunk boundaries; one AGC lives for the lifetime of a group's
// Controller, not per locked cycle.
type AGC struct {
	gain float64
}

// New returns an AGC with unity starting gain.
func New() *AGC {
	return &AGC{gain: 1.0}
}

// Process rewrites buf in place with gain-adjusted, saturated samples.
func (a *AGC) Process(buf []int16) {
	if len(buf) == 0 {
		return
	}

	rms := computeRMS(buf)

	if rms < noiseGateRMS {
		// Near-silence: glide gain back toward unity with a fixed
		// coefficient rather than running it through the target/attack/
		// release smoother below.
		a.gain = 0.95*a.gain + 0.05*1.0
	} else {
		targetGain := targetRMS / (rms + 1)
		if targetGain > maxGain {
			targetGain = maxGain
		}
		if targetGain < minGain {
			targetGain = minGain
		}

		coef := releaseCoef
		if targetGain < a.gain {
			coef = attackCoef
		}
		a.gain += (targetGain - a.gain) * coef
	}

	for i, s := range buf {
		v := float64(s) * a.gain
		buf[i] = saturate(v)
	}
}

func computeRMS(buf []int16) float64 {
	var sumSquares float64
	for _, s := range buf {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(buf)))
}

func saturate(v float64) int16 {
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}
