package audio

import (
	"math"
	"sort"
)

// RMS returns the root-mean-square amplitude of a frame.
func RMS(frame []int16) float64 {
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

// ZeroCrossingRate returns the fraction of adjacent samples that change sign.
func ZeroCrossingRate(frame []int16) float64 {
	if len(frame) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(frame); i++ {
		if (frame[i-1] >= 0) != (frame[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / float64(len(frame)-1)
}

// Median returns the median of values, or 0 for an empty slice.
func Median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// VAD classifies frames as speech or not.
type VAD interface {
	IsSpeech(frame []int16) bool
	Reset()
}

// EnergyVAD flags frames that are loud enough and not dominated by
// high-frequency hiss.
type EnergyVAD struct {
	MinRMS     float64
	MaxZCR     float64
	HangFrames int

	hang int
}

func NewEnergyVAD() *EnergyVAD {
	return &EnergyVAD{MinRMS: 200, MaxZCR: 0.5, HangFrames: 3}
}

func (v *EnergyVAD) IsSpeech(frame []int16) bool {
	speech := RMS(frame) >= v.MinRMS && (v.MaxZCR <= 0 || ZeroCrossingRate(frame) <= v.MaxZCR)
	if speech {
		v.hang = v.HangFrames
		return true
	}
	if v.hang > 0 {
		v.hang--
		return true
	}
	return false
}

func (v *EnergyVAD) Reset() {
	v.hang = 0
}

// Normalize scales samples so their RMS approaches target, never applying
// more than maxGain, and passes peaks through a soft limiter.
func Normalize(samples []int16, target, maxGain float64) []int16 {
	out := make([]int16, len(samples))
	rms := RMS(samples)
	if rms == 0 || target <= 0 {
		copy(out, samples)
		return out
	}
	gain := target / rms
	if maxGain > 0 && gain > maxGain {
		gain = maxGain
	}
	for i, s := range samples {
		out[i] = softLimit(float64(s) * gain)
	}
	return out
}

// softLimit is linear up to the knee and compresses with tanh above it.
func softLimit(v float64) int16 {
	const (
		ceiling = 32767.0
		knee    = 0.8 * ceiling
	)
	a := math.Abs(v)
	if a > knee {
		a = knee + (ceiling-knee)*math.Tanh((a-knee)/(ceiling-knee))
	}
	if v < 0 {
		return int16(-a)
	}
	return int16(a)
}
