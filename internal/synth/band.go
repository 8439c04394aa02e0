package synth

import (
	"fmt"
	"math"
)

// walkNoise is the full width of the extra uniform jitter added to every step.
// It is a fixed amplitude (±0.5) and does not scale with the band.
const walkNoise = 1.0

// deltaTolerance absorbs float error when comparing a step against MinChange.
const deltaTolerance = 1e-9

// Band is the (min, max, minimum change) policy for one vital.
type Band struct {
	Min       float64 `yaml:"min"`
	Max       float64 `yaml:"max"`
	MinChange float64 `yaml:"min_change"`
	// Decimals is the output resolution of the vital.
	Decimals int `yaml:"decimals"`
}

// Validate reports a malformed band.
func (b Band) Validate() error {
	if b.Min > b.Max {
		return fmt.Errorf("min %g is greater than max %g", b.Min, b.Max)
	}
	if b.MinChange <= 0 {
		return fmt.Errorf("min_change must be positive, got %g", b.MinChange)
	}
	if b.Decimals < 0 || b.Decimals > 6 {
		return fmt.Errorf("decimals must be between 0 and 6, got %d", b.Decimals)
	}
	return nil
}

// Contains reports whether v lies in [Min, Max].
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

// Mid returns the centre of the band at its resolution.
func (b Band) Mid() float64 {
	return b.round((b.Min + b.Max) / 2)
}

// Walk moves previous one bounded random step inside band.
//
// The step is previous ± MinChange plus a fixed ±0.5 jitter, clamped into the band and
// rounded to the band resolution. If the result lands closer than MinChange to previous,
// a plain ±MinChange step is forced in a freshly drawn direction. When that forced step is
// swallowed by a bound (previous sits at or next to Min/Max) the step is reflected inward.
// A band narrower than 2*MinChange can still yield a smaller change; no such band is configured.
//
// Walk panics when band.Min > band.Max.
func Walk(previous float64, band Band, rng RandomSource) float64 {
	if band.Min > band.Max {
		panic(fmt.Sprintf("synth: invalid band: min %g > max %g", band.Min, band.Max))
	}

	candidate := previous + direction(rng)*band.MinChange + (rng.Float64()-0.5)*walkNoise
	candidate = band.round(band.clamp(candidate))
	if math.Abs(candidate-previous) >= band.MinChange-deltaTolerance {
		return candidate
	}

	return band.force(previous, direction(rng))
}

func (b Band) force(previous, sign float64) float64 {
	first := b.step(previous, sign)
	if math.Abs(first-previous) >= b.MinChange-deltaTolerance {
		return first
	}

	// Reflect inward off the bound.
	second := b.step(previous, -sign)
	if math.Abs(second-previous) > math.Abs(first-previous) {
		return second
	}
	return first
}

// step applies exactly one MinChange in the given direction, rounding away from previous
// so the resolution never shrinks the delta.
func (b Band) step(previous, sign float64) float64 {
	v := b.clamp(previous + sign*b.MinChange)
	if sign > 0 {
		v = b.ceil(v)
	} else {
		v = b.floor(v)
	}
	return b.clamp(v)
}

func (b Band) clamp(v float64) float64 {
	return clamp(v, b.Min, b.Max)
}

func (b Band) scale() float64 {
	return math.Pow10(b.Decimals)
}

func (b Band) round(v float64) float64 {
	s := b.scale()
	return math.Round(v*s) / s
}

func (b Band) ceil(v float64) float64 {
	s := b.scale()
	return math.Ceil(v*s-1e-6) / s
}

func (b Band) floor(v float64) float64 {
	s := b.scale()
	return math.Floor(v*s+1e-6) / s
}

func direction(rng RandomSource) float64 {
	if rng.Float64() < 0.5 {
		return -1
	}
	return 1
}

func clamp(val, min, max float64) float64 {
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}

func roundTo(v float64, decimals int) float64 {
	s := math.Pow10(decimals)
	return math.Round(v*s) / s
}
