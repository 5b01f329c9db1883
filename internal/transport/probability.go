package transport

import (
	"fmt"
	"math"
)

const (
	// ScatterProbability is fixed; fission and capture share the remainder.
	ScatterProbability = 0.5

	// MaxFissionProbability is the upper end of the fission control range.
	MaxFissionProbability = 1 - ScatterProbability

	probabilityTolerance = 1e-9
)

// Probabilities holds the per-interaction outcome probabilities for a tick.
type Probabilities struct {
	Scatter float64 `json:"scatter"`
	Fission float64 `json:"fission"`
	Capture float64 `json:"capture"`
}

// ClampFission maps any input onto the valid fission range [0, 0.5].
// NaN is treated as zero.
func ClampFission(x float64) float64 {
	switch {
	case math.IsNaN(x), x < 0:
		return 0
	case x > MaxFissionProbability:
		return MaxFissionProbability
	default:
		return x
	}
}

// NewProbabilities derives the outcome probabilities from the fission
// probability x. Capture is always 0.5 - x.
func NewProbabilities(x float64) Probabilities {
	x = ClampFission(x)
	return Probabilities{
		Scatter: ScatterProbability,
		Fission: x,
		Capture: MaxFissionProbability - x,
	}
}

func (p Probabilities) Sum() float64 {
	return p.Scatter + p.Fission + p.Capture
}

// Validate checks that every probability is non-negative and that they add
// up to one.
func (p Probabilities) Validate() error {
	if p.Scatter < 0 || p.Fission < 0 || p.Capture < 0 {
		return fmt.Errorf("negative probability: scatter=%g fission=%g capture=%g", p.Scatter, p.Fission, p.Capture)
	}
	if sum := p.Sum(); math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("probabilities sum to %g, expected 1", sum)
	}
	return nil
}

// KEff is the multiplication estimate for these probabilities.
func (p Probabilities) KEff() float64 {
	return KEff(p.Fission, p.Capture)
}

// Bands partitions [0,1) into the ordered outcome bands.
func (p Probabilities) Bands() Bands {
	return Bands{
		scatterEdge: p.Scatter,
		fissionEdge: p.Scatter + p.Fission,
	}
}

// KEff returns the zero-dimensional multiplication factor 2x/(x+y), or 0 when
// x+y is zero. It depends only on the probabilities, never on tallies.
func KEff(x, y float64) float64 {
	if x+y > 0 {
		return 2 * x / (x + y)
	}
	return 0
}
