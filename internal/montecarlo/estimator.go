// Package montecarlo estimates π by sampling points in the unit square and
// counting those inside the inscribed circle.
package montecarlo

import (
	"math/rand"
	"sync"
	"time"
)

// Point is one sample in the unit square.
type Point struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Inside bool    `json:"inside"`
}

// Counts is the running tally of samples.
type Counts struct {
	Inside int64 `json:"inside"`
	Total  int64 `json:"total"`
}

// Estimate is 4·inside/total, or 0 before the first sample.
func (c Counts) Estimate() float64 {
	if c.Total == 0 {
		return 0
	}
	return 4 * float64(c.Inside) / float64(c.Total)
}

// Estimator accumulates samples. It is safe for concurrent use.
type Estimator struct {
	mu     sync.Mutex
	random func() float64
	counts Counts
}

// NewEstimator creates an estimator drawing from random, which must return
// uniform samples in [0,1).
func NewEstimator(random func() float64) *Estimator {
	return &Estimator{random: random}
}

// NewSeededEstimator creates an estimator over a math/rand source; a zero
// seed uses the clock.
func NewSeededEstimator(seed int64) *Estimator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return NewEstimator(rand.New(rand.NewSource(seed)).Float64)
}

// inCircle tests against the circle of radius 0.5 centred in the square.
func inCircle(x, y float64) bool {
	dx, dy := x-0.5, y-0.5
	return dx*dx+dy*dy <= 0.25
}

// Sample draws one point and records it.
func (e *Estimator) Sample() Point {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sampleLocked()
}

func (e *Estimator) sampleLocked() Point {
	p := Point{X: e.random(), Y: e.random()}
	p.Inside = inCircle(p.X, p.Y)
	if p.Inside {
		e.counts.Inside++
	}
	e.counts.Total++
	return p
}

// SampleN draws n points and returns the updated counts.
func (e *Estimator) SampleN(n int) Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	for range n {
		e.sampleLocked()
	}
	return e.counts
}

func (e *Estimator) Counts() Counts {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts
}

func (e *Estimator) Estimate() float64 {
	return e.Counts().Estimate()
}

// Reset clears the tally.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.counts = Counts{}
}
