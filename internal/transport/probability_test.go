package transport

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProbabilities_ValidAcrossControlRange(t *testing.T) {
	for i := 0; i <= 50; i++ {
		x := float64(i) / 100
		p := NewProbabilities(x)
		assert.NoError(t, p.Validate(), "x=%g", x)
		assert.Equal(t, ScatterProbability, p.Scatter)
		assert.InDelta(t, 0.5-x, p.Capture, 1e-12)
	}
}

func TestProbabilities_ClampsOutOfRange(t *testing.T) {
	cases := []struct {
		in   float64
		want float64
	}{
		{-1, 0},
		{0.7, 0.5},
		{math.NaN(), 0},
		{math.Inf(1), 0.5},
		{0.3, 0.3},
	}
	for _, tc := range cases {
		p := NewProbabilities(tc.in)
		assert.Equal(t, tc.want, p.Fission, "input %g", tc.in)
		assert.NoError(t, p.Validate())
	}
}

func TestProbabilities_ValidateRejectsBadSets(t *testing.T) {
	assert.Error(t, Probabilities{Scatter: 0.5, Fission: 0.6, Capture: -0.1}.Validate())
	assert.Error(t, Probabilities{Scatter: 0.5, Fission: 0.1, Capture: 0.1}.Validate())
}

func TestKEff_IsFourXInsideRange(t *testing.T) {
	for i := 0; i <= 50; i++ {
		x := float64(i) / 100
		assert.InDelta(t, 4*x, NewProbabilities(x).KEff(), 1e-12, "x=%g", x)
	}
}

func TestKEff_ZeroDenominator(t *testing.T) {
	assert.Equal(t, 0.0, KEff(0, 0))
	assert.Equal(t, 2.0, KEff(0.5, 0))
	assert.Equal(t, 1.0, KEff(0.25, 0.25))
}

func TestBands_OrderedSampling(t *testing.T) {
	b := NewProbabilities(0.2).Bands()

	assert.Equal(t, OutcomeScatter, b.Sample(0))
	assert.Equal(t, OutcomeScatter, b.Sample(0.4999))
	assert.Equal(t, OutcomeFission, b.Sample(0.5))
	assert.Equal(t, OutcomeFission, b.Sample(0.6999))
	assert.Equal(t, OutcomeCapture, b.Sample(0.7))
	assert.Equal(t, OutcomeCapture, b.Sample(0.9999))
}

func TestBands_EmptyFissionBand(t *testing.T) {
	b := NewProbabilities(0).Bands()
	assert.Equal(t, OutcomeScatter, b.Sample(0.49))
	assert.Equal(t, OutcomeCapture, b.Sample(0.5))
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "scatter", OutcomeScatter.String())
	assert.Equal(t, "fission", OutcomeFission.String())
	assert.Equal(t, "capture", OutcomeCapture.String())
	assert.Equal(t, "unknown", Outcome(9).String())
}

func TestTally_AddAndInteractions(t *testing.T) {
	var total Tally
	total.Add(Tally{Scatters: 2, Fissions: 1, Captures: 3, Extinctions: 1, Ticks: 1})
	total.Add(Tally{Scatters: 1, Ticks: 1})

	assert.Equal(t, Tally{Scatters: 3, Fissions: 1, Captures: 3, Extinctions: 1, Ticks: 2}, total)
	assert.Equal(t, uint64(7), total.Interactions())
}
