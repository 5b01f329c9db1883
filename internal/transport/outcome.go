package transport

// Outcome is the result of an interaction attempt.
type Outcome int

const (
	OutcomeScatter Outcome = iota
	OutcomeFission
	OutcomeCapture
)

func (o Outcome) String() string {
	switch o {
	case OutcomeScatter:
		return "scatter"
	case OutcomeFission:
		return "fission"
	case OutcomeCapture:
		return "capture"
	default:
		return "unknown"
	}
}

// Bands is a discrete outcome sampler over [0,1). The band order
// scatter, fission, capture never changes so seeded runs stay reproducible.
type Bands struct {
	scatterEdge float64
	fissionEdge float64
}

// Sample selects the outcome for a uniform draw r in [0,1).
func (b Bands) Sample(r float64) Outcome {
	switch {
	case r < b.scatterEdge:
		return OutcomeScatter
	case r < b.fissionEdge:
		return OutcomeFission
	default:
		return OutcomeCapture
	}
}
