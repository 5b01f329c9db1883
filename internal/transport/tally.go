package transport

// Tally counts interaction events. Kernel totals only ever grow during a run.
type Tally struct {
	Scatters    uint64 `json:"scatters"`
	Fissions    uint64 `json:"fissions"`
	Captures    uint64 `json:"captures"`
	Extinctions uint64 `json:"extinctions"`
	Ticks       uint64 `json:"ticks"`
}

func (t *Tally) record(o Outcome) {
	switch o {
	case OutcomeScatter:
		t.Scatters++
	case OutcomeFission:
		t.Fissions++
	case OutcomeCapture:
		t.Captures++
	}
}

// Add accumulates other into t.
func (t *Tally) Add(other Tally) {
	t.Scatters += other.Scatters
	t.Fissions += other.Fissions
	t.Captures += other.Captures
	t.Extinctions += other.Extinctions
	t.Ticks += other.Ticks
}

// Interactions is the number of resolved interaction attempts.
func (t Tally) Interactions() uint64 {
	return t.Scatters + t.Fissions + t.Captures
}
