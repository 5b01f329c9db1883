package transport

import (
	"math"
	"math/rand"
)

// Options tunes particle motion and the interaction trigger.
type Options struct {
	// Threshold is the distance a particle travels before it attempts an
	// interaction.
	Threshold float64 `json:"threshold"`
	BaseSpeed float64 `json:"base_speed"`
	// SpeedMin and SpeedMax bound the uniform speed factor applied to
	// BaseSpeed whenever a velocity is randomized.
	SpeedMin float64 `json:"speed_min"`
	SpeedMax float64 `json:"speed_max"`
	// Margin is the particle radius used for the boundary bounce.
	Margin float64 `json:"margin"`
	// SpawnInset keeps initial particles away from the walls.
	SpawnInset float64 `json:"spawn_inset"`
}

// DefaultOptions returns the classic demo tuning.
func DefaultOptions() Options {
	return Options{
		Threshold:  100,
		BaseSpeed:  5,
		SpeedMin:   0.5,
		SpeedMax:   1.0,
		Margin:     5,
		SpawnInset: 50,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Threshold == 0 {
		o.Threshold = d.Threshold
	}
	if o.BaseSpeed == 0 {
		o.BaseSpeed = d.BaseSpeed
	}
	if o.SpeedMin == 0 && o.SpeedMax == 0 {
		o.SpeedMin, o.SpeedMax = d.SpeedMin, d.SpeedMax
	}
	return o
}

// StepResult describes the state after one tick.
type StepResult struct {
	Tick          int64         `json:"tick"`
	Population    []Particle    `json:"population"`
	Probabilities Probabilities `json:"probabilities"`
	KEff          float64       `json:"k_eff"`
	Delta         Tally         `json:"delta"`
	Totals        Tally         `json:"totals"`
	// Reseeded is set when the extinction guard injected a particle.
	Reseeded bool `json:"reseeded"`
}

// Kernel owns a particle population and advances it one tick at a time.
// It performs no I/O and is not safe for concurrent use; Reactor adds the
// locking.
type Kernel struct {
	opts      Options
	bounds    Bounds
	random    func() float64
	particles []Particle
	tally     Tally
	tick      int64
	nextID    ParticleID
}

// NewKernel creates an empty kernel. random must return uniform samples in
// [0,1); every stochastic decision draws from it in a fixed order.
func NewKernel(opts Options, bounds Bounds, random func() float64) *Kernel {
	return &Kernel{
		opts:   opts.withDefaults(),
		bounds: bounds,
		random: random,
		nextID: 1,
	}
}

// NewSeededKernel creates a kernel driven by a math/rand source seeded with
// seed.
func NewSeededKernel(opts Options, bounds Bounds, seed int64) *Kernel {
	rng := rand.New(rand.NewSource(seed))
	return NewKernel(opts, bounds, rng.Float64)
}

// Initialize builds a seeded kernel with the default options and count
// particles.
func Initialize(count int, bounds Bounds, seed int64) *Kernel {
	k := NewSeededKernel(DefaultOptions(), bounds, seed)
	k.Initialize(count)
	return k
}

// Initialize replaces the population with count particles placed uniformly
// inside the domain and clears tallies. A count below one still leaves the
// single guard particle at the centre.
func (k *Kernel) Initialize(count int) {
	k.particles = make([]Particle, 0, max(count, 1))
	k.tally = Tally{}
	k.tick = 0

	insetX, insetY := k.opts.SpawnInset, k.opts.SpawnInset
	if 2*insetX >= k.bounds.Width {
		insetX = 0
	}
	if 2*insetY >= k.bounds.Height {
		insetY = 0
	}

	for range count {
		pos := Vec2{
			X: insetX + k.random()*(k.bounds.Width-2*insetX),
			Y: insetY + k.random()*(k.bounds.Height-2*insetY),
		}
		k.particles = append(k.particles, k.spawn(pos))
	}
	if len(k.particles) == 0 {
		k.particles = append(k.particles, k.spawn(k.bounds.Center()))
	}
}

// SetPopulation replaces the population with a copy of ps. Particles without
// an ID get one above every explicit ID. An empty slice triggers the
// extinction guard.
func (k *Kernel) SetPopulation(ps []Particle) {
	for _, p := range ps {
		if p.ID >= k.nextID {
			k.nextID = p.ID + 1
		}
	}

	k.particles = make([]Particle, 0, max(len(ps), 1))
	for _, p := range ps {
		if p.ID == 0 {
			p.ID = k.allocID()
		}
		k.particles = append(k.particles, p)
	}
	if len(k.particles) == 0 {
		k.particles = append(k.particles, k.spawn(k.bounds.Center()))
	}
}

func (k *Kernel) restore(tick int64, ps []Particle, tally Tally) {
	k.SetPopulation(ps)
	k.tick = tick
	k.tally = tally
}

func (k *Kernel) allocID() ParticleID {
	id := k.nextID
	k.nextID++
	return id
}

// spawn creates a particle at pos with a freshly randomized velocity.
func (k *Kernel) spawn(pos Vec2) Particle {
	return Particle{
		ID:       k.allocID(),
		Position: pos,
		Velocity: k.randomVelocity(),
	}
}

// randomVelocity draws a direction and then a speed factor.
func (k *Kernel) randomVelocity() Vec2 {
	angle := 2 * math.Pi * k.random()
	factor := k.opts.SpeedMin + (k.opts.SpeedMax-k.opts.SpeedMin)*k.random()
	speed := k.opts.BaseSpeed * factor
	return Vec2{X: speed * math.Cos(angle), Y: speed * math.Sin(angle)}
}

// move advances p by one unit of time, bouncing off the walls, and returns the
// distance actually travelled.
func (k *Kernel) move(p *Particle) float64 {
	old := p.Position
	p.Position = p.Position.Add(p.Velocity)

	m := k.opts.Margin
	if p.Position.X < m || p.Position.X > k.bounds.Width-m {
		p.Velocity.X = -p.Velocity.X
	}
	if p.Position.Y < m || p.Position.Y > k.bounds.Height-m {
		p.Velocity.Y = -p.Velocity.Y
	}
	return p.Position.Sub(old).Len()
}

// Step advances the population by one tick using fission probability x.
// x is clamped to [0, 0.5] and read once for the whole tick.
func (k *Kernel) Step(x float64) StepResult {
	probs := NewProbabilities(x)
	bands := probs.Bands()

	// 1) move, trigger and resolve; removals and creations are only collected
	var delta Tally
	removed := make(map[int]struct{})
	created := make([]Particle, 0)

	for i := range k.particles {
		p := &k.particles[i]
		p.Distance += k.move(p)
		if p.Distance < k.opts.Threshold {
			continue
		}
		p.Distance = 0

		outcome := bands.Sample(k.random())
		delta.record(outcome)

		switch outcome {
		case OutcomeScatter:
			p.Velocity = k.randomVelocity()
		case OutcomeFission:
			removed[i] = struct{}{}
			for range 2 {
				created = append(created, k.spawn(p.Position))
			}
		case OutcomeCapture:
			removed[i] = struct{}{}
		}
	}

	// 2) apply: drop removed, then append created
	next := make([]Particle, 0, len(k.particles)-len(removed)+len(created))
	for i, p := range k.particles {
		if _, gone := removed[i]; gone {
			continue
		}
		next = append(next, p)
	}
	next = append(next, created...)

	// 3) extinction guard
	reseeded := false
	if len(next) == 0 {
		next = append(next, k.spawn(k.bounds.Center()))
		delta.Extinctions++
		reseeded = true
	}

	k.particles = next
	k.tick++
	delta.Ticks = 1
	k.tally.Add(delta)

	return StepResult{
		Tick:          k.tick,
		Population:    k.Population(),
		Probabilities: probs,
		KEff:          probs.KEff(),
		Delta:         delta,
		Totals:        k.tally,
		Reseeded:      reseeded,
	}
}

// Population returns a copy of the live particles.
func (k *Kernel) Population() []Particle {
	out := make([]Particle, len(k.particles))
	copy(out, k.particles)
	return out
}

func (k *Kernel) Size() int        { return len(k.particles) }
func (k *Kernel) Tally() Tally     { return k.tally }
func (k *Kernel) Tick() int64      { return k.tick }
func (k *Kernel) Bounds() Bounds   { return k.bounds }
func (k *Kernel) Options() Options { return k.opts }
