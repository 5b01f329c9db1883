package transport

import (
	"fmt"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/phil-mansfield/table"
	"gopkg.in/gcfg.v1"
)

// ReactorConfig describes how to build a reactor. Decode JSON into a value
// obtained from DefaultReactorConfig so absent fields keep their defaults.
type ReactorConfig struct {
	InitialParticles   int     `json:"initial_particles"`
	Width              float64 `json:"width"`
	Height             float64 `json:"height"`
	FissionProbability float64 `json:"fission_probability"`
	// Seed drives the reactor's random source; 0 seeds from the clock.
	Seed    int64   `json:"seed,omitempty"`
	Options Options `json:"options"`
	// TickIntervalMs is the pacing used by Run when no interval is given.
	TickIntervalMs int                 `json:"tick_interval_ms,omitempty"`
	Notify         *NotificationConfig `json:"notify,omitempty"`

	// Particles, when non-empty, replaces the random initial population.
	Particles []Particle `json:"particles,omitempty"`
}

// DefaultReactorConfig mirrors the original demo: ten neutrons in a 600x600
// panel with fission at 0.25, paced at 60 Hz.
func DefaultReactorConfig() ReactorConfig {
	return ReactorConfig{
		InitialParticles:   10,
		Width:              600,
		Height:             600,
		FissionProbability: 0.25,
		Options:            DefaultOptions(),
		TickIntervalMs:     16,
	}
}

// Bounds returns the configured domain.
func (c ReactorConfig) Bounds() Bounds {
	return Bounds{Width: c.Width, Height: c.Height}
}

// TickInterval returns the Run pacing, defaulting to roughly 60 Hz.
func (c ReactorConfig) TickInterval() time.Duration {
	if c.TickIntervalMs <= 0 {
		return time.Second / 60
	}
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// ValidationError collects multiple validation issues
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	if len(e.Issues) == 0 {
		return "invalid reactor config: unknown validation error"
	}
	if len(e.Issues) == 1 {
		return e.Issues[0]
	}
	return "reactor config validation errors: " + strings.Join(e.Issues, "; ")
}

func (e *ValidationError) Add(format string, v ...any) {
	e.Issues = append(e.Issues, fmt.Sprintf(format, v...))
}

func (e *ValidationError) HasIssues() bool {
	return len(e.Issues) > 0
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ValidateReactorConfig reports every problem with cfg at once.
func ValidateReactorConfig(cfg ReactorConfig) error {
	err := &ValidationError{}

	if cfg.InitialParticles < 1 && len(cfg.Particles) == 0 {
		err.Add("initial_particles must be at least 1, got %d", cfg.InitialParticles)
	}
	if !finite(cfg.Width) || cfg.Width <= 0 {
		err.Add("width must be a positive number, got %g", cfg.Width)
	}
	if !finite(cfg.Height) || cfg.Height <= 0 {
		err.Add("height must be a positive number, got %g", cfg.Height)
	}
	if !finite(cfg.FissionProbability) || cfg.FissionProbability < 0 || cfg.FissionProbability > MaxFissionProbability {
		err.Add("fission_probability must be in [0, %g], got %g", MaxFissionProbability, cfg.FissionProbability)
	}
	if cfg.TickIntervalMs < 0 {
		err.Add("tick_interval_ms must not be negative, got %d", cfg.TickIntervalMs)
	}

	validateOptions(cfg.Options, cfg.Bounds(), err)

	seen := make(map[ParticleID]struct{}, len(cfg.Particles))
	for i, p := range cfg.Particles {
		if p.ID != 0 {
			if _, dup := seen[p.ID]; dup {
				err.Add("particle at index %d: duplicate particle ID: %d", i, p.ID)
			}
			seen[p.ID] = struct{}{}
		}
		if e := validateParticle(p); e != nil {
			err.Add("particle at index %d: %v", i, e)
		} else if !cfg.Bounds().Contains(p.Position) {
			err.Add("particle at index %d: position (%g, %g) outside %gx%g domain", i, p.Position.X, p.Position.Y, cfg.Width, cfg.Height)
		}
	}

	if cfg.Notify != nil && cfg.Notify.EveryNTicks < 0 {
		err.Add("notify.every_n_ticks must not be negative, got %d", cfg.Notify.EveryNTicks)
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

// validateOptions adds an issue for every option that would let the kernel
// stall or produce a zero velocity within bounds b.
func validateOptions(o Options, b Bounds, err *ValidationError) {
	if !finite(o.Threshold) || o.Threshold <= 0 {
		err.Add("options.threshold must be positive, got %g", o.Threshold)
	}
	if !finite(o.BaseSpeed) || o.BaseSpeed <= 0 {
		err.Add("options.base_speed must be positive, got %g", o.BaseSpeed)
	}
	if !finite(o.SpeedMin) || o.SpeedMin <= 0 {
		err.Add("options.speed_min must be positive, got %g", o.SpeedMin)
	}
	if !finite(o.SpeedMax) || o.SpeedMax < o.SpeedMin {
		err.Add("options.speed_max must be at least speed_min, got %g", o.SpeedMax)
	}
	if !finite(o.Margin) || o.Margin < 0 || 2*o.Margin >= b.Width || 2*o.Margin >= b.Height {
		err.Add("options.margin must be non-negative and smaller than half the domain, got %g", o.Margin)
	}
	if !finite(o.SpawnInset) || o.SpawnInset < 0 {
		err.Add("options.spawn_inset must be non-negative, got %g", o.SpawnInset)
	}
}

// validateParticle checks the state every live particle satisfies. Positions
// are not bounds-checked: a bounce is not corrected for overshoot, so a live
// particle may sit a step outside the walls.
func validateParticle(p Particle) error {
	if !p.Position.finite() || !p.Velocity.finite() || !finite(p.Distance) {
		return fmt.Errorf("non-finite state")
	}
	if p.Velocity.Len() == 0 {
		return fmt.Errorf("zero velocity")
	}
	if p.Distance < 0 {
		return fmt.Errorf("negative distance %g", p.Distance)
	}
	return nil
}

// reactorSection is the [reactor] section of a run file.
type reactorSection struct {
	Particles          int     `gcfg:"particles"`
	Width              float64 `gcfg:"width"`
	Height             float64 `gcfg:"height"`
	FissionProbability float64 `gcfg:"fission-probability"`
	Seed               int64   `gcfg:"seed"`
	Threshold          float64 `gcfg:"threshold"`
	BaseSpeed          float64 `gcfg:"base-speed"`
	SpeedMin           float64 `gcfg:"speed-min"`
	SpeedMax           float64 `gcfg:"speed-max"`
	Margin             float64 `gcfg:"margin"`
	SpawnInset         float64 `gcfg:"spawn-inset"`
	TickIntervalMs     int     `gcfg:"tick-interval-ms"`
	ParticleFile       string  `gcfg:"particle-file"`
}

// notifySection is the optional [notify] section of a run file.
type notifySection struct {
	Enabled     bool     `gcfg:"enabled"`
	Notifier    []string `gcfg:"notifier"`
	EveryNTicks int      `gcfg:"every-n-ticks"`
}

type runFile struct {
	Reactor reactorSection
	Notify  notifySection
}

func defaultRunFile() runFile {
	d := DefaultReactorConfig()
	return runFile{
		Reactor: reactorSection{
			Particles:          d.InitialParticles,
			Width:              d.Width,
			Height:             d.Height,
			FissionProbability: d.FissionProbability,
			Threshold:          d.Options.Threshold,
			BaseSpeed:          d.Options.BaseSpeed,
			SpeedMin:           d.Options.SpeedMin,
			SpeedMax:           d.Options.SpeedMax,
			Margin:             d.Options.Margin,
			SpawnInset:         d.Options.SpawnInset,
			TickIntervalMs:     d.TickIntervalMs,
		},
	}
}

func (f runFile) reactorConfig() ReactorConfig {
	r := f.Reactor
	cfg := ReactorConfig{
		InitialParticles:   r.Particles,
		Width:              r.Width,
		Height:             r.Height,
		FissionProbability: r.FissionProbability,
		Seed:               r.Seed,
		Options: Options{
			Threshold:  r.Threshold,
			BaseSpeed:  r.BaseSpeed,
			SpeedMin:   r.SpeedMin,
			SpeedMax:   r.SpeedMax,
			Margin:     r.Margin,
			SpawnInset: r.SpawnInset,
		},
		TickIntervalMs: r.TickIntervalMs,
	}
	if f.Notify.Enabled || len(f.Notify.Notifier) > 0 {
		cfg.Notify = &NotificationConfig{
			Enabled:     f.Notify.Enabled,
			Notifiers:   f.Notify.Notifier,
			EveryNTicks: f.Notify.EveryNTicks,
		}
	}
	return cfg
}

// ParseReactorConfig reads a gcfg run file from a string. Relative
// particle-file paths are resolved against baseDir.
//
//	[reactor]
//	particles = 10
//	fission-probability = 0.25
//	seed = 42
func ParseReactorConfig(text, baseDir string) (ReactorConfig, error) {
	f := defaultRunFile()
	if err := gcfg.ReadStringInto(&f, text); err != nil {
		return ReactorConfig{}, fmt.Errorf("parsing run file: %w", err)
	}
	return finishRunFile(f, baseDir)
}

// LoadReactorConfigFile reads and validates a gcfg run file.
func LoadReactorConfigFile(path string) (ReactorConfig, error) {
	f := defaultRunFile()
	if err := gcfg.ReadFileInto(&f, path); err != nil {
		return ReactorConfig{}, fmt.Errorf("reading run file %s: %w", path, err)
	}
	return finishRunFile(f, filepath.Dir(path))
}

func finishRunFile(f runFile, baseDir string) (ReactorConfig, error) {
	cfg := f.reactorConfig()
	if pf := f.Reactor.ParticleFile; pf != "" {
		if !filepath.IsAbs(pf) {
			pf = filepath.Join(baseDir, pf)
		}
		ps, err := LoadParticleTable(pf)
		if err != nil {
			return ReactorConfig{}, err
		}
		cfg.Particles = ps
	}
	if err := ValidateReactorConfig(cfg); err != nil {
		return ReactorConfig{}, err
	}
	return cfg, nil
}

// LoadParticleTable reads an initial population from a whitespace separated
// column file laid out as: x y vx vy.
func LoadParticleTable(path string) ([]Particle, error) {
	cols, err := table.ReadTable(path, []int{0, 1, 2, 3}, nil)
	if err != nil {
		return nil, fmt.Errorf("reading particle table %s: %w", path, err)
	}
	xs, ys, vxs, vys := cols[0], cols[1], cols[2], cols[3]

	ps := make([]Particle, len(xs))
	for i := range xs {
		ps[i] = Particle{
			Position: Vec2{X: xs[i], Y: ys[i]},
			Velocity: Vec2{X: vxs[i], Y: vys[i]},
		}
	}
	return ps, nil
}
