package transport

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// ReactorID is the unique identifier of a reactor.
type ReactorID string

// ReactorState is a read-only view for display.
type ReactorState struct {
	ID                 ReactorID     `json:"id"`
	Tick               int64         `json:"tick"`
	Population         int           `json:"population"`
	FissionProbability float64       `json:"fission_probability"`
	Probabilities      Probabilities `json:"probabilities"`
	KEff               float64       `json:"k_eff"`
	Tally              Tally         `json:"tally"`
	Bounds             Bounds        `json:"bounds"`
	Running            bool          `json:"running"`
}

// Reactor is a kernel with locking, a pacing loop, periodic snapshots and
// notifications. The fission probability may change at any time; a tick
// reads it once when it starts.
type Reactor struct {
	mu        sync.RWMutex
	id        ReactorID
	cfg       ReactorConfig
	kernel    *Kernel
	fission   float64
	stopCh    chan struct{}
	isRunning bool
	logger    Logger

	notificationMgr *NotificationManager
	notify          NotificationConfig

	snapshotDir         string
	snapshotEveryNTicks int
}

// NewReactor validates cfg and builds a reactor with its initial population.
func NewReactor(id ReactorID, cfg ReactorConfig) (*Reactor, error) {
	return NewReactorWithLogger(id, cfg, nil)
}

// NewReactorWithLogger is NewReactor with an injected logger.
func NewReactorWithLogger(id ReactorID, cfg ReactorConfig, logger Logger) (*Reactor, error) {
	if err := ValidateReactorConfig(cfg); err != nil {
		return nil, err
	}
	r := &Reactor{
		id:     id,
		stopCh: make(chan struct{}),
		logger: orNoOp(logger),
	}
	r.configure(cfg)
	return r, nil
}

// configure rebuilds the kernel from cfg. Callers hold r.mu or own r.
func (r *Reactor) configure(cfg ReactorConfig) {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	k := NewSeededKernel(cfg.Options, cfg.Bounds(), seed)
	if len(cfg.Particles) > 0 {
		k.SetPopulation(cfg.Particles)
	} else {
		k.Initialize(cfg.InitialParticles)
	}

	r.cfg = cfg
	r.kernel = k
	r.fission = cfg.FissionProbability
	if cfg.Notify != nil {
		r.notify = *cfg.Notify
	}
}

// Reconfigure replaces the kernel with one built from cfg. Identity, running
// state and notification/snapshot wiring are kept.
func (r *Reactor) Reconfigure(cfg ReactorConfig) error {
	if err := ValidateReactorConfig(cfg); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configure(cfg)
	return nil
}

func (r *Reactor) ID() ReactorID { return r.id }

// Config returns the configuration the reactor was last built from.
func (r *Reactor) Config() ReactorConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.cfg
}

// SetFissionProbability sets x for subsequent ticks, clamped to [0, 0.5].
// It returns the value actually applied.
func (r *Reactor) SetFissionProbability(x float64) (float64, error) {
	if math.IsNaN(x) {
		return 0, fmt.Errorf("fission probability must be a number")
	}
	applied := ClampFission(x)

	r.mu.Lock()
	r.fission = applied
	r.mu.Unlock()
	return applied, nil
}

func (r *Reactor) FissionProbability() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fission
}

// SetNotificationManager sets the manager used to deliver events
func (r *Reactor) SetNotificationManager(mgr *NotificationManager) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notificationMgr = mgr
}

// SetNotificationConfig selects the notifiers and tick cadence
func (r *Reactor) SetNotificationConfig(cfg NotificationConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notify = cfg
}

// Step advances the reactor by one tick.
func (r *Reactor) Step() StepResult {
	r.mu.Lock()
	res := r.kernel.Step(r.fission)
	mgr := r.notificationMgr
	notify := r.notify

	var (
		snap    Snapshot
		snapDue bool
	)
	if r.snapshotDir != "" && r.snapshotEveryNTicks > 0 && res.Tick%int64(r.snapshotEveryNTicks) == 0 {
		snap = r.snapshotLocked()
		snapDue = true
	}
	dir := r.snapshotDir
	r.mu.Unlock()

	if res.Reseeded {
		r.logger.Debugf("Extinction guard fired: reactor_id=%s tick=%d", r.id, res.Tick)
	}

	if mgr != nil {
		for _, ev := range notify.eventsFor(r.id, res) {
			mgr.Enqueue(ev, notify.Notifiers)
		}
	}

	if snapDue {
		if err := writeSnapshotFile(snapshotPath(dir, r.id), snap); err != nil {
			r.logger.Errorf("Periodic snapshot failed: reactor_id=%s tick=%d error=%v", r.id, res.Tick, err)
		}
	}

	return res
}

// State returns the tallies and the probabilities derived from the current
// fission setting.
func (r *Reactor) State() ReactorState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	probs := NewProbabilities(r.fission)
	return ReactorState{
		ID:                 r.id,
		Tick:               r.kernel.Tick(),
		Population:         r.kernel.Size(),
		FissionProbability: r.fission,
		Probabilities:      probs,
		KEff:               probs.KEff(),
		Tally:              r.kernel.Tally(),
		Bounds:             r.kernel.Bounds(),
		Running:            r.isRunning,
	}
}

// Particles returns a copy of the live population.
func (r *Reactor) Particles() []Particle {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.kernel.Population()
}

// Run ticks the reactor from a goroutine every interval until Stop is called.
// A non-positive interval uses the configured pacing. Calling Run on a
// running reactor does nothing.
func (r *Reactor) Run(interval time.Duration) {
	r.mu.Lock()
	if r.isRunning {
		r.mu.Unlock()
		return
	}
	if interval <= 0 {
		interval = r.cfg.TickInterval()
	}
	stopCh := make(chan struct{})
	r.stopCh = stopCh
	r.isRunning = true
	r.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				r.Step()
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts the pacing loop. Run may be called again afterwards.
func (r *Reactor) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.isRunning {
		return
	}
	close(r.stopCh)
	r.isRunning = false
}

func (r *Reactor) IsRunning() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isRunning
}
