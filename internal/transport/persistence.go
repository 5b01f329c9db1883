package transport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is a point-in-time capture of a reactor. The random source is not
// part of it.
type Snapshot struct {
	ReactorID          ReactorID  `json:"reactor_id"`
	Tick               int64      `json:"tick"`
	FissionProbability float64    `json:"fission_probability"`
	Bounds             Bounds     `json:"bounds"`
	Options            Options    `json:"options"`
	Particles          []Particle `json:"particles"`
	Tally              Tally      `json:"tally"`
}

// ValidateSnapshot checks that a snapshot can be restored: usable options and
// a non-empty population of unique, finite, moving particles.
func ValidateSnapshot(s Snapshot) error {
	err := &ValidationError{}

	if s.Bounds.Width <= 0 || s.Bounds.Height <= 0 {
		err.Add("invalid bounds %gx%g", s.Bounds.Width, s.Bounds.Height)
	}
	if s.FissionProbability < 0 || s.FissionProbability > MaxFissionProbability {
		err.Add("fission_probability %g out of range", s.FissionProbability)
	}
	if s.Tick < 0 {
		err.Add("negative tick %d", s.Tick)
	}
	if len(s.Particles) == 0 {
		err.Add("snapshot has no particles")
	}
	validateOptions(s.Options, s.Bounds, err)

	seen := make(map[ParticleID]struct{}, len(s.Particles))
	for i, p := range s.Particles {
		if p.ID == 0 {
			err.Add("particle at index %d has empty ID", i)
		} else if _, dup := seen[p.ID]; dup {
			err.Add("duplicate particle ID: %d", p.ID)
		}
		seen[p.ID] = struct{}{}

		if e := validateParticle(p); e != nil {
			err.Add("particle %d: %v", p.ID, e)
		}
	}

	if err.HasIssues() {
		return err
	}
	return nil
}

// EncodeSnapshotJSON encodes a snapshot to JSON.
func EncodeSnapshotJSON(s Snapshot) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshotJSON decodes a snapshot from JSON.
func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return s, nil
}

// LoadSnapshotFile reads and validates a snapshot file.
func LoadSnapshotFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, err
	}
	s, err := DecodeSnapshotJSON(data)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ValidateSnapshot(s); err != nil {
		return Snapshot{}, err
	}
	return s, nil
}

func snapshotPath(dir string, id ReactorID) string {
	return filepath.Join(dir, string(id)+".snapshot.json")
}

// writeSnapshotFile writes to a temporary file first so readers never see a
// partial snapshot.
func writeSnapshotFile(path string, s Snapshot) error {
	data, err := EncodeSnapshotJSON(s)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating snapshot dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming snapshot: %w", err)
	}
	return nil
}

// SetSnapshotDir sets where SaveSnapshot and periodic snapshots are written
func (r *Reactor) SetSnapshotDir(dir string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotDir = dir
}

// SetSnapshotEveryNTicks sets the periodic snapshot cadence; 0 disables it
func (r *Reactor) SetSnapshotEveryNTicks(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snapshotEveryNTicks = n
}

// SnapshotPath returns the file SaveSnapshot writes to.
func (r *Reactor) SnapshotPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return snapshotPath(r.snapshotDir, r.id)
}

// Snapshot captures the reactor's current state.
func (r *Reactor) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked()
}

func (r *Reactor) snapshotLocked() Snapshot {
	return Snapshot{
		ReactorID:          r.id,
		Tick:               r.kernel.Tick(),
		FissionProbability: r.fission,
		Bounds:             r.kernel.Bounds(),
		Options:            r.kernel.Options(),
		Particles:          r.kernel.Population(),
		Tally:              r.kernel.Tally(),
	}
}

// SaveSnapshot writes the current state to SnapshotPath.
func (r *Reactor) SaveSnapshot() error {
	r.mu.RLock()
	dir := r.snapshotDir
	snap := r.snapshotLocked()
	r.mu.RUnlock()

	if dir == "" {
		return fmt.Errorf("snapshot directory not configured")
	}
	return writeSnapshotFile(snapshotPath(dir, r.id), snap)
}

// RestoreSnapshot replaces the reactor's state with s. The kernel gets a new
// random source: the configured seed offset by the snapshot tick, or the
// clock when no seed is configured.
func (r *Reactor) RestoreSnapshot(s Snapshot) error {
	if err := ValidateSnapshot(s); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	seed := r.cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	} else {
		seed += s.Tick
	}
	k := NewSeededKernel(s.Options, s.Bounds, seed)
	k.restore(s.Tick, s.Particles, s.Tally)

	r.kernel = k
	r.fission = s.FissionProbability
	r.cfg.Width, r.cfg.Height = s.Bounds.Width, s.Bounds.Height
	r.cfg.Options = k.Options()
	return nil
}
