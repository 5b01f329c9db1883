package transport

import (
	"fmt"
	"sort"
	"sync"
)

// ReactorManager manages multiple reactors, each isolated from the others
type ReactorManager struct {
	mu       sync.RWMutex
	reactors map[ReactorID]*Reactor
	logger   Logger
}

// NewReactorManager creates a new reactor manager
func NewReactorManager() *ReactorManager {
	return NewReactorManagerWithLogger(nil)
}

// NewReactorManagerWithLogger creates a manager whose reactors log to logger
func NewReactorManagerWithLogger(logger Logger) *ReactorManager {
	return &ReactorManager{
		reactors: make(map[ReactorID]*Reactor),
		logger:   orNoOp(logger),
	}
}

// CreateReactor builds a reactor from cfg under id.
// Returns an error if the id is taken or cfg is invalid.
func (rm *ReactorManager) CreateReactor(id ReactorID, cfg ReactorConfig) (*Reactor, error) {
	if id == "" {
		return nil, fmt.Errorf("reactor id is required")
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if _, exists := rm.reactors[id]; exists {
		return nil, fmt.Errorf("reactor with id %s already exists", id)
	}

	r, err := NewReactorWithLogger(id, cfg, rm.logger)
	if err != nil {
		return nil, err
	}
	rm.reactors[id] = r
	return r, nil
}

// GetReactor retrieves a reactor by ID
func (rm *ReactorManager) GetReactor(id ReactorID) (*Reactor, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	r, exists := rm.reactors[id]
	return r, exists
}

// DeleteReactor stops and removes a reactor
func (rm *ReactorManager) DeleteReactor(id ReactorID) error {
	rm.mu.Lock()
	r, exists := rm.reactors[id]
	if exists {
		delete(rm.reactors, id)
	}
	rm.mu.Unlock()

	if !exists {
		return fmt.Errorf("reactor with id %s does not exist", id)
	}
	r.Stop()
	return nil
}

// ListReactors returns all reactor IDs in sorted order
func (rm *ReactorManager) ListReactors() []ReactorID {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	ids := make([]ReactorID, 0, len(rm.reactors))
	for id := range rm.reactors {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// ReconfigureReactor rebuilds an existing reactor's kernel from cfg
func (rm *ReactorManager) ReconfigureReactor(id ReactorID, cfg ReactorConfig) error {
	r, exists := rm.GetReactor(id)
	if !exists {
		return fmt.Errorf("reactor with id %s does not exist", id)
	}
	return r.Reconfigure(cfg)
}

// StopAll stops every running reactor
func (rm *ReactorManager) StopAll() {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	for _, r := range rm.reactors {
		r.Stop()
	}
}
