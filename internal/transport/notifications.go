package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// EventKind tells subscribers why an event was emitted.
type EventKind string

const (
	// EventTick is emitted every NotificationConfig.EveryNTicks ticks.
	EventTick EventKind = "tick"
	// EventExtinction is emitted whenever the extinction guard reseeds.
	EventExtinction EventKind = "extinction"
)

// NotificationEvent summarizes a reactor tick for external subscribers.
type NotificationEvent struct {
	ReactorID          ReactorID `json:"reactor_id"`
	Kind               EventKind `json:"kind"`
	Tick               int64     `json:"tick"`
	Timestamp          int64     `json:"timestamp"`
	Population         int       `json:"population"`
	FissionProbability float64   `json:"fission_probability"`
	KEff               float64   `json:"k_eff"`
	Delta              Tally     `json:"delta"`
	Totals             Tally     `json:"totals"`
}

// NewNotificationEvent builds an event from a step result.
func NewNotificationEvent(id ReactorID, kind EventKind, res StepResult) NotificationEvent {
	return NotificationEvent{
		ReactorID:          id,
		Kind:               kind,
		Tick:               res.Tick,
		Timestamp:          time.Now().Unix(),
		Population:         len(res.Population),
		FissionProbability: res.Probabilities.Fission,
		KEff:               res.KEff,
		Delta:              res.Delta,
		Totals:             res.Totals,
	}
}

// JSON returns the event encoded as JSON.
func (ne NotificationEvent) JSON() ([]byte, error) {
	return json.Marshal(ne)
}

// Notifier is implemented by every notification channel.
type Notifier interface {
	// ID returns a unique identifier for this notifier
	ID() string

	// Type returns the kind of notifier, e.g. "webhook" or "websocket"
	Type() string

	// Notify delivers one event. The context bounds the delivery.
	Notify(ctx context.Context, event NotificationEvent) error

	// Close releases any resources held by the notifier
	Close() error
}

// NotificationConfig selects which notifiers a reactor reports to.
type NotificationConfig struct {
	Enabled   bool     `json:"enabled"`
	Notifiers []string `json:"notifiers"`
	// EveryNTicks emits a tick event every N ticks; 0 sends extinction
	// events only.
	EveryNTicks int `json:"every_n_ticks,omitempty"`
}

// eventsFor returns the events a step should emit under this config.
func (c NotificationConfig) eventsFor(id ReactorID, res StepResult) []NotificationEvent {
	if !c.Enabled || len(c.Notifiers) == 0 {
		return nil
	}
	var events []NotificationEvent
	if res.Reseeded {
		events = append(events, NewNotificationEvent(id, EventExtinction, res))
	}
	if c.EveryNTicks > 0 && res.Tick%int64(c.EveryNTicks) == 0 {
		events = append(events, NewNotificationEvent(id, EventTick, res))
	}
	return events
}

type notificationJob struct {
	Event       NotificationEvent
	NotifierIDs []string
}

// NotificationManager owns the registered notifiers and delivers events to
// them from a background worker.
type NotificationManager struct {
	mu        sync.RWMutex
	notifiers map[string]Notifier
	jobs      chan notificationJob
	closed    bool
	wg        sync.WaitGroup
	logger    Logger
}

// NewNotificationManager creates a notification manager with a single worker
func NewNotificationManager() *NotificationManager {
	return NewNotificationManagerWithLogger(nil)
}

// NewNotificationManagerWithLogger creates a notification manager that
// reports delivery failures to logger.
func NewNotificationManagerWithLogger(logger Logger) *NotificationManager {
	mgr := &NotificationManager{
		notifiers: make(map[string]Notifier),
		jobs:      make(chan notificationJob, 1024),
		logger:    orNoOp(logger),
	}
	mgr.startWorkers(1)
	return mgr
}

// RegisterNotifier registers a notifier with the manager
func (nm *NotificationManager) RegisterNotifier(notifier Notifier) error {
	if notifier == nil {
		return fmt.Errorf("notifier cannot be nil")
	}

	id := notifier.ID()
	if id == "" {
		return fmt.Errorf("notifier ID cannot be empty")
	}

	nm.mu.Lock()
	defer nm.mu.Unlock()

	if nm.closed {
		return fmt.Errorf("notification manager is closed")
	}
	if _, exists := nm.notifiers[id]; exists {
		return fmt.Errorf("notifier with ID %s already exists", id)
	}

	nm.notifiers[id] = notifier
	return nil
}

// UnregisterNotifier closes and removes a notifier
func (nm *NotificationManager) UnregisterNotifier(id string) error {
	nm.mu.Lock()
	notifier, exists := nm.notifiers[id]
	if exists {
		delete(nm.notifiers, id)
	}
	nm.mu.Unlock()

	if !exists {
		return fmt.Errorf("notifier with ID %s not found", id)
	}
	if err := notifier.Close(); err != nil {
		return fmt.Errorf("error closing notifier %s: %w", id, err)
	}
	return nil
}

// GetNotifier retrieves a notifier by ID
func (nm *NotificationManager) GetNotifier(id string) (Notifier, bool) {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	notifier, exists := nm.notifiers[id]
	return notifier, exists
}

// ListNotifiers returns the IDs of all registered notifiers
func (nm *NotificationManager) ListNotifiers() []string {
	nm.mu.RLock()
	defer nm.mu.RUnlock()
	ids := make([]string, 0, len(nm.notifiers))
	for id := range nm.notifiers {
		ids = append(ids, id)
	}
	return ids
}

// Enqueue hands an event to the worker. It never blocks the tick loop: when
// the queue is full the event is dropped.
func (nm *NotificationManager) Enqueue(event NotificationEvent, notifierIDs []string) {
	if len(notifierIDs) == 0 {
		return
	}

	nm.mu.RLock()
	defer nm.mu.RUnlock()
	if nm.closed {
		return
	}

	select {
	case nm.jobs <- notificationJob{Event: event, NotifierIDs: notifierIDs}:
	default:
		nm.logger.Warnf("notification queue full, dropping event: reactor_id=%s kind=%s tick=%d", event.ReactorID, event.Kind, event.Tick)
	}
}

func (nm *NotificationManager) startWorkers(n int) {
	for range n {
		nm.wg.Add(1)
		go nm.worker()
	}
}

func (nm *NotificationManager) worker() {
	defer nm.wg.Done()
	for job := range nm.jobs {
		nm.dispatchJob(job)
	}
}

func (nm *NotificationManager) dispatchJob(job notificationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, id := range job.NotifierIDs {
		nm.notifyWithRetry(ctx, id, job.Event)
	}
}

// notifyWithRetry delivers with exponential backoff, giving up after
// maxRetries extra attempts.
func (nm *NotificationManager) notifyWithRetry(ctx context.Context, notifierID string, event NotificationEvent) {
	notifier, ok := nm.GetNotifier(notifierID)
	if !ok {
		nm.logger.Warnf("notification failed: notifier=%s error=notifier not found", notifierID)
		return
	}

	const maxRetries = 3
	backoff := 100 * time.Millisecond

	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := notifier.Notify(ctx, event)
		if err == nil {
			return
		}

		nm.logger.Warnf("notification failed: notifier=%s attempt=%d error=%v", notifierID, attempt+1, err)
		if attempt == maxRetries {
			nm.logger.Errorf("notification failed after %d attempts: notifier=%s", maxRetries+1, notifierID)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Notify delivers an event synchronously to the given notifiers and joins
// all failures into one error.
func (nm *NotificationManager) Notify(ctx context.Context, event NotificationEvent, notifierIDs []string) error {
	var errs []error
	for _, id := range notifierIDs {
		notifier, exists := nm.GetNotifier(id)
		if !exists {
			errs = append(errs, fmt.Errorf("notifier %s not found", id))
			continue
		}
		if err := notifier.Notify(ctx, event); err != nil {
			errs = append(errs, fmt.Errorf("notifier %s failed: %w", id, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Close drains the queue, stops the worker and closes every notifier
func (nm *NotificationManager) Close() error {
	nm.mu.Lock()
	if nm.closed {
		nm.mu.Unlock()
		return nil
	}
	nm.closed = true
	close(nm.jobs)
	nm.mu.Unlock()

	nm.wg.Wait()

	nm.mu.Lock()
	var errs []error
	for id, notifier := range nm.notifiers {
		if err := notifier.Close(); err != nil {
			errs = append(errs, fmt.Errorf("error closing notifier %s: %w", id, err))
		}
	}
	nm.notifiers = make(map[string]Notifier)
	nm.mu.Unlock()

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
