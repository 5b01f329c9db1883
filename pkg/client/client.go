// Package client builds reactor configurations and drives a reactorsim
// server over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/daniacca/reactorsim/internal/transport"
)

// ReactorBuilder provides a fluent API for building reactor configurations.
// Unset fields keep the server defaults: ten particles in a 600x600 domain
// with fission probability 0.25.
type ReactorBuilder struct {
	cfg transport.ReactorConfig
}

// NewReactor creates a builder starting from the default configuration.
func NewReactor() *ReactorBuilder {
	return &ReactorBuilder{cfg: transport.DefaultReactorConfig()}
}

// Particles sets the size of the random initial population.
func (rb *ReactorBuilder) Particles(n int) *ReactorBuilder {
	rb.cfg.InitialParticles = n
	return rb
}

// Bounds sets the domain size.
func (rb *ReactorBuilder) Bounds(width, height float64) *ReactorBuilder {
	rb.cfg.Width = width
	rb.cfg.Height = height
	return rb
}

// Fission sets the initial fission probability, a value in [0, 0.5].
// Capture takes the remainder of the non-scatter half.
func (rb *ReactorBuilder) Fission(x float64) *ReactorBuilder {
	rb.cfg.FissionProbability = x
	return rb
}

// Seed makes the run reproducible. Zero seeds from the server clock.
func (rb *ReactorBuilder) Seed(seed int64) *ReactorBuilder {
	rb.cfg.Seed = seed
	return rb
}

// Options replaces the motion and trigger tuning.
func (rb *ReactorBuilder) Options(opts transport.Options) *ReactorBuilder {
	rb.cfg.Options = opts
	return rb
}

// TickInterval sets the pacing used by Start when no interval is given.
func (rb *ReactorBuilder) TickInterval(d time.Duration) *ReactorBuilder {
	rb.cfg.TickIntervalMs = int(d / time.Millisecond)
	return rb
}

// Particle adds an explicit particle. Once any particle is added the random
// initial population is not generated.
func (rb *ReactorBuilder) Particle(x, y, vx, vy float64) *ReactorBuilder {
	rb.cfg.Particles = append(rb.cfg.Particles, transport.Particle{
		Position: transport.Vec2{X: x, Y: y},
		Velocity: transport.Vec2{X: vx, Y: vy},
	})
	return rb
}

// Notify configures which notifiers receive this reactor's events.
func (rb *ReactorBuilder) Notify(nb *NotificationBuilder) *ReactorBuilder {
	rb.cfg.Notify = nb.Build()
	return rb
}

// Build returns the configuration.
func (rb *ReactorBuilder) Build() transport.ReactorConfig {
	cfg := rb.cfg
	cfg.Particles = append([]transport.Particle(nil), rb.cfg.Particles...)
	return cfg
}

// Validate reports configuration problems before anything is sent.
func (rb *ReactorBuilder) Validate() error {
	return transport.ValidateReactorConfig(rb.Build())
}

// NotificationBuilder provides a fluent API for notification settings.
type NotificationBuilder struct {
	enabled     bool
	notifiers   []string
	everyNTicks int
}

// NewNotification creates a notification builder, enabled by default.
func NewNotification() *NotificationBuilder {
	return &NotificationBuilder{enabled: true, notifiers: make([]string, 0)}
}

func (nb *NotificationBuilder) Enabled(enabled bool) *NotificationBuilder {
	nb.enabled = enabled
	return nb
}

// Notifiers adds notifier IDs. Notifiers are registered with the server
// separately.
func (nb *NotificationBuilder) Notifiers(ids ...string) *NotificationBuilder {
	nb.notifiers = append(nb.notifiers, ids...)
	return nb
}

// EveryNTicks emits a tick event every n ticks. Extinction events are always
// sent.
func (nb *NotificationBuilder) EveryNTicks(n int) *NotificationBuilder {
	nb.everyNTicks = n
	return nb
}

func (nb *NotificationBuilder) Build() *transport.NotificationConfig {
	return &transport.NotificationConfig{
		Enabled:     nb.enabled,
		Notifiers:   append([]string(nil), nb.notifiers...),
		EveryNTicks: nb.everyNTicks,
	}
}

// TickResult is the server's answer to Tick.
type TickResult struct {
	Tick          int64                   `json:"tick"`
	Population    int                     `json:"population"`
	Probabilities transport.Probabilities `json:"probabilities"`
	KEff          float64                 `json:"k_eff"`
	Delta         transport.Tally         `json:"delta"`
	Totals        transport.Tally         `json:"totals"`
	Reseeded      bool                    `json:"reseeded"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Body)
}

func send(ctx context.Context, method, u string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(data))}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func reactorURL(baseURL, id string, elem ...string) (string, error) {
	u, err := url.JoinPath(baseURL, append([]string{"reactor", id}, elem...)...)
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	return u, nil
}

// ApplyReactor creates the reactor id on the server, or rebuilds it if it
// already exists, and returns its initial state.
func ApplyReactor(ctx context.Context, baseURL, id string, rb *ReactorBuilder) (transport.ReactorState, error) {
	var st transport.ReactorState
	u, err := reactorURL(baseURL, id)
	if err != nil {
		return st, err
	}
	err = send(ctx, http.MethodPost, u, rb.Build(), &st)
	return st, err
}

// Tick advances the reactor n ticks and returns the last step.
func Tick(ctx context.Context, baseURL, id string, n int) (TickResult, error) {
	var res TickResult
	u, err := reactorURL(baseURL, id, "tick")
	if err != nil {
		return res, err
	}
	err = send(ctx, http.MethodPost, u+"?n="+strconv.Itoa(n), nil, &res)
	return res, err
}

// SetFission changes the fission probability from the next tick and returns
// the value the server applied after clamping.
func SetFission(ctx context.Context, baseURL, id string, x float64) (float64, error) {
	u, err := reactorURL(baseURL, id, "fission")
	if err != nil {
		return 0, err
	}
	var resp struct {
		FissionProbability float64 `json:"fission_probability"`
	}
	err = send(ctx, http.MethodPost, u, map[string]float64{"fission_probability": x}, &resp)
	return resp.FissionProbability, err
}

// GetState fetches the reactor's tallies and current probabilities.
func GetState(ctx context.Context, baseURL, id string) (transport.ReactorState, error) {
	var st transport.ReactorState
	u, err := reactorURL(baseURL, id, "state")
	if err != nil {
		return st, err
	}
	err = send(ctx, http.MethodGet, u, nil, &st)
	return st, err
}

// Start lets the server tick the reactor every interval. The server paces in
// whole milliseconds, so a positive interval is rounded up to the next one.
// A zero interval uses the reactor's configured pacing.
func Start(ctx context.Context, baseURL, id string, interval time.Duration) error {
	u, err := reactorURL(baseURL, id, "start")
	if err != nil {
		return err
	}
	if interval > 0 {
		ms := (interval + time.Millisecond - 1) / time.Millisecond
		u += "?interval=" + strconv.FormatInt(int64(ms), 10)
	}
	return send(ctx, http.MethodPost, u, nil, nil)
}

// Stop halts server-side ticking.
func Stop(ctx context.Context, baseURL, id string) error {
	u, err := reactorURL(baseURL, id, "stop")
	if err != nil {
		return err
	}
	return send(ctx, http.MethodPost, u, nil, nil)
}
