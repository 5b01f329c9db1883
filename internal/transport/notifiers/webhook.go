package notifiers

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/daniacca/reactorsim/internal/transport"
)

// Headers set on every webhook delivery so receivers can route without
// decoding the body.
const (
	HeaderEventKind = "X-Reactorsim-Event"
	HeaderReactorID = "X-Reactorsim-Reactor"
	HeaderTick      = "X-Reactorsim-Tick"
)

// maxErrorBody caps how much of a failing response ends up in the error.
const maxErrorBody = 256

// WebhookNotifier POSTs reactor events as JSON to a URL. It can be limited
// to a subset of event kinds, e.g. extinctions only.
type WebhookNotifier struct {
	id      string
	url     string
	client  *http.Client
	headers map[string]string
	kinds   map[transport.EventKind]bool
}

func NewWebhookNotifier(id, url string) *WebhookNotifier {
	return &WebhookNotifier{
		id:      id,
		url:     url,
		client:  &http.Client{Timeout: 5 * time.Second},
		headers: make(map[string]string),
	}
}

// SetHeader adds a header sent with every request
func (wn *WebhookNotifier) SetHeader(key, value string) {
	wn.headers[key] = value
}

// OnlyKinds restricts delivery to the given event kinds. With no kinds every
// event is delivered.
func (wn *WebhookNotifier) OnlyKinds(kinds ...transport.EventKind) {
	if len(kinds) == 0 {
		wn.kinds = nil
		return
	}
	wn.kinds = make(map[transport.EventKind]bool, len(kinds))
	for _, k := range kinds {
		wn.kinds[k] = true
	}
}

// Accepts reports whether events of kind k are delivered.
func (wn *WebhookNotifier) Accepts(k transport.EventKind) bool {
	return wn.kinds == nil || wn.kinds[k]
}

func (wn *WebhookNotifier) ID() string   { return wn.id }
func (wn *WebhookNotifier) Type() string { return "webhook" }
func (wn *WebhookNotifier) URL() string  { return wn.url }

// Notify posts the event. Filtered-out kinds succeed without a request.
func (wn *WebhookNotifier) Notify(ctx context.Context, event transport.NotificationEvent) error {
	if !wn.Accepts(event.Kind) {
		return nil
	}

	body, err := event.JSON()
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wn.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventKind, string(event.Kind))
	req.Header.Set(HeaderReactorID, string(event.ReactorID))
	req.Header.Set(HeaderTick, strconv.FormatInt(event.Tick, 10))
	for key, value := range wn.headers {
		req.Header.Set(key, value)
	}

	resp, err := wn.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if s := bytes.TrimSpace(snippet); len(s) > 0 {
			return fmt.Errorf("webhook %s returned status %d for %s event at tick %d: %s", wn.id, resp.StatusCode, event.Kind, event.Tick, s)
		}
		return fmt.Errorf("webhook %s returned status %d for %s event at tick %d", wn.id, resp.StatusCode, event.Kind, event.Tick)
	}
	return nil
}

// Close is a no-op for webhooks
func (wn *WebhookNotifier) Close() error {
	return nil
}
