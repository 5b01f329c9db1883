package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/daniacca/reactorsim/internal/suggest"
	"github.com/daniacca/reactorsim/internal/transport"
	"github.com/daniacca/reactorsim/internal/transport/notifiers"
)

const (
	maxTicksPerRequest   = 100000
	maxSamplesPerRequest = 10000000
)

var notifierTypes = []string{"webhook", "websocket"}

var eventKinds = []string{string(transport.EventTick), string(transport.EventExtinction)}

func parseEventKinds(raw []any) ([]transport.EventKind, error) {
	kinds := make([]transport.EventKind, 0, len(raw))
	for _, v := range raw {
		k, _ := v.(string)
		if !slices.Contains(eventKinds, k) {
			return nil, fmt.Errorf("unknown event kind: %q%s", k, suggest.Hint(k, eventKinds))
		}
		kinds = append(kinds, transport.EventKind(k))
	}
	return kinds, nil
}

// extractReactorID splits "/reactor/{id}/rest" into the ID and "/rest".
func extractReactorID(path string) (transport.ReactorID, string) {
	rest, ok := strings.CutPrefix(path, "/reactor/")
	if !ok {
		return "", ""
	}
	id, remaining, found := strings.Cut(rest, "/")
	if !found {
		return transport.ReactorID(id), ""
	}
	return transport.ReactorID(id), "/" + remaining
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "cannot encode: "+err.Error(), http.StatusInternalServerError)
	}
}

// positiveQueryInt reads a positive integer query parameter, returning def
// when it is absent.
func positiveQueryInt(r *http.Request, name string, def, limit int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 || n > limit {
		return 0, false
	}
	return n, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// GET /reactors
func (s *Server) handleListReactors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ids := s.manager.ListReactors()
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"reactors": out})
}

// handleReactorRoutes dispatches /reactor/{id}/... requests
func (s *Server) handleReactorRoutes(w http.ResponseWriter, r *http.Request) {
	id, remainingPath := extractReactorID(r.URL.Path)
	if id == "" {
		http.Error(w, "reactor ID is required in path: /reactor/{id}/...", http.StatusBadRequest)
		return
	}

	if remainingPath == "" {
		switch r.Method {
		case http.MethodPost, http.MethodPut:
			s.handleApplyReactor(w, r, id)
		case http.MethodDelete:
			s.handleDeleteReactor(w, id)
		default:
			http.Error(w, "not found", http.StatusNotFound)
		}
		return
	}

	reactor, exists := s.manager.GetReactor(id)
	if !exists {
		http.Error(w, "reactor not found", http.StatusNotFound)
		return
	}

	switch {
	case remainingPath == "/tick" && r.Method == http.MethodPost:
		s.handleTick(w, r, reactor)
	case remainingPath == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r, reactor)
	case remainingPath == "/stop" && r.Method == http.MethodPost:
		reactor.Stop()
		s.logger.Infof("Reactor stopped: reactor_id=%s", id)
		writeJSON(w, http.StatusOK, reactor.State())
	case remainingPath == "/fission" && r.Method == http.MethodPost:
		s.handleSetFission(w, r, reactor)
	case remainingPath == "/state" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, reactor.State())
	case remainingPath == "/particles" && r.Method == http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{
			"tick":      reactor.State().Tick,
			"particles": reactor.Particles(),
		})
	case remainingPath == "/snapshot" && r.Method == http.MethodPost:
		s.handleSaveSnapshot(w, reactor)
	case remainingPath == "/snapshot" && r.Method == http.MethodGet:
		s.handleGetSnapshot(w, reactor)
	case remainingPath == "/restore" && r.Method == http.MethodPost:
		s.handleRestoreSnapshot(w, reactor)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// POST /reactor/{id}
// Body: ReactorConfig JSON; absent fields keep their defaults.
// Creates the reactor, or rebuilds an existing one.
func (s *Server) handleApplyReactor(w http.ResponseWriter, r *http.Request, id transport.ReactorID) {
	defer r.Body.Close()

	cfg := transport.DefaultReactorConfig()
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		http.Error(w, "invalid reactor json: "+err.Error(), http.StatusBadRequest)
		return
	}

	reactor, created, err := s.createOrReconfigure(id, cfg)
	if err != nil {
		http.Error(w, "invalid reactor config: "+err.Error(), http.StatusBadRequest)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Infof("Reactor created: reactor_id=%s particles=%d fission=%g", id, reactor.State().Population, cfg.FissionProbability)
	} else {
		s.logger.Infof("Reactor reconfigured: reactor_id=%s particles=%d fission=%g", id, reactor.State().Population, cfg.FissionProbability)
	}
	writeJSON(w, status, reactor.State())
}

// DELETE /reactor/{id}
func (s *Server) handleDeleteReactor(w http.ResponseWriter, id transport.ReactorID) {
	if err := s.manager.DeleteReactor(id); err != nil {
		s.logger.Warnf("Failed to delete reactor: reactor_id=%s error=%v", id, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Infof("Reactor deleted: reactor_id=%s", id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("reactor deleted"))
}

// POST /reactor/{id}/tick?n=1
// Steps the reactor n times and returns the last step.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request, reactor *transport.Reactor) {
	n, ok := positiveQueryInt(r, "n", 1, maxTicksPerRequest)
	if !ok {
		http.Error(w, "invalid n: must be a positive integer up to "+strconv.Itoa(maxTicksPerRequest), http.StatusBadRequest)
		return
	}

	var res transport.StepResult
	for range n {
		res = reactor.Step()
	}
	s.logger.Debugf("Reactor ticked: reactor_id=%s n=%d tick=%d population=%d", reactor.ID(), n, res.Tick, len(res.Population))

	writeJSON(w, http.StatusOK, map[string]any{
		"tick":          res.Tick,
		"population":    len(res.Population),
		"probabilities": res.Probabilities,
		"k_eff":         res.KEff,
		"delta":         res.Delta,
		"totals":        res.Totals,
		"reseeded":      res.Reseeded,
	})
}

// POST /reactor/{id}/start?interval=16
// interval is in milliseconds; without it the reactor's configured pacing is used.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, reactor *transport.Reactor) {
	var interval time.Duration
	if raw := r.URL.Query().Get("interval"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	reactor.Run(interval)
	s.logger.Infof("Reactor started: reactor_id=%s interval=%v", reactor.ID(), interval)
	writeJSON(w, http.StatusOK, reactor.State())
}

type setFissionRequest struct {
	FissionProbability *float64 `json:"fission_probability"`
}

// POST /reactor/{id}/fission
// Body: { "fission_probability": 0.3 }; out-of-range values are clamped.
func (s *Server) handleSetFission(w http.ResponseWriter, r *http.Request, reactor *transport.Reactor) {
	defer r.Body.Close()

	var req setFissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.FissionProbability == nil {
		http.Error(w, "fission_probability is required", http.StatusBadRequest)
		return
	}

	applied, err := reactor.SetFissionProbability(*req.FissionProbability)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Debugf("Fission probability set: reactor_id=%s requested=%g applied=%g", reactor.ID(), *req.FissionProbability, applied)

	probs := transport.NewProbabilities(applied)
	writeJSON(w, http.StatusOK, map[string]any{
		"fission_probability": applied,
		"probabilities":       probs,
		"k_eff":               probs.KEff(),
	})
}

// POST /reactor/{id}/snapshot
// Writes a snapshot synchronously
func (s *Server) handleSaveSnapshot(w http.ResponseWriter, reactor *transport.Reactor) {
	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	reactor.SetSnapshotDir(s.snapshotDir)

	if err := reactor.SaveSnapshot(); err != nil {
		s.logger.Errorf("Failed to save snapshot: reactor_id=%s error=%v", reactor.ID(), err)
		http.Error(w, "failed to save snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	path := reactor.SnapshotPath()
	s.logger.Debugf("Snapshot saved: reactor_id=%s path=%s", reactor.ID(), path)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "path": path})
}

// GET /reactor/{id}/snapshot
// Returns the raw snapshot JSON if it exists
func (s *Server) handleGetSnapshot(w http.ResponseWriter, reactor *transport.Reactor) {
	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	reactor.SetSnapshotDir(s.snapshotDir)

	data, err := os.ReadFile(reactor.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "snapshot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "failed to read snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// POST /reactor/{id}/restore
// Replaces the reactor's state with its last saved snapshot
func (s *Server) handleRestoreSnapshot(w http.ResponseWriter, reactor *transport.Reactor) {
	if s.snapshotDir == "" {
		http.Error(w, "snapshot directory not configured", http.StatusInternalServerError)
		return
	}
	reactor.SetSnapshotDir(s.snapshotDir)

	snap, err := transport.LoadSnapshotFile(reactor.SnapshotPath())
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "snapshot not found", http.StatusNotFound)
			return
		}
		http.Error(w, "invalid snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if err := reactor.RestoreSnapshot(snap); err != nil {
		http.Error(w, "cannot restore snapshot: "+err.Error(), http.StatusInternalServerError)
		return
	}

	s.logger.Infof("Reactor restored: reactor_id=%s tick=%d", reactor.ID(), snap.Tick)
	writeJSON(w, http.StatusOK, reactor.State())
}

// handleNotifiersRoutes handles notifier management endpoints
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/notifiers" && r.Method == http.MethodGet:
		s.handleListNotifiers(w)
	case r.URL.Path == "/notifiers" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && strings.HasSuffix(r.URL.Path, "/ws") && r.Method == http.MethodGet:
		s.handleNotifierSocket(w, r)
	case strings.HasPrefix(r.URL.Path, "/notifiers/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter) {
	ids := s.notifierMgr.ListNotifiers()

	list := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if notifier, exists := s.notifierMgr.GetNotifier(id); exists {
			list = append(list, map[string]string{"id": id, "type": notifier.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": list})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-hook", "config": { "url": "http://...", "kinds": ["extinction"] } }
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier transport.Notifier
	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		wh := notifiers.NewWebhookNotifier(req.ID, url)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		if raw, ok := req.Config["kinds"].([]any); ok {
			kinds, err := parseEventKinds(raw)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			wh.OnlyKinds(kinds...)
		}
		notifier = wh
	case "websocket":
		notifier = notifiers.NewWebSocketNotifier(req.ID)
	default:
		http.Error(w, "unknown notifier type: "+req.Type+suggest.Hint(req.Type, notifierTypes), http.StatusBadRequest)
		return
	}

	if err := s.notifierMgr.RegisterNotifier(notifier); err != nil {
		notifier.Close()
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}

	s.logger.Infof("Notifier registered: notifier_id=%s type=%s", req.ID, req.Type)
	w.WriteHeader(http.StatusCreated)
	_, _ = w.Write([]byte("notifier registered"))
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/notifiers/")
	if id == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	if err := s.notifierMgr.UnregisterNotifier(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	s.logger.Infof("Notifier unregistered: notifier_id=%s", id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}

// GET /notifiers/{id}/ws
// Upgrades to a WebSocket subscribed to a websocket notifier
func (s *Server) handleNotifierSocket(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/notifiers/"), "/ws")

	notifier, exists := s.notifierMgr.GetNotifier(id)
	if !exists {
		http.Error(w, "notifier not found", http.StatusNotFound)
		return
	}
	ws, ok := notifier.(*notifiers.WebSocketNotifier)
	if !ok {
		http.Error(w, "notifier "+id+" is not a websocket notifier", http.StatusBadRequest)
		return
	}
	ws.ServeHTTP(w, r)
}

type piResponse struct {
	Inside   int64   `json:"inside"`
	Total    int64   `json:"total"`
	Estimate float64 `json:"estimate"`
}

// handlePiRoutes serves the π estimator:
// POST /pi/sample?n=1000, GET /pi, DELETE /pi
func (s *Server) handlePiRoutes(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/pi/sample" && r.Method == http.MethodPost:
		n, ok := positiveQueryInt(r, "n", 1000, maxSamplesPerRequest)
		if !ok {
			http.Error(w, "invalid n: must be a positive integer up to "+strconv.Itoa(maxSamplesPerRequest), http.StatusBadRequest)
			return
		}
		c := s.pi.SampleN(n)
		writeJSON(w, http.StatusOK, piResponse{Inside: c.Inside, Total: c.Total, Estimate: c.Estimate()})
	case r.URL.Path == "/pi" && r.Method == http.MethodGet:
		c := s.pi.Counts()
		writeJSON(w, http.StatusOK, piResponse{Inside: c.Inside, Total: c.Total, Estimate: c.Estimate()})
	case r.URL.Path == "/pi" && r.Method == http.MethodDelete:
		s.pi.Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("estimator reset"))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}
