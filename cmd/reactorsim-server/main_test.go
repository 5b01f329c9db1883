package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/daniacca/reactorsim/internal/transport"
	"github.com/gorilla/websocket"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv := NewServer(NewLoggerTo(io.Discard, "error"))
	t.Cleanup(func() { srv.Close() })
	return srv
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeState(t *testing.T, w *httptest.ResponseRecorder) transport.ReactorState {
	t.Helper()
	var st transport.ReactorState
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("Failed to parse state: %v (%s)", err, w.Body.String())
	}
	return st
}

const smallReactor = `{"initial_particles": 5, "fission_probability": 0.2, "seed": 42}`

func TestServer_Health(t *testing.T) {
	h := newTestServer(t).routes()
	w := do(t, h, http.MethodGet, "/healthz", "")
	if w.Code != http.StatusOK || w.Body.String() != "ok" {
		t.Errorf("Expected 200 ok, got %d %q", w.Code, w.Body.String())
	}
}

func TestServer_ApplyReactor(t *testing.T) {
	h := newTestServer(t).routes()

	w := do(t, h, http.MethodPost, "/reactor/core", smallReactor)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	st := decodeState(t, w)
	if st.ID != "core" || st.Population != 5 || st.FissionProbability != 0.2 {
		t.Errorf("Unexpected state %+v", st)
	}
	if st.Bounds.Width != 600 {
		t.Errorf("Expected default width 600, got %g", st.Bounds.Width)
	}

	w = do(t, h, http.MethodPost, "/reactor/core", `{"initial_particles": 8}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on reconfigure, got %d", w.Code)
	}
	if st := decodeState(t, w); st.Population != 8 {
		t.Errorf("Expected 8 particles, got %d", st.Population)
	}
}

func TestServer_ApplyReactorInvalid(t *testing.T) {
	h := newTestServer(t).routes()

	if w := do(t, h, http.MethodPost, "/reactor/core", `{"width": -1}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid config, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/reactor/core", `{not json`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad json, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/reactor/", smallReactor); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing id, got %d", w.Code)
	}
}

func TestServer_TickAndState(t *testing.T) {
	h := newTestServer(t).routes()
	do(t, h, http.MethodPost, "/reactor/core", smallReactor)

	w := do(t, h, http.MethodPost, "/reactor/core/tick?n=10", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var tick struct {
		Tick       int64           `json:"tick"`
		Population int             `json:"population"`
		Totals     transport.Tally `json:"totals"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &tick); err != nil {
		t.Fatalf("Failed to parse tick response: %v", err)
	}
	if tick.Tick != 10 || tick.Totals.Ticks != 10 {
		t.Errorf("Expected tick 10, got %+v", tick)
	}

	st := decodeState(t, do(t, h, http.MethodGet, "/reactor/core/state", ""))
	if st.Tick != 10 || st.Population != tick.Population {
		t.Errorf("Unexpected state %+v", st)
	}

	w = do(t, h, http.MethodGet, "/reactor/core/particles", "")
	var parts struct {
		Tick      int64                `json:"tick"`
		Particles []transport.Particle `json:"particles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &parts); err != nil {
		t.Fatalf("Failed to parse particles: %v", err)
	}
	if len(parts.Particles) != st.Population {
		t.Errorf("Expected %d particles, got %d", st.Population, len(parts.Particles))
	}

	for _, bad := range []string{"0", "-3", "abc", "100001"} {
		if w := do(t, h, http.MethodPost, "/reactor/core/tick?n="+bad, ""); w.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for n=%s, got %d", bad, w.Code)
		}
	}
	if w := do(t, h, http.MethodPost, "/reactor/missing/tick", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing reactor, got %d", w.Code)
	}
}

func TestServer_SetFission(t *testing.T) {
	h := newTestServer(t).routes()
	do(t, h, http.MethodPost, "/reactor/core", smallReactor)

	w := do(t, h, http.MethodPost, "/reactor/core/fission", `{"fission_probability": 0.8}`)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		FissionProbability float64 `json:"fission_probability"`
		KEff               float64 `json:"k_eff"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.FissionProbability != 0.5 || resp.KEff != 2 {
		t.Errorf("Expected clamp to 0.5 with k_eff 2, got %+v", resp)
	}

	st := decodeState(t, do(t, h, http.MethodGet, "/reactor/core/state", ""))
	if st.FissionProbability != 0.5 {
		t.Errorf("Expected stored 0.5, got %g", st.FissionProbability)
	}

	if w := do(t, h, http.MethodPost, "/reactor/core/fission", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing field, got %d", w.Code)
	}
}

func TestServer_ListAndDeleteReactors(t *testing.T) {
	h := newTestServer(t).routes()
	do(t, h, http.MethodPost, "/reactor/b", smallReactor)
	do(t, h, http.MethodPost, "/reactor/a", smallReactor)

	w := do(t, h, http.MethodGet, "/reactors", "")
	var list map[string][]string
	json.Unmarshal(w.Body.Bytes(), &list)
	if got := strings.Join(list["reactors"], ","); got != "a,b" {
		t.Errorf("Expected a,b, got %s", got)
	}

	if w := do(t, h, http.MethodDelete, "/reactor/a", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 on delete, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/reactor/a", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second delete, got %d", w.Code)
	}
}

func TestServer_StartStop(t *testing.T) {
	srv := newTestServer(t)
	h := srv.routes()
	do(t, h, http.MethodPost, "/reactor/core", smallReactor)

	if w := do(t, h, http.MethodPost, "/reactor/core/start?interval=abc", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for bad interval, got %d", w.Code)
	}

	w := do(t, h, http.MethodPost, "/reactor/core/start?interval=1", "")
	if st := decodeState(t, w); !st.Running {
		t.Fatal("Expected reactor running")
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		st := decodeState(t, do(t, h, http.MethodGet, "/reactor/core/state", ""))
		if st.Tick > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected ticks while running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	w = do(t, h, http.MethodPost, "/reactor/core/stop", "")
	if st := decodeState(t, w); st.Running {
		t.Error("Expected reactor stopped")
	}
}

func TestServer_Snapshots(t *testing.T) {
	srv := newTestServer(t)
	dir := t.TempDir()
	srv.SetSnapshotDir(dir)
	h := srv.routes()
	do(t, h, http.MethodPost, "/reactor/core", smallReactor)

	if w := do(t, h, http.MethodGet, "/reactor/core/snapshot", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before first save, got %d", w.Code)
	}

	do(t, h, http.MethodPost, "/reactor/core/tick?n=25", "")
	w := do(t, h, http.MethodPost, "/reactor/core/snapshot", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var saved map[string]string
	json.Unmarshal(w.Body.Bytes(), &saved)
	if saved["path"] != filepath.Join(dir, "core.snapshot.json") {
		t.Errorf("Unexpected snapshot path %s", saved["path"])
	}

	w = do(t, h, http.MethodGet, "/reactor/core/snapshot", "")
	snap, err := transport.DecodeSnapshotJSON(w.Body.Bytes())
	if err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Tick != 25 {
		t.Errorf("Expected snapshot tick 25, got %d", snap.Tick)
	}

	do(t, h, http.MethodPost, "/reactor/core/tick?n=10", "")
	w = do(t, h, http.MethodPost, "/reactor/core/restore", "")
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 on restore, got %d: %s", w.Code, w.Body.String())
	}
	if st := decodeState(t, w); st.Tick != 25 {
		t.Errorf("Expected restored tick 25, got %d", st.Tick)
	}
}

func TestServer_SnapshotWithoutDir(t *testing.T) {
	h := newTestServer(t).routes()
	do(t, h, http.MethodPost, "/reactor/core", smallReactor)

	if w := do(t, h, http.MethodPost, "/reactor/core/snapshot", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500 without snapshot dir, got %d", w.Code)
	}
}

func TestServer_Notifiers(t *testing.T) {
	h := newTestServer(t).routes()

	w := do(t, h, http.MethodPost, "/notifiers", `{"type": "webhook", "id": "hook", "config": {"url": "http://127.0.0.1:1/x"}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if w := do(t, h, http.MethodPost, "/notifiers", `{"type": "webhook", "id": "hook", "config": {"url": "http://x"}}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for duplicate, got %d", w.Code)
	}
	if w := do(t, h, http.MethodPost, "/notifiers", `{"type": "webhook", "id": "nourl"}`); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without url, got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/notifiers", `{"type": "webhok", "id": "typo"}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "did you mean webhook?") {
		t.Errorf("Expected hint for typo, got %d %q", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodGet, "/notifiers", "")
	var list struct {
		Notifiers []map[string]string `json:"notifiers"`
	}
	json.Unmarshal(w.Body.Bytes(), &list)
	if len(list.Notifiers) != 1 || list.Notifiers[0]["type"] != "webhook" {
		t.Errorf("Unexpected notifier list %+v", list.Notifiers)
	}

	if w := do(t, h, http.MethodGet, "/notifiers/hook/ws", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for ws on webhook notifier, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/notifiers/hook", ""); w.Code != http.StatusOK {
		t.Errorf("Expected 200 on unregister, got %d", w.Code)
	}
	if w := do(t, h, http.MethodDelete, "/notifiers/hook", ""); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 on second unregister, got %d", w.Code)
	}
}

func TestServer_WebhookEventKinds(t *testing.T) {
	h := newTestServer(t).routes()

	w := do(t, h, http.MethodPost, "/notifiers", `{"type": "webhook", "id": "alarm", "config": {"url": "http://127.0.0.1:1/x", "kinds": ["extinction"]}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, http.MethodPost, "/notifiers", `{"type": "webhook", "id": "typo", "config": {"url": "http://x", "kinds": ["extintion"]}}`)
	if w.Code != http.StatusBadRequest || !strings.Contains(w.Body.String(), "did you mean extinction?") {
		t.Errorf("Expected hint for unknown kind, got %d %q", w.Code, w.Body.String())
	}
}

func TestServer_WebSocketReceivesTickEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.routes())
	defer ts.Close()

	post := func(path, body string) {
		resp, err := http.Post(ts.URL+path, "application/json", bytes.NewBufferString(body))
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			t.Fatalf("POST %s: status %d", path, resp.StatusCode)
		}
	}

	post("/notifiers", `{"type": "websocket", "id": "live"}`)
	post("/reactor/core", `{"initial_particles": 5, "seed": 1, "notify": {"enabled": true, "notifiers": ["live"], "every_n_ticks": 5}}`)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/notifiers/live/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	// keep ticking until the subscription is live and an event arrives
	got := make(chan transport.NotificationEvent, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var ev transport.NotificationEvent
			if json.Unmarshal(data, &ev) == nil && ev.Kind == transport.EventTick {
				got <- ev
				return
			}
		}
	}()

	deadline := time.After(3 * time.Second)
	for {
		post("/reactor/core/tick?n=5", "")
		select {
		case ev := <-got:
			if ev.ReactorID != "core" || ev.Tick%5 != 0 {
				t.Errorf("Unexpected event %+v", ev)
			}
			return
		case <-deadline:
			t.Fatal("Expected a tick event over the websocket")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestServer_Pi(t *testing.T) {
	h := newTestServer(t).routes()

	w := do(t, h, http.MethodPost, "/pi/sample?n=5000", "")
	var resp piResponse
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 5000 || resp.Estimate < 2.9 || resp.Estimate > 3.4 {
		t.Errorf("Unexpected estimate %+v", resp)
	}

	do(t, h, http.MethodPost, "/pi/sample", "")
	json.Unmarshal(do(t, h, http.MethodGet, "/pi", "").Body.Bytes(), &resp)
	if resp.Total != 6000 {
		t.Errorf("Expected 6000 samples, got %d", resp.Total)
	}

	do(t, h, http.MethodDelete, "/pi", "")
	json.Unmarshal(do(t, h, http.MethodGet, "/pi", "").Body.Bytes(), &resp)
	if resp.Total != 0 || resp.Estimate != 0 {
		t.Errorf("Expected reset estimator, got %+v", resp)
	}

	if w := do(t, h, http.MethodPost, "/pi/sample?n=-1", ""); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for negative n, got %d", w.Code)
	}
}

func TestLoadServerConfig(t *testing.T) {
	t.Setenv("REACTORSIM_ADDR", ":9999")
	t.Setenv("REACTORSIM_LOG_LEVEL", "debug")
	t.Setenv("REACTORSIM_SNAPSHOT_EVERY_TICKS", "nope")

	cfg, err := loadServerConfig([]string{"-addr", ":7000", "-reactor-id", "core"})
	if err != nil {
		t.Fatalf("loadServerConfig: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Expected flag to win, got %s", cfg.Addr)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("Expected env log level, got %s", cfg.LogLevel)
	}
	if cfg.ReactorID != "core" || cfg.SnapshotDir != "./data" {
		t.Errorf("Unexpected config %+v", cfg)
	}
	if cfg.SnapshotEveryTicks != 1000 {
		t.Errorf("Expected fallback 1000, got %d", cfg.SnapshotEveryTicks)
	}

	if _, err := loadServerConfig([]string{"-bogus"}); err == nil {
		t.Error("Expected error for unknown flag")
	}
}

func TestApplyReactorFile_RestoresSnapshot(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.gcfg")
	if err := os.WriteFile(path, []byte("[reactor]\nparticles = 4\nseed = 9\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	srv := newTestServer(t)
	srv.SetSnapshotDir(dir)

	if err := srv.applyReactorFile(path, "core"); err != nil {
		t.Fatalf("applyReactorFile: %v", err)
	}
	r, ok := srv.manager.GetReactor("core")
	if !ok {
		t.Fatal("Expected reactor core")
	}
	if r.State().Population != 4 {
		t.Errorf("Expected 4 particles, got %d", r.State().Population)
	}

	for range 30 {
		r.Step()
	}
	if err := r.SaveSnapshot(); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	// a restart against the same directory resumes at the saved tick
	srv2 := newTestServer(t)
	srv2.SetSnapshotDir(dir)
	if err := srv2.applyReactorFile(path, "core"); err != nil {
		t.Fatalf("applyReactorFile: %v", err)
	}
	r2, _ := srv2.manager.GetReactor("core")
	if r2.State().Tick != 30 {
		t.Errorf("Expected restored tick 30, got %d", r2.State().Tick)
	}

	if err := srv2.applyReactorFile(filepath.Join(dir, "missing.gcfg"), "x"); err == nil {
		t.Error("Expected error for missing run file")
	}
}

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerTo(&buf, "WARN")

	l.Debugf("hidden")
	l.Infof("hidden")
	l.Warnf("shown %d", 1)
	l.Errorf("shown %d", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("Expected debug/info filtered, got %q", out)
	}
	if !strings.Contains(out, "[WARN] shown 1") || !strings.Contains(out, "[ERROR] shown 2") {
		t.Errorf("Expected warn and error lines, got %q", out)
	}
	if parseLogLevel("nonsense") != LogLevelInfo {
		t.Error("Expected unknown level to default to info")
	}
}
