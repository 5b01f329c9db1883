package main

import (
	"net/http"

	"github.com/daniacca/reactorsim/internal/montecarlo"
	"github.com/daniacca/reactorsim/internal/transport"
)

// transportLoggerAdapter adapts the server's Logger to transport.Logger
type transportLoggerAdapter struct {
	logger *Logger
}

func (a *transportLoggerAdapter) Debugf(format string, v ...any) { a.logger.Debugf(format, v...) }
func (a *transportLoggerAdapter) Infof(format string, v ...any)  { a.logger.Infof(format, v...) }
func (a *transportLoggerAdapter) Warnf(format string, v ...any)  { a.logger.Warnf(format, v...) }
func (a *transportLoggerAdapter) Errorf(format string, v ...any) { a.logger.Errorf(format, v...) }

// Server is the HTTP front end over a reactor manager, the shared
// notification manager and a π estimator.
type Server struct {
	manager            *transport.ReactorManager
	notifierMgr        *transport.NotificationManager
	pi                 *montecarlo.Estimator
	snapshotDir        string
	snapshotEveryTicks int
	logger             *Logger
}

// NewServer creates a new server instance
func NewServer(logger *Logger) *Server {
	tl := &transportLoggerAdapter{logger: logger}
	return &Server{
		manager:     transport.NewReactorManagerWithLogger(tl),
		notifierMgr: transport.NewNotificationManagerWithLogger(tl),
		pi:          montecarlo.NewSeededEstimator(0),
		logger:      logger,
	}
}

// SetSnapshotDir sets the snapshot directory for every reactor
func (s *Server) SetSnapshotDir(dir string) {
	s.snapshotDir = dir
}

// SetSnapshotEveryTicks sets the periodic snapshot cadence for every reactor
func (s *Server) SetSnapshotEveryTicks(ticks int) {
	s.snapshotEveryTicks = ticks
}

// wire attaches the shared notification manager and snapshot settings.
func (s *Server) wire(r *transport.Reactor) {
	r.SetNotificationManager(s.notifierMgr)
	if s.snapshotDir != "" {
		r.SetSnapshotDir(s.snapshotDir)
	}
	if s.snapshotEveryTicks >= 0 {
		r.SetSnapshotEveryNTicks(s.snapshotEveryTicks)
	}
}

// createOrReconfigure creates the reactor, or rebuilds it when id is taken.
func (s *Server) createOrReconfigure(id transport.ReactorID, cfg transport.ReactorConfig) (*transport.Reactor, bool, error) {
	if r, exists := s.manager.GetReactor(id); exists {
		if err := r.Reconfigure(cfg); err != nil {
			return nil, false, err
		}
		s.wire(r)
		return r, false, nil
	}

	r, err := s.manager.CreateReactor(id, cfg)
	if err != nil {
		return nil, false, err
	}
	s.wire(r)
	return r, true, nil
}

// routes registers every endpoint on a fresh mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/reactors", s.handleListReactors)
	mux.HandleFunc("/reactor/", s.handleReactorRoutes)
	mux.HandleFunc("/notifiers", s.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", s.handleNotifiersRoutes)
	mux.HandleFunc("/pi", s.handlePiRoutes)
	mux.HandleFunc("/pi/", s.handlePiRoutes)
	return mux
}

// Close stops every reactor and drains pending notifications.
func (s *Server) Close() error {
	s.manager.StopAll()
	return s.notifierMgr.Close()
}
