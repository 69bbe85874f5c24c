package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lar-simulation/internal/commands"
	eb "lar-simulation/internal/eventBus"
	"lar-simulation/internal/metrics"
	"lar-simulation/internal/sim"
)

const shutdownTimeout = 5 * time.Second

// Runner is what the server needs from the simulation.
type Runner interface {
	commands.Controller
	Stats(ctx context.Context) (sim.Summary, error)
}

// StatsResponse is served on /stats.
type StatsResponse struct {
	Summary  sim.Summary      `json:"summary"`
	Counters metrics.Counters `json:"counters"`
}

// Server exposes the live event stream, node commands, stats and metrics.
type Server struct {
	bus    *eb.EventBus
	runner Runner
	coll   *metrics.Collector
	log    *slog.Logger

	mu      sync.Mutex
	closing bool
	quit    chan struct{}
	conns   sync.WaitGroup
}

func New(bus *eb.EventBus, runner Runner, coll *metrics.Collector, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		bus:    bus,
		runner: runner,
		coll:   coll,
		log:    logger,
		quit:   make(chan struct{}),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.coll.Registry(), promhttp.HandlerOpts{}))

	mux.HandleFunc("/nodeAPI/create", commands.CreateNodeHandler(s.runner))
	mux.HandleFunc("/nodeAPI/remove", commands.RemoveNodeHandler(s.runner))
	mux.HandleFunc("/nodeAPI/sendMessage", commands.SendMessageHandler(s.runner))
	mux.HandleFunc("/nodeAPI/move", commands.MoveNodeHandler(s.runner))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.log.Info("[server] listening", "addr", ln.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		s.Close()
		return err
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	if serveErr := <-errCh; !errors.Is(serveErr, http.ErrServerClosed) && err == nil {
		err = serveErr
	}
	s.log.Info("[server] stopped")
	return err
}

// Close ends every open websocket stream and waits for their handlers.
func (s *Server) Close() {
	s.mu.Lock()
	if !s.closing {
		s.closing = true
		close(s.quit)
	}
	s.mu.Unlock()
	s.conns.Wait()
}

// track registers a websocket stream unless the server is closing.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.conns.Add(1)
	return true
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.Stats(r.Context())
	if err != nil && !errors.Is(err, sim.ErrStopped) {
		http.Error(w, err.Error(), commands.StatusCode(err))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(StatsResponse{Summary: summary, Counters: s.coll.Snapshot()})
}
