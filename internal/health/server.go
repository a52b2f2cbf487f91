// Package health serves the bot's liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/yelena0000/fish-store/core"
	"github.com/yelena0000/fish-store/telemetry"
	"golang.org/x/sync/errgroup"
)

const (
	checkTimeout    = 3 * time.Second
	shutdownTimeout = 5 * time.Second
)

type check struct {
	name    string
	checker core.HealthChecker
}

// Server answers /health while the process is up and /ready when every
// registered dependency check passes.
type Server struct {
	service string
	logger  core.Logger
	http    *http.Server

	mu     sync.RWMutex
	checks []check
}

// StatusResponse is the body of both endpoints.
type StatusResponse struct {
	Status  string            `json:"status"`
	Service string            `json:"service"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// NewServer creates a probe server listening on addr.
func NewServer(addr, service string, logger core.Logger) *Server {
	s := &Server{
		service: service,
		logger:  core.LoggerOrNoOp(logger),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           telemetry.TracingMiddleware(service, "/health")(r),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	return s
}

// AddCheck registers a readiness check.
func (s *Server) AddCheck(name string, checker core.HealthChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks = append(s.checks, check{name: name, checker: checker})
}

// Handler returns the server's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting health server", map[string]interface{}{"address": s.http.Addr})
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.write(w, http.StatusOK, StatusResponse{Status: "healthy", Service: s.service})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checks := append([]check(nil), s.checks...)
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	results := make([]string, len(checks))
	var eg errgroup.Group
	for i, c := range checks {
		eg.Go(func() error {
			if err := c.checker.HealthCheck(ctx); err != nil {
				results[i] = "error: " + err.Error()
				return err
			}
			results[i] = "ok"
			return nil
		})
	}
	failed := eg.Wait()

	resp := StatusResponse{Status: "ready", Service: s.service, Checks: make(map[string]string, len(checks))}
	for i, c := range checks {
		resp.Checks[c.name] = results[i]
	}
	status := http.StatusOK
	if failed != nil {
		resp.Status = "not_ready"
		status = http.StatusServiceUnavailable
		s.logger.Warn("Readiness check failed", map[string]interface{}{"checks": resp.Checks})
	}
	s.write(w, status, resp)
}

func (s *Server) write(w http.ResponseWriter, status int, body StatusResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode health response", map[string]interface{}{"error": err})
	}
}
