package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"forms2xml/internal/api"
	"forms2xml/internal/config"
	"forms2xml/internal/logging"
)

const (
	defaultConversionListLimit = 50
	maxConversionListLimit     = 1000
)

type apiServer struct {
	bind     string
	timeouts config.Server
	logger   *slog.Logger
	daemon   *Daemon
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, gateway http.Handler, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Server.Bind),
		timeouts: cfg.Server,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
	}

	token := cfg.Server.APIToken
	mux := http.NewServeMux()
	mux.Handle("/", gateway)
	mux.HandleFunc("/api/status", srv.authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/conversions", srv.authMiddleware(token, srv.handleConversions))
	srv.handler = mux
	return srv
}

func seconds(value int) time.Duration {
	return time.Duration(value) * time.Second
}

// listen binds the configured address without serving yet. Each call
// prepares a fresh http.Server since a shut down server cannot be reused.
func (s *apiServer) listen() error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: seconds(s.timeouts.ReadHeaderTimeout),
		ReadTimeout:       seconds(s.timeouts.ReadTimeout),
		WriteTimeout:      seconds(s.timeouts.WriteTimeout),
		IdleTimeout:       seconds(s.timeouts.IdleTimeout),
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()
	s.logger.Info("gateway listening", logging.String("address", listener.Addr().String()))
	return nil
}

// serve blocks until the server is shut down.
func (s *apiServer) serve() error {
	s.mu.Lock()
	listener, server := s.listener, s.server
	s.mu.Unlock()
	if listener == nil || server == nil {
		return errors.New("api server not listening")
	}
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

func (s *apiServer) shutdown(timeout time.Duration) error {
	s.mu.Lock()
	listener, server := s.listener, s.server
	s.mu.Unlock()
	if server == nil {
		return nil
	}
	if listener != nil {
		defer listener.Close()
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("graceful shutdown incomplete", logging.Error(err))
		return server.Close()
	}
	return nil
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.GatewayStatus{
		Running:      status.Running,
		PID:          status.PID,
		Listen:       status.Listen,
		StartedAt:    api.FormatTime(status.StartedAt),
		StagingDir:   status.StagingDir,
		StagedFiles:  status.StagedFiles,
		LockFilePath: status.LockFilePath,
		JournalPath:  status.JournalPath,
		Outcomes:     status.Outcomes,
		Dependencies: api.FromDependencies(status.Dependencies),
	})
}

func (s *apiServer) handleConversions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	limit := defaultConversionListLimit
	if value := strings.TrimSpace(r.URL.Query().Get("limit")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(parsed, maxConversionListLimit)
	}

	records, err := s.daemon.Conversions(r.Context(), limit)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ConversionListResponse{Items: api.FromRecords(records)})
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
