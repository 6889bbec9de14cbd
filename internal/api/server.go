// Package api is the agent's local HTTP surface: job submission, progress,
// artifact downloads and ad-hoc timeline export.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/douglasnoga/editor-ia/internal/artifacts"
	"github.com/douglasnoga/editor-ia/internal/jobs"
	"github.com/douglasnoga/editor-ia/internal/media"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

type ServerConfig struct {
	Port          int
	Jobs          *jobs.Service
	Runner        *jobs.Runner
	Repository    ConfigStore
	Artifacts     *artifacts.Server
	Doctor        *media.CachedDoctor
	SnapThreshold time.Duration
	Logger        *slog.Logger
	StartTime     time.Time
	// KeepAlive is the SSE heartbeat interval; zero means 15s.
	KeepAlive time.Duration
}

// ConfigStore reads agent settings such as the API auth token.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Downloads and event streams are long-lived.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
