// Package api serves the board over HTTP: tasks, stages, checklist items,
// clients, reminder checks and the bot activity log.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/alekspetrov/taskboard/internal/board"
	"github.com/alekspetrov/taskboard/internal/config"
	"github.com/alekspetrov/taskboard/internal/health"
	"github.com/alekspetrov/taskboard/internal/logging"
	"github.com/alekspetrov/taskboard/internal/reminders"
)

// Server hosts the REST API. Server is safe for concurrent use.
type Server struct {
	cfg    *config.APIConfig
	store  board.Store
	status health.StatusSource
	sched  SchedulerStatus
	now    func() time.Time
	echo   *echo.Echo
	log    *slog.Logger

	mu      sync.Mutex
	server  *http.Server
	running bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithStatusSource sets where GET /api/bot/status reads the bot state from.
func WithStatusSource(src health.StatusSource) ServerOption {
	return func(s *Server) {
		s.status = src
	}
}

// SchedulerStatus reports on the reminder scheduler. *reminders.Scheduler
// satisfies it.
type SchedulerStatus interface {
	Status() reminders.Status
}

// WithSchedulerStatus exposes the scheduler at GET /api/reminders/status.
func WithSchedulerStatus(src SchedulerStatus) ServerOption {
	return func(s *Server) {
		s.sched = src
	}
}

// WithClock overrides time.Now for reminder checks and activity timestamps.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// NewServer creates a server for store. It does not listen until Start.
func NewServer(cfg *config.APIConfig, store board.Store, opts ...ServerOption) *Server {
	s := &Server{
		cfg:   cfg,
		store: store,
		now:   time.Now,
		log:   logging.WithComponent("api"),
	}
	for _, opt := range opts {
		opt(s)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.JSONSerializer = sonicSerializer{}
	e.HTTPErrorHandler = s.handleHTTPError
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				attrs = append(attrs, slog.Any("error", v.Error))
			}
			if v.Status >= http.StatusInternalServerError {
				s.log.Error("request failed", attrs...)
			} else {
				s.log.Debug("request", attrs...)
			}
			return nil
		},
	}))
	s.register(e)
	s.echo = e
	return s
}

// Handler exposes the routes, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start listens on the configured address and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.echo,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.log.Info("API listening", slog.String("addr", srv.Addr))

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		return fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown stops the server, waiting up to 10 seconds for in-flight requests.
func (s *Server) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

// handleHTTPError renders echo's own errors (unknown route, wrong method,
// recovered panics) in the {"error": ...} shape.
func (s *Server) handleHTTPError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		msg = fmt.Sprint(he.Message)
	}
	if code >= http.StatusInternalServerError {
		s.log.Error("unhandled error", slog.Any("error", err))
	}
	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}
	_ = c.JSON(code, errorResponse{Error: msg})
}
