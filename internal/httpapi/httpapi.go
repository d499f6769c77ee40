// Package httpapi serves a small read-mostly HTTP view of the simulator for
// dashboards and scripts. Mutations go through the simulator's command
// queue like protocol commands do.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/sim"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

const (
	defaultCommandTimeout = 2 * time.Second
	shutdownTimeout       = 5 * time.Second
)

// Simulator is the part of the simulator the API exposes.
type Simulator interface {
	SessionID() string
	Telemetry() core.Telemetry
	Mission() core.Mission
	Mode() core.ControlMode
	ERP() (core.GeoPoint, bool)
	Grid() *core.GridSpec
	QueueLen() int
	Submit(cmd sim.Command, done func(error)) error
}

// Dependencies holds all dependencies for the API server
type Dependencies struct {
	Sim        Simulator
	LogManager *logging.SlogManager
	// Clients reports connected protocol clients; optional.
	Clients func() int
	// CommandTimeout bounds how long a mutation waits for the next tick.
	CommandTimeout time.Duration
}

// Server is the HTTP status API.
type Server struct {
	deps   Dependencies
	engine *gin.Engine
}

// New builds the router.
func New(deps Dependencies) *Server {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.CommandTimeout <= 0 {
		deps.CommandTimeout = defaultCommandTimeout
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(deps.LogManager.Logger()))

	s := &Server{deps: deps, engine: engine}
	engine.GET("/healthz", s.health)
	engine.GET("/telemetry", s.telemetry)
	engine.GET("/mission", s.mission)
	engine.POST("/mission/abort", s.abortMission)
	engine.GET("/grid", s.grid)
	engine.GET("/grid/cell", s.gridCell)
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.deps.LogManager.Logger().Info("HTTP API listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start))
	}
}

func errorJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}
