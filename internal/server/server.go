// Package server exposes the orchestrator over a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mikequentel/socpost/internal/history"
	"github.com/mikequentel/socpost/internal/logger"
	"github.com/mikequentel/socpost/internal/metrics"
	"github.com/mikequentel/socpost/internal/publish"
	"github.com/mikequentel/socpost/internal/staging"
)

const (
	serviceName     = "socpost"
	shutdownTimeout = 10 * time.Second
	staleUploadAge  = time.Hour
)

// Publisher is the orchestrator surface the API needs.
type Publisher interface {
	Publish(ctx context.Context, p publish.Platform, req publish.PublishRequest) publish.PublishResult
	CheckStatus(ctx context.Context, p publish.Platform) publish.Status
	CheckAll(ctx context.Context) []publish.Status
}

// HistoryReader lists recorded publish attempts.
type HistoryReader interface {
	Recent(ctx context.Context, q history.Query) ([]history.Entry, error)
}

// Config holds listener settings.
type Config struct {
	Bind           string
	MaxUploadBytes int64
}

// Server routes API requests to a Publisher.
type Server struct {
	cfg     Config
	pub     Publisher
	uploads *staging.Dir
	history HistoryReader
	metrics *metrics.Recorder
	log     logger.Logger
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithHistory enables GET /api/history.
func WithHistory(h HistoryReader) Option {
	return func(s *Server) { s.history = h }
}

// WithMetrics enables GET /metrics and request counting.
func WithMetrics(m *metrics.Recorder) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the router.
func New(cfg Config, pub Publisher, uploads *staging.Dir, opts ...Option) *Server {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 100 << 20
	}
	s := &Server{cfg: cfg, pub: pub, uploads: uploads, log: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(s.log))
	if s.metrics != nil {
		router.Use(s.metrics.GinMiddleware())
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	router.MaxMultipartMemory = 8 << 20

	api := router.Group("/api")
	api.POST("/post", s.handlePost)
	api.GET("/status", s.handleStatus)
	api.GET("/health", s.handleHealth)
	api.GET("/history", s.handleHistory)
	return router
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	if n := s.uploads.CleanStale(staleUploadAge); n > 0 {
		s.log.Info("cleared stale uploads on start", "count", n)
	}
	srv := &http.Server{
		Addr:              s.cfg.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "address", fmt.Sprintf("http://%s", s.cfg.Bind))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: listen: %w", err)
	case <-ctx.Done():
	}
	s.log.Debug("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.log.Info("server stopped")
	return nil
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration", time.Since(start).String(),
		)
	}
}
