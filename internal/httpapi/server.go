package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"docqa/internal/logger"
)

// Config configures the HTTP server.
type Config struct {
	Addr            string
	MaxUploadBytes  int64
	ShutdownTimeout time.Duration
	CORSEnabled     bool
}

// NewRouter builds the gin engine with every route registered. A nil
// gatherer disables /metrics.
func NewRouter(backend Backend, gatherer prometheus.Gatherer, log logger.Logger, cfg Config) *gin.Engine {
	if log == nil {
		log = logger.Discard()
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(log))
	if cfg.CORSEnabled {
		router.Use(CORSMiddleware())
	}

	h := &handlers{backend: backend, maxUploadBytes: cfg.MaxUploadBytes}
	router.GET("/health", h.health)
	router.POST("/documents/upload", h.upload)
	router.GET("/documents", h.listDocuments)
	router.DELETE("/documents/:name", h.deleteDocument)
	router.POST("/query", h.query)
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return router
}

// Server serves the API until its context is cancelled.
type Server struct {
	cfg    Config
	router *gin.Engine
	log    logger.Logger
}

func NewServer(cfg Config, router *gin.Engine, log logger.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{cfg: cfg, router: router, log: log}
}

// Run listens on cfg.Addr and shuts down gracefully once ctx is done.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("starting HTTP server", "address", fmt.Sprintf("http://%s", s.cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	s.log.Debug("received shutdown signal, initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("server shutdown completed")
	return nil
}
