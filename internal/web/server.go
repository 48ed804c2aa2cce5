package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"NewsletterWorkflow/internal/domain"
)

// Submitter starts runs for trigger events without waiting for them.
type Submitter interface {
	Submit(event domain.TriggerEvent) (string, error)
}

// RunReader loads stored runs with their step records.
type RunReader interface {
	Status(ctx context.Context, runID string) (domain.Run, bool, error)
}

// Server is the trigger HTTP API.
type Server struct {
	submitter Submitter
	runs      RunReader
	logger    *slog.Logger
	router    *gin.Engine
}

// NewServer creates the API router.
func NewServer(submitter Submitter, runs RunReader, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	s := &Server{
		submitter: submitter,
		runs:      runs,
		logger:    logger.With("component", "web"),
		router:    router,
	}
	router.Use(gin.Recovery(), s.requestLogger())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/runs", s.handleCreateRun)
		api.GET("/runs/:id", s.handleGetRun)
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is canceled, then drains open requests.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}
