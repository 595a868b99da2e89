// Package server exposes the nesting service over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/piwi3910/SlabNest/internal/logger"
	"github.com/piwi3910/SlabNest/internal/model"
	"github.com/piwi3910/SlabNest/internal/nesting"
	"github.com/piwi3910/SlabNest/internal/store"
)

var log = logger.ForComponent("server")

// Version is reported by the status endpoint.
var Version = "dev"

// Config holds the HTTP settings.
type Config struct {
	Addr           string
	CORSOrigins    []string
	MaxUploadBytes int64         // Multipart body limit; larger uploads get 413
	CompareTimeout time.Duration // Wall time for one compare request; 0 = none
}

// ConfigFromApp derives server settings from the app config.
func ConfigFromApp(app model.AppConfig) Config {
	return Config{
		Addr:           app.ListenAddr,
		CORSOrigins:    app.CORSOrigins,
		MaxUploadBytes: 32 << 20,
		CompareTimeout: time.Duration(app.RunTimeout) * time.Second,
	}
}

// JobHistory is the read side of the job store.
type JobHistory interface {
	Get(id string) (*store.Job, error)
	Recent(limit int) ([]store.Job, error)
	Counts() (map[store.Status]int, error)
}

// Server routes HTTP requests to the nesting pool.
type Server struct {
	cfg     Config
	svc     *nesting.Service
	pool    *nesting.Pool
	jobs    JobHistory
	router  *gin.Engine
	started time.Time
}

// New builds the router. jobs may be nil when job history is disabled.
func New(cfg Config, svc *nesting.Service, pool *nesting.Pool, jobs JobHistory) *Server {
	gin.SetMode(gin.ReleaseMode)
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = 32 << 20
	}

	s := &Server{
		cfg:     cfg,
		svc:     svc,
		pool:    pool,
		jobs:    jobs,
		router:  gin.New(),
		started: time.Now(),
	}
	s.router.MaxMultipartMemory = cfg.MaxUploadBytes
	s.router.Use(gin.Recovery(), requestLogger(), cors(cfg.CORSOrigins))

	api := s.router.Group("/api")
	api.GET("/health", s.handleHealth)
	api.GET("/status", s.handleStatus)
	api.POST("/nest", s.handleNest)
	api.POST("/compare", s.handleCompare)
	api.POST("/export", s.handleExport)
	api.GET("/jobs", s.handleJobs)
	api.GET("/jobs/:id", s.handleJob)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
