// Package server exposes the feed, ingestion triggers, stats, metrics and
// the Telegram webhook over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/citypulse/internal/feed"
	"github.com/ObiAU/citypulse/internal/ingest"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/metrics"
	"github.com/ObiAU/citypulse/internal/models"
	"github.com/ObiAU/citypulse/internal/store"
)

const shutdownTimeout = 5 * time.Second

type FeedQuerier interface {
	Query(ctx context.Context, city string, pulses []string, limit int) ([]feed.Item, error)
}

type Ingester interface {
	IngestAll(ctx context.Context) error
	IngestOne(ctx context.Context, city string) error
	Reports() map[string]ingest.Report
	Running() bool
	LastRun() time.Time
}

type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update tgbotapi.Update)
}

type Deps struct {
	Feed        FeedQuerier
	Content     store.ContentStore
	Collections store.CollectionStore
	Preferences store.PreferenceStore
	// Ingester is optional; without it the ingest routes are not registered.
	Ingester Ingester
	Metrics  *metrics.Metrics
	// Bot is optional; without it /webhook answers 404.
	Bot    UpdateHandler
	Cities models.Cities
}

type Server struct {
	deps   Deps
	engine *gin.Engine
	server *http.Server
	log    logger.Logger

	// background ingestion outlives the request that triggered it
	baseCtx context.Context
}

func New(deps Deps, log logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if len(deps.Cities) == 0 {
		deps.Cities = models.DefaultCities
	}

	s := &Server{
		deps:    deps,
		engine:  gin.New(),
		log:     log,
		baseCtx: context.Background(),
	}
	s.engine.Use(gin.Recovery(), s.requestLogger())
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/health", s.health)
	r.GET("/stats", s.stats)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}
	r.POST("/webhook", s.webhook)

	api := r.Group("/api/v1")
	api.GET("/cities", s.cities)
	api.GET("/pulses", s.pulses)
	api.GET("/feed", s.feed)
	api.GET("/content/:id", s.content)
	if s.deps.Ingester != nil {
		api.POST("/ingest", s.ingestAll)
		api.POST("/ingest/:city", s.ingestCity)
	}

	users := api.Group("/users/:user")
	users.GET("/preferences", s.getPreferences)
	users.PUT("/preferences", s.putPreferences)
	users.GET("/collections", s.listCollections)
	users.POST("/collections", s.createCollection)
	users.POST("/collections/items", s.saveToCollection)
	users.DELETE("/collections/:collection/items/:item", s.removeFromCollection)
}

// Run serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port string) error {
	s.baseCtx = context.WithoutCancel(ctx)
	s.server = &http.Server{
		Addr:              ":" + port,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", logger.String("addr", s.server.Addr))
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug("HTTP request",
			logger.String("method", c.Request.Method),
			logger.String("path", c.FullPath()),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}

// abort maps domain errors to status codes.
func (s *Server) abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnsupportedCity), errors.Is(err, models.ErrUnknownCategory):
		status = http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, store.ErrAlreadyExists):
		status = http.StatusConflict
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("Request failed", logger.String("path", c.FullPath()), logger.Error(err))
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}
