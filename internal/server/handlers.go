package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/ObiAU/citypulse/internal/feed"
	"github.com/ObiAU/citypulse/internal/logger"
	"github.com/ObiAU/citypulse/internal/models"
)

const maxFeedLimit = 100

type pulseInfo struct {
	ID            models.Category    `json:"id"`
	Name          string             `json:"name"`
	ContentType   models.ContentType `json:"contentType"`
	DefaultSource string             `json:"defaultSource"`
}

type preferencesRequest struct {
	City   string   `json:"city" binding:"required"`
	Pulses []string `json:"pulses"`
}

type collectionRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

type saveItemRequest struct {
	ItemID     string `json:"itemId" binding:"required"`
	Collection string `json:"collection"`
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) stats(c *gin.Context) {
	st, err := s.deps.Content.Stats(c.Request.Context())
	if err != nil {
		s.abort(c, err)
		return
	}

	resp := gin.H{"content": st}
	if s.deps.Ingester != nil {
		resp["running"] = s.deps.Ingester.Running()
		resp["reports"] = s.deps.Ingester.Reports()
		if last := s.deps.Ingester.LastRun(); !last.IsZero() {
			resp["lastRun"] = last.Format(time.RFC3339)
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) cities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"cities": s.deps.Cities})
}

func (s *Server) pulses(c *gin.Context) {
	out := make([]pulseInfo, 0, len(models.AllCategories()))
	for _, cat := range models.AllCategories() {
		out = append(out, pulseInfo{
			ID:            cat,
			Name:          cat.DisplayName(),
			ContentType:   cat.ContentType(),
			DefaultSource: cat.DefaultSource(),
		})
	}
	c.JSON(http.StatusOK, gin.H{"pulses": out})
}

func (s *Server) feed(c *gin.Context) {
	city := c.Query("city")
	if city == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "city is required"})
		return
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = min(n, maxFeedLimit)
	}

	items, err := s.deps.Feed.Query(c.Request.Context(), city, c.QueryArray("pulses"), limit)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"city": city, "count": len(items), "items": items})
}

func (s *Server) content(c *gin.Context) {
	rec, err := s.deps.Content.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) ingestAll(c *gin.Context) {
	go func() {
		if err := s.deps.Ingester.IngestAll(s.baseCtx); err != nil {
			s.log.Error("Triggered ingestion failed", logger.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "cities": s.deps.Cities})
}

func (s *Server) ingestCity(c *gin.Context) {
	city, err := s.deps.Cities.Resolve(c.Param("city"))
	if err != nil {
		s.abort(c, err)
		return
	}

	go func() {
		if err := s.deps.Ingester.IngestOne(s.baseCtx, city); err != nil {
			s.log.Error("Triggered city ingestion failed", logger.String("city", city), logger.Error(err))
		}
	}()
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "city": city})
}

func (s *Server) webhook(c *gin.Context) {
	if s.deps.Bot == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "telegram bot not configured"})
		return
	}

	var update tgbotapi.Update
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid update"})
		return
	}
	s.deps.Bot.HandleUpdate(c.Request.Context(), update)
	c.Status(http.StatusOK)
}

func (s *Server) getPreferences(c *gin.Context) {
	prefs, err := s.deps.Preferences.GetPreferences(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) putPreferences(c *gin.Context) {
	var req preferencesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	city, err := s.deps.Cities.Resolve(req.City)
	if err != nil {
		s.abort(c, err)
		return
	}

	prefs, err := s.deps.Preferences.SavePreferences(c.Request.Context(), c.Param("user"), city, feed.ParsePulses(req.Pulses))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, prefs)
}

func (s *Server) listCollections(c *gin.Context) {
	collections, err := s.deps.Collections.ListCollections(c.Request.Context(), c.Param("user"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"collections": collections})
}

func (s *Server) createCollection(c *gin.Context) {
	var req collectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	col, err := s.deps.Collections.CreateCollection(c.Request.Context(), c.Param("user"), strings.TrimSpace(req.Name), req.Description)
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, col)
}

func (s *Server) saveToCollection(c *gin.Context) {
	var req saveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if _, err := s.deps.Content.Get(ctx, req.ItemID); err != nil {
		s.abort(c, err)
		return
	}

	col, err := s.deps.Collections.SaveToCollection(ctx, c.Param("user"), req.ItemID, strings.TrimSpace(req.Collection))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}

func (s *Server) removeFromCollection(c *gin.Context) {
	col, err := s.deps.Collections.RemoveFromCollection(c.Request.Context(), c.Param("user"), c.Param("collection"), c.Param("item"))
	if err != nil {
		s.abort(c, err)
		return
	}
	c.JSON(http.StatusOK, col)
}
