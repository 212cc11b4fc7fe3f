package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"marketbrief/checkpoint"
	"marketbrief/orchestrator"
)

// RegisterInsightRoutes registers insight pipeline endpoints.
func RegisterInsightRoutes(r *gin.Engine, svc *orchestrator.Service, store checkpoint.Store) {
	g := r.Group("/api/insight")
	g.POST("/generate", handleGenerate(svc))
	g.GET("/runs/latest", handleLatestRun(store))
	g.GET("/runs/:id", handleGetRun(store))
}

// GenerateRequest represents the request to generate an insight brief.
type GenerateRequest struct {
	// LookbackHours is the candidate window in hours. Zero means default.
	LookbackHours int `json:"lookback_hours"`
	// CandidateLimit caps the headlines fed to the stages. Zero means default.
	CandidateLimit int `json:"candidate_limit"`
	// ForceNewRun skips resuming a recent unfinished run.
	ForceNewRun bool `json:"force_new_run"`
}

// handleGenerate runs the pipeline synchronously and returns the result.
// Checkpoint state is written throughout, so a client that times out can
// still watch progress via GET /api/insight/runs/latest.
func handleGenerate(svc *orchestrator.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req GenerateRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		result, err := svc.GenerateInsight(c.Request.Context(), orchestrator.GenerateParams{
			Lookback:       time.Duration(req.LookbackHours) * time.Hour,
			CandidateLimit: req.CandidateLimit,
			ForceNewRun:    req.ForceNewRun,
		})
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, orchestrator.ErrNoCandidates) {
				status = http.StatusUnprocessableEntity
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, result)
	}
}

// handleLatestRun returns the checkpoint state of the most recent run,
// finished or not.
func handleLatestRun(store checkpoint.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok, err := store.LatestRun(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no runs recorded"})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

// handleGetRun returns the checkpoint state of one run by ID.
func handleGetRun(store checkpoint.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, err := store.GetRun(c.Request.Context(), c.Param("id"))
		if err != nil {
			if errors.Is(err, checkpoint.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, run)
	}
}
