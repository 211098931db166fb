// Package handlers exposes the control API: run status, start/stop, and
// the persisted history and counters.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/contentflow/uploadflow/internal/models"
	"github.com/contentflow/uploadflow/internal/network"
	"github.com/contentflow/uploadflow/internal/state"
	"github.com/contentflow/uploadflow/pkg/logger"
)

// Runner is the orchestrator surface the API needs.
type Runner interface {
	Run(ctx context.Context) error
	Running() bool
	Stop()
}

type Handler struct {
	runner  Runner
	store   *state.Store
	monitor *network.Monitor
	auth    *AuthMiddleware
	log     logger.Logger
}

func NewHandler(runner Runner, store *state.Store, monitor *network.Monitor, auth *AuthMiddleware, log logger.Logger) *Handler {
	return &Handler{
		runner:  runner,
		store:   store,
		monitor: monitor,
		auth:    auth,
		log:     log,
	}
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1", h.auth.Authenticate())
	{
		api.GET("/status", h.Status)
		api.POST("/run/start", h.StartRun)
		api.POST("/run/stop", h.StopRun)
		api.GET("/history", h.History)
		api.GET("/progress", h.FolderProgress)
		api.GET("/stats/daily", h.DailyStats)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Status(c *gin.Context) {
	st, err := h.store.LoadState()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"running":        h.runner.Running(),
		"network":        h.monitor.Status(),
		"current_upload": st.CurrentUpload,
		"queue":          st.Queue,
		"profile":        st.Profile,
		"daily_stats":    st.DailyStats,
	})
}

// StartRun launches a run in the background. The run outlives the request
// context; Stop is the only way to end it early.
func (h *Handler) StartRun(c *gin.Context) {
	if h.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": models.ErrAlreadyRunning.Error()})
		return
	}

	go func() {
		if err := h.runner.Run(context.Background()); err != nil &&
			!errors.Is(err, context.Canceled) && !errors.Is(err, models.ErrAlreadyRunning) {
			h.log.Error("Run finished with error",
				logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{"status": "started"})
}

func (h *Handler) StopRun(c *gin.Context) {
	if !h.runner.Running() {
		c.JSON(http.StatusConflict, gin.H{"error": "no active run"})
		return
	}
	h.runner.Stop()
	c.JSON(http.StatusAccepted, gin.H{"status": "stopping"})
}

func (h *Handler) History(c *gin.Context) {
	history, err := h.store.UploadHistory()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"total":   len(history),
		"history": history,
	})
}

func (h *Handler) FolderProgress(c *gin.Context) {
	progress, err := h.store.FolderProgress()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"folders": progress})
}

func (h *Handler) DailyStats(c *gin.Context) {
	stats, err := h.store.DailyStats()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}
