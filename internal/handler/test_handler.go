package handler

import (
	"errors"
	"net/http"

	"schemabench/internal/model"
	"schemabench/internal/service"

	"github.com/gin-gonic/gin"
)

type TestHandler struct {
	orchestrator *service.Orchestrator
	progress     *service.ProgressRegistry
	store        *service.RunStore
	defaults     model.RunConfig
}

func NewTestHandler(svcCtx *service.ServiceContext) *TestHandler {
	return &TestHandler{
		orchestrator: svcCtx.Orchestrator,
		progress:     svcCtx.Progress,
		store:        svcCtx.Store,
		defaults: model.RunConfig{
			RunsPerScenario: svcCtx.Defaults.RunsPerScenario,
			MaxRetries:      svcCtx.Defaults.MaxRetries,
			Temperature:     svcCtx.Defaults.Temperature,
		},
	}
}

// startRunRequest is the start-run payload. Numeric fields are pointers so
// an explicit zero is distinguishable from an omitted field.
type startRunRequest struct {
	Models          []string `json:"models"`
	Scenarios       []int    `json:"scenarios"`
	RunsPerScenario *int     `json:"runs_per_scenario"`
	Temperature     *float64 `json:"temperature"`
	MaxRetries      *int     `json:"max_retries"`
}

// buildRunConfig fills omitted request fields from the configured defaults.
// Explicit zeros are honored: max_retries 0 means single-attempt runs.
func buildRunConfig(req startRunRequest, defaults model.RunConfig) model.RunConfig {
	cfg := model.RunConfig{
		Models:          req.Models,
		Scenarios:       req.Scenarios,
		RunsPerScenario: defaults.RunsPerScenario,
		MaxRetries:      defaults.MaxRetries,
		Temperature:     defaults.Temperature,
	}
	if len(cfg.Scenarios) == 0 {
		cfg.Scenarios = []int{1, 2, 3, 4}
	}
	if req.RunsPerScenario != nil {
		cfg.RunsPerScenario = *req.RunsPerScenario
	}
	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	return cfg
}

// StartRun launches a test suite in the background and returns its run id.
// While a run is active, further start requests get 409.
func (h *TestHandler) StartRun(c *gin.Context) {
	var req startRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Models) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at least one model is required"})
		return
	}

	cfg := buildRunConfig(req, h.defaults)
	if cfg.RunsPerScenario < 0 || cfg.MaxRetries < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "runs_per_scenario and max_retries must not be negative"})
		return
	}

	runID, err := h.orchestrator.StartRun(cfg)
	if err != nil {
		if errors.Is(err, service.ErrRunActive) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		// Unknown model, missing key, bad scenario number.
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run_id": runID})
}

// GetProgress returns the live state of a run: status grid, latest message
// and the rolling request/response log.
func (h *TestHandler) GetProgress(c *gin.Context) {
	entry, ok := h.progress.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	c.JSON(http.StatusOK, entry)
}

// CancelRun marks an in-flight run cancelled. The suite keeps executing in
// the background but its remaining events are discarded and nothing is
// persisted under this entry.
func (h *TestHandler) CancelRun(c *gin.Context) {
	id := c.Param("id")
	entry, ok := h.progress.Snapshot(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
		return
	}
	if entry.Status != model.RunRunning {
		c.JSON(http.StatusConflict, gin.H{"error": "run is not in progress"})
		return
	}
	h.progress.Cancel(id)
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// ListRuns returns stored run records without their payloads.
func (h *TestHandler) ListRuns(c *gin.Context) {
	records, err := h.store.List()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": records})
}

// GetRun returns one persisted run file in full.
func (h *TestHandler) GetRun(c *gin.Context) {
	file, err := h.store.Load(c.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, file)
}

// DeleteRun removes one persisted run.
func (h *TestHandler) DeleteRun(c *gin.Context) {
	if err := h.store.Delete(c.Param("id")); err != nil {
		if errors.Is(err, service.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}
