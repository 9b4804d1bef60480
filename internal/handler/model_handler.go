package handler

import (
	"net/http"
	"os"

	"schemabench/internal/service"

	"github.com/gin-gonic/gin"
)

type ModelHandler struct {
	models *service.ModelRegistry
}

func NewModelHandler(models *service.ModelRegistry) *ModelHandler {
	return &ModelHandler{models: models}
}

// ListModels returns every registered model with its capability flags,
// pricing, and whether its API key is currently available.
func (h *ModelHandler) ListModels(c *gin.Context) {
	type modelView struct {
		service.ModelSpec
		Available bool `json:"available"`
	}

	specs := h.models.List()
	out := make([]modelView, 0, len(specs))
	for _, spec := range specs {
		out = append(out, modelView{
			ModelSpec: spec,
			Available: os.Getenv(spec.APIKeyEnv) != "",
		})
	}
	c.JSON(http.StatusOK, gin.H{"models": out})
}

// ListScenarios returns the fixed scenario set.
func (h *ModelHandler) ListScenarios(c *gin.Context) {
	scenarios := make([]service.ScenarioSpec, 0, len(service.Scenarios))
	for n := 1; n <= len(service.Scenarios); n++ {
		scenarios = append(scenarios, service.Scenarios[n])
	}
	c.JSON(http.StatusOK, gin.H{"scenarios": scenarios})
}
