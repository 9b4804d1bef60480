package service

import (
	"time"

	"schemabench/internal/config"
)

// Terminal registry entries are kept this long for late pollers, then
// garbage-collected.
const progressRetention = 5 * time.Minute

type ServiceContext struct {
	Models       *ModelRegistry
	Progress     *ProgressRegistry
	Store        *RunStore
	Orchestrator *Orchestrator
	Defaults     config.DefaultsConfig
}

func NewServiceContext(cfg *config.Config) *ServiceContext {
	models := NewModelRegistry(cfg.Models)
	progress := NewProgressRegistry(progressRetention)
	store := NewRunStore(cfg.Output.Dir)

	return &ServiceContext{
		Models:       models,
		Progress:     progress,
		Store:        store,
		Orchestrator: NewOrchestrator(models, progress, store),
		Defaults:     cfg.Defaults,
	}
}
