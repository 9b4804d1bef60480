package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"schemabench/internal/model"

	"github.com/google/uuid"
)

// Orchestrator iterates scenarios × models and assembles the nested result
// map. Everything runs strictly sequentially: models, scenarios, runs and
// attempts. That bounds worst-case API cost and rate-limit exposure and
// keeps progress reporting a linear stream.
type Orchestrator struct {
	models   *ModelRegistry
	progress *ProgressRegistry
	store    RunSaver
}

// RunSaver persists finished run files. *RunStore implements it; tests
// substitute recorders.
type RunSaver interface {
	Save(file *model.TestRunFile) error
}

func NewOrchestrator(models *ModelRegistry, progress *ProgressRegistry, store RunSaver) *Orchestrator {
	return &Orchestrator{models: models, progress: progress, store: store}
}

// RunModelTests runs the requested scenarios against one model. Unknown
// model ids and unsupported scenario numbers abort the whole call. Strict
// scenarios a model cannot support produce no result entry at all; callers
// distinguish "skipped" from "ran and failed" through the progress grid.
func (o *Orchestrator) RunModelTests(ctx context.Context, modelID string, scenarios []int, cfg model.RunConfig, emit ProgressFunc) (map[int]model.ScenarioResult, error) {
	client, spec, err := o.models.Resolve(modelID)
	if err != nil {
		return nil, err
	}

	results := map[int]model.ScenarioResult{}
	for _, n := range scenarios {
		scn, ok := Scenarios[n]
		if !ok {
			return nil, fmt.Errorf("unsupported scenario number %d", n)
		}
		if scn.Strict && !spec.SupportsStrict {
			log.Printf("skipping scenario %d for %s: strict mode unsupported", n, modelID)
			continue
		}

		runner := &scenarioRunner{gen: client, modelID: modelID, spec: scn, cfg: cfg, emit: emit}
		runs := runner.Run(ctx)
		results[n] = model.ScenarioResult{
			Runs:    runs,
			Summary: Summarize(runs, scn.Sequential),
		}
	}
	return results, nil
}

// RunFullTestSuite runs every requested model sequentially and assembles the
// persisted run file. Configuration failures (unknown model or scenario)
// abort before or during the suite; they are never swallowed.
func (o *Orchestrator) RunFullTestSuite(ctx context.Context, runID string, cfg model.RunConfig, emit ProgressFunc) (*model.TestRunFile, error) {
	for _, n := range cfg.Scenarios {
		if _, ok := Scenarios[n]; !ok {
			return nil, fmt.Errorf("unsupported scenario number %d", n)
		}
	}

	file := &model.TestRunFile{
		ID:        runID,
		StartedAt: time.Now(),
		Config:    cfg,
		Results:   map[string]map[int]model.ScenarioResult{},
	}

	for _, modelID := range cfg.Models {
		results, err := o.RunModelTests(ctx, modelID, cfg.Scenarios, cfg, emit)
		if err != nil {
			return nil, err
		}
		file.Results[modelID] = results
	}

	file.DurationMs = time.Since(file.StartedAt).Milliseconds()
	file.Summary = suiteSummary(file.Results)
	return file, nil
}

// StartRun launches a suite in the background and returns its run id. The
// runner produces progress events into a buffered channel; a single consumer
// goroutine folds them into the registry, so event ordering is preserved and
// the runner never blocks on observers.
func (o *Orchestrator) StartRun(cfg model.RunConfig) (string, error) {
	// Configuration failures surface here, before anything runs.
	for _, n := range cfg.Scenarios {
		if _, ok := Scenarios[n]; !ok {
			return "", fmt.Errorf("unsupported scenario number %d", n)
		}
	}
	for _, id := range cfg.Models {
		if _, _, err := o.models.Resolve(id); err != nil {
			return "", err
		}
	}

	runID := uuid.NewString()
	grid := BuildProgressGrid(cfg, o.models)
	if err := o.progress.Begin(runID, grid); err != nil {
		return "", err
	}

	events := make(chan model.ProgressEvent, 256)
	done := make(chan struct{})
	go func() {
		for ev := range events {
			o.progress.Apply(runID, ev)
		}
		close(done)
	}()

	go func() {
		emit := func(ev model.ProgressEvent) { events <- ev }
		file, err := o.RunFullTestSuite(context.Background(), runID, cfg, emit)
		close(events)
		<-done
		o.finishRun(runID, file, err)
	}()

	return runID, nil
}

// finishRun settles the registry entry after the background suite returns.
// Completing the entry and persisting are guarded by the same transition: a
// run cancelled while the suite was executing stays cancelled and its
// results are discarded, never saved.
func (o *Orchestrator) finishRun(runID string, file *model.TestRunFile, err error) {
	if err != nil {
		log.Printf("test run %s failed: %v", runID, err)
		o.progress.Fail(runID, err)
		return
	}
	if !o.progress.Complete(runID, file) {
		log.Printf("test run %s is no longer active, discarding results", runID)
		return
	}
	if o.store != nil {
		if err := o.store.Save(file); err != nil {
			log.Printf("persist test run %s: %v", runID, err)
		}
	}
}

// suiteSummary tallies pass/fail across all model/scenario combinations that
// ran. A combination passes when every one of its runs succeeded.
func suiteSummary(results map[string]map[int]model.ScenarioResult) model.SuiteSummary {
	var s model.SuiteSummary
	for _, scenarios := range results {
		for _, result := range scenarios {
			s.Combinations++
			if allRunsPassed(result.Runs) {
				s.Passed++
			} else {
				s.Failed++
			}
		}
	}
	return s
}

func allRunsPassed(runs []model.RunResult) bool {
	for _, r := range runs {
		if !r.Success {
			return false
		}
	}
	return true
}
