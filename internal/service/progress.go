package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"schemabench/internal/model"
)

// ErrRunActive is returned when a run is started while another is in flight.
var ErrRunActive = errors.New("a test run is already in progress")

const progressLogLimit = 100

// RunEntry is the live state of one run as exposed to pollers.
type RunEntry struct {
	ID        string                 `json:"id"`
	Status    model.RunStatus        `json:"status"`
	Message   string                 `json:"message"`
	Progress  model.DetailedProgress `json:"progress"`
	File      *model.TestRunFile     `json:"file,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Logs      []model.LogEntry       `json:"logs"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// ProgressRegistry is the run-keyed table of in-flight run state. It is
// created once per process and injected wherever it is read or written. At
// most one entry is "running" at a time; terminal entries are removed after
// a fixed retention delay.
type ProgressRegistry struct {
	mu      sync.RWMutex
	entries map[string]*RunEntry
	retain  time.Duration
}

func NewProgressRegistry(retain time.Duration) *ProgressRegistry {
	return &ProgressRegistry{
		entries: map[string]*RunEntry{},
		retain:  retain,
	}
}

// Begin registers a new running entry, enforcing the single-run invariant:
// a second start while one is active fails, it does not queue.
func (p *ProgressRegistry) Begin(runID string, grid model.DetailedProgress) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.Status == model.RunRunning {
			return ErrRunActive
		}
	}
	p.entries[runID] = &RunEntry{
		ID:        runID,
		Status:    model.RunRunning,
		Message:   "starting",
		Progress:  grid,
		UpdatedAt: time.Now(),
	}
	return nil
}

// Apply folds one runner event into the grid. Called by the single consumer
// of the active run's event channel; there is never a second writer.
func (p *ProgressRegistry) Apply(runID string, ev model.ProgressEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[runID]
	if !ok || entry.Status != model.RunRunning {
		return
	}
	entry.UpdatedAt = time.Now()
	entry.Message = statusMessage(ev)
	if ev.Log != nil {
		entry.Logs = append(entry.Logs, *ev.Log)
		if len(entry.Logs) > progressLogLimit {
			entry.Logs = entry.Logs[len(entry.Logs)-progressLogLimit:]
		}
	}

	sp, ok := entry.Progress[ev.Model][ev.Scenario]
	if !ok || ev.Run < 1 || ev.Run > len(sp.Runs) {
		return
	}
	rp := &sp.Runs[ev.Run-1]

	var cells []model.CellStatus
	if ev.Step > 0 {
		if ev.Step > len(rp.Steps) {
			return
		}
		cells = rp.Steps[ev.Step-1]
	} else {
		cells = rp.Attempts
	}
	idx := ev.Attempt - 1
	if idx < 0 || idx >= len(cells) {
		return
	}

	switch ev.Status {
	case model.EventRunning, model.EventRetrying:
		cells[idx] = model.CellRunning
		if ev.Status == model.EventRetrying && idx > 0 {
			cells[idx-1] = model.CellFailed
		}
	case model.EventSuccess:
		cells[idx] = model.CellSuccess
		for j := idx + 1; j < len(cells); j++ {
			cells[j] = model.CellSkipped
		}
		if ev.Step == 0 || ev.Step == 3 {
			rp.Final = "success"
		}
	case model.EventFailed:
		cells[idx] = model.CellFailed
		if ev.Aborted || idx == len(cells)-1 {
			// Retry budget exhausted or the run was aborted early: the run
			// is lost, its remaining attempt slots and, for sequential runs,
			// every later step will never be attempted.
			for j := idx + 1; j < len(cells); j++ {
				cells[j] = model.CellSkipped
			}
			rp.Final = "failed"
			for s := ev.Step; s >= 1 && s < len(rp.Steps); s++ {
				for j := range rp.Steps[s] {
					rp.Steps[s][j] = model.CellSkipped
				}
			}
		}
	}
}

// Complete marks the entry terminal with its finished file. It reports
// whether the entry was still running; a false return means the run was
// cancelled (or never existed) and its results must be discarded.
func (p *ProgressRegistry) Complete(runID string, file *model.TestRunFile) bool {
	return p.finish(runID, model.RunComplete, file, "")
}

// Fail marks the entry terminal with an error.
func (p *ProgressRegistry) Fail(runID string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	p.finish(runID, model.RunError, nil, msg)
}

// Cancel marks the entry terminal as cancelled by the caller.
func (p *ProgressRegistry) Cancel(runID string) {
	p.finish(runID, model.RunCancelled, nil, "")
}

// finish transitions a running entry to a terminal status. Only running
// entries transition, so the first terminal status wins.
func (p *ProgressRegistry) finish(runID string, status model.RunStatus, file *model.TestRunFile, errMsg string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	entry, ok := p.entries[runID]
	if !ok || entry.Status != model.RunRunning {
		return false
	}
	entry.Status = status
	entry.File = file
	entry.Error = errMsg
	entry.Message = string(status)
	entry.UpdatedAt = time.Now()

	time.AfterFunc(p.retain, func() {
		p.mu.Lock()
		delete(p.entries, runID)
		p.mu.Unlock()
	})
	return true
}

// Snapshot returns a copy of one entry for external observers.
func (p *ProgressRegistry) Snapshot(runID string) (RunEntry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	entry, ok := p.entries[runID]
	if !ok {
		return RunEntry{}, false
	}
	out := *entry
	out.Logs = append([]model.LogEntry(nil), entry.Logs...)
	out.Progress = copyProgress(entry.Progress)
	return out, true
}

func copyProgress(in model.DetailedProgress) model.DetailedProgress {
	out := make(model.DetailedProgress, len(in))
	for m, scenarios := range in {
		out[m] = make(map[int]*model.ScenarioProgress, len(scenarios))
		for n, sp := range scenarios {
			cp := *sp
			cp.Runs = make([]model.RunProgress, len(sp.Runs))
			for i, rp := range sp.Runs {
				cp.Runs[i] = model.RunProgress{
					Final:    rp.Final,
					Attempts: append([]model.CellStatus(nil), rp.Attempts...),
				}
				if rp.Steps != nil {
					cp.Runs[i].Steps = make([][]model.CellStatus, len(rp.Steps))
					for s, cells := range rp.Steps {
						cp.Runs[i].Steps[s] = append([]model.CellStatus(nil), cells...)
					}
				}
			}
			out[m][n] = &cp
		}
	}
	return out
}

// BuildProgressGrid pre-builds the status grid for a run: every attempt slot
// pending, except combinations known in advance to be unsupported, which are
// born skipped.
func BuildProgressGrid(cfg model.RunConfig, registry *ModelRegistry) model.DetailedProgress {
	grid := model.DetailedProgress{}
	attempts := cfg.MaxRetries + 1

	for _, modelID := range cfg.Models {
		spec, known := registry.Spec(modelID)
		grid[modelID] = map[int]*model.ScenarioProgress{}
		for _, n := range cfg.Scenarios {
			scn, ok := Scenarios[n]
			if !ok {
				continue
			}
			skipped := known && scn.Strict && !spec.SupportsStrict
			sp := &model.ScenarioProgress{
				Scenario: n,
				Name:     scn.Name,
				Skipped:  skipped,
				Runs:     make([]model.RunProgress, cfg.RunsPerScenario),
			}
			initial := model.CellPending
			if skipped {
				initial = model.CellSkipped
			}
			for i := range sp.Runs {
				if scn.Sequential {
					steps := make([][]model.CellStatus, 3)
					for s := range steps {
						steps[s] = filledCells(attempts, initial)
					}
					sp.Runs[i] = model.RunProgress{Steps: steps}
				} else {
					sp.Runs[i] = model.RunProgress{Attempts: filledCells(attempts, initial)}
				}
			}
			grid[modelID][n] = sp
		}
	}
	return grid
}

func filledCells(n int, status model.CellStatus) []model.CellStatus {
	cells := make([]model.CellStatus, n)
	for i := range cells {
		cells[i] = status
	}
	return cells
}

func statusMessage(ev model.ProgressEvent) string {
	where := fmt.Sprintf("%s · scenario %d · run %d", ev.Model, ev.Scenario, ev.Run)
	if ev.Step > 0 {
		where = fmt.Sprintf("%s · step %d", where, ev.Step)
	}
	switch ev.Status {
	case model.EventRetrying:
		return fmt.Sprintf("%s · retrying (attempt %d)", where, ev.Attempt)
	case model.EventSuccess:
		return fmt.Sprintf("%s · attempt %d succeeded", where, ev.Attempt)
	case model.EventFailed:
		return fmt.Sprintf("%s · attempt %d failed", where, ev.Attempt)
	default:
		return fmt.Sprintf("%s · attempt %d", where, ev.Attempt)
	}
}
