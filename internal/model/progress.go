package model

import "time"

// CellStatus is the display state of one attempt slot in the progress grid.
type CellStatus string

const (
	CellPending CellStatus = "pending"
	CellSkipped CellStatus = "skipped"
	CellRunning CellStatus = "running"
	CellSuccess CellStatus = "success"
	CellFailed  CellStatus = "failed"
)

// EventStatus classifies a progress event from a scenario runner.
type EventStatus string

const (
	EventRunning  EventStatus = "running"
	EventRetrying EventStatus = "retrying"
	EventSuccess  EventStatus = "success"
	EventFailed   EventStatus = "failed"
)

// RunStatus is the lifecycle state of a registry entry.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunComplete  RunStatus = "complete"
	RunCancelled RunStatus = "cancelled"
	RunError     RunStatus = "error"
)

// LogEntry is one request or response record kept in the rolling log.
type LogEntry struct {
	Timestamp time.Time         `json:"timestamp"`
	Model     string            `json:"model"`
	Scenario  int               `json:"scenario"`
	Run       int               `json:"run"`
	Step      int               `json:"step,omitempty"` // 0 for one-shot scenarios
	Attempt   int               `json:"attempt"`
	Kind      string            `json:"kind"` // "request" or "response"
	Text      string            `json:"text"`
	Valid     *bool             `json:"valid,omitempty"` // responses only
	Errors    []ValidationError `json:"errors,omitempty"`
}

// ProgressEvent is emitted by a scenario runner before and after every
// attempt. Step is 0 for one-shot scenarios.
type ProgressEvent struct {
	Model    string      `json:"model"`
	Scenario int         `json:"scenario"`
	Run      int         `json:"run"`     // 1-based
	Step     int         `json:"step"`    // 1-3, or 0
	Attempt  int         `json:"attempt"` // 1-based
	Status   EventStatus `json:"status"`
	// Aborted marks a failed event after which no further attempts follow,
	// even when the retry budget is not exhausted.
	Aborted bool      `json:"aborted,omitempty"`
	Log     *LogEntry `json:"log,omitempty"`
}

// RunProgress is the per-run status grid. One-shot scenarios use Attempts,
// sequential scenarios use Steps; the shapes are mutually exclusive.
type RunProgress struct {
	Final    string         `json:"final,omitempty"` // "", "success", "failed"
	Attempts []CellStatus   `json:"attempts,omitempty"`
	Steps    [][]CellStatus `json:"steps,omitempty"`
}

// ScenarioProgress is the grid for one model/scenario combination.
type ScenarioProgress struct {
	Scenario int           `json:"scenario"`
	Name     string        `json:"name"`
	Skipped  bool          `json:"skipped"` // combination known unsupported in advance
	Runs     []RunProgress `json:"runs"`
}

// DetailedProgress is the full grid: model id -> scenario number -> grid.
type DetailedProgress map[string]map[int]*ScenarioProgress
