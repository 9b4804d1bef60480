package model

import "time"

// ValidationError is one schema or parse problem found in a model response.
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// AttemptResult records a single model call. It is immutable once appended
// to an attempt list.
type AttemptResult struct {
	Attempt      int                    `json:"attempt"` // 1-based
	Timestamp    time.Time              `json:"timestamp"`
	Success      bool                   `json:"success"`
	DurationMs   int64                  `json:"duration_ms"`
	InputTokens  *int                   `json:"input_tokens,omitempty"`  // nil when the call failed before usage was known
	OutputTokens *int                   `json:"output_tokens,omitempty"`
	Prompt       string                 `json:"prompt"`
	RawResponse  string                 `json:"raw_response"`
	Parsed       map[string]interface{} `json:"parsed,omitempty"` // set only on success
	Errors       []ValidationError      `json:"errors,omitempty"` // non-empty iff success is false
	ErrorMessage string                 `json:"error_message,omitempty"`
}

// Tokens returns input+output tokens, treating missing counts as zero.
func (a AttemptResult) Tokens() int {
	total := 0
	if a.InputTokens != nil {
		total += *a.InputTokens
	}
	if a.OutputTokens != nil {
		total += *a.OutputTokens
	}
	return total
}

// StepResult is one stage of a sequential scenario's 3-step pipeline.
type StepResult struct {
	Step     int             `json:"step"` // 1-3
	Name     string          `json:"name"`
	Success  bool            `json:"success"`
	Attempts []AttemptResult `json:"attempts"`
}

// RunResult is one complete attempt to satisfy a scenario. Exactly one of
// Attempts (one-shot scenarios) or Steps (sequential scenarios) is populated;
// the runner constructors guarantee the exclusivity.
type RunResult struct {
	Run           int                    `json:"run"`
	Success       bool                   `json:"success"`
	Attempts      []AttemptResult        `json:"attempts,omitempty"`
	Steps         []StepResult           `json:"steps,omitempty"`
	DurationMs    int64                  `json:"duration_ms"`
	FinalResponse map[string]interface{} `json:"final_response,omitempty"`
}

// ScenarioSummary is derived statistics over a set of runs. It is purely a
// function of the run list and can be recomputed at any time.
type ScenarioSummary struct {
	TotalRuns                 int     `json:"total_runs"`
	SuccessRate               float64 `json:"success_rate"`
	FirstAttemptSuccessRate   float64 `json:"first_attempt_success_rate"`
	SuccessAfterRetry1        float64 `json:"success_after_retry_1"`
	SuccessAfterRetry2        float64 `json:"success_after_retry_2"`
	SuccessAfterRetry3        float64 `json:"success_after_retry_3"`
	AverageDurationMs         float64 `json:"average_duration_ms"`
	AverageAttempts           float64 `json:"average_attempts"`
	AverageAttemptsPerSuccess float64 `json:"average_attempts_per_success"`
	AverageTokensPerSuccess   float64 `json:"average_tokens_per_success"`
	TotalTokensUsed           int     `json:"total_tokens_used"`
}

// ScenarioResult pairs the raw runs with their summary. The summary is a
// cache: it must always be re-derivable from the runs.
type ScenarioResult struct {
	Runs    []RunResult     `json:"runs"`
	Summary ScenarioSummary `json:"summary"`
}

// RunConfig is the originating configuration of a test run.
type RunConfig struct {
	Models          []string `json:"models"`
	Scenarios       []int    `json:"scenarios"`
	RunsPerScenario int      `json:"runs_per_scenario"`
	Temperature     float64  `json:"temperature"`
	MaxRetries      int      `json:"max_retries"`
}

// SuiteSummary is the top-level pass/fail tally across all model/scenario
// combinations that actually ran. A combination passes when every one of its
// runs succeeded.
type SuiteSummary struct {
	Combinations int `json:"combinations"`
	Passed       int `json:"passed"`
	Failed       int `json:"failed"`
}

// TestRunFile is the top-level persisted record of one suite execution.
// Results are keyed model id -> scenario number.
type TestRunFile struct {
	ID         string                            `json:"id"`
	StartedAt  time.Time                         `json:"started_at"`
	DurationMs int64                             `json:"duration_ms"`
	Config     RunConfig                         `json:"config"`
	Summary    SuiteSummary                      `json:"summary"`
	Results    map[string]map[int]ScenarioResult `json:"results"`
}
