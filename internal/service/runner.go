package service

import (
	"context"
	"time"

	"schemabench/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ProgressFunc receives every progress event a runner emits. Callbacks run
// synchronously in the runner's control flow and must not block or panic.
type ProgressFunc func(model.ProgressEvent)

// ScenarioSpec identifies one of the four prompting strategies under test.
type ScenarioSpec struct {
	Number     int    `json:"number"`
	Name       string `json:"name"`
	Sequential bool   `json:"sequential"`
	Strict     bool   `json:"strict"`
}

// Scenarios is the fixed scenario set: shape (one-shot vs. 3-step sequential)
// crossed with strictness (freeform validated post-hoc vs. provider-enforced).
var Scenarios = map[int]ScenarioSpec{
	1: {Number: 1, Name: "One-shot"},
	2: {Number: 2, Name: "One-shot (strict)", Strict: true},
	3: {Number: 3, Name: "Sequential", Sequential: true},
	4: {Number: 4, Name: "Sequential (strict)", Sequential: true, Strict: true},
}

var stepNames = [3]string{"Customer Profile", "Issue Classification", "Resolution Summary"}

// scenarioRunner drives one model through one scenario's runs.
type scenarioRunner struct {
	gen     generator
	modelID string
	spec    ScenarioSpec
	cfg     model.RunConfig
	emit    ProgressFunc
	// validateFinal checks the merged pipeline output; nil means the full
	// ticket schema.
	validateFinal func(map[string]interface{}) []model.ValidationError
}

// Run executes the configured number of runs sequentially. Rate-limit
// exhaustion ends the affected run but never the scenario.
func (r *scenarioRunner) Run(ctx context.Context) []model.RunResult {
	runs := make([]model.RunResult, 0, r.cfg.RunsPerScenario)
	for i := 1; i <= r.cfg.RunsPerScenario; i++ {
		if r.spec.Sequential {
			runs = append(runs, r.runSequential(ctx, i))
		} else {
			runs = append(runs, r.runOneShot(ctx, i))
		}
	}
	return runs
}

func (r *scenarioRunner) runOneShot(ctx context.Context, run int) model.RunResult {
	start := time.Now()
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: RenderConversation() + "\n\n" + OneShotPrompt(r.spec.Strict)},
	}

	attempts, final := r.attemptLoop(ctx, run, 0, messages)

	return model.RunResult{
		Run:           run,
		Success:       final != nil,
		Attempts:      attempts,
		DurationMs:    time.Since(start).Milliseconds(),
		FinalResponse: final,
	}
}

func (r *scenarioRunner) runSequential(ctx context.Context, run int) model.RunResult {
	start := time.Now()
	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: RenderConversation()},
	}

	outputs := make([]map[string]interface{}, 0, 3)
	steps := make([]model.StepResult, 0, 3)

	for step := 1; step <= 3; step++ {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: StepPrompt(step, r.spec.Strict, outputs),
		})

		attempts, data := r.attemptLoop(ctx, run, step, messages)
		sr := model.StepResult{Step: step, Name: stepNames[step-1], Success: data != nil, Attempts: attempts}
		steps = append(steps, sr)

		if data == nil {
			// Retries exhausted: the pipeline stops, remaining steps are
			// never attempted and the run is recorded as it stands.
			return model.RunResult{
				Run:        run,
				Steps:      steps,
				DurationMs: time.Since(start).Milliseconds(),
			}
		}
		outputs = append(outputs, data)
	}

	// All steps succeeded individually. The merged object still has to pass
	// the full ticket schema; a merge-time failure fails the run while the
	// steps stay marked successful.
	validate := r.validateFinal
	if validate == nil {
		validate = ValidateTicket
	}
	merged := MergeStepOutputs(outputs[0], outputs[1], outputs[2])
	var final map[string]interface{}
	if verrs := validate(merged); len(verrs) == 0 {
		final = merged
	}

	return model.RunResult{
		Run:           run,
		Success:       final != nil,
		Steps:         steps,
		DurationMs:    time.Since(start).Milliseconds(),
		FinalResponse: final,
	}
}

// attemptLoop runs attempts 1..maxRetries+1 until one succeeds. Each retry
// appends the prior raw response and a retry prompt to the message list; the
// history grows monotonically within a run. Returns all attempts made and
// the parsed value of the successful one, or nil if none succeeded.
func (r *scenarioRunner) attemptLoop(ctx context.Context, run, step int, messages []openai.ChatCompletionMessage) ([]model.AttemptResult, map[string]interface{}) {
	maxAttempts := r.cfg.MaxRetries + 1
	attempts := make([]model.AttemptResult, 0, maxAttempts)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		status := model.EventRunning
		if attempt > 1 {
			status = model.EventRetrying
		}
		r.emitEvent(model.ProgressEvent{
			Run: run, Step: step, Attempt: attempt, Status: status,
			Log: requestLog(r.modelID, r.spec.Number, run, step, attempt, lastUserContent(messages)),
		})

		ar, err := executeAttempt(ctx, r.gen, messages, step, r.spec.Strict, attempt, r.cfg.Temperature)
		if err != nil {
			// Rate-limit backoff exhausted. Record the aborted attempt so
			// the raw diagnostics survive, then end the run. The aborted
			// flag closes the remaining grid cells even when the retry
			// budget was not used up.
			ar.ErrorMessage = err.Error()
			ar.Errors = []model.ValidationError{{Path: "(root)", Message: err.Error(), Code: "rate_limit"}}
			attempts = append(attempts, ar)
			r.emitEvent(model.ProgressEvent{
				Run: run, Step: step, Attempt: attempt, Status: model.EventFailed, Aborted: true,
				Log: responseLog(r.modelID, r.spec.Number, run, step, &ar),
			})
			return attempts, nil
		}

		attempts = append(attempts, ar)
		if ar.Success {
			r.emitEvent(model.ProgressEvent{
				Run: run, Step: step, Attempt: attempt, Status: model.EventSuccess,
				Log: responseLog(r.modelID, r.spec.Number, run, step, &ar),
			})
			return attempts, ar.Parsed
		}

		r.emitEvent(model.ProgressEvent{
			Run: run, Step: step, Attempt: attempt, Status: model.EventFailed,
			Log: responseLog(r.modelID, r.spec.Number, run, step, &ar),
		})
		if attempt < maxAttempts {
			messages = append(messages,
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: ar.RawResponse},
				openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: RetryPrompt(ar.Errors)},
			)
		}
	}

	return attempts, nil
}

func (r *scenarioRunner) emitEvent(ev model.ProgressEvent) {
	if r.emit == nil {
		return
	}
	ev.Model = r.modelID
	ev.Scenario = r.spec.Number
	r.emit(ev)
}

func requestLog(modelID string, scenario, run, step, attempt int, prompt string) *model.LogEntry {
	return &model.LogEntry{
		Timestamp: time.Now(),
		Model:     modelID,
		Scenario:  scenario,
		Run:       run,
		Step:      step,
		Attempt:   attempt,
		Kind:      "request",
		Text:      prompt,
	}
}

func responseLog(modelID string, scenario, run, step int, ar *model.AttemptResult) *model.LogEntry {
	valid := ar.Success
	return &model.LogEntry{
		Timestamp: time.Now(),
		Model:     modelID,
		Scenario:  scenario,
		Run:       run,
		Step:      step,
		Attempt:   ar.Attempt,
		Kind:      "response",
		Text:      ar.RawResponse,
		Valid:     &valid,
		Errors:    ar.Errors,
	}
}
