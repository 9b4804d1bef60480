package service

import (
	"context"
	"errors"
	"testing"

	"schemabench/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRateLimit = errors.New("rate limit exceeded, try again later")

func collectEvents(events *[]model.ProgressEvent) ProgressFunc {
	return func(ev model.ProgressEvent) { *events = append(*events, ev) }
}

func testRunConfig(runs, maxRetries int) model.RunConfig {
	return model.RunConfig{RunsPerScenario: runs, MaxRetries: maxRetries, Temperature: 0.2}
}

func TestOneShotRunSucceedsAfterRetry(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{
		{text: "Sorry, I can't produce JSON right now."},
		{text: "```json\n" + validTicketJSON() + "\n```"},
	}}
	var events []model.ProgressEvent
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[1], cfg: testRunConfig(1, 3), emit: collectEvents(&events)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)
	run := runs[0]

	assert.True(t, run.Success)
	assert.Nil(t, run.Steps, "one-shot runs never carry steps")
	require.Len(t, run.Attempts, 2)
	assert.False(t, run.Attempts[0].Success)
	assert.True(t, run.Attempts[1].Success)
	assert.NotNil(t, run.FinalResponse)

	// The retry appends the prior raw response plus a retry prompt; the
	// message history grows monotonically within the run.
	require.Len(t, gen.messages, 2)
	assert.Len(t, gen.messages[1], len(gen.messages[0])+2)
	retryPrompt := gen.messages[1][len(gen.messages[1])-1]
	assert.Contains(t, retryPrompt.Content, "not valid")

	statuses := eventStatuses(events)
	assert.Equal(t, []model.EventStatus{
		model.EventRunning, model.EventFailed,
		model.EventRetrying, model.EventSuccess,
	}, statuses)
}

func TestOneShotRunExhaustsRetries(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{{text: "still not json"}}}
	var events []model.ProgressEvent
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[1], cfg: testRunConfig(1, 2), emit: collectEvents(&events)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)

	assert.False(t, runs[0].Success)
	assert.Len(t, runs[0].Attempts, 3) // maxRetries + 1
	assert.Nil(t, runs[0].FinalResponse)
	for _, a := range runs[0].Attempts {
		assert.NotEmpty(t, a.Errors)
	}
}

func TestOneShotRateLimitExhaustionEndsRun(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{{err: errRateLimit}}}
	var events []model.ProgressEvent
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[1], cfg: testRunConfig(2, 3), emit: collectEvents(&events)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 2, "a rate-limited run ends, the scenario continues")

	for _, run := range runs {
		assert.False(t, run.Success)
		require.Len(t, run.Attempts, 1)
		assert.Equal(t, "rate_limit", run.Attempts[0].Errors[0].Code)
	}

	// Each run's final event is an aborted failure so the progress grid can
	// close the run out despite unused retry budget.
	require.Len(t, events, 4)
	for _, i := range []int{1, 3} {
		assert.Equal(t, model.EventFailed, events[i].Status)
		assert.True(t, events[i].Aborted)
	}
	assert.False(t, events[0].Aborted)
	assert.False(t, events[2].Aborted)
}

func TestSequentialRunHappyPath(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{
		{text: validCustomerJSON},
		{text: validIssueJSON},
		{text: validResolutionJSON},
	}}
	var events []model.ProgressEvent
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[3], cfg: testRunConfig(1, 3), emit: collectEvents(&events)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)
	run := runs[0]

	assert.True(t, run.Success)
	assert.Nil(t, run.Attempts, "sequential runs never carry a flat attempt list")
	require.Len(t, run.Steps, 3)
	for i, step := range run.Steps {
		assert.Equal(t, i+1, step.Step)
		assert.Equal(t, stepNames[i], step.Name)
		assert.True(t, step.Success)
	}

	require.NotNil(t, run.FinalResponse)
	assert.Contains(t, run.FinalResponse, "customer")
	assert.Contains(t, run.FinalResponse, "issue")
	assert.Contains(t, run.FinalResponse, "resolution")

	// Step 2's prompt carries step 1's validated output.
	require.Len(t, gen.messages, 3)
	step2Prompt := gen.messages[1][len(gen.messages[1])-1]
	assert.Contains(t, step2Prompt.Content, `"account_id":"ACCT-4821"`)
	// Step 3's prompt carries both prior outputs.
	step3Prompt := gen.messages[2][len(gen.messages[2])-1]
	assert.Contains(t, step3Prompt.Content, `"account_id":"ACCT-4821"`)
	assert.Contains(t, step3Prompt.Content, `"category":"billing"`)
}

func TestSequentialStepExhaustionAbortsPipeline(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{
		{text: validCustomerJSON},
		{text: "nope"},
		{text: "still nope"},
	}}
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[3], cfg: testRunConfig(1, 1)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)
	run := runs[0]

	assert.False(t, run.Success)
	assert.Nil(t, run.FinalResponse)
	require.Len(t, run.Steps, 2, "step 3 is never attempted")
	assert.True(t, run.Steps[0].Success)
	assert.False(t, run.Steps[1].Success)
	assert.Len(t, run.Steps[1].Attempts, 2)
	assert.Equal(t, 3, gen.calls)
}

func TestSequentialMergeValidationFailureFailsRun(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{
		{text: validCustomerJSON},
		{text: validIssueJSON},
		{text: validResolutionJSON},
	}}
	r := &scenarioRunner{
		gen: gen, modelID: "gpt-4o", spec: Scenarios[3], cfg: testRunConfig(1, 3),
		validateFinal: func(map[string]interface{}) []model.ValidationError {
			return []model.ValidationError{{Path: "(root)", Message: "merged object rejected", Code: "schema_error"}}
		},
	}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)
	run := runs[0]

	assert.False(t, run.Success, "merge failure fails the run")
	assert.Nil(t, run.FinalResponse)
	require.Len(t, run.Steps, 3)
	for _, step := range run.Steps {
		assert.True(t, step.Success, "steps stay individually successful")
	}
}

func TestSequentialStrictUsesConstrainedCalls(t *testing.T) {
	gen := &stubGen{responses: []stubResponse{
		{text: validCustomerJSON},
		{text: validIssueJSON},
		{text: validResolutionJSON},
	}}
	r := &scenarioRunner{gen: gen, modelID: "gpt-4o", spec: Scenarios[4], cfg: testRunConfig(1, 3)}

	runs := r.Run(context.Background())
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Success)
	for _, strict := range gen.strict {
		assert.True(t, strict)
	}
}

func eventStatuses(events []model.ProgressEvent) []model.EventStatus {
	out := make([]model.EventStatus, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Status)
	}
	return out
}
