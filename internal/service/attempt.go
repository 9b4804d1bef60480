package service

import (
	"context"
	"encoding/json"
	"time"

	"schemabench/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// generator is the single abstract "generate" capability per mode. LLMClient
// implements it; tests substitute scripted fakes.
type generator interface {
	Complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float64) (*Completion, error)
	CompleteStructured(ctx context.Context, messages []openai.ChatCompletionMessage, schemaName string, schema json.RawMessage, temperature float64) (*Completion, error)
}

// executeAttempt makes one model call and normalizes the outcome into an
// AttemptResult. step 0 targets the full ticket schema (one-shot scenarios),
// steps 1-3 target the matching step schema.
//
// Validation and parse failures become success=false attempts with a
// non-empty error list. Fatal transport errors become failed attempts with an
// api_error code in both modes. Only an exhausted rate-limit backoff returns
// a non-nil error, which ends the run.
func executeAttempt(ctx context.Context, gen generator, messages []openai.ChatCompletionMessage, step int, strict bool, attempt int, temperature float64) (model.AttemptResult, error) {
	start := time.Now()
	res := model.AttemptResult{
		Attempt:   attempt,
		Timestamp: start,
		Prompt:    lastUserContent(messages),
	}

	schema := schemaFor(step)
	var comp *Completion
	var err error
	if strict {
		comp, err = gen.CompleteStructured(ctx, messages, schema.name, schema.raw, temperature)
	} else {
		comp, err = gen.Complete(ctx, messages, temperature)
	}
	res.DurationMs = time.Since(start).Milliseconds()

	if err != nil {
		if isRateLimited(err) {
			// Backoff budget exhausted: let the error end the run.
			return res, err
		}
		res.ErrorMessage = err.Error()
		res.Errors = []model.ValidationError{{Path: "(root)", Message: err.Error(), Code: "api_error"}}
		return res, nil
	}

	res.RawResponse = comp.Text
	res.InputTokens = &comp.InputTokens
	res.OutputTokens = &comp.OutputTokens

	payload := comp.Text
	if !strict {
		extracted, exErr := ExtractJSON(comp.Text)
		if exErr != nil {
			res.ErrorMessage = "response contained no JSON object"
			res.Errors = []model.ValidationError{{Path: "(root)", Message: exErr.Error(), Code: "invalid_json"}}
			return res, nil
		}
		payload = extracted
	}

	var data map[string]interface{}
	if parseErr := json.Unmarshal([]byte(payload), &data); parseErr != nil {
		res.ErrorMessage = "response was not parseable JSON"
		res.Errors = []model.ValidationError{{Path: "(root)", Message: parseErr.Error(), Code: "invalid_json"}}
		return res, nil
	}

	if verrs := validateAgainst(schema, data); len(verrs) > 0 {
		res.ErrorMessage = "response failed schema validation"
		res.Errors = verrs
		return res, nil
	}

	res.Success = true
	res.Parsed = data
	return res, nil
}

func lastUserContent(messages []openai.ChatCompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == openai.ChatMessageRoleUser {
			return messages[i].Content
		}
	}
	return ""
}
