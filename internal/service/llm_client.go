package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/sashabaranov/go-openai"
)

const (
	// Rate-limit backoff: 2s base, doubling, up to 5 retries before the
	// underlying error is allowed to end the run.
	rateLimitBaseDelay  = 2 * time.Second
	rateLimitMaxRetries = 5
)

// Completion is the normalized result of one chat-completion call.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}

// LLMClient invokes one model through an OpenAI-compatible chat endpoint,
// in freeform or schema-constrained mode. Rate-limit responses are retried
// here with exponential backoff, invisibly to the attempt accounting.
type LLMClient struct {
	spec   ModelSpec
	client *openai.Client
	// sleep and newBackOff are swapped out in tests.
	sleep      func(time.Duration)
	newBackOff func() backoff.BackOff
}

func newLLMClient(spec ModelSpec, apiKey string) *LLMClient {
	cfg := openai.DefaultConfig(apiKey)
	if spec.BaseURL != "" {
		cfg.BaseURL = spec.BaseURL
	}
	return &LLMClient{
		spec:       spec,
		client:     openai.NewClientWithConfig(cfg),
		sleep:      time.Sleep,
		newBackOff: rateLimitBackOff,
	}
}

// rateLimitBackOff is the schedule applied between rate-limited calls:
// fixed base, doubling, no jitter.
func rateLimitBackOff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = rateLimitBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	return bo
}

// Complete runs a freeform chat completion.
func (c *LLMClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessage, temperature float64) (*Completion, error) {
	req := c.baseRequest(messages, temperature)
	return c.create(ctx, req)
}

// CompleteStructured runs a chat completion constrained to the given JSON
// schema via the provider's json_schema response format.
func (c *LLMClient) CompleteStructured(ctx context.Context, messages []openai.ChatCompletionMessage, schemaName string, schema json.RawMessage, temperature float64) (*Completion, error) {
	req := c.baseRequest(messages, temperature)
	req.ResponseFormat = &openai.ChatCompletionResponseFormat{
		Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
		JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
			Name:   schemaName,
			Schema: schema,
			Strict: true,
		},
	}
	return c.create(ctx, req)
}

func (c *LLMClient) baseRequest(messages []openai.ChatCompletionMessage, temperature float64) openai.ChatCompletionRequest {
	req := openai.ChatCompletionRequest{
		Model:    c.spec.ID,
		Messages: messages,
	}
	if c.spec.Reasoning {
		// Reasoning models reject the temperature parameter.
		req.ReasoningEffort = "low"
	} else {
		req.Temperature = float32(temperature)
	}
	return req
}

func (c *LLMClient) create(ctx context.Context, req openai.ChatCompletionRequest) (*Completion, error) {
	op := func() (openai.ChatCompletionResponse, error) {
		resp, err := c.client.CreateChatCompletion(ctx, req)
		if err != nil && !isRateLimited(err) {
			return resp, backoff.Permanent(err)
		}
		return resp, err
	}

	resp, err := backoff.RetryWithData(op, backoff.WithContext(backoff.WithMaxRetries(c.newBackOff(), rateLimitMaxRetries), ctx))
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model %s returned no choices", c.spec.ID)
	}

	if c.spec.ThrottleMs > 0 {
		c.sleep(time.Duration(c.spec.ThrottleMs) * time.Millisecond)
	}

	return &Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// isRateLimited reports whether a transport error is a rate-limit signal and
// therefore retryable with backoff.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}
