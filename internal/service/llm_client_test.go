package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const chatCompletionJSON = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"a\":1}"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 5, "total_tokens": 17}
}`

const rateLimitErrorJSON = `{"error": {"message": "rate limit exceeded", "type": "rate_limit_exceeded"}}`

// newFastClient points an LLMClient at a local test server and replaces the
// production backoff schedule with a millisecond one.
func newFastClient(t *testing.T, handler http.Handler, spec ModelSpec) *LLMClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	spec.BaseURL = srv.URL
	c := newLLMClient(spec, "test-key")
	c.newBackOff = func() backoff.BackOff { return backoff.NewConstantBackOff(time.Millisecond) }
	return c
}

func TestCompleteRetriesRateLimitsTransparently(t *testing.T) {
	var calls int32
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(rateLimitErrorJSON))
			return
		}
		w.Write([]byte(chatCompletionJSON))
	}), ModelSpec{ID: "gpt-4o"})

	comp, err := c.Complete(context.Background(), userMessages("extract"), 0.2)
	require.NoError(t, err, "rate limits below the retry ceiling never reach the caller")

	assert.Equal(t, `{"a":1}`, comp.Text)
	assert.Equal(t, 12, comp.InputTokens)
	assert.Equal(t, 5, comp.OutputTokens)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestCompleteRateLimitCeilingPropagates(t *testing.T) {
	var calls int32
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(rateLimitErrorJSON))
	}), ModelSpec{ID: "gpt-4o"})

	_, err := c.Complete(context.Background(), userMessages("extract"), 0.2)
	require.Error(t, err)
	assert.True(t, isRateLimited(err))
	assert.EqualValues(t, rateLimitMaxRetries+1, atomic.LoadInt32(&calls))
}

func TestCompleteFatalErrorNotRetried(t *testing.T) {
	var calls int32
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error": {"message": "boom", "type": "server_error"}}`))
	}), ModelSpec{ID: "gpt-4o"})

	_, err := c.Complete(context.Background(), userMessages("extract"), 0.2)
	require.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls), "only rate limits are retried")
}

func TestCompleteThrottlesAfterSuccess(t *testing.T) {
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionJSON))
	}), ModelSpec{ID: "llama-3.1-8b-instant", ThrottleMs: 40})

	var slept []time.Duration
	c.sleep = func(d time.Duration) { slept = append(slept, d) }

	_, err := c.Complete(context.Background(), userMessages("extract"), 0.2)
	require.NoError(t, err)
	require.Len(t, slept, 1)
	assert.Equal(t, 40*time.Millisecond, slept[0])
}

func TestCompleteStructuredSendsSchemaConstraint(t *testing.T) {
	var body map[string]interface{}
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionJSON))
	}), ModelSpec{ID: "gpt-4o"})

	_, err := c.CompleteStructured(context.Background(), userMessages("extract"), "support_ticket", json.RawMessage(`{"type":"object"}`), 0.2)
	require.NoError(t, err)

	rf, ok := body["response_format"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "json_schema", rf["type"])
	js, ok := rf["json_schema"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "support_ticket", js["name"])
	assert.Equal(t, true, js["strict"])
}

func TestReasoningModelsOmitTemperature(t *testing.T) {
	var body map[string]interface{}
	c := newFastClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(chatCompletionJSON))
	}), ModelSpec{ID: "o4-mini", Reasoning: true})

	_, err := c.Complete(context.Background(), userMessages("extract"), 0.7)
	require.NoError(t, err)

	assert.Equal(t, "low", body["reasoning_effort"])
	_, hasTemperature := body["temperature"]
	assert.False(t, hasTemperature)
}
