package service

import (
	"errors"
	"fmt"
	"os"

	"schemabench/internal/config"
)

var (
	ErrUnknownModel  = errors.New("unknown model id")
	ErrMissingAPIKey = errors.New("api key not set")
)

// ModelSpec describes one invocable model: where to reach it and what it
// supports.
type ModelSpec struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	BaseURL         string  `json:"-"`
	APIKeyEnv       string  `json:"-"`
	SupportsStrict  bool    `json:"supports_strict"`
	Reasoning       bool    `json:"reasoning"`
	ThrottleMs      int     `json:"-"` // post-call delay for low-rate-limit providers
	InputPricePerM  float64 `json:"input_price_per_m"`
	OutputPricePerM float64 `json:"output_price_per_m"`
}

// Built-in model set. Config-file entries with the same id override these.
var defaultModels = []ModelSpec{
	{
		ID: "gpt-4o", Name: "GPT-4o",
		APIKeyEnv: "OPENAI_API_KEY", SupportsStrict: true,
		InputPricePerM: 2.50, OutputPricePerM: 10.00,
	},
	{
		ID: "gpt-4o-mini", Name: "GPT-4o mini",
		APIKeyEnv: "OPENAI_API_KEY", SupportsStrict: true,
		InputPricePerM: 0.15, OutputPricePerM: 0.60,
	},
	{
		ID: "o4-mini", Name: "o4-mini",
		APIKeyEnv: "OPENAI_API_KEY", SupportsStrict: true, Reasoning: true,
		InputPricePerM: 1.10, OutputPricePerM: 4.40,
	},
	{
		ID: "anthropic/claude-3.5-sonnet", Name: "Claude 3.5 Sonnet",
		BaseURL:   "https://openrouter.ai/api/v1",
		APIKeyEnv: "OPENROUTER_API_KEY", SupportsStrict: false,
		InputPricePerM: 3.00, OutputPricePerM: 15.00,
	},
	{
		ID: "llama-3.1-8b-instant", Name: "Llama 3.1 8B",
		BaseURL:   "https://api.groq.com/openai/v1",
		APIKeyEnv: "GROQ_API_KEY", SupportsStrict: false,
		// Groq free tier publishes very low request rates.
		ThrottleMs:     4000,
		InputPricePerM: 0.05, OutputPricePerM: 0.08,
	},
}

// ModelRegistry resolves model ids to invocable clients and capability flags.
type ModelRegistry struct {
	specs map[string]ModelSpec
	order []string
}

func NewModelRegistry(extra []config.ModelConfig) *ModelRegistry {
	r := &ModelRegistry{specs: map[string]ModelSpec{}}
	for _, s := range defaultModels {
		r.add(s)
	}
	for _, m := range extra {
		r.add(ModelSpec{
			ID:              m.ID,
			Name:            m.Name,
			BaseURL:         m.BaseURL,
			APIKeyEnv:       m.APIKeyEnv,
			SupportsStrict:  m.SupportsStrict,
			Reasoning:       m.Reasoning,
			ThrottleMs:      m.ThrottleMs,
			InputPricePerM:  m.InputPricePerM,
			OutputPricePerM: m.OutputPricePerM,
		})
	}
	return r
}

func (r *ModelRegistry) add(s ModelSpec) {
	if _, exists := r.specs[s.ID]; !exists {
		r.order = append(r.order, s.ID)
	}
	r.specs[s.ID] = s
}

// Spec returns the spec for a model id without requiring credentials.
func (r *ModelRegistry) Spec(id string) (ModelSpec, bool) {
	s, ok := r.specs[id]
	return s, ok
}

// Resolve returns a client for the model, failing loudly on an unknown id or
// a missing API key. A model that cannot be invoked is never silently skipped.
func (r *ModelRegistry) Resolve(id string) (*LLMClient, ModelSpec, error) {
	spec, ok := r.specs[id]
	if !ok {
		return nil, ModelSpec{}, fmt.Errorf("%w: %q", ErrUnknownModel, id)
	}
	key := os.Getenv(spec.APIKeyEnv)
	if key == "" {
		return nil, ModelSpec{}, fmt.Errorf("%w: %s requires %s", ErrMissingAPIKey, id, spec.APIKeyEnv)
	}
	return newLLMClient(spec, key), spec, nil
}

// List returns all registered specs in registration order.
func (r *ModelRegistry) List() []ModelSpec {
	out := make([]ModelSpec, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.specs[id])
	}
	return out
}
