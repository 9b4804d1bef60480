package service

// Pricing is the per-million-token USD rate pair for one model. Rates feed
// cost display only; the test loop never reads them.
type Pricing struct {
	InputPerM  float64 `json:"input_per_m"`
	OutputPerM float64 `json:"output_per_m"`
}

// PriceFor looks a model's rates up in the registry.
func (r *ModelRegistry) PriceFor(id string) (Pricing, bool) {
	spec, ok := r.specs[id]
	if !ok {
		return Pricing{}, false
	}
	return Pricing{InputPerM: spec.InputPricePerM, OutputPerM: spec.OutputPricePerM}, true
}

// Cost estimates the USD cost of a token count pair for a model. Unknown
// models cost zero rather than erroring; cost display is best-effort.
func (r *ModelRegistry) Cost(id string, inputTokens, outputTokens int) float64 {
	p, ok := r.PriceFor(id)
	if !ok {
		return 0
	}
	return float64(inputTokens)/1e6*p.InputPerM + float64(outputTokens)/1e6*p.OutputPerM
}
