// Package cost defines per-model token prices and the carbon figures derived
// from them.
package cost

import (
	"math"
	"strings"
)

// CarbonPerUSD converts an upstream spend into kilograms of CO2e.
const CarbonPerUSD = 0.14

// EstimatedKgPerToken is the flat footprint applied when the provider did not
// report usage. It is a documented approximation, not a measurement.
const EstimatedKgPerToken = 4.5e-7

// Price holds USD per token for input and output.
type Price struct {
	Input  float64
	Output float64
}

// prices is the per-token USD price table for known chat models.
var prices = map[string]Price{
	"anthropic/claude-opus-4-5":            {Input: 6.50e-06, Output: 32.50e-06},
	"anthropic/claude-opus-4-5-20250929":   {Input: 6.50e-06, Output: 32.50e-06},
	"anthropic/claude-sonnet-4-5-20250929": {Input: 3.90e-06, Output: 19.50e-06},
	"anthropic/claude-haiku-4-5-20251001":  {Input: 1.00e-06, Output: 5.00e-06},
	"openai/gpt-5":                         {Input: 1.25e-06, Output: 10.00e-06},
	"openai/gpt-5-codex":                   {Input: 1.25e-06, Output: 10.00e-06},
	"openai/gpt-5-mini":                    {Input: 0.25e-06, Output: 2.00e-06},
	"openai/gpt-5-nano":                    {Input: 0.05e-06, Output: 0.40e-06},
	"openai/gpt-4o":                        {Input: 3.00e-06, Output: 12.00e-06},
	"openai/gpt-4-32k":                     {Input: 3.00e-06, Output: 12.00e-06},
	"google/gemini-2.5-pro":                {Input: 1.25e-06, Output: 10.00e-06},
	"google/gemini-2.5-flash":              {Input: 0.60e-06, Output: 4.50e-06},
	"google/gemini-2.0-flash":              {Input: 0.60e-06, Output: 4.50e-06},
	"deepseek/deepseek-chat":               {Input: 0.182e-06, Output: 0.364e-06},
	"deepseek/deepseek-coder":              {Input: 0.182e-06, Output: 0.364e-06},
	"xai/grok-code-fast-1":                 {Input: 0.20e-06, Output: 0.50e-06},
	"xai/grok-4-fast-non-reasoning":        {Input: 0.20e-06, Output: 0.50e-06},
}

// Known reports whether model has a price entry.
func Known(model string) bool {
	_, ok := prices[strings.TrimSpace(model)]
	return ok
}

// PriceOf returns the price entry for model.
func PriceOf(model string) (Price, bool) {
	p, ok := prices[strings.TrimSpace(model)]
	return p, ok
}

// CarbonKg returns the CO2e for a completion priced from the table. The
// second result is false for unknown models or negative counts.
func CarbonKg(model string, promptTokens, completionTokens int) (float64, bool) {
	p, ok := PriceOf(model)
	if !ok || promptTokens < 0 || completionTokens < 0 {
		return 0, false
	}
	usd := p.Input*float64(promptTokens) + p.Output*float64(completionTokens)
	kg := CarbonPerUSD * usd
	if math.IsNaN(kg) || math.IsInf(kg, 0) || kg < 0 {
		return 0, false
	}
	return kg, true
}

// EstimateTokens counts whitespace separated runs in text.
func EstimateTokens(text string) int {
	return len(strings.Fields(text))
}

// EstimateCarbonKg applies the flat per-token footprint.
func EstimateCarbonKg(tokens int) float64 {
	if tokens <= 0 {
		return 0
	}
	return float64(tokens) * EstimatedKgPerToken
}

// Usage is the token accounting of a single completion.
type Usage struct {
	PromptTokens     int      `json:"promptTokens"`
	CompletionTokens int      `json:"completionTokens"`
	TotalTokens      int      `json:"totalTokens"`
	CarbonKg         *float64 `json:"carbonKg,omitempty"`
}

// Stats is the carbon-stats payload emitted at the end of a turn.
type Stats struct {
	Model            string  `json:"model"`
	Tier             string  `json:"tier"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	TotalTokens      int     `json:"totalTokens"`
	CarbonKg         float64 `json:"carbonKg"`
	Source           string  `json:"source"`
}

// Stats sources.
const (
	SourceProvider = "provider"
	SourceEstimate = "estimate"
)

// Compute builds the turn stats. Provider usage wins when present; otherwise
// tokens are estimated from the raw user message and the completion.
func Compute(model, tier string, usage *Usage, userMessage, completion string) Stats {
	s := Stats{Model: model, Tier: tier}
	if usage != nil && usage.TotalTokens+usage.PromptTokens+usage.CompletionTokens > 0 {
		s.PromptTokens = usage.PromptTokens
		s.CompletionTokens = usage.CompletionTokens
		s.TotalTokens = usage.TotalTokens
		if s.TotalTokens == 0 {
			s.TotalTokens = s.PromptTokens + s.CompletionTokens
		}
		s.Source = SourceProvider
		switch {
		case usage.CarbonKg != nil:
			s.CarbonKg = *usage.CarbonKg
		default:
			s.CarbonKg = EstimateCarbonKg(s.TotalTokens)
		}
		return s
	}
	s.PromptTokens = EstimateTokens(userMessage)
	s.CompletionTokens = EstimateTokens(completion)
	s.TotalTokens = s.PromptTokens + s.CompletionTokens
	s.CarbonKg = EstimateCarbonKg(s.TotalTokens)
	s.Source = SourceEstimate
	return s
}
