package tokenbudget

import (
	"sort"
	"strings"
)

// ModelPricing holds the four per-million-token cost tiers for a model.
// Regular input, cache-write input, cache-read input, and output tokens
// are priced independently, reflecting provider-side prompt caching.
type ModelPricing struct {
	InputPerMillion      float64
	CacheWritePerMillion float64
	CacheReadPerMillion  float64
	OutputPerMillion     float64
}

// Pricing maps model identifiers to their token pricing.
var Pricing = map[string]ModelPricing{
	// Claude models, full identifiers
	"claude-sonnet-4-20250514":   {3.00, 3.75, 0.30, 15.00},
	"claude-sonnet-4-5-20241022": {3.00, 3.75, 0.30, 15.00},
	"claude-3-5-sonnet-20241022": {3.00, 3.75, 0.30, 15.00},
	"claude-opus-4-20250514":     {15.00, 18.75, 1.50, 75.00},
	"claude-haiku-4-5-20241022":  {0.80, 1.00, 0.08, 4.00},
	"claude-3-haiku-20240307":    {0.25, 0.30, 0.03, 1.25},

	// Claude models, short aliases
	"claude-sonnet-4":   {3.00, 3.75, 0.30, 15.00},
	"claude-sonnet-4-5": {3.00, 3.75, 0.30, 15.00},
	"claude-opus-4":     {15.00, 18.75, 1.50, 75.00},
	"claude-haiku-4-5":  {0.80, 1.00, 0.08, 4.00},
}

// GetPricing returns the pricing for the given model. It first attempts an
// exact match, then falls back to a prefix match against known model names.
// The second return value indicates whether pricing was found.
func GetPricing(model string) (ModelPricing, bool) {
	if p, ok := Pricing[model]; ok {
		return p, true
	}

	// Prefix match: versioned model names like "claude-sonnet-4-20250514"
	// map to the base model pricing. Longest prefix wins so overlapping
	// families like "claude-sonnet-4" and "claude-sonnet-4-5" resolve
	// the same way on every call.
	names := make([]string, 0, len(Pricing))
	for name := range Pricing {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	for _, name := range names {
		if strings.HasPrefix(model, name) {
			return Pricing[name], true
		}
	}

	return ModelPricing{}, false
}

// Usage is a normalized token-usage record for a single provider call.
// Derived once from the provider response and never mutated afterwards.
type Usage struct {
	InputTokens              int     `json:"input_tokens"`
	OutputTokens             int     `json:"output_tokens"`
	CacheCreationInputTokens int     `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     int     `json:"cache_read_input_tokens"`
	TotalCostUSD             float64 `json:"total_cost_usd"`
}

// TotalTokens returns the sum of all token tiers.
func (u Usage) TotalTokens() int {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// Cost computes the USD cost of the given token counts on the specified
// model, applying all four pricing tiers. Returns 0.0 if the model is not
// in the pricing table.
func Cost(model string, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int) float64 {
	p, ok := GetPricing(model)
	if !ok {
		return 0.0
	}
	return (float64(inputTokens)*p.InputPerMillion +
		float64(cacheWriteTokens)*p.CacheWritePerMillion +
		float64(cacheReadTokens)*p.CacheReadPerMillion +
		float64(outputTokens)*p.OutputPerMillion) / 1_000_000
}

// EstimateCost calculates the estimated cost in USD assuming no
// provider-side cache involvement, for pre-call estimates.
func EstimateCost(model string, tokensIn, tokensOut int) float64 {
	return Cost(model, tokensIn, tokensOut, 0, 0)
}

// NewUsage builds a Usage record from raw provider token counts, computing
// the total cost with the model's four-tier pricing.
func NewUsage(model string, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens int) Usage {
	return Usage{
		InputTokens:              inputTokens,
		OutputTokens:             outputTokens,
		CacheCreationInputTokens: cacheWriteTokens,
		CacheReadInputTokens:     cacheReadTokens,
		TotalCostUSD:             Cost(model, inputTokens, outputTokens, cacheWriteTokens, cacheReadTokens),
	}
}
