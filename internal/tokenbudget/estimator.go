package tokenbudget

import (
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Estimator provides token counting using tiktoken encodings.
// Encodings are cached via sync.Once to avoid repeated initialization.
type Estimator struct {
	cl100kOnce sync.Once
	cl100kEnc  *tiktoken.Tiktoken
	cl100kErr  error

	o200kOnce sync.Once
	o200kEnc  *tiktoken.Tiktoken
	o200kErr  error
}

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	// Claude models: cl100k_base
	"claude-opus-4-20250514":     "cl100k_base",
	"claude-opus-4":              "cl100k_base",
	"claude-sonnet-4-20250514":   "cl100k_base",
	"claude-sonnet-4":            "cl100k_base",
	"claude-sonnet-4-5-20241022": "cl100k_base",
	"claude-sonnet-4-5":          "cl100k_base",
	"claude-haiku-4-5-20241022":  "cl100k_base",
	"claude-haiku-4-5":           "cl100k_base",
	"claude-3-5-sonnet-20241022": "cl100k_base",
	"claude-3-haiku-20240307":    "cl100k_base",

	// OpenAI models, kept for completeness of the estimator.
	"gpt-4o":      "o200k_base",
	"gpt-4o-mini": "o200k_base",
	"gpt-4":       "cl100k_base",
}

// NewEstimator creates a new Estimator instance.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// GetEncoding returns the encoding name for the given model.
// Unknown models default to cl100k_base.
func (e *Estimator) GetEncoding(model string) string {
	if enc, ok := modelEncodings[model]; ok {
		return enc
	}

	// Prefix matching for versioned model names.
	lower := strings.ToLower(model)
	for m, enc := range modelEncodings {
		if strings.HasPrefix(lower, m) {
			return enc
		}
	}

	return "cl100k_base"
}

// getEncoder returns the cached tiktoken encoder for the given model.
func (e *Estimator) getEncoder(model string) (*tiktoken.Tiktoken, error) {
	switch e.GetEncoding(model) {
	case "o200k_base":
		e.o200kOnce.Do(func() {
			e.o200kEnc, e.o200kErr = tiktoken.GetEncoding("o200k_base")
		})
		return e.o200kEnc, e.o200kErr
	default:
		e.cl100kOnce.Do(func() {
			e.cl100kEnc, e.cl100kErr = tiktoken.GetEncoding("cl100k_base")
		})
		return e.cl100kEnc, e.cl100kErr
	}
}

// CountTokens counts the number of tokens in the given text for the
// specified model. Falls back to a chars/4 heuristic if the encoding
// cannot be loaded (e.g. no network access for the BPE download).
func (e *Estimator) CountTokens(model, text string) int {
	enc, err := e.getEncoder(model)
	if err != nil || enc == nil {
		return RoughTokenEstimate(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountPrompt counts the total tokens across a system prompt and a user
// prompt for the specified model, including a small per-message framing
// overhead and reply priming.
func (e *Estimator) CountPrompt(model, systemPrompt, userPrompt string) int {
	total := e.CountTokens(model, systemPrompt) + e.CountTokens(model, userPrompt)
	// 4 tokens of framing per message plus 3 for reply priming.
	total += 4*2 + 3
	return total
}

// RoughTokenEstimate returns a rough token count based on character
// length (~4 characters per token). Sufficient for budget pre-checks when
// exact counting is unavailable.
func RoughTokenEstimate(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		return 1
	}
	return n
}
