// Package analysis defines the article-analysis result schema and the
// parsing/normalization of raw model output into it.
package analysis

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Contractual output bounds.
const (
	MaxTitles       = 5
	HashtagCount    = 20
	MaxSummaryRunes = 100
	EyecatchPrompts = 3
)

// Result is the full analysis payload returned to callers. Single-field
// endpoints populate only their slice and leave the rest zero.
type Result struct {
	Titles          []string `json:"titles,omitempty"`
	Hashtags        []string `json:"hashtags,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	EyecatchPrompts []string `json:"eyecatchPrompts,omitempty"`
	SEOScore        *int     `json:"seoScore,omitempty"`
	ViralityScore   *int     `json:"viralityScore,omitempty"`
}

// ParseError reports model output that could not be interpreted as the
// expected JSON. The raw output is kept for logging and never returned
// to the caller.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("analysis: parsing model output: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ExtractJSON strips markdown code fences and surrounding prose from raw
// model output, returning the innermost {...} object text.
func ExtractJSON(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	// Some model responses include extra prose around the JSON.
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}

// Parse interprets raw model output as a Result. Invalid JSON yields a
// ParseError carrying the raw output.
func Parse(raw string) (*Result, error) {
	cleaned := ExtractJSON(raw)

	var res Result
	if err := json.Unmarshal([]byte(cleaned), &res); err != nil {
		return nil, &ParseError{Raw: raw, Err: err}
	}
	return &res, nil
}

// truncateRunes cuts s to at most n runes.
func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
