package analysis

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestExtractJSONFenced(t *testing.T) {
	raw := "```json\n{\"titles\": [\"a\"]}\n```"
	if got := ExtractJSON(raw); got != `{"titles": ["a"]}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONSurroundingProse(t *testing.T) {
	raw := "Here is the analysis you asked for:\n{\"summary\": \"ok\"}\nLet me know if you need more."
	if got := ExtractJSON(raw); got != `{"summary": "ok"}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestParseValid(t *testing.T) {
	res, err := Parse(`{"titles": ["t1", "t2"], "summary": "s"}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(res.Titles) != 2 || res.Summary != "s" {
		t.Errorf("res = %+v", res)
	}
}

func TestParseInvalid(t *testing.T) {
	_, err := Parse("I could not analyze this article.")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("got %v, want ParseError", err)
	}
	if pe.Raw == "" {
		t.Error("ParseError lost the raw output")
	}
}

func TestNormalizeLenientTitles(t *testing.T) {
	res := &Result{Titles: []string{"a", "b", "c", "d", "e", "f", "g"}}
	if err := Normalize(res, Fields{Titles: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Titles) != MaxTitles {
		t.Errorf("titles = %d, want %d", len(res.Titles), MaxTitles)
	}
}

func TestNormalizeStrictTitles(t *testing.T) {
	res := &Result{Titles: []string{"a", "b", "c", "d", "e", "f"}}
	if err := Normalize(res, Fields{Titles: true}, false); err == nil {
		t.Fatal("strict mode accepted over-produced titles")
	}
}

func TestNormalizeHashtagsPadded(t *testing.T) {
	res := &Result{Hashtags: []string{"#go", "web", ""}}
	if err := Normalize(res, Fields{Hashtags: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Hashtags) != HashtagCount {
		t.Fatalf("hashtags = %d, want exactly %d", len(res.Hashtags), HashtagCount)
	}
	for _, tag := range res.Hashtags {
		if !strings.HasPrefix(tag, "#") {
			t.Errorf("tag %q missing # prefix", tag)
		}
	}
}

func TestNormalizeHashtagsTruncated(t *testing.T) {
	var tags []string
	for i := 0; i < 30; i++ {
		tags = append(tags, fmt.Sprintf("#t%d", i))
	}
	res := &Result{Hashtags: tags}
	if err := Normalize(res, Fields{Hashtags: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.Hashtags) != HashtagCount {
		t.Errorf("hashtags = %d, want %d", len(res.Hashtags), HashtagCount)
	}
}

func TestNormalizeHashtagsStrict(t *testing.T) {
	res := &Result{Hashtags: []string{"#only-one"}}
	if err := Normalize(res, Fields{Hashtags: true}, false); err == nil {
		t.Fatal("strict mode accepted 1 hashtag")
	}
}

func TestNormalizeSummaryTruncated(t *testing.T) {
	long := strings.Repeat("あ", 150)
	res := &Result{Summary: long}
	if err := Normalize(res, Fields{Summary: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if got := len([]rune(res.Summary)); got != MaxSummaryRunes {
		t.Errorf("summary runes = %d, want %d", got, MaxSummaryRunes)
	}
}

func TestNormalizeScores(t *testing.T) {
	over := 140
	res := &Result{SEOScore: &over}
	if err := Normalize(res, Fields{Scores: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if *res.SEOScore != 100 {
		t.Errorf("SEOScore = %d, want clamped to 100", *res.SEOScore)
	}
	if res.ViralityScore == nil || *res.ViralityScore != 0 {
		t.Error("missing virality score not defaulted")
	}

	neg := -5
	strictRes := &Result{SEOScore: &neg, ViralityScore: &over}
	if err := Normalize(strictRes, Fields{Scores: true}, false); err == nil {
		t.Fatal("strict mode accepted out-of-range score")
	}
}

func TestNormalizeEyecatchPadded(t *testing.T) {
	res := &Result{EyecatchPrompts: []string{"a mountain at dawn"}}
	if err := Normalize(res, Fields{Eyecatch: true}, true); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(res.EyecatchPrompts) != EyecatchPrompts {
		t.Errorf("eyecatch prompts = %d, want %d", len(res.EyecatchPrompts), EyecatchPrompts)
	}
}
