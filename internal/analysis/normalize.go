package analysis

import (
	"fmt"
	"strings"
)

// Fields names the result fields an endpoint contracts to produce, so
// normalization knows which parts of the schema to enforce.
type Fields struct {
	Titles   bool
	Hashtags bool
	Summary  bool
	Eyecatch bool
	Scores   bool
}

// FullFields covers every contractual field, for the full-analysis
// endpoint.
var FullFields = Fields{Titles: true, Hashtags: true, Summary: true, Eyecatch: true, Scores: true}

// Normalize coerces a parsed result into the contractual shape.
//
// In lenient mode, over-produced arrays are truncated, under-produced
// ones padded with safe defaults, and an over-long summary is cut to the
// limit: the caller always receives a schema-conformant best effort. In
// strict mode any deviation is an error instead.
func Normalize(res *Result, fields Fields, lenient bool) error {
	if fields.Titles {
		if err := normalizeList(&res.Titles, MaxTitles, false, "title", lenient); err != nil {
			return err
		}
	}
	if fields.Hashtags {
		if err := normalizeHashtags(res, lenient); err != nil {
			return err
		}
	}
	if fields.Summary {
		if err := normalizeSummary(res, lenient); err != nil {
			return err
		}
	}
	if fields.Eyecatch {
		if err := normalizeList(&res.EyecatchPrompts, EyecatchPrompts, true, "eyecatch prompt", lenient); err != nil {
			return err
		}
	}
	if fields.Scores {
		if err := normalizeScores(res, lenient); err != nil {
			return err
		}
	}
	return nil
}

// normalizeList enforces a length bound on a string slice. exact means
// the list must have exactly bound entries; otherwise bound is a
// maximum and an empty list is acceptable.
func normalizeList(list *[]string, bound int, exact bool, what string, lenient bool) error {
	cleaned := dropEmpty(*list)

	if len(cleaned) > bound {
		if !lenient {
			return fmt.Errorf("analysis: %d %ss, want at most %d", len(cleaned), what, bound)
		}
		cleaned = cleaned[:bound]
	}
	if exact && len(cleaned) < bound {
		if !lenient {
			return fmt.Errorf("analysis: %d %ss, want exactly %d", len(cleaned), what, bound)
		}
		for i := len(cleaned); i < bound; i++ {
			cleaned = append(cleaned, fmt.Sprintf("%s %d", what, i+1))
		}
	}
	*list = cleaned
	return nil
}

// normalizeHashtags enforces exactly HashtagCount tags, each prefixed
// with '#'.
func normalizeHashtags(res *Result, lenient bool) error {
	tags := dropEmpty(res.Hashtags)
	for i, tag := range tags {
		if !strings.HasPrefix(tag, "#") {
			tags[i] = "#" + tag
		}
	}

	if len(tags) > HashtagCount {
		if !lenient {
			return fmt.Errorf("analysis: %d hashtags, want exactly %d", len(tags), HashtagCount)
		}
		tags = tags[:HashtagCount]
	}
	if len(tags) < HashtagCount {
		if !lenient {
			return fmt.Errorf("analysis: %d hashtags, want exactly %d", len(tags), HashtagCount)
		}
		for i := len(tags); i < HashtagCount; i++ {
			tags = append(tags, fmt.Sprintf("#tag%d", i+1))
		}
	}
	res.Hashtags = tags
	return nil
}

func normalizeSummary(res *Result, lenient bool) error {
	res.Summary = strings.TrimSpace(res.Summary)
	if over := len([]rune(res.Summary)) > MaxSummaryRunes; over {
		if !lenient {
			return fmt.Errorf("analysis: summary exceeds %d characters", MaxSummaryRunes)
		}
		res.Summary = truncateRunes(res.Summary, MaxSummaryRunes)
	}
	return nil
}

func normalizeScores(res *Result, lenient bool) error {
	for _, score := range []**int{&res.SEOScore, &res.ViralityScore} {
		if *score == nil {
			if !lenient {
				return fmt.Errorf("analysis: missing score field")
			}
			zero := 0
			*score = &zero
			continue
		}
		v := **score
		if v < 0 || v > 100 {
			if !lenient {
				return fmt.Errorf("analysis: score %d outside [0, 100]", v)
			}
			if v < 0 {
				v = 0
			} else {
				v = 100
			}
			**score = v
		}
	}
	return nil
}

func dropEmpty(list []string) []string {
	out := list[:0]
	for _, s := range list {
		if strings.TrimSpace(s) != "" {
			out = append(out, strings.TrimSpace(s))
		}
	}
	return out
}
