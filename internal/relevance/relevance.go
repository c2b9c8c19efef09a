// Package relevance decides which items reach the language model and how
// scored items are bucketed for downstream routing.
package relevance

import (
	"strings"

	"github.com/cloudflare/ahocorasick"

	"InsightFlow/internal/domain"
)

// KeywordFilter keeps items whose title or summary mentions a configured keyword.
// Items from bypass sources are curated upstream and always pass.
type KeywordFilter struct {
	matcher  *ahocorasick.Matcher
	keywords []string
	bypass   map[string]struct{}
}

// NewKeywordFilter builds a case-insensitive matcher over keywords.
func NewKeywordFilter(keywords, bypassSources []string) *KeywordFilter {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}

	bypass := make(map[string]struct{}, len(bypassSources))
	for _, src := range bypassSources {
		bypass[src] = struct{}{}
	}

	return &KeywordFilter{
		matcher:  ahocorasick.NewStringMatcher(lowered),
		keywords: lowered,
		bypass:   bypass,
	}
}

// Matches reports whether the item passes the filter.
func (f *KeywordFilter) Matches(item domain.Item) bool {
	if _, ok := f.bypass[item.Source]; ok {
		return true
	}
	if len(f.keywords) == 0 {
		return false
	}
	text := strings.ToLower(item.Title + " " + item.Summary)
	return len(f.matcher.MatchThreadSafe([]byte(text))) > 0
}

// Filter returns the passing items in input order.
func (f *KeywordFilter) Filter(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if f.Matches(it) {
			out = append(out, it)
		}
	}
	return out
}

// Thresholds bucket scored items.
type Thresholds struct {
	Keep    float64
	Notable float64
}

// Classify drops items below Keep and flags the rest as notable at or above Notable.
func Classify(items []domain.Item, th Thresholds) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.RelevanceScore < th.Keep {
			continue
		}
		it.Notable = it.RelevanceScore >= th.Notable
		out = append(out, it)
	}
	return out
}
