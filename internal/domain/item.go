package domain

// Source tags used by the built-in scanners.
const (
	SourceGeekNews   = "geeknews"
	SourceHackerNews = "hackernews"
	SourceTLDRAI     = "tldrai"
)

// Item is a single news entry collected from an upstream source.
type Item struct {
	Source         string   `json:"source"`
	SourceID       string   `json:"source_id"`
	Title          string   `json:"title"`
	URL            string   `json:"url"`
	DiscussionURL  string   `json:"discussion_url"`
	Summary        string   `json:"summary"`
	Score          int      `json:"score"`
	PublishedAt    string   `json:"published_at"`
	AISummary      string   `json:"ai_summary"`
	RelevanceScore float64  `json:"relevance_score"`
	Notable        bool     `json:"notable"`
	Tags           []string `json:"tags"`
}

// IdentityKey is the deduplication key: "<source>:<source_id>".
func (i Item) IdentityKey() string {
	return i.Source + ":" + i.SourceID
}

// DisplaySummary prefers the model-written summary over the upstream one.
func (i Item) DisplaySummary() string {
	if i.AISummary != "" {
		return i.AISummary
	}
	return i.Summary
}

// NotableItems returns the notable subset, keeping order.
func NotableItems(items []Item) []Item {
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if it.Notable {
			out = append(out, it)
		}
	}
	return out
}
