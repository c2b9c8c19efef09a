package domain

// DateLayout is the calendar-date format used for snapshot keys and archive paths.
const DateLayout = "2006-01-02"

// ModelSnapshot is one catalog entry observed on a given date.
// Nil metric fields mean the catalog did not report a value.
type ModelSnapshot struct {
	ModelID           string   `json:"model_id"`
	Name              string   `json:"name"`
	Creator           *string  `json:"creator,omitempty"`
	IntelligenceIndex *float64 `json:"intelligence_index,omitempty"`
	CodingIndex       *float64 `json:"coding_index,omitempty"`
	MathIndex         *float64 `json:"math_index,omitempty"`
	SpeedIndex        *float64 `json:"speed_index,omitempty"`
	PriceInput        *float64 `json:"price_input,omitempty"`
	PriceOutput       *float64 `json:"price_output,omitempty"`
	SpeedTokensPerSec *float64 `json:"speed_tokens_per_sec,omitempty"`
	TTFTSeconds       *float64 `json:"ttft_seconds,omitempty"`
	FetchedAt         string   `json:"fetched_at"`
}

// Valid reports whether the row carries the identity fields required for storage.
func (m ModelSnapshot) Valid() bool {
	return m.ModelID != "" && m.Name != ""
}

// AveragePrice is the mean of input and output price; ok is false when either is missing.
func (m ModelSnapshot) AveragePrice() (avg float64, ok bool) {
	if m.PriceInput == nil || m.PriceOutput == nil {
		return 0, false
	}
	return (*m.PriceInput + *m.PriceOutput) / 2, true
}

// CreatorName returns the creator or an empty string.
func (m ModelSnapshot) CreatorName() string {
	if m.Creator == nil {
		return ""
	}
	return *m.Creator
}

// NewModel is a catalog entry absent from the prior snapshot.
type NewModel struct {
	ModelID           string   `json:"model_id"`
	Name              string   `json:"name"`
	Creator           string   `json:"creator,omitempty"`
	IntelligenceIndex *float64 `json:"intelligence_index,omitempty"`
}

// RankChange records movement inside the top-N intelligence ranking.
type RankChange struct {
	ModelID           string  `json:"model_id"`
	Name              string  `json:"name"`
	OldRank           int     `json:"old_rank"`
	NewRank           int     `json:"new_rank"`
	IntelligenceIndex float64 `json:"intelligence_index"`
}

// PriceChange records a relative move in average price.
type PriceChange struct {
	ModelID   string  `json:"model_id"`
	Name      string  `json:"name"`
	OldPrice  float64 `json:"old_price"`
	NewPrice  float64 `json:"new_price"`
	ChangePct float64 `json:"change_pct"`
}

// ModelUpdates is the day-over-day delta of the catalog.
type ModelUpdates struct {
	NewModels    []NewModel    `json:"new_models"`
	RankChanges  []RankChange  `json:"rank_changes"`
	PriceChanges []PriceChange `json:"price_changes"`
}

// Empty reports whether no change of any kind was detected.
func (u ModelUpdates) Empty() bool {
	return len(u.NewModels) == 0 && len(u.RankChanges) == 0 && len(u.PriceChanges) == 0
}

// Digest is the payload handed to notification channels.
type Digest struct {
	Date   string
	Items  []Item
	Models ModelUpdates
}

// Empty reports whether there is nothing worth publishing.
func (d Digest) Empty() bool {
	return len(d.Items) == 0 && d.Models.Empty()
}
