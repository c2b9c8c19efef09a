// Package delta compares two catalog snapshots and reports new entries,
// rank movement inside the top-N and relative price changes.
package delta

import (
	"math"
	"sort"

	"InsightFlow/internal/domain"
)

const (
	DefaultTopN           = 10
	DefaultPriceThreshold = 0.10
)

// Options tunes Compute.
type Options struct {
	// TopN bounds the intelligence ranking that is compared.
	TopN int
	// PriceThreshold is the minimum absolute relative change reported, e.g. 0.10.
	// Zero reports every non-zero change; negative values count as zero.
	PriceThreshold float64
}

// DefaultOptions compares the top 10 and reports price moves of 10% or more.
func DefaultOptions() Options {
	return Options{TopN: DefaultTopN, PriceThreshold: DefaultPriceThreshold}
}

func (o Options) normalized() Options {
	if o.TopN <= 0 {
		o.TopN = DefaultTopN
	}
	if o.PriceThreshold < 0 {
		o.PriceThreshold = 0
	}
	return o
}

// Compute derives the day-over-day delta. Every list is empty when prior is empty.
// Entries with equal intelligence index keep their relative input order when ranked.
func Compute(today, prior []domain.ModelSnapshot, opts Options) domain.ModelUpdates {
	updates := domain.ModelUpdates{
		NewModels:    []domain.NewModel{},
		RankChanges:  []domain.RankChange{},
		PriceChanges: []domain.PriceChange{},
	}
	if len(prior) == 0 {
		return updates
	}
	opts = opts.normalized()

	updates.NewModels = newModels(today, prior)
	updates.RankChanges = rankChanges(today, prior, opts.TopN)
	updates.PriceChanges = priceChanges(today, prior, opts.PriceThreshold)
	return updates
}

func newModels(today, prior []domain.ModelSnapshot) []domain.NewModel {
	known := make(map[string]struct{}, len(prior))
	for _, m := range prior {
		known[m.ModelID] = struct{}{}
	}

	out := []domain.NewModel{}
	for _, m := range today {
		if _, ok := known[m.ModelID]; ok {
			continue
		}
		out = append(out, domain.NewModel{
			ModelID:           m.ModelID,
			Name:              m.Name,
			Creator:           m.CreatorName(),
			IntelligenceIndex: m.IntelligenceIndex,
		})
	}
	return out
}

// Ranking returns the top-n rows by intelligence index with their 1-based rank.
// Rows without an index are excluded.
func Ranking(rows []domain.ModelSnapshot, n int) []domain.ModelSnapshot {
	ranked := make([]domain.ModelSnapshot, 0, len(rows))
	for _, m := range rows {
		if m.IntelligenceIndex != nil {
			ranked = append(ranked, m)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return *ranked[i].IntelligenceIndex > *ranked[j].IntelligenceIndex
	})
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func rankChanges(today, prior []domain.ModelSnapshot, n int) []domain.RankChange {
	oldRanks := make(map[string]int, n)
	for i, m := range Ranking(prior, n) {
		oldRanks[m.ModelID] = i + 1
	}

	out := []domain.RankChange{}
	for i, m := range Ranking(today, n) {
		oldRank, ok := oldRanks[m.ModelID]
		if !ok || oldRank == i+1 {
			continue
		}
		out = append(out, domain.RankChange{
			ModelID:           m.ModelID,
			Name:              m.Name,
			OldRank:           oldRank,
			NewRank:           i + 1,
			IntelligenceIndex: *m.IntelligenceIndex,
		})
	}
	return out
}

func priceChanges(today, prior []domain.ModelSnapshot, threshold float64) []domain.PriceChange {
	oldPrices := make(map[string]float64, len(prior))
	for _, m := range prior {
		if avg, ok := m.AveragePrice(); ok {
			oldPrices[m.ModelID] = avg
		}
	}

	out := []domain.PriceChange{}
	for _, m := range today {
		newAvg, ok := m.AveragePrice()
		if !ok {
			continue
		}
		oldAvg, ok := oldPrices[m.ModelID]
		if !ok || oldAvg <= 0 {
			continue
		}
		change := (newAvg - oldAvg) / oldAvg
		// float tolerance at the boundary
		if change == 0 || math.Abs(change) < threshold-1e-9 {
			continue
		}
		out = append(out, domain.PriceChange{
			ModelID:   m.ModelID,
			Name:      m.Name,
			OldPrice:  oldAvg,
			NewPrice:  newAvg,
			ChangePct: change,
		})
	}
	return out
}
