package telegram

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"InsightFlow/internal/domain"
)

const maxMessageLength = 4096

var (
	markdownSpecial = regexp.MustCompile(`([_*\[\]()~` + "`" + `>#+\-=|{}.!\\])`)
	urlSpecial      = regexp.MustCompile(`([)\\])`)
)

var sourceHeadings = []struct {
	source  string
	heading string
}{
	{domain.SourceGeekNews, "🇰🇷 *GeekNews*"},
	{domain.SourceHackerNews, "🌍 *Hacker News*"},
	{domain.SourceTLDRAI, "🤖 *TLDR AI*"},
}

// Escape escapes every MarkdownV2 control character.
func Escape(text string) string {
	return markdownSpecial.ReplaceAllString(text, `\$1`)
}

func escapeURL(u string) string {
	return urlSpecial.ReplaceAllString(u, `\$1`)
}

// FormatDigest renders the digest as MarkdownV2, grouped by source, followed by model updates.
// Blocks are separated by blank lines so ChunkMessage can split on them.
func FormatDigest(d domain.Digest) string {
	lines := []string{fmt.Sprintf("📰 *InsightFlow Daily Digest \\- %s*\n", Escape(d.Date))}

	for _, group := range groupBySource(d.Items) {
		lines = append(lines, group.heading+"\n")
		for i, it := range group.items {
			lines = append(lines, formatItem(i+1, it))
		}
	}

	if !d.Models.Empty() {
		lines = append(lines, formatModelUpdates(d.Models))
	}

	return strings.Join(lines, "\n")
}

type sourceGroup struct {
	heading string
	items   []domain.Item
}

func groupBySource(items []domain.Item) []sourceGroup {
	bySource := map[string][]domain.Item{}
	var order []string
	for _, it := range items {
		if _, ok := bySource[it.Source]; !ok {
			order = append(order, it.Source)
		}
		bySource[it.Source] = append(bySource[it.Source], it)
	}

	var groups []sourceGroup
	known := map[string]struct{}{}
	for _, h := range sourceHeadings {
		known[h.source] = struct{}{}
		if list := bySource[h.source]; len(list) > 0 {
			groups = append(groups, sourceGroup{heading: h.heading, items: list})
		}
	}
	for _, src := range order {
		if _, ok := known[src]; ok {
			continue
		}
		groups = append(groups, sourceGroup{heading: "📌 *" + Escape(src) + "*", items: bySource[src]})
	}
	return groups
}

func formatItem(n int, it domain.Item) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d\\. *%s*", n, Escape(it.Title))
	if it.Source == domain.SourceHackerNews && it.Score > 0 {
		fmt.Fprintf(&b, " \\(⬆%d\\)", it.Score)
	}
	b.WriteString("\n")
	if summary := it.DisplaySummary(); summary != "" {
		b.WriteString(Escape(summary) + "\n")
	}
	fmt.Fprintf(&b, "🔗 [Original](%s)", escapeURL(it.URL))
	if it.DiscussionURL != "" && it.DiscussionURL != it.URL {
		fmt.Fprintf(&b, " \\| [Discussion](%s)", escapeURL(it.DiscussionURL))
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "⭐ Relevance: %s", Escape(strconv.FormatFloat(it.RelevanceScore, 'f', 2, 64)))
	if len(it.Tags) > 0 {
		b.WriteString(" · " + Escape(strings.Join(it.Tags, ", ")))
	}
	b.WriteString("\n")
	return b.String()
}

func formatModelUpdates(u domain.ModelUpdates) string {
	var b strings.Builder
	b.WriteString("🧠 *AI Model Updates*\n")
	for _, m := range u.NewModels {
		line := "🆕 " + Escape(m.Name)
		if m.Creator != "" {
			line += " \\(" + Escape(m.Creator) + "\\)"
		}
		b.WriteString(line + "\n")
	}
	for _, rc := range u.RankChanges {
		arrow := "📈"
		if rc.NewRank > rc.OldRank {
			arrow = "📉"
		}
		fmt.Fprintf(&b, "%s %s \\#%d → \\#%d \\(%s\\)\n", arrow, Escape(rc.Name), rc.OldRank, rc.NewRank,
			Escape(strconv.FormatFloat(rc.IntelligenceIndex, 'f', 1, 64)))
	}
	for _, pc := range u.PriceChanges {
		fmt.Fprintf(&b, "💲 %s %s → %s \\(%s%%\\)\n", Escape(pc.Name),
			Escape(strconv.FormatFloat(pc.OldPrice, 'f', 2, 64)),
			Escape(strconv.FormatFloat(pc.NewPrice, 'f', 2, 64)),
			Escape(fmt.Sprintf("%+.1f", pc.ChangePct*100)))
	}
	return b.String()
}

// FormatFailure renders a run failure alert.
func FormatFailure(message, timestamp string) string {
	return fmt.Sprintf("⚠️ *InsightFlow run failed*\n\n%s\n\n%s", Escape(message), Escape(timestamp))
}

// ChunkMessage splits text on blank lines into parts of at most maxLen characters.
// Multi-part output gets a "(i/n)" suffix on each part. Blocks longer than a part
// are cut at the character limit.
func ChunkMessage(text string, maxLen int) []string {
	if maxLen <= 0 {
		maxLen = maxMessageLength
	}
	if utf8.RuneCountInString(text) <= maxLen {
		return []string{text}
	}

	// room for the part counter
	limit := maxLen - 16
	var chunks []string
	current := ""
	for _, block := range splitOversized(strings.Split(text, "\n\n"), limit) {
		candidate := block
		if current != "" {
			candidate = current + "\n\n" + block
		}
		if utf8.RuneCountInString(candidate) > limit {
			if current != "" {
				chunks = append(chunks, current)
			}
			current = block
			continue
		}
		current = candidate
	}
	if current != "" {
		chunks = append(chunks, current)
	}

	if total := len(chunks); total > 1 {
		for i := range chunks {
			chunks[i] = fmt.Sprintf("%s\n\n\\(%d/%d\\)", chunks[i], i+1, total)
		}
	}
	return chunks
}

func splitOversized(blocks []string, limit int) []string {
	out := make([]string, 0, len(blocks))
	for _, block := range blocks {
		runes := []rune(block)
		for len(runes) > limit {
			out = append(out, string(runes[:limit]))
			runes = runes[limit:]
		}
		out = append(out, string(runes))
	}
	return out
}
