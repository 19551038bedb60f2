package sentiment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"cryptonews_bot/internal/keywords"
	"cryptonews_bot/internal/model"
)

// Impact is the market direction suggested by a news item.
type Impact string

// Impact values.
const (
	Bullish Impact = "Bullish"
	Bearish Impact = "Bearish"
	Neutral Impact = "Neutral"
)

var (
	bullishWords = keywords.List{Name: string(Bullish), Words: []string{
		"rise", "surge", "pump", "bull", "green", "gain", "profit", "moon", "rocket",
		"adoption", "partnership", "investment", "rally", "record high",
		"yüksəliş", "artım", "qazanc", "tərəqqi", "inkişaf",
	}}
	bearishWords = keywords.List{Name: string(Bearish), Words: []string{
		"fall", "drop", "crash", "bear", "red", "loss", "dump", "decline", "down",
		"fear", "sell", "panic", "hack", "exploit",
		"düşüş", "azalma", "itki", "tənəzzül", "böhran",
	}}
	neutralWords = keywords.List{Name: string(Neutral), Words: []string{
		"stable", "sideways", "consolidation", "analysis", "report", "update",
		"news", "announcement", "study",
		"sabit", "hesabat", "yenilənmə", "elan",
	}}
)

type verdict struct {
	rationale string
	risk      string
}

var verdicts = map[Impact]verdict{
	Bullish: {rationale: "The news sends positive signals for the crypto market.", risk: "Medium"},
	Bearish: {rationale: "The news may weigh on the market.", risk: "High"},
	Neutral: {rationale: "The news is unlikely to move the market significantly.", risk: "Low"},
}

// Classify scores the document against the keyword lists. A direction wins
// only with a strictly higher count than both others; anything else is Neutral.
func Classify(doc keywords.Doc, scope keywords.Scope) Impact {
	counts := keywords.Tally(doc, scope, bullishWords, bearishWords, neutralWords)
	bull, bear, neutral := counts[string(Bullish)], counts[string(Bearish)], counts[string(Neutral)]
	switch {
	case bull > bear && bull > neutral:
		return Bullish
	case bear > bull && bear > neutral:
		return Bearish
	default:
		return Neutral
	}
}

// Fallback renders the keyword-based assessment of one item.
func Fallback(item model.NewsItem) string {
	impact := Classify(keywords.Doc{Title: item.Title, Body: item.Body}, keywords.ScopeAll)
	v := verdicts[impact]
	return fmt.Sprintf("📈 Market impact: %s\n📊 Analysis: %s\n⚠️ Risk: %s", impact, v.rationale, v.risk)
}

const titlesPerSource = 3

// FallbackBatch renders a digest from headline keywords only. It returns
// an empty string for no items.
func FallbackBatch(items []model.NewsItem) string {
	if len(items) == 0 {
		return ""
	}

	bySource := lo.GroupBy(items, func(it model.NewsItem) string { return it.Source })
	tally := map[Impact]int{}
	for _, it := range items {
		tally[Classify(keywords.Doc{Title: it.Title}, keywords.ScopeTitle)]++
	}

	sources := lo.Keys(bySource)
	sort.Slice(sources, func(i, j int) bool {
		ni, nj := len(bySource[sources[i]]), len(bySource[sources[j]])
		if ni != nj {
			return ni > nj
		}
		return sources[i] < sources[j]
	})

	var b strings.Builder
	fmt.Fprintf(&b, "📊 %d news items from %d sources\n", len(items), len(sources))

	b.WriteString("\n📰 By source:\n")
	for _, s := range sources {
		group := bySource[s]
		fmt.Fprintf(&b, "• %s (%d)\n", s, len(group))
		for _, it := range lo.Slice(group, 0, titlesPerSource) {
			fmt.Fprintf(&b, "  - %s\n", model.Truncate(it.Title, 90))
		}
	}

	b.WriteString("\n📈 Sentiment:\n")
	fmt.Fprintf(&b, "🟢 Bullish headlines: %d\n", tally[Bullish])
	fmt.Fprintf(&b, "🔴 Bearish headlines: %d\n", tally[Bearish])
	fmt.Fprintf(&b, "⚪ Other: %d\n", tally[Neutral])
	fmt.Fprintf(&b, "\nOverall mood: %s", mood(tally[Bullish], tally[Bearish]))
	return b.String()
}

func mood(bull, bear int) string {
	switch {
	case bull > bear:
		return string(Bullish)
	case bear > bull:
		return string(Bearish)
	default:
		return "Mixed"
	}
}
