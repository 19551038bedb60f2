package news

import (
	"fmt"
	"html"
	"strings"
	"time"

	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/model"
)

const (
	timeLayout    = "02.01.2006 15:04"
	dateLayout    = "02.01.2006"
	defaultEmoji  = "📰"
	recentInStats = 5
)

var sourceEmoji = map[string]string{
	"CoinDesk":      "📰",
	"The Block":     "🔷",
	"Cointelegraph": "📊",
	"Crypto News":   "🌐",
	"NewsBTC":       "₿",
}

// SourceEmoji returns the emoji shown in front of items from source.
func SourceEmoji(source string) string {
	if e, ok := sourceEmoji[source]; ok {
		return e
	}
	return defaultEmoji
}

// FormatItem renders one news item as an HTML Telegram message. The analysis
// block is omitted when analysis is empty.
func FormatItem(item model.NewsItem, analysis string, loc *time.Location) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>%s</b>\n\n", SourceEmoji(item.Source), html.EscapeString(item.Title))
	fmt.Fprintf(&b, "📡 Source: %s\n", html.EscapeString(item.Source))
	if !item.PublishedAt.IsZero() {
		t := item.PublishedAt.In(loc)
		fmt.Fprintf(&b, "🕐 %s (%s)\n", t.Format(timeLayout), zoneName(t))
	}
	if item.URL != "" {
		fmt.Fprintf(&b, "🔗 <a href=\"%s\">Read more</a>\n", html.EscapeString(item.URL))
	}
	if analysis = strings.TrimSpace(analysis); analysis != "" {
		fmt.Fprintf(&b, "\n🧠 <b>Analysis:</b>\n%s", html.EscapeString(analysis))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatDigest renders the daily summary message.
func FormatDigest(summary string, count int, now time.Time, loc *time.Location) string {
	header := fmt.Sprintf("📊 <b>Daily crypto summary</b> (%s)\n\n", now.In(loc).Format(dateLayout))
	switch {
	case count == 0:
		return header + "No news in the last 24 hours."
	case strings.TrimSpace(summary) == "":
		return header + fmt.Sprintf("⚠️ The summary could not be generated due to a technical error. %d news items were recorded anyway.", count)
	default:
		return header + html.EscapeString(strings.TrimSpace(summary))
	}
}

// FormatStatus renders the /status answer.
func FormatStatus(st Status, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("📊 <b>Bot status</b>\n\n")
	fmt.Fprintf(&b, "👥 Subscribers: %d\n", st.Subscribers)
	fmt.Fprintf(&b, "🗂 Seen news: %d\n", st.SeenCount)
	if st.LastPoll.IsZero() {
		b.WriteString("🕐 Last check: never\n")
	} else {
		t := st.LastPoll.In(loc)
		fmt.Fprintf(&b, "🕐 Last check: %s (%s)\n", t.Format(timeLayout), zoneName(t))
	}
	fmt.Fprintf(&b, "🔄 Check interval: %s\n", st.PollInterval)
	fmt.Fprintf(&b, "📨 Max news per check: %d\n", st.MaxPerPoll)
	fmt.Fprintf(&b, "📡 Sources: %s\n", html.EscapeString(strings.Join(st.Sources, ", ")))
	fmt.Fprintf(&b, "🧠 Analysis: %s", html.EscapeString(st.AIProvider))
	return b.String()
}

// FormatAdminStats renders the /admin answer.
func FormatAdminStats(st AdminStats, loc *time.Location) string {
	var b strings.Builder
	b.WriteString("🛠 <b>Admin statistics</b>\n\n")
	fmt.Fprintf(&b, "👥 Subscribers: %d (instant: %d, daily: %d)\n", st.Subscribers, st.InstantEnabled, st.DigestEnabled)
	fmt.Fprintf(&b, "🗂 Seen in memory: %d\n", st.Fingerprints.TotalSeen)
	if st.Fingerprints.FileEntryCount < 0 {
		b.WriteString("💾 Seen persisted: unreadable\n")
	} else {
		fmt.Fprintf(&b, "💾 Seen persisted: %d\n", st.Fingerprints.FileEntryCount)
	}
	fmt.Fprintf(&b, "📨 Delivered since start: %d in %d checks\n", st.Delivered, st.Polls)
	writeRecent(&b, st.Fingerprints, loc)
	return strings.TrimRight(b.String(), "\n")
}

func writeRecent(b *strings.Builder, st fingerprint.Stats, loc *time.Location) {
	if len(st.MostRecent) == 0 {
		return
	}
	b.WriteString("\n<b>Most recent:</b>\n")
	for _, r := range st.MostRecent {
		fmt.Fprintf(b, "• %s %s (%s)\n",
			r.Timestamp().In(loc).Format(timeLayout),
			html.EscapeString(r.TitleExcerpt),
			html.EscapeString(r.Source))
	}
}

func zoneName(t time.Time) string {
	name, _ := t.Zone()
	return name
}
