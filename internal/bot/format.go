package bot

import (
	"fmt"
	"strings"

	"cryptonews_bot/internal/model"
)

const welcomeText = `👋 <b>Welcome to Crypto News Bot!</b>

I watch the major crypto news sites and send you fresh headlines with a short market analysis.

• Instant notifications as news breaks
• A daily summary every night
• /latest to catch up any time

Press <b>Subscribe</b> to start.`

const helpText = `<b>Commands</b>
/subscribe - receive news
/unsubscribe - stop receiving news
/latest [n] - the n most recent news items (1-10, default 3)
/settings - choose instant notifications and the daily summary
/status - bot status
/help - this message`

func mark(on bool) string {
	if on {
		return "✅"
	}
	return "❌"
}

func settingsText(p model.Preferences, subscribed bool) string {
	var b strings.Builder
	b.WriteString("⚙️ <b>Your settings</b>\n\n")
	fmt.Fprintf(&b, "%s Instant notifications\n", mark(p.InstantNotifications))
	fmt.Fprintf(&b, "%s Daily summary\n", mark(p.DailySummary))
	if !subscribed {
		b.WriteString("\nYou are not subscribed. Use /subscribe to receive news.")
	} else {
		b.WriteString("\nTap a button to switch a setting.")
	}
	return b.String()
}
