package bot

import (
	"context"
	"fmt"
	"html"

	"cryptonews_bot/internal/news"
)

const (
	cmdAdmin        = "admin"
	cmdDailySummary = "daily_summary"
	cmdCleanup      = "cleanup"
	cmdResetSeen    = "reset_seen"

	adminRecent = 5
)

func (b *Bot) handleStart(chatID int64) {
	kb := startKeyboard()
	b.send(chatID, welcomeText, &kb)
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID, helpText)
}

func (b *Bot) handleSubscribe(ctx context.Context, chatID int64) {
	added, err := b.svc.Subscribe(ctx, chatID)
	if err != nil {
		b.log.Error("subscribe", "chat_id", chatID, "error", err)
		b.reply(chatID, failureText)
		return
	}
	if !added {
		b.reply(chatID, "ℹ️ You are already subscribed.")
		return
	}
	b.reply(chatID, "✅ You are subscribed! Fresh crypto news will arrive here.\nUse /settings to choose what you receive.")
}

func (b *Bot) handleUnsubscribe(ctx context.Context, chatID int64) {
	removed, err := b.svc.Unsubscribe(ctx, chatID)
	if err != nil {
		b.log.Error("unsubscribe", "chat_id", chatID, "error", err)
		b.reply(chatID, failureText)
		return
	}
	if !removed {
		b.reply(chatID, "ℹ️ You are not subscribed.")
		return
	}
	b.reply(chatID, "👋 You are unsubscribed. Use /subscribe to come back any time.")
}

func (b *Bot) handleLatest(chatID int64, args string) {
	n, err := ParseCount(args, news.DefaultLatest, news.MaxLatest)
	if err != nil {
		b.reply(chatID, fmt.Sprintf("Usage: /latest [1-%d]", news.MaxLatest))
		return
	}
	msgs := b.svc.Latest(n)
	if len(msgs) == 0 {
		b.reply(chatID, "📭 No news recorded in the last 24 hours yet.")
		return
	}
	for _, m := range msgs {
		b.reply(chatID, m)
	}
}

func (b *Bot) handleStatus(chatID int64) {
	b.reply(chatID, news.FormatStatus(b.svc.Status(), b.svc.Location()))
}

func (b *Bot) handleSettings(ctx context.Context, chatID int64) {
	p, err := b.svc.Preferences(ctx, chatID)
	if err != nil {
		b.log.Error("load preferences", "chat_id", chatID, "error", err)
		b.reply(chatID, failureText)
		return
	}
	kb := settingsKeyboard(p)
	b.send(chatID, settingsText(p, b.svc.IsSubscribed(chatID)), &kb)
}

func (b *Bot) handleAdminCommand(ctx context.Context, chatID int64, cmd string) {
	switch cmd {
	case cmdAdmin:
		st := b.svc.AdminStats(ctx, adminRecent)
		b.reply(chatID, news.FormatAdminStats(st, b.svc.Location()))

	case cmdDailySummary:
		b.reply(chatID, "⏳ Preparing the daily summary...")
		var res news.DigestResult
		if err := b.jobs.Do(ctx, "manual_digest", func(ctx context.Context) {
			res = b.svc.ManualDigest(ctx)
		}); err != nil {
			b.log.Error("manual digest", "error", err)
			b.reply(chatID, failureText)
			return
		}
		b.reply(chatID, fmt.Sprintf("📨 Daily summary of %d items sent to %d subscribers (%d failed).",
			res.Items, res.Report.Delivered, len(res.Report.Failed)))

	case cmdCleanup:
		var (
			removed int
			jobErr  error
		)
		if err := b.jobs.Do(ctx, "manual_cleanup", func(ctx context.Context) {
			removed, jobErr = b.svc.Cleanup(ctx)
		}); err != nil {
			jobErr = err
		}
		if jobErr != nil {
			b.log.Error("manual cleanup", "error", jobErr)
			b.reply(chatID, failureText)
			return
		}
		b.reply(chatID, fmt.Sprintf("🧹 Cleanup done: %d expired records removed.", removed))

	case cmdResetSeen:
		backup, err := b.svc.ResetFingerprints(ctx)
		if err != nil {
			b.log.Error("reset fingerprints", "error", err)
			b.reply(chatID, failureText)
			return
		}
		if backup == "" {
			backup = "none"
		}
		b.reply(chatID, fmt.Sprintf("♻️ Seen news cleared. Backup: <code>%s</code>", html.EscapeString(backup)))
	}
}
