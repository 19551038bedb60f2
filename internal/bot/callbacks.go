package bot

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cryptonews_bot/internal/model"
)

const (
	cbSubscribe = "subscribe"
	cbLatest    = "latest"
	cbHelp      = "help"
	cbToggle    = "toggle"
)

func (b *Bot) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	chatID := cb.Message.Chat.ID
	action, arg := ParseCallback(cb.Data)

	b.log.Info("callback",
		"action", action,
		"arg", arg,
		"chat_id", chatID,
		"user_id", cb.From.ID,
		"username", cb.From.UserName,
	)

	switch action {
	case cbSubscribe:
		b.answerCallback(cb.ID, "")
		b.handleSubscribe(ctx, chatID)
	case cbLatest:
		b.answerCallback(cb.ID, "")
		b.handleLatest(chatID, "")
	case cbHelp:
		b.answerCallback(cb.ID, "")
		b.handleHelp(chatID)
	case cbToggle:
		b.handleToggle(ctx, cb, arg)
	default:
		b.answerCallback(cb.ID, "")
	}
}

func (b *Bot) handleToggle(ctx context.Context, cb *tgbotapi.CallbackQuery, key string) {
	chatID := cb.Message.Chat.ID
	value, err := b.svc.TogglePreference(ctx, chatID, key)
	if err != nil {
		b.log.Error("toggle preference", "chat_id", chatID, "key", key, "error", err)
		b.answerCallback(cb.ID, failureText)
		return
	}
	b.answerCallback(cb.ID, toggleNotice(key, value))

	p, err := b.svc.Preferences(ctx, chatID)
	if err != nil {
		b.log.Error("load preferences", "chat_id", chatID, "error", err)
		return
	}
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, cb.Message.MessageID,
		settingsText(p, b.svc.IsSubscribed(chatID)), settingsKeyboard(p))
	edit.ParseMode = tgbotapi.ModeHTML
	if _, err := b.api.Send(edit); err != nil {
		b.log.Error("update settings message", "chat_id", chatID, "error", err)
	}
}

func toggleNotice(key string, on bool) string {
	name := "Instant notifications"
	if key == model.PrefDailySummary {
		name = "Daily summary"
	}
	if on {
		return name + " enabled"
	}
	return name + " disabled"
}

func startKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔔 Subscribe", cbSubscribe),
			tgbotapi.NewInlineKeyboardButtonData("📰 Latest news", cbLatest),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("❓ Help", cbHelp),
		),
	)
}

func settingsKeyboard(p model.Preferences) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark(p.InstantNotifications)+" Instant notifications",
				cbToggle+":"+model.PrefInstantNotifications),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData(mark(p.DailySummary)+" Daily summary",
				cbToggle+":"+model.PrefDailySummary),
		),
	)
}
