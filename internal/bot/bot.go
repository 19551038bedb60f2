// Package bot is the Telegram front end: it handles user commands and
// inline buttons and delivers broadcast messages.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"cryptonews_bot/internal/broadcast"
	"cryptonews_bot/internal/config"
	"cryptonews_bot/internal/model"
	"cryptonews_bot/internal/news"
)

const failureText = "❌ Something went wrong. Please try again later."

type telegramAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Service is the command surface behind the bot.
type Service interface {
	Subscribe(ctx context.Context, id int64) (bool, error)
	Unsubscribe(ctx context.Context, id int64) (bool, error)
	IsSubscribed(id int64) bool
	Latest(n int) []string
	Status() news.Status
	Preferences(ctx context.Context, id int64) (model.Preferences, error)
	TogglePreference(ctx context.Context, id int64, key string) (bool, error)
	ManualDigest(ctx context.Context) news.DigestResult
	Cleanup(ctx context.Context) (int, error)
	ResetFingerprints(ctx context.Context) (string, error)
	AdminStats(ctx context.Context, n int) news.AdminStats
	Location() *time.Location
}

// Runner runs a job on the scheduler worker and waits for it.
type Runner interface {
	Do(ctx context.Context, name string, fn func(ctx context.Context)) error
}

// Bot is the Telegram bot that handles user commands and sends notifications.
type Bot struct {
	api  telegramAPI
	svc  Service
	jobs Runner
	cfg  *config.Config
	log  *slog.Logger
}

var _ broadcast.Sender = (*Bot)(nil)

// New creates a Bot with the given Telegram token. Attach the command
// surface with SetService before calling Run.
func New(token string, cfg *config.Config, log *slog.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot api: %w", err)
	}
	log = log.With("component", "bot")
	log.Info("authorized", "username", api.Self.UserName)

	return &Bot{
		api: api,
		cfg: cfg,
		log: log,
	}, nil
}

// SetService attaches the command surface and the job runner.
func (b *Bot) SetService(svc Service, jobs Runner) {
	b.svc = svc
	b.jobs = jobs
}

// Run starts the bot's long-polling loop, blocking until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update := <-updates:
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	if cb := update.CallbackQuery; cb != nil {
		if cb.Message == nil || cb.From == nil {
			return
		}
		if !b.cfg.IsUserAllowed(cb.From.ID) {
			b.answerCallback(cb.ID, "Access denied.")
			return
		}
		b.handleCallback(ctx, cb)
		return
	}
	msg := update.Message
	if msg == nil || !msg.IsCommand() {
		return
	}
	if msg.From != nil && !b.cfg.IsUserAllowed(msg.From.ID) {
		b.reply(msg.Chat.ID, "Access denied.")
		return
	}
	b.handleCommand(ctx, msg)
}

// SendMessage sends an HTML message to the given chat. It implements
// broadcast.Sender.
func (b *Bot) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := b.api.Send(msg); err != nil {
		return fmt.Errorf("send to %d: %w", chatID, err)
	}
	return nil
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(chatID, text, nil)
}

func (b *Bot) send(chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if markup != nil {
		msg.ReplyMarkup = *markup
	}
	if _, err := b.api.Send(msg); err != nil {
		b.log.Error("send message", "chat_id", chatID, "error", err)
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.Request(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Error("send callback ack", "error", err)
	}
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	cmd := msg.Command()
	args := strings.TrimSpace(msg.CommandArguments())
	chatID := msg.Chat.ID
	var userID int64
	if msg.From != nil {
		userID = msg.From.ID
	}

	b.log.Debug("command", "cmd", cmd, "args", args, "chat_id", chatID, "user_id", userID)

	switch cmd {
	case "start":
		b.handleStart(chatID)
	case "help":
		b.handleHelp(chatID)
	case "subscribe":
		b.handleSubscribe(ctx, chatID)
	case "unsubscribe":
		b.handleUnsubscribe(ctx, chatID)
	case "latest":
		b.handleLatest(chatID, args)
	case "status":
		b.handleStatus(chatID)
	case "settings":
		b.handleSettings(ctx, chatID)
	case cmdAdmin, cmdDailySummary, cmdCleanup, cmdResetSeen:
		if !b.cfg.IsAdmin(userID) {
			b.log.Warn("admin command denied", "cmd", cmd, "user_id", userID)
			b.reply(chatID, "Access denied.")
			return
		}
		b.handleAdminCommand(ctx, chatID, cmd)
	default:
		b.reply(chatID, "Unknown command. Use /help for a list of commands.")
	}
}
