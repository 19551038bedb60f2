package bot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"

	"cryptonews_bot/internal/broadcast"
	"cryptonews_bot/internal/config"
	"cryptonews_bot/internal/fingerprint"
	"cryptonews_bot/internal/model"
	"cryptonews_bot/internal/news"
	"cryptonews_bot/internal/subscriber"
)

// --- mocks ---

type sentMsg struct {
	ChatID    int64
	Text      string
	ParseMode string
	Markup    any
}

type mockAPI struct {
	mu        sync.Mutex
	sent      []sentMsg
	edits     []tgbotapi.EditMessageTextConfig
	callbacks []tgbotapi.CallbackConfig
	sendErr   error
}

func (m *mockAPI) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return tgbotapi.Message{}, m.sendErr
	}
	switch msg := c.(type) {
	case tgbotapi.MessageConfig:
		m.sent = append(m.sent, sentMsg{ChatID: msg.ChatID, Text: msg.Text, ParseMode: msg.ParseMode, Markup: msg.ReplyMarkup})
	case tgbotapi.EditMessageTextConfig:
		m.edits = append(m.edits, msg)
	}
	return tgbotapi.Message{}, nil
}

func (m *mockAPI) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := c.(tgbotapi.CallbackConfig); ok {
		m.callbacks = append(m.callbacks, cb)
	}
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (m *mockAPI) GetUpdatesChan(_ tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel {
	return make(tgbotapi.UpdatesChannel)
}

func (m *mockAPI) StopReceivingUpdates() {}

func (m *mockAPI) lastText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return ""
	}
	return m.sent[len(m.sent)-1].Text
}

func (m *mockAPI) allTexts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	for i, s := range m.sent {
		out[i] = s.Text
	}
	return out
}

type fakeService struct {
	mu          sync.Mutex
	subscribed  map[int64]bool
	prefs       map[int64]model.Preferences
	latest      []string
	failWrites  bool
	digests     int
	cleanups    int
	resets      int
	lastLatestN int
}

func newFakeService() *fakeService {
	return &fakeService{
		subscribed: make(map[int64]bool),
		prefs:      make(map[int64]model.Preferences),
	}
}

var errStorage = errors.New("disk full")

func (f *fakeService) Subscribe(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWrites {
		return false, errStorage
	}
	if f.subscribed[id] {
		return false, nil
	}
	f.subscribed[id] = true
	return true, nil
}

func (f *fakeService) Unsubscribe(_ context.Context, id int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	was := f.subscribed[id]
	delete(f.subscribed, id)
	return was, nil
}

func (f *fakeService) IsSubscribed(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribed[id]
}

func (f *fakeService) Latest(n int) []string {
	f.lastLatestN = n
	if len(f.latest) > n {
		return f.latest[:n]
	}
	return f.latest
}

func (f *fakeService) Status() news.Status {
	return news.Status{Subscribers: len(f.subscribed), PollInterval: 90 * time.Second, MaxPerPoll: 5, Sources: []string{"CoinDesk"}, AIProvider: "gemini"}
}

func (f *fakeService) Preferences(_ context.Context, id int64) (model.Preferences, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prefs[id]
	if !ok {
		p = model.DefaultPreferences(time.Time{})
		f.prefs[id] = p
	}
	return p, nil
}

func (f *fakeService) TogglePreference(_ context.Context, id int64, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.prefs[id]
	if !ok {
		p = model.DefaultPreferences(time.Time{})
	}
	var v bool
	switch key {
	case model.PrefInstantNotifications:
		p.InstantNotifications = !p.InstantNotifications
		v = p.InstantNotifications
	case model.PrefDailySummary:
		p.DailySummary = !p.DailySummary
		v = p.DailySummary
	default:
		return false, subscriber.ErrUnknownPreference
	}
	f.prefs[id] = p
	return v, nil
}

func (f *fakeService) ManualDigest(context.Context) news.DigestResult {
	f.digests++
	return news.DigestResult{Items: 4, Report: broadcast.Report{Attempted: 3, Delivered: 2, Failed: []int64{9}}}
}

func (f *fakeService) Cleanup(context.Context) (int, error) {
	f.cleanups++
	return 6, nil
}

func (f *fakeService) ResetFingerprints(context.Context) (string, error) {
	f.resets++
	return "data/seen_news.json.20260601T120000.000.bak", nil
}

func (f *fakeService) AdminStats(context.Context, int) news.AdminStats {
	return news.AdminStats{Subscribers: 2, InstantEnabled: 2, DigestEnabled: 1, Fingerprints: fingerprint.Stats{TotalSeen: 3, FileEntryCount: 3}}
}

func (f *fakeService) Location() *time.Location { return time.UTC }

type inlineRunner struct {
	names []string
}

func (r *inlineRunner) Do(ctx context.Context, name string, fn func(ctx context.Context)) error {
	r.names = append(r.names, name)
	fn(ctx)
	return nil
}

// --- helpers ---

const (
	adminID = int64(1)
	userID  = int64(2)
)

func newTestBot(t *testing.T) (*Bot, *mockAPI, *fakeService, *inlineRunner) {
	t.Helper()
	api := &mockAPI{}
	svc := newFakeService()
	jobs := &inlineRunner{}
	b := &Bot{
		api: api,
		cfg: &config.Config{AdminUsers: []int64{adminID}},
		log: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	b.SetService(svc, jobs)
	return b, api, svc, jobs
}

func command(from int64, text string) tgbotapi.Update {
	cmd := strings.Fields(text)[0]
	return tgbotapi.Update{Message: &tgbotapi.Message{
		From:     &tgbotapi.User{ID: from},
		Chat:     &tgbotapi.Chat{ID: from},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(cmd)}},
	}}
}

func callback(from int64, data string) tgbotapi.Update {
	return tgbotapi.Update{CallbackQuery: &tgbotapi.CallbackQuery{
		ID:      "cb-1",
		From:    &tgbotapi.User{ID: from, UserName: "tester"},
		Message: &tgbotapi.Message{MessageID: 77, Chat: &tgbotapi.Chat{ID: from}},
		Data:    data,
	}}
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()
	if !strings.Contains(got, want) {
		t.Errorf("expected %q to contain %q", got, want)
	}
}

// --- tests ---

func TestSendMessage(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	if err := b.SendMessage(context.Background(), 5, "<b>hi</b>"); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	want := []sentMsg{{ChatID: 5, Text: "<b>hi</b>", ParseMode: tgbotapi.ModeHTML}}
	if diff := cmp.Diff(want, api.sent); diff != "" {
		t.Errorf("sent mismatch (-want +got):\n%s", diff)
	}

	api.sendErr = errors.New("Forbidden: bot was blocked by the user")
	if err := b.SendMessage(context.Background(), 5, "x"); err == nil {
		t.Error("expected send error")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.SendMessage(ctx, 5, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("SendMessage on cancelled ctx = %v", err)
	}
}

func TestCommands(t *testing.T) {
	tests := []struct {
		name string
		from int64
		text string
		want string
	}{
		{name: "start", from: userID, text: "/start", want: "Welcome to Crypto News Bot"},
		{name: "help", from: userID, text: "/help", want: "/latest [n]"},
		{name: "subscribe", from: userID, text: "/subscribe", want: "You are subscribed"},
		{name: "unsubscribe when not subscribed", from: userID, text: "/unsubscribe", want: "You are not subscribed"},
		{name: "latest empty", from: userID, text: "/latest", want: "No news recorded"},
		{name: "latest bad count", from: userID, text: "/latest 50", want: "Usage: /latest [1-10]"},
		{name: "status", from: userID, text: "/status", want: "Check interval: 1m30s"},
		{name: "settings", from: userID, text: "/settings", want: "✅ Instant notifications"},
		{name: "unknown", from: userID, text: "/foo", want: "Unknown command"},
		{name: "admin denied", from: userID, text: "/admin", want: "Access denied."},
		{name: "reset denied", from: userID, text: "/reset_seen", want: "Access denied."},
		{name: "admin stats", from: adminID, text: "/admin", want: "Subscribers: 2 (instant: 2, daily: 1)"},
		{name: "cleanup", from: adminID, text: "/cleanup", want: "6 expired records removed"},
		{name: "reset", from: adminID, text: "/reset_seen", want: "seen_news.json.20260601T120000.000.bak"},
		{name: "daily summary", from: adminID, text: "/daily_summary", want: "4 items sent to 2 subscribers (1 failed)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _, _ := newTestBot(t)
			b.handleUpdate(context.Background(), command(tt.from, tt.text))
			requireContains(t, api.lastText(), tt.want)
		})
	}
}

func TestSubscribeTwice(t *testing.T) {
	b, api, svc, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(userID, "/subscribe"))
	b.handleUpdate(ctx, command(userID, "/subscribe"))

	requireContains(t, api.lastText(), "already subscribed")
	if !svc.IsSubscribed(userID) {
		t.Error("expected user to be subscribed")
	}

	b.handleUpdate(ctx, command(userID, "/unsubscribe"))
	requireContains(t, api.lastText(), "You are unsubscribed")
}

func TestSubscribeFailure(t *testing.T) {
	b, api, svc, _ := newTestBot(t)
	svc.failWrites = true

	b.handleUpdate(context.Background(), command(userID, "/subscribe"))
	if got := api.lastText(); got != failureText {
		t.Errorf("reply = %q, want %q", got, failureText)
	}
}

func TestLatestSendsEachItem(t *testing.T) {
	b, api, svc, _ := newTestBot(t)
	svc.latest = []string{"one", "two", "three", "four"}

	b.handleUpdate(context.Background(), command(userID, "/latest 2"))

	if diff := cmp.Diff([]string{"one", "two"}, api.allTexts()); diff != "" {
		t.Errorf("messages mismatch (-want +got):\n%s", diff)
	}
	if svc.lastLatestN != 2 {
		t.Errorf("Latest called with %d, want 2", svc.lastLatestN)
	}

	api.sent = nil
	b.handleUpdate(context.Background(), command(userID, "/latest"))
	if svc.lastLatestN != news.DefaultLatest {
		t.Errorf("Latest called with %d, want default %d", svc.lastLatestN, news.DefaultLatest)
	}
}

func TestAdminJobsRunOnScheduler(t *testing.T) {
	b, _, svc, jobs := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, command(adminID, "/daily_summary"))
	b.handleUpdate(ctx, command(adminID, "/cleanup"))

	if diff := cmp.Diff([]string{"manual_digest", "manual_cleanup"}, jobs.names); diff != "" {
		t.Errorf("jobs mismatch (-want +got):\n%s", diff)
	}
	if svc.digests != 1 || svc.cleanups != 1 {
		t.Errorf("digests = %d, cleanups = %d, want 1 and 1", svc.digests, svc.cleanups)
	}
}

func TestAllowList(t *testing.T) {
	b, api, svc, _ := newTestBot(t)
	b.cfg.AllowedUsers = []int64{adminID}

	b.handleUpdate(context.Background(), command(userID, "/subscribe"))

	if got := api.lastText(); got != "Access denied." {
		t.Errorf("reply = %q, want access denied", got)
	}
	if svc.IsSubscribed(userID) {
		t.Error("user outside the allow list was subscribed")
	}
}

func TestNonCommandIgnored(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		From: &tgbotapi.User{ID: userID},
		Chat: &tgbotapi.Chat{ID: userID},
		Text: "hello",
	}})
	if len(api.allTexts()) != 0 {
		t.Errorf("expected no reply, got %v", api.allTexts())
	}
}

func TestCallbacks(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{name: "subscribe", data: "subscribe", want: "You are subscribed"},
		{name: "latest", data: "latest", want: "No news recorded"},
		{name: "help", data: "help", want: "<b>Commands</b>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, api, _, _ := newTestBot(t)
			b.handleUpdate(context.Background(), callback(userID, tt.data))
			requireContains(t, api.lastText(), tt.want)
			if len(api.callbacks) != 1 {
				t.Errorf("callback acks = %d, want 1", len(api.callbacks))
			}
		})
	}
}

func TestToggleCallback(t *testing.T) {
	b, api, svc, _ := newTestBot(t)
	ctx := context.Background()

	b.handleUpdate(ctx, callback(userID, "toggle:"+model.PrefDailySummary))

	p, _ := svc.Preferences(ctx, userID)
	if p.DailySummary {
		t.Error("expected daily summary to be disabled")
	}
	if len(api.callbacks) != 1 || api.callbacks[0].Text != "Daily summary disabled" {
		t.Errorf("callback acks = %+v", api.callbacks)
	}
	if len(api.edits) != 1 {
		t.Fatalf("edits = %d, want 1", len(api.edits))
	}
	edit := api.edits[0]
	if edit.MessageID != 77 {
		t.Errorf("edited message %d, want 77", edit.MessageID)
	}
	requireContains(t, edit.Text, "❌ Daily summary")
	if edit.ReplyMarkup == nil || len(edit.ReplyMarkup.InlineKeyboard) != 2 {
		t.Errorf("edit markup = %+v, want two rows", edit.ReplyMarkup)
	}
}

func TestToggleUnknownPreference(t *testing.T) {
	b, api, _, _ := newTestBot(t)

	b.handleUpdate(context.Background(), callback(userID, "toggle:dark_mode"))

	if len(api.callbacks) != 1 || api.callbacks[0].Text != failureText {
		t.Errorf("callback acks = %+v, want failure notice", api.callbacks)
	}
	if len(api.edits) != 0 {
		t.Errorf("edits = %d, want 0", len(api.edits))
	}
}

func TestStartKeyboard(t *testing.T) {
	b, api, _, _ := newTestBot(t)
	b.handleUpdate(context.Background(), command(userID, "/start"))

	kb, ok := api.sent[0].Markup.(tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("markup type = %T", api.sent[0].Markup)
	}
	var data []string
	for _, row := range kb.InlineKeyboard {
		for _, btn := range row {
			data = append(data, *btn.CallbackData)
		}
	}
	if diff := cmp.Diff([]string{"subscribe", "latest", "help"}, data); diff != "" {
		t.Errorf("callback data mismatch (-want +got):\n%s", diff)
	}
}
