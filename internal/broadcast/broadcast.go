// Package broadcast delivers one message to every eligible subscriber and
// prunes the recipients that could not be reached.
package broadcast

import (
	"context"
	"log/slog"
	"time"

	"github.com/samber/lo"

	"cryptonews_bot/internal/model"
)

// DefaultPause is the delay between two sends.
const DefaultPause = 50 * time.Millisecond

// Sender delivers a text message to one chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Registry is the part of the subscriber registry used for delivery.
type Registry interface {
	Snapshot() []model.Subscriber
	Remove(ctx context.Context, ids ...int64) (int, error)
}

// Report describes one broadcast pass.
type Report struct {
	Attempted int
	Delivered int
	Failed    []int64
}

// Broadcaster fans messages out to subscribers.
type Broadcaster struct {
	sender   Sender
	registry Registry
	pause    time.Duration
	log      *slog.Logger
}

// New creates a Broadcaster. A non-positive pause selects DefaultPause.
func New(sender Sender, registry Registry, pause time.Duration, log *slog.Logger) *Broadcaster {
	if pause <= 0 {
		pause = DefaultPause
	}
	return &Broadcaster{
		sender:   sender,
		registry: registry,
		pause:    pause,
		log:      log.With("component", "broadcast"),
	}
}

// SendToAll delivers msg to every subscriber.
func (b *Broadcaster) SendToAll(ctx context.Context, msg string) Report {
	return b.send(ctx, msg, func(model.Subscriber) bool { return true })
}

// SendToInstant delivers msg to subscribers with instant notifications on.
func (b *Broadcaster) SendToInstant(ctx context.Context, msg string) Report {
	return b.send(ctx, msg, func(s model.Subscriber) bool { return s.Preferences.InstantNotifications })
}

// SendToDigest delivers msg to subscribers with the daily summary on.
func (b *Broadcaster) SendToDigest(ctx context.Context, msg string) Report {
	return b.send(ctx, msg, func(s model.Subscriber) bool { return s.Preferences.DailySummary })
}

func (b *Broadcaster) send(ctx context.Context, msg string, eligible func(model.Subscriber) bool) Report {
	recipients := lo.Map(
		lo.Filter(b.registry.Snapshot(), func(s model.Subscriber, _ int) bool { return eligible(s) }),
		func(s model.Subscriber, _ int) int64 { return s.ID },
	)

	var rep Report
	for i, id := range recipients {
		if ctx.Err() != nil {
			b.log.Warn("broadcast interrupted", "remaining", len(recipients)-i)
			break
		}
		if i > 0 && !sleep(ctx, b.pause) {
			b.log.Warn("broadcast interrupted", "remaining", len(recipients)-i)
			break
		}

		rep.Attempted++
		if err := b.sender.SendMessage(ctx, id, msg); err != nil {
			b.log.Warn("deliver message", "chat_id", id, "error", err)
			rep.Failed = append(rep.Failed, id)
			continue
		}
		rep.Delivered++
	}

	if len(rep.Failed) > 0 {
		// Pruning must not be skipped because the broadcast context ended.
		removed, err := b.registry.Remove(context.WithoutCancel(ctx), rep.Failed...)
		if err != nil {
			b.log.Error("prune failed recipients", "error", err)
		}
		b.log.Info("pruned unreachable subscribers", "count", removed)
	}

	b.log.Info("broadcast done", "attempted", rep.Attempted, "delivered", rep.Delivered, "failed", len(rep.Failed))
	return rep
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
