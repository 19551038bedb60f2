// Package subscriber keeps the durable set of subscribers and their
// delivery preferences.
package subscriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"

	"cryptonews_bot/internal/model"
	"cryptonews_bot/internal/storage"
)

// ErrUnknownPreference is returned for preference keys other than
// model.PrefInstantNotifications and model.PrefDailySummary.
var ErrUnknownPreference = errors.New("unknown preference")

// Registry is the subscriber set plus the preference map. Every mutation is
// persisted before it returns. It is safe for concurrent use.
type Registry struct {
	mu    sync.Mutex
	ids   map[int64]struct{}
	prefs map[int64]model.Preferences
	store storage.SubscriberStore
	now   func() time.Time
	log   *slog.Logger
}

// New creates an empty registry. Call Load to read the persisted roster.
func New(store storage.SubscriberStore, log *slog.Logger) *Registry {
	return &Registry{
		ids:   make(map[int64]struct{}),
		prefs: make(map[int64]model.Preferences),
		store: store,
		now:   time.Now,
		log:   log.With("component", "subscriber"),
	}
}

// SetClock overrides the time source.
func (r *Registry) SetClock(now func() time.Time) {
	r.now = now
}

// Load replaces the in-memory state with the persisted roster. An unreadable
// roster is backed up and the registry starts empty; the returned error is
// informational only.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ids = make(map[int64]struct{})
	r.prefs = make(map[int64]model.Preferences)

	roster, err := r.store.LoadRoster(ctx)
	if err != nil {
		backup, berr := r.store.BackupRoster(ctx)
		if berr != nil {
			r.log.Error("backup unreadable roster", "error", berr)
		}
		r.log.Warn("subscriber roster unreadable, starting empty", "error", err, "backup", backup)
		return fmt.Errorf("load roster: %w", err)
	}

	for _, id := range roster.IDs {
		r.ids[id] = struct{}{}
	}
	for id, p := range roster.Preferences {
		r.prefs[id] = p
	}
	r.log.Info("subscribers loaded", "count", len(r.ids))
	return nil
}

// Subscribe adds id with default preferences if it has none. It reports
// whether the id was newly added.
func (r *Registry) Subscribe(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.ids[id]; ok {
		return false, nil
	}
	r.ids[id] = struct{}{}
	if _, ok := r.prefs[id]; !ok {
		r.prefs[id] = model.DefaultPreferences(r.now())
	}
	return true, r.persistLocked(ctx)
}

// Unsubscribe removes id and its preferences. It reports whether id was subscribed.
func (r *Registry) Unsubscribe(ctx context.Context, id int64) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.ids[id]
	delete(r.ids, id)
	_, hadPrefs := r.prefs[id]
	delete(r.prefs, id)
	if !ok && !hadPrefs {
		return false, nil
	}
	return ok, r.persistLocked(ctx)
}

// IsSubscribed reports whether id is in the set.
func (r *Registry) IsSubscribed(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.ids[id]
	return ok
}

// Preferences returns the preferences of id, creating and persisting the
// defaults on first access.
func (r *Registry) Preferences(ctx context.Context, id int64) (model.Preferences, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.prefs[id]; ok {
		return p, nil
	}
	p := model.DefaultPreferences(r.now())
	r.prefs[id] = p
	return p, r.persistLocked(ctx)
}

// SetPreference sets one preference flag of id.
func (r *Registry) SetPreference(ctx context.Context, id int64, key string, value bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.updateLocked(id, key, func(bool) bool { return value })
	if err != nil {
		return err
	}
	r.prefs[id] = p
	return r.persistLocked(ctx)
}

// TogglePreference flips one preference flag of id and returns the new value.
func (r *Registry) TogglePreference(ctx context.Context, id int64, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.updateLocked(id, key, func(v bool) bool { return !v })
	if err != nil {
		return false, err
	}
	r.prefs[id] = p
	value := p.InstantNotifications
	if key == model.PrefDailySummary {
		value = p.DailySummary
	}
	return value, r.persistLocked(ctx)
}

func (r *Registry) updateLocked(id int64, key string, fn func(bool) bool) (model.Preferences, error) {
	now := r.now()
	p, ok := r.prefs[id]
	if !ok {
		p = model.DefaultPreferences(now)
	}
	switch key {
	case model.PrefInstantNotifications:
		p.InstantNotifications = fn(p.InstantNotifications)
	case model.PrefDailySummary:
		p.DailySummary = fn(p.DailySummary)
	default:
		return p, fmt.Errorf("%w: %q", ErrUnknownPreference, key)
	}
	p.LastActivityAt = now.UTC()
	return p, nil
}

// IDs returns the subscriber ids in ascending order.
func (r *Registry) IDs() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedIDsLocked()
}

// Count returns the number of subscribers.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ids)
}

// Snapshot returns a copy of every subscriber with its preferences.
// Subscribers without a preference record get the defaults.
func (r *Registry) Snapshot() []model.Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()

	return lo.Map(r.sortedIDsLocked(), func(id int64, _ int) model.Subscriber {
		p, ok := r.prefs[id]
		if !ok {
			p = model.DefaultPreferences(r.now())
		}
		return model.Subscriber{ID: id, Preferences: p}
	})
}

// Remove drops the given ids and their preferences with a single persist.
// It returns how many subscribers were removed.
func (r *Registry) Remove(ctx context.Context, ids ...int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for _, id := range lo.Uniq(ids) {
		if _, ok := r.ids[id]; ok {
			removed++
		}
		delete(r.ids, id)
		delete(r.prefs, id)
	}
	if removed == 0 {
		return 0, nil
	}
	r.log.Info("subscribers removed", "count", removed)
	return removed, r.persistLocked(ctx)
}

func (r *Registry) sortedIDsLocked() []int64 {
	ids := lo.Keys(r.ids)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r *Registry) persistLocked(ctx context.Context) error {
	prefs := make(map[int64]model.Preferences, len(r.prefs))
	for id, p := range r.prefs {
		prefs[id] = p
	}
	roster := model.Roster{
		IDs:         r.sortedIDsLocked(),
		Preferences: prefs,
		UpdatedAt:   r.now().UTC(),
	}
	if err := r.store.SaveRoster(ctx, roster); err != nil {
		r.log.Error("persist subscribers", "error", err)
		return fmt.Errorf("save roster: %w", err)
	}
	return nil
}
