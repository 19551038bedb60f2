package storage

import (
	"context"
	"sync"
	"time"

	"cryptonews_bot/internal/model"
)

// Memory implements Backend in process memory. Nothing survives a restart.
type Memory struct {
	mu      sync.Mutex
	seen    []model.SeenRecord
	roster  model.Roster
	backups int
}

var _ Backend = (*Memory)(nil)

// NewMemory returns an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{roster: model.Roster{Preferences: make(map[int64]model.Preferences)}}
}

// Close implements Backend.
func (m *Memory) Close() error { return nil }

// LoadSeen implements SeenJournal.
func (m *Memory) LoadSeen(_ context.Context) ([]model.SeenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SeenRecord(nil), m.seen...), nil
}

// AppendSeen implements SeenJournal.
func (m *Memory) AppendSeen(_ context.Context, rec model.SeenRecord, cutoff time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = upsertRecord(keepSince(m.seen, cutoff), rec)
	return nil
}

// ReplaceSeen implements SeenJournal.
func (m *Memory) ReplaceSeen(_ context.Context, recs []model.SeenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seen = append([]model.SeenRecord(nil), recs...)
	return nil
}

// BackupSeen implements SeenJournal. The journal is discarded and the
// backup counted.
func (m *Memory) BackupSeen(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.seen) == 0 {
		return "", nil
	}
	m.seen = nil
	m.backups++
	return "memory", nil
}

// LoadRoster implements SubscriberStore.
func (m *Memory) LoadRoster(_ context.Context) (model.Roster, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRoster(m.roster), nil
}

// SaveRoster implements SubscriberStore.
func (m *Memory) SaveRoster(_ context.Context, r model.Roster) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = cloneRoster(r)
	return nil
}

// BackupRoster implements SubscriberStore. The roster is discarded and the
// backup counted.
func (m *Memory) BackupRoster(_ context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roster = model.Roster{Preferences: make(map[int64]model.Preferences)}
	m.backups++
	return "memory", nil
}

// Backups returns how many backups were requested.
func (m *Memory) Backups() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.backups
}
