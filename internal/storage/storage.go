// Package storage defines the persistence interfaces and their implementations.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cryptonews_bot/internal/model"
)

// ErrCorrupt is returned when persisted data exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt data")

// Backend kinds accepted by Open.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// backupLayout is the timestamp format used in backup names.
const backupLayout = "20060102T150405.000"

// SeenJournal persists the records of the fingerprint store.
type SeenJournal interface {
	// LoadSeen returns every persisted record. Missing storage is not an error.
	LoadSeen(ctx context.Context) ([]model.SeenRecord, error)
	// AppendSeen stores rec and drops persisted records older than cutoff.
	AppendSeen(ctx context.Context, rec model.SeenRecord, cutoff time.Time) error
	// ReplaceSeen rewrites the journal with exactly recs.
	ReplaceSeen(ctx context.Context, recs []model.SeenRecord) error
	// BackupSeen preserves the current journal and returns where it went.
	// An empty name means there was nothing to back up.
	BackupSeen(ctx context.Context) (string, error)
}

// SubscriberStore persists the subscriber roster.
type SubscriberStore interface {
	LoadRoster(ctx context.Context) (model.Roster, error)
	SaveRoster(ctx context.Context, r model.Roster) error
	BackupRoster(ctx context.Context) (string, error)
}

// Backend provides both stores over one storage medium.
type Backend interface {
	SeenJournal
	SubscriberStore
	Close() error
}

// Open creates the backend of the given kind.
// dataDir is used by the file backend, dsn by the sqlite backend. loc is
// the zone the file backend assumes for timestamps written without one.
func Open(kind, dataDir, dsn string, loc *time.Location) (Backend, error) {
	switch kind {
	case KindFile, "":
		f, err := NewFile(dataDir)
		if err != nil {
			return nil, err
		}
		f.SetLocation(loc)
		return f, nil
	case KindSQLite:
		return NewSQLite(dsn)
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}

func keepSince(recs []model.SeenRecord, cutoff time.Time) []model.SeenRecord {
	out := make([]model.SeenRecord, 0, len(recs))
	for _, r := range recs {
		if r.Timestamp().Before(cutoff) {
			continue
		}
		out = append(out, r)
	}
	return out
}

// upsertRecord replaces the record with the same fingerprint or appends rec.
func upsertRecord(recs []model.SeenRecord, rec model.SeenRecord) []model.SeenRecord {
	for i := range recs {
		if recs[i].Fingerprint == rec.Fingerprint {
			recs[i] = rec
			return recs
		}
	}
	return append(recs, rec)
}

func cloneRoster(r model.Roster) model.Roster {
	out := model.Roster{
		IDs:         append([]int64(nil), r.IDs...),
		Preferences: make(map[int64]model.Preferences, len(r.Preferences)),
		UpdatedAt:   r.UpdatedAt,
	}
	for id, p := range r.Preferences {
		out.Preferences[id] = p
	}
	return out
}
