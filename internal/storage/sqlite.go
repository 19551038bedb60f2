package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"cryptonews_bot/internal/model"
	"cryptonews_bot/migrations"
)

// timeLayout is fixed-width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const seenColumns = "fingerprint, title_excerpt, source, url, published_at, recorded_at"

// insertChunk bounds the rows per INSERT so a statement stays well under
// SQLite's limit on bound variables.
const insertChunk = 500

// seenTimestamp mirrors model.SeenRecord.Timestamp in SQL.
const seenTimestamp = "COALESCE(NULLIF(recorded_at, ''), published_at)"

// SQLite implements Backend backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var _ Backend = (*SQLite)(nil)

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{
		db:  db,
		sb:  sq.StatementBuilder.PlaceholderFormat(sq.Question),
		now: time.Now,
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// LoadSeen implements SeenJournal. Rows with an undecodable fingerprint are
// skipped; the next ReplaceSeen drops them.
func (s *SQLite) LoadSeen(ctx context.Context) ([]model.SeenRecord, error) {
	query, args, err := s.sb.Select(seenColumns).From("seen_records").OrderBy(seenTimestamp).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query seen records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.SeenRecord
	for rows.Next() {
		rec, err := scanSeen(rows)
		if errors.Is(err, ErrCorrupt) {
			continue
		}
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// AppendSeen implements SeenJournal.
func (s *SQLite) AppendSeen(ctx context.Context, rec model.SeenRecord, cutoff time.Time) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		insert := s.sb.Insert("seen_records").
			Options("OR REPLACE").
			Columns("fingerprint", "title_excerpt", "source", "url", "published_at", "recorded_at").
			Values(seenValues(rec)...)
		if err := execBuilder(ctx, tx, insert); err != nil {
			return fmt.Errorf("insert seen record: %w", err)
		}

		prune := s.sb.Delete("seen_records").Where(seenTimestamp+" < ?", formatTime(cutoff))
		if err := execBuilder(ctx, tx, prune); err != nil {
			return fmt.Errorf("prune seen records: %w", err)
		}
		return nil
	})
}

// ReplaceSeen implements SeenJournal.
func (s *SQLite) ReplaceSeen(ctx context.Context, recs []model.SeenRecord) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM seen_records`); err != nil {
			return fmt.Errorf("clear seen records: %w", err)
		}
		if len(recs) == 0 {
			return nil
		}
		insert := s.sb.Insert("seen_records").
			Options("OR REPLACE").
			Columns("fingerprint", "title_excerpt", "source", "url", "published_at", "recorded_at")
		rows := make([][]any, 0, len(recs))
		for _, r := range recs {
			rows = append(rows, seenValues(r))
		}
		if err := insertRows(ctx, tx, insert, rows); err != nil {
			return fmt.Errorf("insert seen records: %w", err)
		}
		return nil
	})
}

// BackupSeen implements SeenJournal by moving the rows into a backup table,
// leaving seen_records empty. It returns the backup table name, or "" when
// the journal is empty.
func (s *SQLite) BackupSeen(ctx context.Context) (string, error) {
	return s.backupTables(ctx, "seen_records")
}

// LoadRoster implements SubscriberStore.
func (s *SQLite) LoadRoster(ctx context.Context) (model.Roster, error) {
	r := model.Roster{Preferences: make(map[int64]model.Preferences)}

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM subscribers ORDER BY id`)
	if err != nil {
		return r, fmt.Errorf("query subscribers: %w", err)
	}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return r, fmt.Errorf("scan subscriber: %w", err)
		}
		r.IDs = append(r.IDs, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return r, fmt.Errorf("iterate subscribers: %w", err)
	}

	query, args, err := s.sb.
		Select("subscriber_id", "instant_notifications", "daily_summary", "joined_at", "last_activity_at").
		From("preferences").
		ToSql()
	if err != nil {
		return r, fmt.Errorf("build query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return r, fmt.Errorf("query preferences: %w", err)
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			id               int64
			instant, daily   int
			joined, activity string
		)
		if err := rows.Scan(&id, &instant, &daily, &joined, &activity); err != nil {
			return r, fmt.Errorf("scan preferences: %w", err)
		}
		r.Preferences[id] = model.Preferences{
			InstantNotifications: instant == 1,
			DailySummary:         daily == 1,
			JoinedAt:             parseTime(joined),
			LastActivityAt:       parseTime(activity),
		}
	}
	if err := rows.Err(); err != nil {
		return r, fmt.Errorf("iterate preferences: %w", err)
	}

	var updated string
	err = s.db.QueryRowContext(ctx, `SELECT updated_at FROM roster_meta WHERE id = 1`).Scan(&updated)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return r, fmt.Errorf("query roster meta: %w", err)
	default:
		r.UpdatedAt = parseTime(updated)
	}
	return r, nil
}

// SaveRoster implements SubscriberStore.
func (s *SQLite) SaveRoster(ctx context.Context, r model.Roster) error {
	updated := r.UpdatedAt
	if updated.IsZero() {
		updated = s.now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"subscribers", "preferences"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}

		if ids := dedupIDs(r.IDs); len(ids) > 0 {
			rows := make([][]any, 0, len(ids))
			for _, id := range ids {
				rows = append(rows, []any{id})
			}
			if err := insertRows(ctx, tx, s.sb.Insert("subscribers").Columns("id"), rows); err != nil {
				return fmt.Errorf("insert subscribers: %w", err)
			}
		}

		if len(r.Preferences) > 0 {
			insert := s.sb.Insert("preferences").
				Columns("subscriber_id", "instant_notifications", "daily_summary", "joined_at", "last_activity_at")
			rows := make([][]any, 0, len(r.Preferences))
			for id, p := range r.Preferences {
				rows = append(rows, []any{id, boolToInt(p.InstantNotifications), boolToInt(p.DailySummary),
					formatTime(p.JoinedAt), formatTime(p.LastActivityAt)})
			}
			if err := insertRows(ctx, tx, insert, rows); err != nil {
				return fmt.Errorf("insert preferences: %w", err)
			}
		}

		meta := s.sb.Insert("roster_meta").
			Options("OR REPLACE").
			Columns("id", "updated_at").
			Values(1, formatTime(updated))
		if err := execBuilder(ctx, tx, meta); err != nil {
			return fmt.Errorf("update roster meta: %w", err)
		}
		return nil
	})
}

// BackupRoster implements SubscriberStore. Like BackupSeen it moves the rows.
func (s *SQLite) BackupRoster(ctx context.Context) (string, error) {
	return s.backupTables(ctx, "subscribers", "preferences")
}

// backupTables moves each table's rows into <table>_backup_<timestamp> in
// one transaction and returns the first backup name. Empty tables are
// skipped.
func (s *SQLite) backupTables(ctx context.Context, tables ...string) (string, error) {
	suffix := "_backup_" + sanitizeSuffix(s.now().UTC().Format(backupLayout))
	var first string
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range tables {
			var n int
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&n); err != nil {
				return fmt.Errorf("count %s: %w", table, err)
			}
			if n == 0 {
				continue
			}
			name := table + suffix
			if _, err := tx.ExecContext(ctx, "CREATE TABLE "+name+" AS SELECT * FROM "+table); err != nil {
				return fmt.Errorf("backup %s: %w", table, err)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
			if first == "" {
				first = name
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return first, nil
}

func (s *SQLite) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlizer interface {
	ToSql() (string, []any, error)
}

func execBuilder(ctx context.Context, tx *sql.Tx, b sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build statement: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

// insertRows executes base once per chunk of rows.
func insertRows(ctx context.Context, tx *sql.Tx, base sq.InsertBuilder, rows [][]any) error {
	for start := 0; start < len(rows); start += insertChunk {
		end := min(start+insertChunk, len(rows))
		insert := base
		for _, row := range rows[start:end] {
			insert = insert.Values(row...)
		}
		if err := execBuilder(ctx, tx, insert); err != nil {
			return err
		}
	}
	return nil
}

func seenValues(r model.SeenRecord) []any {
	return []any{
		r.Fingerprint.String(),
		r.TitleExcerpt,
		r.Source,
		r.URL,
		formatTime(r.PublishedAt),
		formatTime(r.RecordedAt),
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSeen(row scannable) (model.SeenRecord, error) {
	var (
		rec                 model.SeenRecord
		fp                  string
		published, recorded string
	)
	if err := row.Scan(&fp, &rec.TitleExcerpt, &rec.Source, &rec.URL, &published, &recorded); err != nil {
		return rec, fmt.Errorf("scan seen record: %w", err)
	}
	parsed, err := model.ParseFingerprint(fp)
	if err != nil {
		return rec, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	rec.Fingerprint = parsed
	rec.PublishedAt = parseTime(published)
	rec.RecordedAt = parseTime(recorded)
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeLayout, s)
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sanitizeSuffix(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= '0' && c <= '9') || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			out = append(out, c)
		}
	}
	return string(out)
}
