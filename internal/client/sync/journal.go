package sync

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/openmined/calsync/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS sync_journal (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entry INTEGER NOT NULL,
    kind TEXT NOT NULL,
    size INTEGER NOT NULL,
    at TEXT NOT NULL -- RFC3339Nano
);

CREATE INDEX IF NOT EXISTS idx_journal_entry ON sync_journal(entry);
CREATE INDEX IF NOT EXISTS idx_journal_at ON sync_journal(at);
`

const DefaultHistoryLimit = 50

type EventKind string

const (
	EventPush   EventKind = "push"
	EventPull   EventKind = "pull"
	EventReload EventKind = "reload"
)

type JournalEvent struct {
	Entry int       `json:"entry"`
	Kind  EventKind `json:"kind"`
	Size  int64     `json:"size"`
	At    time.Time `json:"at"`
}

// dbJournalEvent is the row shape, time is stored as TEXT.
type dbJournalEvent struct {
	Entry int    `db:"entry"`
	Kind  string `db:"kind"`
	Size  int64  `db:"size"`
	At    string `db:"at"`
}

// Journal records pushes, pulls and reloads in SQLite.
type Journal struct {
	db     *sqlx.DB
	dbPath string
}

// NewJournal prepares a journal at dbPath. An empty path keeps it in memory.
func NewJournal(dbPath string) *Journal {
	return &Journal{dbPath: dbPath}
}

func (j *Journal) Open() error {
	if j.db != nil {
		return fmt.Errorf("sync journal already open")
	}

	opts := []db.SqliteOption{db.WithMaxOpenConns(1)}
	if j.dbPath != "" {
		opts = append(opts, db.WithPath(j.dbPath))
	}

	conn, err := db.NewSqliteDB(opts...)
	if err != nil {
		return fmt.Errorf("failed to create sync journal: %w", err)
	}

	if _, err := conn.Exec(journalSchema); err != nil {
		conn.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = conn
	return nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return fmt.Errorf("sync journal not open")
	}
	if err := j.db.Close(); err != nil {
		slog.Error("sync journal close", "error", err)
		return err
	}
	j.db = nil
	slog.Debug("sync journal closed")
	return nil
}

func (j *Journal) Record(ev JournalEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	_, err := j.db.Exec(
		"INSERT INTO sync_journal (entry, kind, size, at) VALUES (?, ?, ?, ?)",
		ev.Entry, string(ev.Kind), ev.Size, ev.At.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to record %s for entry %d: %w", ev.Kind, ev.Entry, err)
	}
	return nil
}

// History returns the newest events first. entry <= 0 selects all entries.
func (j *Journal) History(entry, limit int) ([]JournalEvent, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	var rows []dbJournalEvent
	var err error
	if entry > 0 {
		err = j.db.Select(&rows, "SELECT entry, kind, size, at FROM sync_journal WHERE entry = ? ORDER BY id DESC LIMIT ?", entry, limit)
	} else {
		err = j.db.Select(&rows, "SELECT entry, kind, size, at FROM sync_journal ORDER BY id DESC LIMIT ?", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}

	events := make([]JournalEvent, 0, len(rows))
	for _, row := range rows {
		at, err := time.Parse(time.RFC3339Nano, row.At)
		if err != nil {
			return nil, fmt.Errorf("failed to parse stored timestamp %q: %w", row.At, err)
		}
		events = append(events, JournalEvent{
			Entry: row.Entry,
			Kind:  EventKind(row.Kind),
			Size:  row.Size,
			At:    at,
		})
	}
	return events, nil
}

func (j *Journal) Count() (int, error) {
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM sync_journal"); err != nil {
		return 0, err
	}
	return count, nil
}
