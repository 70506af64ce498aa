// Package journal persists every processed signal to SQLite for audit and
// the /api/signals introspection endpoint. Position state itself stays
// memory-resident; the journal is an append-only record, never read back
// into dispatch decisions.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal writes signal records to SQLite.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the journal database.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_sync=NORMAL")
	if err != nil {
		return nil, err
	}

	schema := `
	CREATE TABLE IF NOT EXISTS signals (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		received_at DATETIME NOT NULL,
		symbol      TEXT NOT NULL,
		signal_type TEXT NOT NULL,
		kind        TEXT NOT NULL,
		delivered   INTEGER NOT NULL,
		note        TEXT,
		created_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_signals_symbol ON signals(symbol);
	CREATE INDEX IF NOT EXISTS idx_signals_kind ON signals(kind);
	CREATE INDEX IF NOT EXISTS idx_signals_received_at ON signals(received_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened signal journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Entry is one processed signal.
type Entry struct {
	ID         int64     `json:"id,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Symbol     string    `json:"symbol"`
	SignalType string    `json:"signal_type"`
	Kind       string    `json:"kind"`
	Delivered  bool      `json:"delivered"`
	Note       string    `json:"note,omitempty"`
}

// Record persists one entry.
func (j *Journal) Record(e Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	delivered := 0
	if e.Delivered {
		delivered = 1
	}
	_, err := j.db.Exec(
		`INSERT INTO signals (received_at, symbol, signal_type, kind, delivered, note)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ReceivedAt.Format(time.RFC3339),
		e.Symbol,
		e.SignalType,
		e.Kind,
		delivered,
		e.Note,
	)
	return err
}

// Recent returns the last N signals, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, received_at, symbol, signal_type, kind, delivered, note
		 FROM signals ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var receivedAt string
		var delivered int
		if err := rows.Scan(&e.ID, &receivedAt, &e.Symbol, &e.SignalType, &e.Kind, &delivered, &e.Note); err != nil {
			continue
		}
		e.ReceivedAt, _ = time.Parse(time.RFC3339, receivedAt)
		e.Delivered = delivered != 0
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
