// Package ledger keeps one sqlite row per trial so an operator can find the
// trials whose result needs a second look.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	"github.com/samber/lo"
	_ "modernc.org/sqlite"
)

// StatusOK is the status of a trial that needs no attention.
const StatusOK = "ok"

type Entry struct {
	JobKey    uint64
	Board     int
	Square    int
	GoesFirst bool
	Worker    int
	Port      int
	Offset    int
	StartedAt time.Time
	Elapsed   time.Duration
	Status    string
	Detail    string
}

func (e Entry) NeedsAttention() bool {
	return e.Status != StatusOK
}

type Ledger struct {
	db *sql.DB
}

func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA synchronous=NORMAL;`,
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	l := &Ledger{db: db}
	if err := l.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return l, nil
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

func (l *Ledger) initSchema(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS trials (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_key TEXT NOT NULL,
		board INTEGER NOT NULL,
		square INTEGER NOT NULL,
		goes_first INTEGER NOT NULL,
		worker INTEGER NOT NULL,
		port INTEGER NOT NULL,
		port_offset INTEGER NOT NULL,
		started_at INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		status TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_trials_status ON trials(status);
	`)
	return err
}

func (l *Ledger) Record(ctx context.Context, e Entry) error {
	_, err := l.db.ExecContext(ctx, `
	INSERT INTO trials (job_key, board, square, goes_first, worker, port, port_offset,
		started_at, elapsed_ms, status, detail)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strconv.FormatUint(e.JobKey, 16), e.Board, e.Square, e.GoesFirst, e.Worker, e.Port, e.Offset,
		e.StartedAt.UnixMilli(), e.Elapsed.Milliseconds(), e.Status, e.Detail)
	if err != nil {
		return fmt.Errorf("recording trial: %w", err)
	}
	return nil
}

// Entries returns every recorded trial in insertion order.
func (l *Ledger) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := l.db.QueryContext(ctx, `
	SELECT job_key, board, square, goes_first, worker, port, port_offset,
		started_at, elapsed_ms, status, detail
	FROM trials ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var key string
		var startedMs, elapsedMs int64
		if err := rows.Scan(&key, &e.Board, &e.Square, &e.GoesFirst, &e.Worker, &e.Port, &e.Offset,
			&startedMs, &elapsedMs, &e.Status, &e.Detail); err != nil {
			return nil, err
		}
		if e.JobKey, err = strconv.ParseUint(key, 16, 64); err != nil {
			return nil, fmt.Errorf("bad job key %q: %w", key, err)
		}
		e.StartedAt = time.UnixMilli(startedMs)
		e.Elapsed = time.Duration(elapsedMs) * time.Millisecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Attention returns the trials that did not finish cleanly.
func (l *Ledger) Attention(ctx context.Context) ([]Entry, error) {
	entries, err := l.Entries(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Filter(entries, func(e Entry, _ int) bool {
		return e.NeedsAttention()
	}), nil
}
