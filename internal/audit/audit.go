// Package audit keeps a local ledger of executed file operations in a
// SQLite database. The ledger is observational: recording is best-effort
// and never fails a file operation, and nothing in the request path reads
// it. The `waypoint activity` command queries it after the fact.
package audit

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Record is one ledger row.
type Record struct {
	ID      int64
	Time    time.Time
	Op      string // login, refresh, logout, list, download, upload, mkdir, move, delete
	Path    string
	DstPath string // moves only
	OK      bool
	Detail  string // error text for failed operations
}

// Recorder is what the HTTP layer records operations through. The no-op
// implementation backs deployments that disable auditing.
type Recorder interface {
	Record(ctx context.Context, rec Record)
}

// Nop discards all records.
type Nop struct{}

// Record implements Recorder by doing nothing.
func (Nop) Record(context.Context, Record) {}

// Ledger is the SQLite-backed Recorder.
type Ledger struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the ledger database at dbPath and applies
// pending schema migrations. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Ledger, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("audit: opening database: %w", err)
	}

	// Single writer; the ledger is append-mostly and low volume.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: enabling WAL: %w", err)
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &Ledger{db: db, logger: logger}, nil
}

// Record inserts one row. Failures are logged and swallowed — the ledger
// must never break the operation it describes.
func (l *Ledger) Record(ctx context.Context, rec Record) {
	if rec.Time.IsZero() {
		rec.Time = time.Now()
	}

	_, err := l.db.ExecContext(ctx,
		`INSERT INTO operations (ts, op, path, dst_path, ok, detail) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Time.Unix(), rec.Op, rec.Path, rec.DstPath, rec.OK, rec.Detail)
	if err != nil {
		l.logger.Warn("audit record failed",
			slog.String("op", rec.Op), slog.String("error", err.Error()))
	}
}

// Recent returns the newest limit records, newest first.
func (l *Ledger) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, ts, op, path, dst_path, ok, detail
		   FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: querying operations: %w", err)
	}
	defer rows.Close()

	var records []Record

	for rows.Next() {
		var rec Record
		var ts int64

		if err := rows.Scan(&rec.ID, &ts, &rec.Op, &rec.Path, &rec.DstPath, &rec.OK, &rec.Detail); err != nil {
			return nil, fmt.Errorf("audit: scanning row: %w", err)
		}

		rec.Time = time.Unix(ts, 0)
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Close closes the underlying database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// runMigrations applies all pending schema migrations using the goose v3
// Provider API (no global state, context-aware).
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("audit: creating migration sub-filesystem: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return fmt.Errorf("audit: creating migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("audit: running migrations: %w", err)
	}

	for _, r := range results {
		logger.Info("applied audit migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}
