/*
Package sqlite keeps the tracker worksheet in a local SQLite database.

The ledger table mirrors the six worksheet columns as text and adds a row
sequence for insertion order and a unique idempotency key so that retried
appends never duplicate a row. Rows are never updated or deleted.

Usage:

	store, err := sqlite.New("./data/tracker.db", log)
	if err != nil {
		return err
	}
	defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// Store implements recordstore.Store and recordstore.KeyedAppender on SQLite.
type Store struct {
	db   *sql.DB
	path string
	log  zerolog.Logger
}

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for a throwaway database.
func New(dbPath string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is its own database.
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db, path: dbPath, log: log}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS ledger (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		date TEXT NOT NULL,
		category TEXT NOT NULL,
		subcategory TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		amount TEXT NOT NULL,
		paid_by TEXT NOT NULL DEFAULT '',
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_ledger_date ON ledger(date);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ListAll implements recordstore.Store. Rows come back in insertion order.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, category, subcategory, description, amount, paid_by
		FROM ledger
		ORDER BY seq
	`)
	if err != nil {
		return nil, classify("ListAll", err)
	}
	defer rows.Close()

	var records []domain.Record
	for rows.Next() {
		var date, category, subcategory, description, amount, paidBy string
		if err := rows.Scan(&date, &category, &subcategory, &description, &amount, &paidBy); err != nil {
			return nil, fmt.Errorf("ListAll: scan: %w", err)
		}
		records = append(records, domain.Record{
			domain.ColumnDate:        date,
			domain.ColumnCategory:    category,
			domain.ColumnSubcategory: subcategory,
			domain.ColumnDescription: description,
			domain.ColumnAmount:      amount,
			domain.ColumnPaidBy:      paidBy,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, classify("ListAll", err)
	}
	return records, nil
}

// Append implements recordstore.Store.
func (s *Store) Append(ctx context.Context, row domain.Row) error {
	return s.AppendKeyed(ctx, "", row)
}

// AppendKeyed implements recordstore.KeyedAppender. A second append with the
// same non-empty key is a no-op.
func (s *Store) AppendKeyed(ctx context.Context, key string, row domain.Row) error {
	rec := domain.RecordFromRow(row)

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO ledger
		(date, category, subcategory, description, amount, paid_by, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(idempotency_key) DO NOTHING
	`,
		rec[domain.ColumnDate],
		rec[domain.ColumnCategory],
		rec[domain.ColumnSubcategory],
		rec[domain.ColumnDescription],
		rec[domain.ColumnAmount],
		rec[domain.ColumnPaidBy],
		nullString(key),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return classify("Append", err)
	}

	if n, err := res.RowsAffected(); err == nil && n == 0 {
		s.log.Debug().Str("idempotency_key", key).Msg("Append already applied")
	}
	return nil
}

// TestConnection implements recordstore.Store.
func (s *Store) TestConnection(ctx context.Context) (recordstore.ConnectionInfo, error) {
	info := recordstore.ConnectionInfo{Backend: "sqlite", Target: s.path}

	if err := s.db.PingContext(ctx); err != nil {
		return info, classify("TestConnection", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ledger`).Scan(&info.RowCount); err != nil {
		return info, classify("TestConnection", err)
	}
	info.Headers = append([]string(nil), domain.Columns...)
	return info, nil
}

// classify maps transient SQLite failures onto recordstore.ErrConnection.
func classify(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code {
		case sqlite3.ErrBusy, sqlite3.ErrLocked, sqlite3.ErrIoErr, sqlite3.ErrCantOpen:
			return fmt.Errorf("%s: %w: %v", op, recordstore.ErrConnection, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ensure Store implements the record store interfaces.
var (
	_ recordstore.Store         = (*Store)(nil)
	_ recordstore.KeyedAppender = (*Store)(nil)
)
