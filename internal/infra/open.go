// Package infra selects and opens the configured record store backend.
package infra

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/config"
	infraBQ "github.com/dvloznov/daily-tracker/internal/infra/bigquery"
	"github.com/dvloznov/daily-tracker/internal/infra/sheets"
	"github.com/dvloznov/daily-tracker/internal/infra/sqlite"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// Initializer is implemented by backends that can create their own storage.
type Initializer interface {
	EnsureTable(ctx context.Context) error
}

// Backend is an opened record store wrapped in the retry policy.
type Backend struct {
	// Store is the retrying store handed to the rest of the program.
	Store *recordstore.Retrying
	// Raw is the undecorated backend.
	Raw recordstore.Store

	close func() error
}

// Close releases the backend's client or database handle.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// Init creates the backend's storage when it supports doing so.
func (b *Backend) Init(ctx context.Context) (bool, error) {
	init, ok := b.Raw.(Initializer)
	if !ok {
		return false, nil
	}
	if err := init.EnsureTable(ctx); err != nil {
		return true, err
	}
	return true, nil
}

// Open connects to the backend named by cfg.Backend.
func Open(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Backend, error) {
	b := &Backend{}

	switch cfg.Backend {
	case config.BackendMemory:
		b.Raw = recordstore.NewMemory()

	case config.BackendSQLite:
		store, err := sqlite.New(cfg.SQLitePath, log)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Raw, b.close = store, store.Close

	case config.BackendSheets:
		store, err := sheets.New(ctx, sheets.Config{
			SpreadsheetID:   cfg.SpreadsheetID,
			SpreadsheetName: cfg.SpreadsheetName,
			Worksheet:       cfg.Worksheet,
			CredentialsFile: cfg.CredentialsFile,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Raw = store

	case config.BackendBigQuery:
		store, err := infraBQ.New(ctx, cfg.Project, cfg.Dataset, cfg.Table, log)
		if err != nil {
			return nil, fmt.Errorf("Open: %w", err)
		}
		b.Raw, b.close = store, store.Close

	default:
		return nil, fmt.Errorf("Open: unknown backend %q", cfg.Backend)
	}

	b.Store = recordstore.NewRetrying(b.Raw, recordstore.RetryOptions{
		Attempts:  cfg.AppendAttempts,
		Backoff:   cfg.AppendBackoff,
		ReadCheck: cfg.ReadCheck,
	}, log)

	log.Info().
		Str("backend", string(cfg.Backend)).
		Int("append_attempts", cfg.AppendAttempts).
		Dur("append_backoff", cfg.AppendBackoff).
		Msg("Opened record store")

	return b, nil
}
