// Package recordstore abstracts the remote append-only tabular store the
// ledger lives in. Backends live under internal/infra; this package holds the
// contract, the retrying decorator and an in-memory implementation.
package recordstore

import (
	"context"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// Store is the append-only record store. There is no update or delete.
type Store interface {
	// ListAll returns every row currently stored, in insertion order.
	// Fails with ErrConnection or ErrNotFound. Never retried.
	ListAll(ctx context.Context) ([]domain.Record, error)

	// Append writes exactly one positional row.
	Append(ctx context.Context, row domain.Row) error

	// TestConnection is a lightweight reachability and permission check.
	TestConnection(ctx context.Context) (ConnectionInfo, error)
}

// KeyedAppender is implemented by backends that can deduplicate appends by a
// client-generated idempotency key. Appending a key that already landed must
// succeed without writing a second row.
type KeyedAppender interface {
	AppendKeyed(ctx context.Context, key string, row domain.Row) error
}

// ConnectionInfo describes the store reached by TestConnection.
type ConnectionInfo struct {
	Backend  string   `json:"backend"`
	Target   string   `json:"target"`
	Headers  []string `json:"headers"`
	RowCount int      `json:"row_count"`
}
