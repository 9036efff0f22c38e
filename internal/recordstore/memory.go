package recordstore

import (
	"context"
	"sync"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// Memory is an in-memory implementation of Store and KeyedAppender.
// It is safe for concurrent use. Data is lost on restart; it backs tests and
// the "memory" backend for local runs.
type Memory struct {
	mu      sync.Mutex
	records []domain.Record
	keys    map[string]struct{}

	listCalls   int
	appendCalls int

	// OnList, when set, runs before every ListAll and may fail it.
	OnList func(ctx context.Context) error

	// OnAppend, when set, runs for every append attempt with its 1-based call
	// number. landed controls whether the row is stored; a non-nil err is
	// returned to the caller either way, which simulates ambiguous failures.
	OnAppend func(call int) (landed bool, err error)
}

// NewMemory creates a memory store seeded with records.
func NewMemory(seed ...domain.Record) *Memory {
	m := &Memory{keys: make(map[string]struct{})}
	for _, rec := range seed {
		m.records = append(m.records, copyRecord(rec))
	}
	return m
}

// ListAll implements Store.
func (m *Memory) ListAll(ctx context.Context) ([]domain.Record, error) {
	m.mu.Lock()
	m.listCalls++
	hook := m.OnList
	m.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]domain.Record, len(m.records))
	for i, rec := range m.records {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

// Append implements Store.
func (m *Memory) Append(ctx context.Context, row domain.Row) error {
	return m.AppendKeyed(ctx, "", row)
}

// AppendKeyed implements KeyedAppender. An empty key disables deduplication.
func (m *Memory) AppendKeyed(ctx context.Context, key string, row domain.Row) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.appendCalls++

	if key != "" {
		if _, dup := m.keys[key]; dup {
			return nil
		}
	}

	landed, err := true, error(nil)
	if m.OnAppend != nil {
		landed, err = m.OnAppend(m.appendCalls)
	}
	if landed {
		m.records = append(m.records, domain.RecordFromRow(row))
		if key != "" {
			m.keys[key] = struct{}{}
		}
	}
	return err
}

// TestConnection implements Store.
func (m *Memory) TestConnection(ctx context.Context) (ConnectionInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ConnectionInfo{
		Backend:  "memory",
		Target:   "in-process",
		Headers:  append([]string(nil), domain.Columns...),
		RowCount: len(m.records),
	}, nil
}

// ListCalls returns how many times ListAll has been called.
func (m *Memory) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// AppendCalls returns how many append attempts reached the store.
func (m *Memory) AppendCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCalls
}

// Len returns the number of stored rows.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func copyRecord(rec domain.Record) domain.Record {
	out := make(domain.Record, len(rec))
	for k, v := range rec {
		out[k] = v
	}
	return out
}

// Ensure Memory implements Store and KeyedAppender.
var _ Store = (*Memory)(nil)
var _ KeyedAppender = (*Memory)(nil)
