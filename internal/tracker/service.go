// Package tracker exposes the application commands: submitting transactions
// and computing the views the UI renders. Each command reads the ledger
// through the cache, and every successful write invalidates it exactly once
// before the command returns.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/guard"
	"github.com/dvloznov/daily-tracker/internal/ledger"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// DefaultRecentLimit is how many recent transactions the overview lists.
const DefaultRecentLimit = 5

const submissionMemory = 256

// ErrIdempotencyKeyReused is returned when an idempotency key comes back
// with a different transaction than the one first stored under it.
var ErrIdempotencyKeyReused = errors.New("idempotency key reused with a different transaction")

// Options configures a Service.
type Options struct {
	// Now overrides the wall clock, for tests.
	Now func() time.Time
	// Sink receives exports produced by background jobs.
	Sink export.Sink
}

// Service runs tracker commands against one record store and cache.
type Service struct {
	store recordstore.Store
	cache *ledger.Cache
	guard *guard.Guard
	sink  export.Sink
	now   func() time.Time
	log   zerolog.Logger

	// submitMu serializes writes so the leave guard and the append it
	// protects run back to back within this process.
	submitMu  sync.Mutex
	submitted *submissionLog
}

// NewService wires a Service. store is the (usually retrying) record store
// the cache reads from.
func NewService(store recordstore.Store, cache *ledger.Cache, opts Options, log zerolog.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		store:     store,
		cache:     cache,
		guard:     guard.New(cache, log),
		sink:      opts.Sink,
		now:       opts.Now,
		log:       log,
		submitted: newSubmissionLog(submissionMemory),
	}
}

// Cache returns the ledger cache used by the service.
func (s *Service) Cache() *ledger.Cache {
	return s.cache
}

// SubmitRequest is a transaction form submission.
type SubmitRequest struct {
	domain.Input
	// IdempotencyKey identifies one rendering of the form. Re-submitting the
	// same key returns the first result without writing again.
	IdempotencyKey string
}

// SubmitResult describes a stored transaction.
type SubmitResult struct {
	Transaction TransactionView `json:"transaction"`
	Message     string          `json:"message"`
	// Replayed is true when the result comes from an earlier submission
	// with the same idempotency key.
	Replayed bool `json:"replayed"`
}

// SubmitTransaction validates, guards and appends one transaction.
//
// Errors are domain.ValidationErrors, *guard.DuplicateLeaveError,
// ErrIdempotencyKeyReused, or store errors (*recordstore.AppendError,
// recordstore.ErrConnection, recordstore.ErrNotFound).
func (s *Service) SubmitTransaction(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	s.submitMu.Lock()
	defer s.submitMu.Unlock()

	tx, err := req.Input.Build()
	if err != nil {
		return nil, err
	}
	fingerprint := tx.Fingerprint()

	if req.IdempotencyKey != "" {
		if prev, ok := s.submitted.get(req.IdempotencyKey); ok {
			if prev.fingerprint != fingerprint {
				s.log.Warn().Str("idempotency_key", req.IdempotencyKey).Msg("Idempotency key reused for a different transaction")
				return nil, ErrIdempotencyKeyReused
			}
			s.log.Info().Str("idempotency_key", req.IdempotencyKey).Msg("Replaying earlier submission")
			replay := *prev.result
			replay.Replayed = true
			return &replay, nil
		}
	}

	if err := s.guard.Ensure(ctx, tx); err != nil {
		return nil, err
	}

	if err := s.store.Append(ctx, tx.ToStorageRow()); err != nil {
		var appendErr *recordstore.AppendError
		if errors.As(err, &appendErr) {
			// An exhausted retry may still have landed a row.
			s.cache.Invalidate()
		}
		s.log.Error().Err(err).Str("category", string(tx.Category)).Msg("Failed to store transaction")
		return nil, fmt.Errorf("SubmitTransaction: %w", err)
	}
	s.cache.Invalidate()

	result := &SubmitResult{Transaction: ViewOf(tx), Message: successMessage(tx)}
	if req.IdempotencyKey != "" {
		s.submitted.put(req.IdempotencyKey, submission{result: result, fingerprint: fingerprint})
	}

	s.log.Info().
		Str("date", tx.Date.Format(domain.DateLayout)).
		Str("category", string(tx.Category)).
		Str("subcategory", tx.Subcategory).
		Str("amount", tx.Amount.String()).
		Msg("Transaction stored")

	return result, nil
}

func successMessage(tx domain.Transaction) string {
	if tx.IsLeave() {
		return fmt.Sprintf("Leave recorded for %s on %s", tx.Subcategory, tx.Date.Format(domain.DateLayout))
	}
	return "Transaction added successfully"
}

// TestConnection reports whether the record store is reachable and how it
// looks.
func (s *Service) TestConnection(ctx context.Context) (recordstore.ConnectionInfo, error) {
	info, err := s.store.TestConnection(ctx)
	if err != nil {
		return info, fmt.Errorf("TestConnection: %w", err)
	}
	return info, nil
}

// CacheInfo describes the cache after a diagnostic command.
type CacheInfo struct {
	Status ledger.Status `json:"status"`
	TTL    string        `json:"ttl"`
}

// ClearCache drops the cached ledger so the next read goes to the store.
func (s *Service) ClearCache() CacheInfo {
	s.cache.Invalidate()
	s.log.Info().Msg("Ledger cache cleared")
	return CacheInfo{Status: s.cache.Status(), TTL: s.cache.TTL().String()}
}

// submissionLog remembers results by idempotency key, forgetting the oldest
// beyond its capacity. Callers hold Service.submitMu.
type submissionLog struct {
	capacity int
	order    []string
	results  map[string]submission
}

// submission is a stored result and the fingerprint of the transaction that
// produced it.
type submission struct {
	result      *SubmitResult
	fingerprint string
}

func newSubmissionLog(capacity int) *submissionLog {
	return &submissionLog{capacity: capacity, results: make(map[string]submission, capacity)}
}

func (l *submissionLog) get(key string) (submission, bool) {
	r, ok := l.results[key]
	return r, ok
}

func (l *submissionLog) put(key string, r submission) {
	if _, ok := l.results[key]; ok {
		return
	}
	if len(l.order) >= l.capacity {
		oldest := l.order[0]
		l.order = l.order[1:]
		delete(l.results, oldest)
	}
	l.order = append(l.order, key)
	l.results[key] = r
}
