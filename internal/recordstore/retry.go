package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// Default append retry policy. Both values are tunable through RetryOptions.
const (
	DefaultAppendAttempts = 3
	DefaultAppendBackoff  = time.Second
)

// RetryOptions configures the Retrying decorator.
type RetryOptions struct {
	// Attempts is the total number of append attempts, including the first.
	Attempts int
	// Backoff is the fixed wait between attempts.
	Backoff time.Duration
	// ReadCheck rereads the store before each retry and treats the append as
	// landed if an identical row appeared since the first attempt. Only used
	// for backends without KeyedAppender support.
	ReadCheck bool
}

// Retrying wraps a Store and retries ambiguous append failures with a fixed
// backoff. Reads pass through untouched.
//
// Retrying a non-idempotent append can duplicate a row when a failed attempt
// actually landed. Keyed backends avoid this by reusing one idempotency key
// across attempts; other backends can opt into ReadCheck.
type Retrying struct {
	store     Store
	attempts  int
	backoff   time.Duration
	readCheck bool
	log       zerolog.Logger

	newKey func() string
}

// NewRetrying wraps store with the given retry policy.
func NewRetrying(store Store, opts RetryOptions, log zerolog.Logger) *Retrying {
	if opts.Attempts <= 0 {
		opts.Attempts = DefaultAppendAttempts
	}
	if opts.Backoff < 0 {
		opts.Backoff = 0
	}
	return &Retrying{
		store:     store,
		attempts:  opts.Attempts,
		backoff:   opts.Backoff,
		readCheck: opts.ReadCheck,
		log:       log,
		newKey:    uuid.NewString,
	}
}

// Unwrap returns the decorated store.
func (r *Retrying) Unwrap() Store {
	return r.store
}

// ListAll implements Store. Reads are never retried.
func (r *Retrying) ListAll(ctx context.Context) ([]domain.Record, error) {
	return r.store.ListAll(ctx)
}

// TestConnection implements Store.
func (r *Retrying) TestConnection(ctx context.Context) (ConnectionInfo, error) {
	return r.store.TestConnection(ctx)
}

// Append implements Store. It returns *AppendError once all attempts fail.
// ErrNotFound and context errors are returned as-is without further attempts.
func (r *Retrying) Append(ctx context.Context, row domain.Row) error {
	keyed, _ := r.store.(KeyedAppender)

	var key string
	if keyed != nil {
		key = r.newKey()
	}

	baseline := -1
	if r.readCheck && keyed == nil {
		n, err := r.countMatching(ctx, row)
		if err != nil {
			r.log.Warn().Err(err).Msg("Read-check baseline unavailable, retries may duplicate rows")
		} else {
			baseline = n
		}
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if attempt > 1 {
			if err := sleepCtx(ctx, r.backoff); err != nil {
				return &AppendError{Attempts: attempt - 1, Err: fmt.Errorf("%w (retry abandoned: %v)", lastErr, err)}
			}

			if baseline >= 0 {
				n, err := r.countMatching(ctx, row)
				switch {
				case err != nil:
					r.log.Warn().Err(err).Int("attempt", attempt).Msg("Read-check failed, retrying blind")
				case n > baseline:
					r.log.Info().Int("attempt", attempt-1).Msg("Previous append attempt landed, not retrying")
					return nil
				}
			}
		}

		if keyed != nil {
			lastErr = keyed.AppendKeyed(ctx, key, row)
		} else {
			lastErr = r.store.Append(ctx, row)
		}
		if lastErr == nil {
			if attempt > 1 {
				r.log.Info().Int("attempt", attempt).Msg("Append succeeded after retry")
			}
			return nil
		}

		if errors.Is(lastErr, ErrNotFound) || errors.Is(lastErr, context.Canceled) || errors.Is(lastErr, context.DeadlineExceeded) {
			return lastErr
		}

		r.log.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", r.attempts).
			Msg("Append attempt failed")
	}

	return &AppendError{Attempts: r.attempts, Err: lastErr}
}

// countMatching counts stored records identical to row.
func (r *Retrying) countMatching(ctx context.Context, row domain.Row) (int, error) {
	records, err := r.store.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	want := domain.RecordFromRow(row)
	n := 0
	for _, rec := range records {
		if sameRecord(rec, want) {
			n++
		}
	}
	return n, nil
}

// sameRecord compares two records column by column, amounts numerically.
func sameRecord(a, b domain.Record) bool {
	for _, col := range domain.Columns {
		if col == domain.ColumnAmount {
			continue
		}
		if a[col] != b[col] {
			return false
		}
	}
	da, errA := decimal.NewFromString(a[domain.ColumnAmount])
	db, errB := decimal.NewFromString(b[domain.ColumnAmount])
	if errA != nil || errB != nil {
		return a[domain.ColumnAmount] == b[domain.ColumnAmount]
	}
	return da.Equal(db)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Ensure Retrying implements Store.
var _ Store = (*Retrying)(nil)
