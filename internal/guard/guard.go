// Package guard rejects leave records that would duplicate an existing one.
//
// The check is advisory: it reads the ledger and then the caller writes, so two
// processes racing on the same date can both pass. Callers serialize writes
// within a process.
package guard

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/ledger"
)

// DuplicateLeaveError reports that a leave with the same subcategory is
// already recorded on the date.
type DuplicateLeaveError struct {
	Date        time.Time
	Subcategory string
}

func (e *DuplicateLeaveError) Error() string {
	return fmt.Sprintf("leave for %s on %s already exists", e.Subcategory, e.Date.Format(domain.DateLayout))
}

// CheckDuplicate reports whether ledger already has a Leave record for
// subcategory on the calendar date of date.
func CheckDuplicate(l domain.Ledger, date time.Time, subcategory string) bool {
	for _, tx := range l {
		if tx.IsLeave() && tx.Subcategory == subcategory && tx.SameDay(date) {
			return true
		}
	}
	return false
}

// Reader supplies a fresh ledger snapshot.
type Reader interface {
	Reload(ctx context.Context) (*ledger.Snapshot, error)
}

// Guard checks leave submissions against a fresh read of the ledger.
type Guard struct {
	reader Reader
	log    zerolog.Logger
}

// New creates a Guard.
func New(reader Reader, log zerolog.Logger) *Guard {
	return &Guard{reader: reader, log: log}
}

// Ensure returns *DuplicateLeaveError if tx is a leave that already exists.
// Non-leave transactions always pass without reading.
func (g *Guard) Ensure(ctx context.Context, tx domain.Transaction) error {
	if !tx.IsLeave() {
		return nil
	}

	snap, err := g.reader.Reload(ctx)
	if err != nil {
		return fmt.Errorf("Ensure: reading ledger: %w", err)
	}

	if CheckDuplicate(snap.Ledger(), tx.Date, tx.Subcategory) {
		g.log.Info().
			Str("date", tx.Date.Format(domain.DateLayout)).
			Str("subcategory", tx.Subcategory).
			Str("generation", snap.Generation).
			Msg("Rejected duplicate leave")
		return &DuplicateLeaveError{Date: tx.Date, Subcategory: tx.Subcategory}
	}
	return nil
}
