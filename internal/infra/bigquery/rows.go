package bigquery

import (
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// LedgerRow is one row of the ledger table.
type LedgerRow struct {
	Date        civil.Date          `bigquery:"date"`        // REQUIRED
	Category    string              `bigquery:"category"`    // REQUIRED
	Subcategory string              `bigquery:"subcategory"` // REQUIRED
	Description bigquery.NullString `bigquery:"description"` // NULLABLE, empty for Leave
	Amount      *big.Rat            `bigquery:"amount"`      // REQUIRED NUMERIC
	PaidBy      bigquery.NullString `bigquery:"paid_by"`     // NULLABLE, empty for Leave

	InsertKey  string    `bigquery:"insert_key"`  // REQUIRED, streaming insert ID
	InsertedTS time.Time `bigquery:"inserted_ts"` // REQUIRED
}

// rowFromStorage converts a positional storage row into a LedgerRow.
func rowFromStorage(row domain.Row, key string, now time.Time) (*LedgerRow, error) {
	rec := domain.RecordFromRow(row)

	date, err := civil.ParseDate(rec[domain.ColumnDate])
	if err != nil {
		return nil, fmt.Errorf("parsing date %q: %w", rec[domain.ColumnDate], err)
	}
	amount, err := decimal.NewFromString(rec[domain.ColumnAmount])
	if err != nil {
		return nil, fmt.Errorf("parsing amount %q: %w", rec[domain.ColumnAmount], err)
	}

	return &LedgerRow{
		Date:        date,
		Category:    rec[domain.ColumnCategory],
		Subcategory: rec[domain.ColumnSubcategory],
		Description: nullString(rec[domain.ColumnDescription]),
		Amount:      amount.Rat(),
		PaidBy:      nullString(rec[domain.ColumnPaidBy]),
		InsertKey:   key,
		InsertedTS:  now.UTC(),
	}, nil
}

// Record converts the row to the worksheet-shaped record.
func (r *LedgerRow) Record() domain.Record {
	amount := ""
	if r.Amount != nil {
		// NUMERIC has a scale of 9, so nine digits are exact.
		amount = decimal.RequireFromString(r.Amount.FloatString(9)).String()
	}
	return domain.Record{
		domain.ColumnDate:        r.Date.String(),
		domain.ColumnCategory:    r.Category,
		domain.ColumnSubcategory: r.Subcategory,
		domain.ColumnDescription: r.Description.StringVal,
		domain.ColumnAmount:      amount,
		domain.ColumnPaidBy:      r.PaidBy.StringVal,
	}
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}
