package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

func TestRowFromStorage_RoundTrip(t *testing.T) {
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("IST", 19800))

	tests := []struct {
		name string
		row  domain.Row
	}{
		{"expense", domain.Row{"2024-05-15", "Expense", "Groceries", "Big Basket", 2000.5, "Yashika"}},
		{"income", domain.Row{"2024-05-01", "Income", "Salary", "May Salary", 50000.0, "Shubham"}},
		{"leave", domain.Row{"2024-05-01", "Leave", "Maid", "", 0.0, ""}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lr, err := rowFromStorage(tt.row, "key-1", now)
			require.NoError(t, err)
			assert.Equal(t, "key-1", lr.InsertKey)
			assert.Equal(t, time.UTC, lr.InsertedTS.Location())

			assert.Equal(t, domain.RecordFromRow(tt.row), lr.Record())
		})
	}
}

func TestRowFromStorage_EmptyFieldsAreNull(t *testing.T) {
	lr, err := rowFromStorage(domain.Row{"2024-05-01", "Leave", "Cook", "", 0.0, ""}, "k", time.Now())
	require.NoError(t, err)
	assert.False(t, lr.Description.Valid)
	assert.False(t, lr.PaidBy.Valid)
}

func TestRowFromStorage_RejectsBadValues(t *testing.T) {
	_, err := rowFromStorage(domain.Row{"15/05/2024", "Expense", "Groceries", "Veg", 10.0, "Shubham"}, "k", time.Now())
	assert.Error(t, err)

	_, err = rowFromStorage(domain.Row{"2024-05-15", "Expense", "Groceries", "Veg", "ten", "Shubham"}, "k", time.Now())
	assert.Error(t, err)
}

func TestClassify(t *testing.T) {
	notFound := &googleapi.Error{Code: http.StatusNotFound, Message: "Not found: Table p:finance.daily_tracker"}
	assert.ErrorIs(t, classify("ListAll", fmt.Errorf("read: %w", notFound)), recordstore.ErrNotFound)

	unavailable := &googleapi.Error{Code: http.StatusServiceUnavailable}
	assert.ErrorIs(t, classify("Append", unavailable), recordstore.ErrConnection)

	assert.ErrorIs(t, classify("ListAll", context.Canceled), context.Canceled)
	assert.False(t, errors.Is(classify("ListAll", context.Canceled), recordstore.ErrConnection))
}
