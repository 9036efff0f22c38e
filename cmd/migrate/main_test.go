package main

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

func record(day int, category domain.Category, sub, desc string, amount int64, paidBy domain.PaidBy) domain.Record {
	tx := domain.Transaction{
		Date:        time.Date(2024, 5, day, 0, 0, 0, 0, time.UTC),
		Category:    category,
		Subcategory: sub,
		Description: desc,
		Amount:      decimal.NewFromInt(amount),
		PaidBy:      paidBy,
	}
	return domain.RecordFromRow(tx.ToStorageRow())
}

func sourceRecords() []domain.Record {
	return []domain.Record{
		record(1, domain.CategoryIncome, "Salary", "May Salary", 50000, domain.PaidByShubham),
		record(15, domain.CategoryExpense, "Groceries", "Veg", 200, domain.PaidByYashika),
		record(15, domain.CategoryExpense, "Groceries", "Veg", 200, domain.PaidByYashika),
		record(2, domain.CategoryLeave, domain.LeaveMaid, "", 0, ""),
	}
}

func TestCopyLedger_CopiesInOrderThenNothing(t *testing.T) {
	ctx := context.Background()
	src := recordstore.NewMemory(sourceRecords()...)
	dst := recordstore.NewMemory()

	res, err := copyLedger(ctx, src, dst, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, copyResult{Source: 4, Copied: 4}, res)

	got, err := dst.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, got, 4)
	assert.Equal(t, "May Salary", got[0][domain.ColumnDescription])
	assert.Equal(t, string(domain.CategoryLeave), got[3][domain.ColumnCategory])

	again, err := copyLedger(ctx, src, dst, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, copyResult{Source: 4, Present: 4}, again)
	assert.Equal(t, 4, dst.Len())
}

func TestCopyLedger_CopiesOnlyMissingDuplicates(t *testing.T) {
	ctx := context.Background()
	src := recordstore.NewMemory(sourceRecords()...)
	// One of the two identical grocery rows already made it across.
	dst := recordstore.NewMemory(sourceRecords()[1])

	res, err := copyLedger(ctx, src, dst, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Present)
	assert.Equal(t, 3, res.Copied)
	assert.Equal(t, 4, dst.Len())
}

func TestCopyLedger_DryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	src := recordstore.NewMemory(sourceRecords()...)
	dst := recordstore.NewMemory()

	res, err := copyLedger(ctx, src, dst, true, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4, res.Copied)
	assert.Equal(t, 0, dst.AppendCalls())
}

func TestCopyLedger_CountsUnparseableRows(t *testing.T) {
	ctx := context.Background()
	bad := record(3, domain.CategoryExpense, "Groceries", "x", 10, domain.PaidByShubham)
	bad[domain.ColumnDate] = "not a date"
	src := recordstore.NewMemory(append(sourceRecords(), bad)...)
	dst := recordstore.NewMemory()

	res, err := copyLedger(ctx, src, dst, false, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 4, res.Copied)
}

func TestSourceFlags_Apply(t *testing.T) {
	dst := &config.Config{Backend: config.BackendBigQuery, Worksheet: "Tracker", SQLitePath: "tracker.db", Table: "daily_tracker"}

	s := sourceFlags{backend: "sqlite", sqlitePath: "old.db"}
	src := s.apply(dst)

	assert.Equal(t, config.BackendSQLite, src.Backend)
	assert.Equal(t, "old.db", src.SQLitePath)
	assert.Equal(t, "Tracker", src.Worksheet)
	assert.Equal(t, config.BackendBigQuery, dst.Backend, "destination is left untouched")
}
