package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRowKeys(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2024, 5, d, 0, 0, 0, 0, time.UTC) }
	l := Ledger{
		{Date: day(1), Category: CategoryIncome, Subcategory: "Salary", Description: "May Salary", Amount: decimal.NewFromInt(50000), PaidBy: PaidByShubham},
		{Date: day(15), Category: CategoryExpense, Subcategory: "Groceries", Description: "Veg", Amount: decimal.NewFromInt(200), PaidBy: PaidByYashika},
		{Date: day(15), Category: CategoryExpense, Subcategory: "Groceries", Description: "Veg", Amount: decimal.NewFromInt(200), PaidBy: PaidByYashika},
		{Date: day(1), Category: CategoryLeave, Subcategory: LeaveMaid, Amount: decimal.Zero},
	}
	keys := RowKeys(l)

	require.Len(t, keys, 4)
	assert.NotEqual(t, keys[1], keys[2], "identical rows need distinct keys")
	assert.Equal(t, keys, RowKeys(l.Clone()))

	reordered := Ledger{l[3], l[0], l[1], l[2]}
	assert.ElementsMatch(t, keys, RowKeys(reordered))

	changed := l.Clone()
	changed[0].Amount = decimal.NewFromInt(50001)
	assert.NotEqual(t, keys[0], RowKeys(changed)[0])
}

func TestTransaction_Fingerprint(t *testing.T) {
	tx := Transaction{Date: time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), Category: CategoryExpense, Subcategory: "Groceries", Description: "Veg", Amount: decimal.RequireFromString("200.00"), PaidBy: PaidByYashika}
	same := tx
	same.Amount = decimal.NewFromInt(200)
	assert.Equal(t, tx.Fingerprint(), same.Fingerprint())
	assert.Len(t, tx.Fingerprint(), 16)

	other := tx
	other.PaidBy = PaidByShubham
	assert.NotEqual(t, tx.Fingerprint(), other.Fingerprint())
	assert.Equal(t, tx.Fingerprint()+"-1", RowKeys(Ledger{tx})[0])
}
