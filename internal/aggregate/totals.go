// Package aggregate derives reporting views from a ledger snapshot.
//
// Every function here is pure: it reads the ledger it is given and returns
// new values. Amounts are summed as decimals and only rounded when formatted.
package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// Totals holds per-category sums and the expense split by payer.
type Totals struct {
	Income     decimal.Decimal `json:"income"`
	Expense    decimal.Decimal `json:"expense"`
	Investment decimal.Decimal `json:"investment"`
	Other      decimal.Decimal `json:"other"`
	// ExpenseByPayer always has an entry for every known payer.
	ExpenseByPayer map[domain.PaidBy]decimal.Decimal `json:"expense_by_payer"`
}

// Net is income minus expense and investment.
func (t Totals) Net() decimal.Decimal {
	return t.Income.Sub(t.Expense).Sub(t.Investment)
}

// CategoryTotals sums the ledger by category. Absent categories are zero.
func CategoryTotals(l domain.Ledger) Totals {
	t := Totals{
		Income:         decimal.Zero,
		Expense:        decimal.Zero,
		Investment:     decimal.Zero,
		Other:          decimal.Zero,
		ExpenseByPayer: make(map[domain.PaidBy]decimal.Decimal, len(domain.Payers)),
	}
	for _, p := range domain.Payers {
		t.ExpenseByPayer[p] = decimal.Zero
	}

	for _, tx := range l {
		switch tx.Category {
		case domain.CategoryIncome:
			t.Income = t.Income.Add(tx.Amount)
		case domain.CategoryExpense:
			t.Expense = t.Expense.Add(tx.Amount)
			if tx.PaidBy.Valid() {
				t.ExpenseByPayer[tx.PaidBy] = t.ExpenseByPayer[tx.PaidBy].Add(tx.Amount)
			}
		case domain.CategoryInvestment:
			t.Investment = t.Investment.Add(tx.Amount)
		case domain.CategoryOther:
			t.Other = t.Other.Add(tx.Amount)
		}
	}
	return t
}

// FilterPeriod returns the transactions dated in year and one of months.
// An empty months set yields an empty ledger, never the unfiltered one.
func FilterPeriod(l domain.Ledger, year int, months []time.Month) domain.Ledger {
	out := domain.Ledger{}
	if len(months) == 0 {
		return out
	}

	want := make(map[time.Month]struct{}, len(months))
	for _, m := range months {
		want[m] = struct{}{}
	}

	for _, tx := range l {
		if tx.Date.Year() != year {
			continue
		}
		if _, ok := want[tx.Date.Month()]; ok {
			out = append(out, tx)
		}
	}
	return out
}

// FilterCategory returns the transactions of one category.
func FilterCategory(l domain.Ledger, category domain.Category) domain.Ledger {
	out := domain.Ledger{}
	for _, tx := range l {
		if tx.Category == category {
			out = append(out, tx)
		}
	}
	return out
}

// SubcategoryTotal is one slice of a category breakdown.
type SubcategoryTotal struct {
	Subcategory string          `json:"subcategory"`
	Total       decimal.Decimal `json:"total"`
	Count       int             `json:"count"`
}

// SubcategoryBreakdown sums one category by subcategory, largest first.
// Ties are ordered by name.
func SubcategoryBreakdown(l domain.Ledger, category domain.Category) []SubcategoryTotal {
	index := make(map[string]int)
	var out []SubcategoryTotal
	for _, tx := range l {
		if tx.Category != category {
			continue
		}
		i, ok := index[tx.Subcategory]
		if !ok {
			i = len(out)
			index[tx.Subcategory] = i
			out = append(out, SubcategoryTotal{Subcategory: tx.Subcategory, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(tx.Amount)
		out[i].Count++
	}

	sort.SliceStable(out, func(i, j int) bool {
		if c := out[i].Total.Cmp(out[j].Total); c != 0 {
			return c > 0
		}
		return out[i].Subcategory < out[j].Subcategory
	})
	return out
}

// RecentTransactions returns the last n non-Leave transactions in store
// insertion order, newest first.
func RecentTransactions(l domain.Ledger, n int) domain.Ledger {
	out := domain.Ledger{}
	for i := len(l) - 1; i >= 0 && len(out) < n; i-- {
		if l[i].IsLeave() {
			continue
		}
		out = append(out, l[i])
	}
	return out
}

// AvailableYears lists the years present in the ledger, newest first.
func AvailableYears(l domain.Ledger) []int {
	seen := make(map[int]struct{})
	var years []int
	for _, tx := range l {
		y := tx.Date.Year()
		if _, ok := seen[y]; !ok {
			seen[y] = struct{}{}
			years = append(years, y)
		}
	}
	sort.Sort(sort.Reverse(sort.IntSlice(years)))
	return years
}

// AvailableMonths lists the months of year present in the ledger, ascending.
func AvailableMonths(l domain.Ledger, year int) []time.Month {
	var seen [13]bool
	for _, tx := range l {
		if tx.Date.Year() == year {
			seen[tx.Date.Month()] = true
		}
	}
	var months []time.Month
	for m := time.January; m <= time.December; m++ {
		if seen[m] {
			months = append(months, m)
		}
	}
	return months
}
