package aggregate

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// DailyTotals sums amounts per day of month. With a nil category every
// monetary category counts and Leave rows are ignored. Days without matching
// transactions are absent from the map.
func DailyTotals(l domain.Ledger, year int, month time.Month, category *domain.Category) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for _, tx := range l {
		if tx.Date.Year() != year || tx.Date.Month() != month {
			continue
		}
		if category != nil {
			if tx.Category != *category {
				continue
			}
		} else if tx.IsLeave() {
			continue
		}
		out[tx.Date.Day()] = out[tx.Date.Day()].Add(tx.Amount)
	}
	return out
}

// LeaveSummary counts leave days for one month.
type LeaveSummary struct {
	MaidDays int `json:"maid_days"`
	CookDays int `json:"cook_days"`
	// Days maps a day of month to the help on leave that day.
	Days map[int][]string `json:"days"`
}

// SummarizeLeave counts Leave transactions per subcategory within the month.
func SummarizeLeave(l domain.Ledger, year int, month time.Month) LeaveSummary {
	s := LeaveSummary{Days: make(map[int][]string)}
	for _, tx := range l {
		if !tx.IsLeave() || tx.Date.Year() != year || tx.Date.Month() != month {
			continue
		}
		switch tx.Subcategory {
		case domain.LeaveMaid:
			s.MaidDays++
		case domain.LeaveCook:
			s.CookDays++
		}
		d := tx.Date.Day()
		s.Days[d] = append(s.Days[d], tx.Subcategory)
	}
	return s
}

// MonthGrid lays out a month as Sunday-first weeks. Days outside the month
// are zero.
func MonthGrid(year int, month time.Month) [][7]int {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	days := first.AddDate(0, 1, -1).Day()

	var weeks [][7]int
	var week [7]int
	col := int(first.Weekday())
	for d := 1; d <= days; d++ {
		week[col] = d
		col++
		if col == 7 {
			weeks = append(weeks, week)
			week = [7]int{}
			col = 0
		}
	}
	if col > 0 {
		weeks = append(weeks, week)
	}
	return weeks
}

// PeriodLabel describes a selection of months, e.g. "May, June 2024".
func PeriodLabel(year int, months []time.Month) string {
	if len(months) == 0 {
		return "No months selected"
	}
	names := make([]string, len(months))
	for i, m := range months {
		names[i] = m.String()
	}
	return fmt.Sprintf("%s %d", strings.Join(names, ", "), year)
}
