package aggregate

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/domain"
)

// DefaultTrendWindow is the number of months in a trend series.
const DefaultTrendWindow = 6

// MaxTrendWindow caps the number of months in a trend series.
const MaxTrendWindow = 120

// TrendLabelLayout formats trend period labels, e.g. "May 2024".
const TrendLabelLayout = "Jan 2006"

// TrendPoint is one month of a trend series.
type TrendPoint struct {
	Year  int             `json:"year"`
	Month time.Month      `json:"month"`
	Label string          `json:"label"`
	Total decimal.Decimal `json:"total"`
}

// MonthlyTrend sums category per month over the window months ending at
// today's month, inclusive. Months without data are present with a zero
// total. Points are in chronological order. Windows above MaxTrendWindow are
// clamped to it.
func MonthlyTrend(l domain.Ledger, category domain.Category, window int, today time.Time) []TrendPoint {
	if window <= 0 {
		window = DefaultTrendWindow
	}
	if window > MaxTrendWindow {
		window = MaxTrendWindow
	}

	end := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, time.UTC)
	start := end.AddDate(0, -(window - 1), 0)

	points := make([]TrendPoint, window)
	for i := range points {
		m := start.AddDate(0, i, 0)
		points[i] = TrendPoint{
			Year:  m.Year(),
			Month: m.Month(),
			Label: m.Format(TrendLabelLayout),
			Total: decimal.Zero,
		}
	}

	for _, tx := range l {
		if tx.Category != category {
			continue
		}
		i := monthsBetween(start, tx.Date)
		if i < 0 || i >= window {
			continue
		}
		points[i].Total = points[i].Total.Add(tx.Amount)
	}
	return points
}

func monthsBetween(from, to time.Time) int {
	return (to.Year()-from.Year())*12 + int(to.Month()) - int(from.Month())
}
