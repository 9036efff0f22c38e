package tracker

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/aggregate"
	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/ledger"
)

// Categories shown as tabs in the period summary.
var summaryTabs = []domain.Category{
	domain.CategoryExpense,
	domain.CategoryIncome,
	domain.CategoryInvestment,
}

// TransactionView is the display form of a transaction.
type TransactionView struct {
	Date          string          `json:"date"`
	Category      domain.Category `json:"category"`
	Subcategory   string          `json:"subcategory"`
	Description   string          `json:"description,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	AmountDisplay string          `json:"amount_display"`
	PaidBy        domain.PaidBy   `json:"paid_by,omitempty"`
}

// ViewOf converts a transaction for display.
func ViewOf(tx domain.Transaction) TransactionView {
	return TransactionView{
		Date:          tx.Date.Format(domain.DateLayout),
		Category:      tx.Category,
		Subcategory:   tx.Subcategory,
		Description:   tx.Description,
		Amount:        tx.Amount,
		AmountDisplay: aggregate.FormatCurrency(tx.Amount, false),
		PaidBy:        tx.PaidBy,
	}
}

func viewsOf(l domain.Ledger) []TransactionView {
	out := make([]TransactionView, len(l))
	for i, tx := range l {
		out[i] = ViewOf(tx)
	}
	return out
}

// CalendarView is one month of per-day totals laid out as Sunday-first weeks.
type CalendarView struct {
	Year      int                     `json:"year"`
	Month     time.Month              `json:"month"`
	MonthName string                  `json:"month_name"`
	Category  domain.Category         `json:"category,omitempty"`
	Weeks     [][7]int                `json:"weeks"`
	Days      map[int]decimal.Decimal `json:"days"`
	Total     decimal.Decimal         `json:"total"`
}

// CategoryTab is the per-category section of the period summary.
type CategoryTab struct {
	Category  domain.Category              `json:"category"`
	Total     decimal.Decimal              `json:"total"`
	Breakdown []aggregate.SubcategoryTotal `json:"breakdown"`
	Trend     []aggregate.TrendPoint       `json:"trend"`
	// Calendar covers the first selected month only.
	Calendar *CalendarView `json:"calendar,omitempty"`
}

// SummaryView is the dashboard for a selected year and months.
type SummaryView struct {
	Year              int               `json:"year"`
	Months            []time.Month      `json:"months"`
	Label             string            `json:"label"`
	Generation        string            `json:"generation"`
	Transactions      int               `json:"transactions"`
	Totals            aggregate.Totals  `json:"totals"`
	Net               decimal.Decimal   `json:"net"`
	AllTimeInvestment decimal.Decimal   `json:"all_time_investment"`
	Display           map[string]string `json:"display"`
	Tabs              []CategoryTab     `json:"tabs"`
}

// LeaveView is the household-help leave tracker for one month.
type LeaveView struct {
	Year      int                    `json:"year"`
	Month     time.Month             `json:"month"`
	MonthName string                 `json:"month_name"`
	Summary   aggregate.LeaveSummary `json:"summary"`
	Weeks     [][7]int               `json:"weeks"`
}

// Overview carries what the UI needs before the user picks anything.
type Overview struct {
	Generation        string            `json:"generation"`
	FetchedAt         time.Time         `json:"fetched_at"`
	CacheStatus       ledger.Status     `json:"cache_status"`
	Transactions      int               `json:"transactions"`
	Skipped           int               `json:"skipped"`
	Years             []int             `json:"years"`
	Months            []time.Month      `json:"months"`
	DefaultYear       int               `json:"default_year,omitempty"`
	DefaultMonths     []time.Month      `json:"default_months"`
	AllTimeInvestment decimal.Decimal   `json:"all_time_investment"`
	Recent            []TransactionView `json:"recent"`
}

func validatePeriod(year int, months []time.Month) error {
	var errs domain.ValidationErrors
	if year < 1 {
		errs = append(errs, domain.ValidationError{Field: "year", Message: "Year must be positive"})
	}
	for _, m := range months {
		if m < time.January || m > time.December {
			errs = append(errs, domain.ValidationError{Field: "months", Message: fmt.Sprintf("Invalid month %d", int(m))})
			break
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SelectPeriod computes the summary for year and months. An empty months
// selection yields zero totals, not the whole year.
func (s *Service) SelectPeriod(ctx context.Context, year int, months []time.Month) (*SummaryView, error) {
	if err := validatePeriod(year, months); err != nil {
		return nil, err
	}

	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("SelectPeriod: %w", err)
	}
	all := snap.Ledger()
	period := aggregate.FilterPeriod(all, year, months)
	totals := aggregate.CategoryTotals(period)
	allTime := aggregate.CategoryTotals(all).Investment
	today := s.now()

	view := &SummaryView{
		Year:              year,
		Months:            append([]time.Month{}, months...),
		Label:             aggregate.PeriodLabel(year, months),
		Generation:        snap.Generation,
		Transactions:      len(period),
		Totals:            totals,
		Net:               totals.Net(),
		AllTimeInvestment: allTime,
		Display: map[string]string{
			"income":              aggregate.FormatAmount(totals.Income),
			"expense":             aggregate.FormatAmount(totals.Expense),
			"investment":          aggregate.FormatAmount(totals.Investment),
			"net":                 aggregate.FormatAmount(totals.Net()),
			"all_time_investment": aggregate.FormatAmount(allTime),
		},
	}
	for payer, amount := range totals.ExpenseByPayer {
		view.Display["expense_"+string(payer)] = aggregate.FormatAmount(amount)
	}

	for _, category := range summaryTabs {
		tab := CategoryTab{
			Category:  category,
			Total:     categoryTotal(totals, category),
			Breakdown: aggregate.SubcategoryBreakdown(period, category),
			Trend:     aggregate.MonthlyTrend(all, category, aggregate.DefaultTrendWindow, today),
		}
		if len(months) > 0 {
			cal := calendarOf(all, year, months[0], &category)
			tab.Calendar = &cal
		}
		view.Tabs = append(view.Tabs, tab)
	}

	return view, nil
}

func categoryTotal(t aggregate.Totals, c domain.Category) decimal.Decimal {
	switch c {
	case domain.CategoryIncome:
		return t.Income
	case domain.CategoryExpense:
		return t.Expense
	case domain.CategoryInvestment:
		return t.Investment
	case domain.CategoryOther:
		return t.Other
	default:
		return decimal.Zero
	}
}

func calendarOf(l domain.Ledger, year int, month time.Month, category *domain.Category) CalendarView {
	days := aggregate.DailyTotals(l, year, month, category)
	total := decimal.Zero
	for _, v := range days {
		total = total.Add(v)
	}
	view := CalendarView{
		Year:      year,
		Month:     month,
		MonthName: month.String(),
		Weeks:     aggregate.MonthGrid(year, month),
		Days:      days,
		Total:     total,
	}
	if category != nil {
		view.Category = *category
	}
	return view
}

// CalendarView computes per-day totals for one month. A nil category sums
// every monetary category.
func (s *Service) CalendarView(ctx context.Context, year int, month time.Month, category *domain.Category) (*CalendarView, error) {
	if err := validatePeriod(year, []time.Month{month}); err != nil {
		return nil, err
	}
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("CalendarView: %w", err)
	}
	view := calendarOf(snap.Ledger(), year, month, category)
	return &view, nil
}

// LeaveView computes the leave summary and calendar for one month.
func (s *Service) LeaveView(ctx context.Context, year int, month time.Month) (*LeaveView, error) {
	if err := validatePeriod(year, []time.Month{month}); err != nil {
		return nil, err
	}
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("LeaveView: %w", err)
	}
	return &LeaveView{
		Year:      year,
		Month:     month,
		MonthName: month.String(),
		Summary:   aggregate.SummarizeLeave(snap.Ledger(), year, month),
		Weeks:     aggregate.MonthGrid(year, month),
	}, nil
}

// Trend returns the trailing monthly totals of category, ending this month.
func (s *Service) Trend(ctx context.Context, category domain.Category, window int) ([]aggregate.TrendPoint, error) {
	if !category.Valid() {
		return nil, domain.ValidationErrors{{Field: "category", Message: fmt.Sprintf("Unknown category %q", category)}}
	}
	if window > aggregate.MaxTrendWindow {
		return nil, domain.ValidationErrors{{Field: "window", Message: fmt.Sprintf("Window must be at most %d months", aggregate.MaxTrendWindow)}}
	}
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Trend: %w", err)
	}
	return aggregate.MonthlyTrend(snap.Ledger(), category, window, s.now()), nil
}

// Recent returns the latest n non-leave transactions, newest first.
func (s *Service) Recent(ctx context.Context, n int) ([]TransactionView, error) {
	if n <= 0 {
		n = DefaultRecentLimit
	}
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Recent: %w", err)
	}
	return viewsOf(aggregate.RecentTransactions(snap.Ledger(), n)), nil
}

// Overview lists the available periods and picks defaults: the current year
// when it has data (else the latest year), and the current month when it has
// data in that year (else the first month with data).
func (s *Service) Overview(ctx context.Context) (*Overview, error) {
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Overview: %w", err)
	}
	all := snap.Ledger()
	now := s.now()

	ov := &Overview{
		Generation:        snap.Generation,
		FetchedAt:         snap.FetchedAt,
		CacheStatus:       s.cache.Status(),
		Transactions:      snap.Len(),
		Skipped:           snap.Skipped,
		Years:             aggregate.AvailableYears(all),
		DefaultMonths:     []time.Month{},
		AllTimeInvestment: aggregate.CategoryTotals(all).Investment,
		Recent:            viewsOf(aggregate.RecentTransactions(all, DefaultRecentLimit)),
	}
	if len(ov.Years) == 0 {
		ov.Years = []int{}
		ov.Months = []time.Month{}
		return ov, nil
	}

	ov.DefaultYear = ov.Years[0]
	for _, y := range ov.Years {
		if y == now.Year() {
			ov.DefaultYear = y
			break
		}
	}

	ov.Months = aggregate.AvailableMonths(all, ov.DefaultYear)
	if len(ov.Months) > 0 {
		ov.DefaultMonths = []time.Month{ov.Months[0]}
		if ov.DefaultYear == now.Year() {
			for _, m := range ov.Months {
				if m == now.Month() {
					ov.DefaultMonths = []time.Month{m}
					break
				}
			}
		}
	}
	return ov, nil
}

// Export renders the current ledger as an xlsx file.
func (s *Service) Export(ctx context.Context) (*export.File, error) {
	snap, err := s.cache.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("Export: %w", err)
	}
	return export.Build(snap.Ledger(), s.now())
}
