package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/guard"
	"github.com/dvloznov/daily-tracker/internal/jobs"
	"github.com/dvloznov/daily-tracker/internal/ledger"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

var june2024 = time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC)

func fixedNow() time.Time { return june2024 }

type fakeSink struct {
	mu    sync.Mutex
	files []*export.File
	err   error
}

func (f *fakeSink) Put(ctx context.Context, file *export.File) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.files = append(f.files, file)
	return "mem://" + file.Name, nil
}

func newService(t *testing.T, mem *recordstore.Memory, opts Options) *Service {
	t.Helper()
	store := recordstore.NewRetrying(mem, recordstore.RetryOptions{Attempts: 3, Backoff: time.Millisecond}, zerolog.Nop())
	cache := ledger.NewCache(store, nil, ledger.Options{Now: fixedNow}, zerolog.Nop())
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	return NewService(store, cache, opts, zerolog.Nop())
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func expense(date time.Time, sub, desc, amount string, payer domain.PaidBy) SubmitRequest {
	return SubmitRequest{Input: domain.Input{
		Date:        date,
		Category:    domain.CategoryExpense,
		Subcategory: sub,
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		PaidBy:      payer,
	}}
}

func leave(date time.Time, sub string) SubmitRequest {
	return SubmitRequest{Input: domain.Input{Date: date, Category: domain.CategoryLeave, Subcategory: sub}}
}

func seedScenario(t *testing.T, svc *Service) {
	t.Helper()
	ctx := context.Background()
	reqs := []SubmitRequest{
		{Input: domain.Input{Date: day(2024, 5, 1), Category: domain.CategoryIncome, Subcategory: "Salary", Description: "may salary", Amount: decimal.NewFromInt(50000), PaidBy: domain.PaidByShubham}},
		expense(day(2024, 5, 15), "Groceries", "veg", "2000", domain.PaidByShubham),
		expense(day(2024, 6, 1), "Groceries", "veg", "1500", domain.PaidByYashika),
	}
	for _, r := range reqs {
		_, err := svc.SubmitTransaction(ctx, r)
		require.NoError(t, err)
	}
}

func TestSubmit_ReadAfterWrite(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	// Warm the cache so a missing invalidation would show up as a stale read.
	recent, err := svc.Recent(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, recent)

	res, err := svc.SubmitTransaction(ctx, expense(day(2024, 5, 15), "Groceries", " weekly veg ", "2000", domain.PaidByShubham))
	require.NoError(t, err)
	assert.Equal(t, "Weekly Veg", res.Transaction.Description)
	assert.Equal(t, "2024-05-15", res.Transaction.Date)
	assert.False(t, res.Replayed)

	recent, err = svc.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "Weekly Veg", recent[0].Description)
	assert.Equal(t, "₹2,000", recent[0].AmountDisplay)
}

func TestSubmit_ValidationErrorsNeverReachStore(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})

	_, err := svc.SubmitTransaction(context.Background(), SubmitRequest{Input: domain.Input{
		Date:     day(2024, 5, 1),
		Category: domain.CategoryExpense,
	}})

	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.GreaterOrEqual(t, len(verrs), 3)
	assert.Equal(t, 0, mem.AppendCalls())
}

func TestSubmit_DuplicateLeaveRejected(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	res, err := svc.SubmitTransaction(ctx, leave(day(2024, 5, 1), domain.LeaveMaid))
	require.NoError(t, err)
	assert.Equal(t, "Leave recorded for Maid on 2024-05-01", res.Message)

	_, err = svc.SubmitTransaction(ctx, leave(day(2024, 5, 1), domain.LeaveMaid))
	var dup *guard.DuplicateLeaveError
	require.True(t, errors.As(err, &dup))
	assert.Equal(t, 1, mem.Len())

	_, err = svc.SubmitTransaction(ctx, leave(day(2024, 5, 1), domain.LeaveCook))
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len())
}

func TestSubmit_GuardSeesWritesFromOtherProcesses(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	_, err := svc.Overview(ctx)
	require.NoError(t, err)

	// Another session records the leave; this cache is still valid and stale.
	require.NoError(t, mem.Append(ctx, domain.Row{"2024-05-01", "Leave", "Maid", "", 0.0, ""}))

	_, err = svc.SubmitTransaction(ctx, leave(day(2024, 5, 1), domain.LeaveMaid))
	var dup *guard.DuplicateLeaveError
	assert.True(t, errors.As(err, &dup))
}

func TestSubmit_ConcurrentLeaveWritesOnce(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})

	const n = 6
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.SubmitTransaction(context.Background(), leave(day(2024, 5, 1), domain.LeaveMaid))
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		var dup *guard.DuplicateLeaveError
		assert.True(t, errors.As(err, &dup), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, mem.Len())
}

func TestSubmit_IdempotencyKeyReplays(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	req := expense(day(2024, 5, 15), "Groceries", "veg", "2000", domain.PaidByShubham)
	req.IdempotencyKey = "form-1"

	first, err := svc.SubmitTransaction(ctx, req)
	require.NoError(t, err)
	second, err := svc.SubmitTransaction(ctx, req)
	require.NoError(t, err)

	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Transaction, second.Transaction)
	assert.Equal(t, 1, mem.Len())

	req.IdempotencyKey = "form-2"
	_, err = svc.SubmitTransaction(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, 2, mem.Len(), "a new form rendering is a new submission")
}

func TestSubmit_IdempotencyKeyReusedWithDifferentPayload(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	req := expense(day(2024, 5, 15), "Groceries", "veg", "2000", domain.PaidByShubham)
	req.IdempotencyKey = "form-1"
	_, err := svc.SubmitTransaction(ctx, req)
	require.NoError(t, err)

	changed := expense(day(2024, 5, 15), "Groceries", "veg", "2500", domain.PaidByShubham)
	changed.IdempotencyKey = "form-1"
	_, err = svc.SubmitTransaction(ctx, changed)
	assert.ErrorIs(t, err, ErrIdempotencyKeyReused)
	assert.Equal(t, 1, mem.Len())

	// Normalization happens before the comparison.
	spaced := expense(day(2024, 5, 15), "Groceries", " veg ", "2000.00", domain.PaidByShubham)
	spaced.IdempotencyKey = "form-1"
	res, err := svc.SubmitTransaction(ctx, spaced)
	require.NoError(t, err)
	assert.True(t, res.Replayed)

	invalid := SubmitRequest{IdempotencyKey: "form-1", Input: domain.Input{Date: day(2024, 5, 15), Category: domain.Category("Refund")}}
	_, err = svc.SubmitTransaction(ctx, invalid)
	var verrs domain.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestSubmit_AppendExhaustionInvalidates(t *testing.T) {
	mem := recordstore.NewMemory()
	mem.OnAppend = func(int) (bool, error) { return false, errors.New("sheets: 500") }
	svc := newService(t, mem, Options{})
	ctx := context.Background()

	_, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusValid, svc.Cache().Status())

	_, err = svc.SubmitTransaction(ctx, expense(day(2024, 5, 15), "Groceries", "veg", "2000", domain.PaidByShubham))
	var appendErr *recordstore.AppendError
	require.True(t, errors.As(err, &appendErr))
	assert.Equal(t, 3, appendErr.Attempts)
	assert.Equal(t, ledger.StatusCold, svc.Cache().Status())
}

func TestSelectPeriod_Scenario(t *testing.T) {
	svc := newService(t, recordstore.NewMemory(), Options{})
	seedScenario(t, svc)
	ctx := context.Background()

	may, err := svc.SelectPeriod(ctx, 2024, []time.Month{time.May})
	require.NoError(t, err)
	assert.True(t, may.Totals.Income.Equal(decimal.NewFromInt(50000)))
	assert.True(t, may.Totals.Expense.Equal(decimal.NewFromInt(2000)))
	assert.True(t, may.Totals.Investment.IsZero())
	assert.Equal(t, "May 2024", may.Label)
	assert.Equal(t, "₹50.0K", may.Display["income"])
	assert.Equal(t, "₹2.0K", may.Display["expense_Shubham"])
	assert.Equal(t, "₹0", may.Display["expense_Yashika"])

	require.Len(t, may.Tabs, 3)
	expenseTab := may.Tabs[0]
	assert.Equal(t, domain.CategoryExpense, expenseTab.Category)
	require.Len(t, expenseTab.Trend, 6)
	assert.Equal(t, "May 2024", expenseTab.Trend[4].Label)
	assert.True(t, expenseTab.Trend[4].Total.Equal(decimal.NewFromInt(2000)))
	assert.True(t, expenseTab.Trend[5].Total.Equal(decimal.NewFromInt(1500)))
	require.NotNil(t, expenseTab.Calendar)
	assert.Equal(t, time.May, expenseTab.Calendar.Month)
	assert.True(t, expenseTab.Calendar.Days[15].Equal(decimal.NewFromInt(2000)))

	none, err := svc.SelectPeriod(ctx, 2024, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, none.Transactions)
	assert.True(t, none.Totals.Income.IsZero())
	assert.Nil(t, none.Tabs[0].Calendar)

	_, err = svc.SelectPeriod(ctx, 2024, []time.Month{13})
	var verrs domain.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestOverview_Defaults(t *testing.T) {
	svc := newService(t, recordstore.NewMemory(), Options{})
	ctx := context.Background()

	empty, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Years)
	assert.Zero(t, empty.DefaultYear)

	seedScenario(t, svc)

	ov, err := svc.Overview(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{2024}, ov.Years)
	assert.Equal(t, 2024, ov.DefaultYear)
	assert.Equal(t, []time.Month{time.May, time.June}, ov.Months)
	assert.Equal(t, []time.Month{time.June}, ov.DefaultMonths)
	assert.Equal(t, 3, ov.Transactions)
	require.Len(t, ov.Recent, 3)
	assert.Equal(t, "2024-06-01", ov.Recent[0].Date)
}

func TestLeaveView(t *testing.T) {
	svc := newService(t, recordstore.NewMemory(), Options{})
	ctx := context.Background()

	for _, r := range []SubmitRequest{
		leave(day(2024, 5, 1), domain.LeaveMaid),
		leave(day(2024, 5, 1), domain.LeaveCook),
		leave(day(2024, 5, 20), domain.LeaveMaid),
	} {
		_, err := svc.SubmitTransaction(ctx, r)
		require.NoError(t, err)
	}

	view, err := svc.LeaveView(ctx, 2024, time.May)
	require.NoError(t, err)
	assert.Equal(t, 2, view.Summary.MaidDays)
	assert.Equal(t, 1, view.Summary.CookDays)
	assert.Equal(t, "May", view.MonthName)
	assert.Len(t, view.Weeks, 5)
}

func TestTrend_UnknownCategory(t *testing.T) {
	svc := newService(t, recordstore.NewMemory(), Options{})
	_, err := svc.Trend(context.Background(), domain.Category("Refund"), 6)
	var verrs domain.ValidationErrors
	assert.True(t, errors.As(err, &verrs))
}

func TestTrend_WindowTooLarge(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})
	_, err := svc.Trend(context.Background(), domain.CategoryExpense, 121)
	var verrs domain.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "window", verrs[0].Field)
	assert.Equal(t, 0, mem.ListCalls())

	points, err := svc.Trend(context.Background(), domain.CategoryExpense, 120)
	require.NoError(t, err)
	assert.Len(t, points, 120)
}

func TestExport(t *testing.T) {
	svc := newService(t, recordstore.NewMemory(), Options{})
	ctx := context.Background()

	_, err := svc.Export(ctx)
	assert.ErrorIs(t, err, export.ErrNoData)

	seedScenario(t, svc)
	file, err := svc.Export(ctx)
	require.NoError(t, err)
	assert.Equal(t, "finance_tracker_20240620.xlsx", file.Name)
	assert.Equal(t, 3, file.Rows)
}

func TestRunExportJob(t *testing.T) {
	sink := &fakeSink{}
	svc := newService(t, recordstore.NewMemory(), Options{Sink: sink})
	seedScenario(t, svc)

	job := &jobs.ExportJob{JobID: "job-1"}
	require.NoError(t, svc.RunExportJob(context.Background(), job))
	assert.Equal(t, "mem://finance_tracker_20240620.xlsx", job.Location)
	assert.Equal(t, 3, job.Rows)
	assert.NotEmpty(t, job.Generation)
	require.Len(t, sink.files, 1)

	noSink := newService(t, recordstore.NewMemory(), Options{})
	assert.ErrorIs(t, noSink.RunExportJob(context.Background(), &jobs.ExportJob{}), ErrNoSink)
}

func TestClearCache(t *testing.T) {
	mem := recordstore.NewMemory()
	svc := newService(t, mem, Options{})

	_, err := svc.Overview(context.Background())
	require.NoError(t, err)

	info := svc.ClearCache()
	assert.Equal(t, ledger.StatusCold, info.Status)
	assert.Equal(t, "5m0s", info.TTL)
}

func TestTestConnection(t *testing.T) {
	mem := recordstore.NewMemory(domain.RecordFromRow(domain.Row{"2024-05-01", "Leave", "Maid", "", 0.0, ""}))
	svc := newService(t, mem, Options{})

	info, err := svc.TestConnection(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", info.Backend)
	assert.Equal(t, 1, info.RowCount)
	assert.Equal(t, domain.Columns, info.Headers)
}
