package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/jobs"
	"github.com/dvloznov/daily-tracker/internal/jobs/inmemory"
	"github.com/dvloznov/daily-tracker/internal/ledger"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
	"github.com/dvloznov/daily-tracker/internal/tracker"
)

func fixedNow() time.Time { return time.Date(2024, 6, 20, 10, 0, 0, 0, time.UTC) }

type memSink struct {
	files chan *export.File
}

func (s *memSink) Put(ctx context.Context, file *export.File) (string, error) {
	s.files <- file
	return "mem://" + file.Name, nil
}

type testServer struct {
	mem     *recordstore.Memory
	handler http.Handler
	sink    *memSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()

	mem := recordstore.NewMemory()
	store := recordstore.NewRetrying(mem, recordstore.RetryOptions{Attempts: 2, Backoff: time.Millisecond}, log)
	cache := ledger.NewCache(store, nil, ledger.Options{Now: fixedNow}, log)
	sink := &memSink{files: make(chan *export.File, 4)}
	svc := tracker.NewService(store, cache, tracker.Options{Now: fixedNow, Sink: sink}, log)

	jobStore := inmemory.NewStore()
	queue := inmemory.NewQueue(inmemory.QueueOptions{Workers: 1, Backoff: time.Millisecond}, jobStore, log)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, queue.Start(ctx, svc.RunExportJob))
	t.Cleanup(func() {
		cancel()
		queue.Close()
	})

	return &testServer{
		mem:  mem,
		sink: sink,
		handler: NewRouter(RouterConfig{
			Service:   svc,
			Publisher: queue,
			JobStore:  jobStore,
		}, log),
	}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (s *testServer) seed(t *testing.T) {
	t.Helper()
	for _, body := range []map[string]interface{}{
		{"date": "2024-05-01", "category": "Income", "subcategory": "Salary", "description": "may salary", "amount": 50000, "paid_by": "Shubham"},
		{"date": "2024-05-15", "category": "Expense", "subcategory": "Groceries", "description": "veg", "amount": "2000", "paid_by": "Shubham"},
		{"date": "2024-06-01", "category": "Expense", "subcategory": "Groceries", "description": "veg", "amount": 1500, "paid_by": "Yashika"},
		{"date": "2024-05-01", "category": "Leave", "subcategory": "Maid"},
	} {
		rec := s.do(t, http.MethodPost, "/api/transactions", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestSubmitTransaction_Created(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/transactions", map[string]interface{}{
		"date": "2024-05-15", "category": "Expense", "subcategory": "Groceries",
		"description": "big basket", "amount": "2000.50", "paid_by": "Yashika",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "Transaction added successfully", body["message"])
	tx := body["transaction"].(map[string]interface{})
	assert.Equal(t, "Big Basket", tx["description"])
	assert.Equal(t, 1, srv.mem.Len())
}

func TestSubmitTransaction_ValidationListsEveryProblem(t *testing.T) {
	srv := newTestServer(t)

	rec := srv.do(t, http.MethodPost, "/api/transactions", map[string]interface{}{
		"date": "2024-05-15", "category": "Expense", "subcategory": "", "description": " ", "amount": 0, "paid_by": "Shubham",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	details := decode(t, rec)["details"].([]interface{})
	fields := make([]string, 0, len(details))
	for _, d := range details {
		fields = append(fields, d.(map[string]interface{})["field"].(string))
	}
	assert.ElementsMatch(t, []string{"amount", "description", "subcategory"}, fields)
	assert.Equal(t, 0, srv.mem.Len())
}

func TestSubmitTransaction_BadDate(t *testing.T) {
	srv := newTestServer(t)
	rec := srv.do(t, http.MethodPost, "/api/transactions", map[string]interface{}{
		"date": "15/05/2024", "category": "Leave", "subcategory": "Cook",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSubmitTransaction_MalformedBody(t *testing.T) {
	srv := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitTransaction_DuplicateLeaveConflict(t *testing.T) {
	srv := newTestServer(t)
	leave := map[string]interface{}{"date": "2024-05-01", "category": "Leave", "subcategory": "Maid"}

	first := srv.do(t, http.MethodPost, "/api/transactions", leave)
	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, "Leave recorded for Maid on 2024-05-01", decode(t, first)["message"])

	second := srv.do(t, http.MethodPost, "/api/transactions", leave)
	assert.Equal(t, http.StatusConflict, second.Code)
	assert.Equal(t, 1, srv.mem.Len())
}

func TestSubmitTransaction_IdempotencyKeyHeader(t *testing.T) {
	srv := newTestServer(t)
	body := `{"date":"2024-05-15","category":"Expense","subcategory":"Groceries","description":"milk","amount":45,"paid_by":"Shubham"}`

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "form-1")
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send().Code)
	replay := send()
	assert.Equal(t, http.StatusOK, replay.Code)
	assert.Equal(t, true, decode(t, replay)["replayed"])
	assert.Equal(t, 1, srv.mem.Len())
}

func TestSubmitTransaction_IdempotencyKeyReusedConflict(t *testing.T) {
	srv := newTestServer(t)
	send := func(body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/transactions", strings.NewReader(body))
		req.Header.Set("Idempotency-Key", "form-1")
		rec := httptest.NewRecorder()
		srv.handler.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusCreated, send(`{"date":"2024-05-15","category":"Expense","subcategory":"Groceries","description":"milk","amount":45,"paid_by":"Shubham"}`).Code)
	changed := send(`{"date":"2024-05-15","category":"Expense","subcategory":"Groceries","description":"milk","amount":90,"paid_by":"Shubham"}`)
	assert.Equal(t, http.StatusConflict, changed.Code)
	assert.Equal(t, 1, srv.mem.Len())
}

func TestSubmitTransaction_StoreFailures(t *testing.T) {
	tests := []struct {
		name string
		hook func(call int) (bool, error)
		want int
	}{
		{"retries exhausted", func(int) (bool, error) { return false, recordstore.ErrConnection }, http.StatusBadGateway},
		{"worksheet missing", func(int) (bool, error) { return false, recordstore.ErrNotFound }, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.mem.OnAppend = tt.hook

			rec := srv.do(t, http.MethodPost, "/api/transactions", map[string]interface{}{
				"date": "2024-05-15", "category": "Expense", "subcategory": "Groceries",
				"description": "milk", "amount": 45, "paid_by": "Shubham",
			})
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestReads_StoreUnavailable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unreachable", recordstore.ErrConnection, http.StatusServiceUnavailable},
		{"missing sheet", recordstore.ErrNotFound, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t)
			srv.mem.OnList = func(ctx context.Context) error { return tt.err }

			rec := srv.do(t, http.MethodGet, "/api/overview", nil)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSummary(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	rec := srv.do(t, http.MethodGet, "/api/summary?year=2024&months=5,6", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	assert.Equal(t, "May, June 2024", body["label"])
	totals := body["totals"].(map[string]interface{})
	assert.Equal(t, "50000", totals["income"])
	assert.Equal(t, "3500", totals["expense"])
	assert.Equal(t, "46500", body["net"])
	assert.Len(t, body["tabs"], 3)
}

func TestSummary_EmptyMonthsIsEmptySelection(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	rec := srv.do(t, http.MethodGet, "/api/summary?year=2024", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	assert.Equal(t, "No months selected", body["label"])
	assert.Equal(t, float64(0), body["transactions"])
}

func TestSummary_BadQuery(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/summary", nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/summary?year=2024&months=may", nil).Code)
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodGet, "/api/summary?year=2024&months=13", nil).Code)
}

func TestOverviewAndRecent(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	ov := decode(t, srv.do(t, http.MethodGet, "/api/overview", nil))
	assert.Equal(t, float64(2024), ov["default_year"])
	assert.Equal(t, []interface{}{float64(6)}, ov["default_months"])

	rec := srv.do(t, http.MethodGet, "/api/transactions/recent?limit=2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	recent := decode(t, rec)
	assert.Equal(t, float64(2), recent["count"])

	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/transactions/recent?limit=-1", nil).Code)
}

func TestTrendCalendarLeave(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	trend := decode(t, srv.do(t, http.MethodGet, "/api/trend?category=Expense&window=2", nil))
	points := trend["points"].([]interface{})
	require.Len(t, points, 2)
	assert.Equal(t, "May 2024", points[0].(map[string]interface{})["label"])

	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodGet, "/api/trend?category=Gifts", nil).Code)

	cal := decode(t, srv.do(t, http.MethodGet, "/api/calendar?year=2024&month=5&category=Expense", nil))
	assert.Equal(t, "2000", cal["total"])
	assert.Equal(t, http.StatusUnprocessableEntity, srv.do(t, http.MethodGet, "/api/calendar?year=2024&month=5&category=Gifts", nil).Code)
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/calendar?year=2024&month=5,6", nil).Code)

	lv := decode(t, srv.do(t, http.MethodGet, "/api/leave?year=2024&month=5", nil))
	summary := lv["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["maid_days"])
	assert.Equal(t, float64(0), summary["cook_days"])
}

func TestTrend_WindowBounds(t *testing.T) {
	srv := newTestServer(t)

	for _, window := range []string{"121", "1000000", "9223372036854775807"} {
		rec := srv.do(t, http.MethodGet, "/api/trend?category=Expense&window="+window, nil)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, window)
	}
	assert.Equal(t, http.StatusBadRequest, srv.do(t, http.MethodGet, "/api/trend?window=99999999999999999999", nil).Code)
	assert.Equal(t, http.StatusOK, srv.do(t, http.MethodGet, "/api/trend?category=Expense&window=120", nil).Code)
}

func TestExport_Download(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/export", nil).Code)

	srv.seed(t)
	rec := srv.do(t, http.MethodGet, "/api/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, export.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "finance_tracker_20240620.xlsx")

	f, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.SheetName)
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestExportJob_Lifecycle(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	rec := srv.do(t, http.MethodPost, "/api/exports", map[string]string{"requested_by": "test"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	jobID := decode(t, rec)["job_id"].(string)
	assert.Equal(t, "/api/exports/"+jobID, rec.Header().Get("Location"))

	select {
	case file := <-srv.sink.files:
		assert.Equal(t, 4, file.Rows)
	case <-time.After(5 * time.Second):
		t.Fatal("export job did not reach the sink")
	}

	require.Eventually(t, func() bool {
		job := decode(t, srv.do(t, http.MethodGet, "/api/exports/"+jobID, nil))
		return job["status"] == string(jobs.JobStatusCompleted)
	}, 5*time.Second, 10*time.Millisecond)

	job := decode(t, srv.do(t, http.MethodGet, "/api/exports/"+jobID, nil))
	assert.Equal(t, "mem://finance_tracker_20240620.xlsx", job["location"])

	list := decode(t, srv.do(t, http.MethodGet, "/api/exports", nil))
	assert.Equal(t, float64(1), list["count"])

	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/exports/missing", nil).Code)
}

func TestDiagnostics(t *testing.T) {
	srv := newTestServer(t)
	srv.seed(t)

	conn := decode(t, srv.do(t, http.MethodGet, "/api/diagnostics/connection", nil))
	assert.Equal(t, "connected", conn["status"])
	info := conn["connection"].(map[string]interface{})
	assert.Equal(t, "memory", info["backend"])
	assert.Equal(t, float64(4), info["row_count"])

	srv.do(t, http.MethodGet, "/api/overview", nil)
	cleared := decode(t, srv.do(t, http.MethodPost, "/api/cache/clear", nil))
	assert.Equal(t, string(ledger.StatusCold), cleared["status"])
}

func TestCategories(t *testing.T) {
	srv := newTestServer(t)
	body := decode(t, srv.do(t, http.MethodGet, "/api/categories", nil))
	assert.Equal(t, float64(5), body["count"])
	assert.Equal(t, []interface{}{"Shubham", "Yashika"}, body["payers"])
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv := newTestServer(t)
	assert.Equal(t, http.StatusNotFound, srv.do(t, http.MethodGet, "/api/nope", nil).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, srv.do(t, http.MethodDelete, "/api/transactions", nil).Code)
}
