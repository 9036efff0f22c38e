package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/daily-tracker/internal/api/middleware"
	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/guard"
	"github.com/dvloznov/daily-tracker/internal/jobs"
	"github.com/dvloznov/daily-tracker/internal/logger"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
	"github.com/dvloznov/daily-tracker/internal/tracker"
)

// TrackerHandler serves the ledger commands and views.
type TrackerHandler struct {
	svc *tracker.Service
	log zerolog.Logger
}

// NewTrackerHandler creates a new tracker handler.
func NewTrackerHandler(svc *tracker.Service, log zerolog.Logger) *TrackerHandler {
	return &TrackerHandler{svc: svc, log: log}
}

type submitRequest struct {
	Date           string          `json:"date"`
	Category       domain.Category `json:"category"`
	Subcategory    string          `json:"subcategory"`
	Description    string          `json:"description"`
	Amount         decimal.Decimal `json:"amount"`
	PaidBy         domain.PaidBy   `json:"paid_by"`
	IdempotencyKey string          `json:"idempotency_key"`
}

// SubmitTransaction handles POST /api/transactions
func (h *TrackerHandler) SubmitTransaction(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var date time.Time
	if req.Date != "" {
		d, err := time.Parse(domain.DateLayout, req.Date)
		if err != nil {
			writeValidation(w, domain.ValidationErrors{{Field: "date", Message: "Date must be YYYY-MM-DD"}})
			return
		}
		date = d
	}

	key := r.Header.Get("Idempotency-Key")
	if key == "" {
		key = req.IdempotencyKey
	}

	result, err := h.svc.SubmitTransaction(r.Context(), tracker.SubmitRequest{
		Input: domain.Input{
			Date:        date,
			Category:    req.Category,
			Subcategory: req.Subcategory,
			Description: req.Description,
			Amount:      req.Amount,
			PaidBy:      req.PaidBy,
		},
		IdempotencyKey: key,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	middleware.WriteJSON(w, status, result)
}

// ListCategories handles GET /api/categories
func (h *TrackerHandler) ListCategories(w http.ResponseWriter, r *http.Request) {
	type categoryInfo struct {
		Name          domain.Category `json:"name"`
		Subcategories []string        `json:"subcategories"`
	}
	categories := make([]categoryInfo, 0, len(domain.Categories))
	for _, c := range domain.Categories {
		categories = append(categories, categoryInfo{Name: c, Subcategories: c.Subcategories()})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"categories": categories,
		"payers":     domain.Payers,
		"count":      len(categories),
	})
}

// Overview handles GET /api/overview
func (h *TrackerHandler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.svc.Overview(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, ov)
}

// Recent handles GET /api/transactions/recent
func (h *TrackerHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit := tracker.DefaultRecentLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	recent, err := h.svc.Recent(r.Context(), limit)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"transactions": recent,
		"count":        len(recent),
	})
}

// Summary handles GET /api/summary
func (h *TrackerHandler) Summary(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	year, err := parseYear(query.Get("year"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	months, err := parseMonths(query.Get("months"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.SelectPeriod(r.Context(), year, months)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// Trend handles GET /api/trend
func (h *TrackerHandler) Trend(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	category := domain.Category(query.Get("category"))
	if category == "" {
		category = domain.CategoryExpense
	}

	window := 0
	if s := query.Get("window"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			middleware.WriteError(w, http.StatusBadRequest, "window must be a positive integer")
			return
		}
		window = n
	}

	points, err := h.svc.Trend(r.Context(), category, window)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"category": category,
		"points":   points,
	})
}

// Calendar handles GET /api/calendar
func (h *TrackerHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	year, month, err := parseYearMonth(query.Get("year"), query.Get("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	var category *domain.Category
	if s := query.Get("category"); s != "" {
		c := domain.Category(s)
		if !c.Valid() {
			writeValidation(w, domain.ValidationErrors{{Field: "category", Message: fmt.Sprintf("Unknown category %q", s)}})
			return
		}
		category = &c
	}

	view, err := h.svc.CalendarView(r.Context(), year, month, category)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// Leave handles GET /api/leave
func (h *TrackerHandler) Leave(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	year, month, err := parseYearMonth(query.Get("year"), query.Get("month"))
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.LeaveView(r.Context(), year, month)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, view)
}

// Export handles GET /api/export and streams the workbook as a download.
func (h *TrackerHandler) Export(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.Export(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", file.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(file.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(file.Data)
}

// TestConnection handles GET /api/diagnostics/connection
func (h *TrackerHandler) TestConnection(w http.ResponseWriter, r *http.Request) {
	info, err := h.svc.TestConnection(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":     "connected",
		"connection": info,
	})
}

// ClearCache handles POST /api/cache/clear
func (h *TrackerHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, h.svc.ClearCache())
}

// ExportsHandler runs exports in the background job queue.
type ExportsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewExportsHandler creates a new exports handler.
func NewExportsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *ExportsHandler {
	return &ExportsHandler{publisher: publisher, store: store, log: log}
}

// Enqueue handles POST /api/exports
func (h *ExportsHandler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RequestedBy string `json:"requested_by"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	job := &jobs.ExportJob{RequestedBy: req.RequestedBy}
	if err := h.publisher.PublishExport(r.Context(), job); err != nil {
		h.log.Error().Err(err).Msg("Failed to enqueue export job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue export job")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Export job enqueued")

	w.Header().Set("Location", "/api/exports/"+job.JobID)
	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetJob handles GET /api/exports/{id}
func (h *ExportsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	job, err := h.store.GetJob(r.Context(), jobID)
	if err != nil {
		if errors.Is(err, jobs.ErrJobNotFound) {
			middleware.WriteError(w, http.StatusNotFound, "Job not found")
			return
		}
		h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/exports
func (h *ExportsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := jobs.JobFilter{Status: jobs.JobStatus(query.Get("status"))}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	list, err := h.store.ListJobs(r.Context(), filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

// writeServiceError maps command errors onto HTTP statuses.
func (h *TrackerHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.FromContext(r.Context())

	var (
		validation domain.ValidationErrors
		duplicate  *guard.DuplicateLeaveError
		appendErr  *recordstore.AppendError
	)
	switch {
	case errors.As(err, &validation):
		writeValidation(w, validation)
	case errors.As(err, &duplicate):
		middleware.WriteError(w, http.StatusConflict, duplicate.Error())
	case errors.Is(err, tracker.ErrIdempotencyKeyReused):
		middleware.WriteError(w, http.StatusConflict, "This form was already submitted with different values, reload it to add another transaction")
	case errors.As(err, &appendErr):
		log.Error().Err(err).Int("attempts", appendErr.Attempts).Msg("Append exhausted retries")
		middleware.WriteError(w, http.StatusBadGateway, "Failed to save the transaction, please try again")
	case errors.Is(err, export.ErrNoData):
		middleware.WriteError(w, http.StatusNotFound, "No data available to export")
	case errors.Is(err, recordstore.ErrNotFound):
		log.Error().Err(err).Msg("Record store target missing")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Spreadsheet or worksheet not found, check the tracker configuration")
	case errors.Is(err, recordstore.ErrConnection):
		log.Error().Err(err).Msg("Record store unreachable")
		middleware.WriteError(w, http.StatusServiceUnavailable, "Unable to reach the record store")
	default:
		log.Error().Err(err).Msg("Request failed")
		middleware.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

func writeValidation(w http.ResponseWriter, errs domain.ValidationErrors) {
	middleware.WriteJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
		"error":   "validation failed",
		"details": errs,
	})
}

func parseYear(s string) (int, error) {
	if s == "" {
		return 0, errors.New("year is required")
	}
	year, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid year %q", s)
	}
	return year, nil
}

func parseYearMonth(yearStr, monthStr string) (int, time.Month, error) {
	year, err := parseYear(yearStr)
	if err != nil {
		return 0, 0, err
	}
	months, err := parseMonths(monthStr)
	if err != nil {
		return 0, 0, err
	}
	if len(months) != 1 {
		return 0, 0, errors.New("exactly one month is required")
	}
	return year, months[0], nil
}

// parseMonths reads a comma-separated month list. An empty string is an
// empty selection.
func parseMonths(s string) ([]time.Month, error) {
	months := []time.Month{}
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid month %q", part)
		}
		months = append(months, time.Month(n))
	}
	return months, nil
}
