// Package sheets keeps the tracker ledger in a Google Sheets worksheet.
//
// The worksheet's first row holds the column names; reads key every following
// row by those names and writes append positional rows after the last one.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// Defaults for the spreadsheet location.
const (
	DefaultSpreadsheet = "MyFinanceTracker"
	DefaultWorksheet   = "Tracker"
)

const spreadsheetMimeType = "application/vnd.google-apps.spreadsheet"

// ValuesAPI is the subset of the Sheets values API the store uses.
type ValuesAPI interface {
	Get(ctx context.Context, spreadsheetID, a1Range string) ([][]interface{}, error)
	Append(ctx context.Context, spreadsheetID, a1Range string, row []interface{}) error
}

// Config locates the worksheet.
type Config struct {
	// SpreadsheetID wins over SpreadsheetName when set.
	SpreadsheetID   string
	SpreadsheetName string
	Worksheet       string
	// CredentialsFile is a service account key; empty uses Application
	// Default Credentials.
	CredentialsFile string
}

// Store implements recordstore.Store over one worksheet.
type Store struct {
	values        ValuesAPI
	spreadsheetID string
	worksheet     string
	log           zerolog.Logger
}

// New connects to the Sheets API and resolves the spreadsheet, looking it up
// by name through Drive when no ID is configured.
func New(ctx context.Context, cfg Config, log zerolog.Logger) (*Store, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating sheets service: %w", err)
	}

	id := cfg.SpreadsheetID
	if id == "" {
		name := cfg.SpreadsheetName
		if name == "" {
			name = DefaultSpreadsheet
		}
		id, err = findSpreadsheet(ctx, name, opts)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("spreadsheet", name).Str("spreadsheet_id", id).Msg("Resolved spreadsheet by name")
	}

	return NewWithAPI(&valuesService{srv: srv}, id, cfg.Worksheet, log), nil
}

// NewWithAPI returns a Store over an existing values client.
func NewWithAPI(values ValuesAPI, spreadsheetID, worksheet string, log zerolog.Logger) *Store {
	if worksheet == "" {
		worksheet = DefaultWorksheet
	}
	return &Store{values: values, spreadsheetID: spreadsheetID, worksheet: worksheet, log: log}
}

func findSpreadsheet(ctx context.Context, name string, opts []option.ClientOption) (string, error) {
	drv, err := drive.NewService(ctx, append(opts, option.WithScopes(drive.DriveMetadataReadonlyScope))...)
	if err != nil {
		return "", fmt.Errorf("findSpreadsheet: creating drive service: %w", err)
	}

	q := fmt.Sprintf("name = '%s' and mimeType = '%s' and trashed = false",
		strings.ReplaceAll(name, "'", `\'`), spreadsheetMimeType)
	list, err := drv.Files.List().Q(q).Fields("files(id, name)").PageSize(10).Context(ctx).Do()
	if err != nil {
		return "", classify("findSpreadsheet", err)
	}
	if len(list.Files) == 0 {
		return "", fmt.Errorf("findSpreadsheet: spreadsheet %q: %w", name, recordstore.ErrNotFound)
	}
	return list.Files[0].Id, nil
}

func (s *Store) columnsRange() string {
	return fmt.Sprintf("'%s'!A:F", s.worksheet)
}

// ListAll implements recordstore.Store. Rows shorter than the header are
// padded with empty cells; blank rows are skipped.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	values, err := s.values.Get(ctx, s.spreadsheetID, s.columnsRange())
	if err != nil {
		return nil, classify("ListAll", err)
	}
	if len(values) == 0 {
		return nil, nil
	}

	headers := make([]string, len(values[0]))
	for i, h := range values[0] {
		headers[i] = strings.TrimSpace(domain.CellString(h))
	}

	records := make([]domain.Record, 0, len(values)-1)
	for _, row := range values[1:] {
		if blank(row) {
			continue
		}
		rec := make(domain.Record, len(headers))
		for i, h := range headers {
			if h == "" {
				continue
			}
			if i < len(row) {
				rec[h] = domain.CellString(row[i])
			} else {
				rec[h] = ""
			}
		}
		records = append(records, rec)
	}
	return records, nil
}

func blank(row []interface{}) bool {
	for _, v := range row {
		if strings.TrimSpace(domain.CellString(v)) != "" {
			return false
		}
	}
	return true
}

// Append implements recordstore.Store. The row is appended as if typed by a
// user, so dates and numbers are parsed by Sheets.
func (s *Store) Append(ctx context.Context, row domain.Row) error {
	if err := s.values.Append(ctx, s.spreadsheetID, s.columnsRange(), []interface{}(row)); err != nil {
		return classify("Append", err)
	}
	return nil
}

// TestConnection implements recordstore.Store.
func (s *Store) TestConnection(ctx context.Context) (recordstore.ConnectionInfo, error) {
	info := recordstore.ConnectionInfo{
		Backend: "sheets",
		Target:  fmt.Sprintf("%s/%s", s.spreadsheetID, s.worksheet),
	}

	values, err := s.values.Get(ctx, s.spreadsheetID, s.columnsRange())
	if err != nil {
		return info, classify("TestConnection", err)
	}
	if len(values) > 0 {
		for _, h := range values[0] {
			info.Headers = append(info.Headers, domain.CellString(h))
		}
		info.RowCount = len(values) - 1
	}
	return info, nil
}

// classify maps Google API errors onto the record store sentinels.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, recordstore.ErrNotFound) || errors.Is(err, recordstore.ErrConnection) {
		return fmt.Errorf("%s: %w", op, err)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		// A missing worksheet surfaces as an unparseable range.
		missingSheet := apiErr.Code == http.StatusBadRequest && strings.Contains(apiErr.Message, "Unable to parse range")
		if apiErr.Code == http.StatusNotFound || missingSheet {
			return fmt.Errorf("%s: %w: %v", op, recordstore.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w: %v", op, recordstore.ErrConnection, err)
}

// valuesService adapts *sheets.Service to ValuesAPI.
type valuesService struct {
	srv *sheets.Service
}

func (v *valuesService) Get(ctx context.Context, spreadsheetID, a1Range string) ([][]interface{}, error) {
	resp, err := v.srv.Spreadsheets.Values.Get(spreadsheetID, a1Range).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).
		Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (v *valuesService) Append(ctx context.Context, spreadsheetID, a1Range string, row []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{row}}
	_, err := v.srv.Spreadsheets.Values.Append(spreadsheetID, a1Range, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// Ensure Store implements recordstore.Store.
var _ recordstore.Store = (*Store)(nil)
