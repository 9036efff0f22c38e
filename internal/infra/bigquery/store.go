// Package bigquery keeps the tracker ledger in a BigQuery table.
//
// Appends use streaming inserts with the idempotency key as insert ID, and
// reads drop any row whose insert key was already seen, so a retried append
// shows up once even outside BigQuery's best-effort deduplication window.
package bigquery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// Default table location.
const (
	DefaultDataset = "finance"
	DefaultTable   = "daily_tracker"
)

// Store implements recordstore.Store and recordstore.KeyedAppender on BigQuery.
type Store struct {
	client  *bigquery.Client
	project string
	dataset string
	table   string
	log     zerolog.Logger

	now func() time.Time
}

// New creates a BigQuery client for project and returns a Store over
// project.dataset.table.
func New(ctx context.Context, project, dataset, table string, log zerolog.Logger) (*Store, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewWithClient(client, project, dataset, table, log), nil
}

// NewWithClient returns a Store using an existing client.
func NewWithClient(client *bigquery.Client, project, dataset, table string, log zerolog.Logger) *Store {
	if dataset == "" {
		dataset = DefaultDataset
	}
	if table == "" {
		table = DefaultTable
	}
	return &Store{
		client:  client,
		project: project,
		dataset: dataset,
		table:   table,
		log:     log,
		now:     time.Now,
	}
}

// Close closes the BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

func (s *Store) tableRef() *bigquery.Table {
	return s.client.DatasetInProject(s.project, s.dataset).Table(s.table)
}

func (s *Store) fullName() string {
	return fmt.Sprintf("%s.%s.%s", s.project, s.dataset, s.table)
}

// EnsureTable creates the dataset and ledger table when they do not exist.
func (s *Store) EnsureTable(ctx context.Context) error {
	ds := s.client.DatasetInProject(s.project, s.dataset)
	if err := ds.Create(ctx, &bigquery.DatasetMetadata{}); err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("EnsureTable: creating dataset %s: %w", s.dataset, err)
	}

	schema, err := bigquery.InferSchema(LedgerRow{})
	if err != nil {
		return fmt.Errorf("EnsureTable: inferring schema: %w", err)
	}
	for _, f := range schema {
		switch f.Name {
		case "description", "paid_by":
			f.Required = false
		default:
			f.Required = true
		}
	}

	md := &bigquery.TableMetadata{
		Schema:           schema,
		TimePartitioning: &bigquery.TimePartitioning{Field: "date", Type: bigquery.MonthPartitioningType},
	}
	if err := s.tableRef().Create(ctx, md); err != nil && !isStatus(err, http.StatusConflict) {
		return fmt.Errorf("EnsureTable: creating table %s: %w", s.fullName(), err)
	}
	return nil
}

// ListAll implements recordstore.Store.
func (s *Store) ListAll(ctx context.Context) ([]domain.Record, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT date, category, subcategory, description, amount, paid_by, insert_key, inserted_ts
		FROM `+"`%s`"+`
		ORDER BY inserted_ts, insert_key
	`, s.fullName()))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, classify("ListAll", err)
	}

	seen := make(map[string]struct{})
	var records []domain.Record
	for {
		var r LedgerRow
		err := it.Next(&r)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classify("ListAll", err)
		}
		if _, dup := seen[r.InsertKey]; dup {
			continue
		}
		seen[r.InsertKey] = struct{}{}
		records = append(records, r.Record())
	}
	return records, nil
}

// Append implements recordstore.Store with a fresh insert key.
func (s *Store) Append(ctx context.Context, row domain.Row) error {
	return s.AppendKeyed(ctx, uuid.NewString(), row)
}

// AppendKeyed implements recordstore.KeyedAppender.
func (s *Store) AppendKeyed(ctx context.Context, key string, row domain.Row) error {
	if key == "" {
		key = uuid.NewString()
	}
	lr, err := rowFromStorage(row, key, s.now())
	if err != nil {
		return fmt.Errorf("Append: %w", err)
	}

	saver := &bigquery.StructSaver{Struct: lr, InsertID: key}
	if err := s.tableRef().Inserter().Put(ctx, saver); err != nil {
		return classify("Append", err)
	}
	return nil
}

// TestConnection implements recordstore.Store.
func (s *Store) TestConnection(ctx context.Context) (recordstore.ConnectionInfo, error) {
	info := recordstore.ConnectionInfo{Backend: "bigquery", Target: s.fullName()}

	md, err := s.tableRef().Metadata(ctx)
	if err != nil {
		return info, classify("TestConnection", err)
	}
	for _, f := range md.Schema {
		info.Headers = append(info.Headers, f.Name)
	}

	q := s.client.Query(fmt.Sprintf("SELECT COUNT(DISTINCT insert_key) AS n FROM `%s`", s.fullName()))
	it, err := q.Read(ctx)
	if err != nil {
		return info, classify("TestConnection", err)
	}
	var row struct {
		N int64 `bigquery:"n"`
	}
	if err := it.Next(&row); err != nil && err != iterator.Done {
		return info, classify("TestConnection", err)
	}
	info.RowCount = int(row.N)
	return info, nil
}

func isStatus(err error, code int) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// classify maps Google API errors onto the record store sentinels.
func classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if isStatus(err, http.StatusNotFound) {
		return fmt.Errorf("%s: %w: %v", op, recordstore.ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w: %v", op, recordstore.ErrConnection, err)
}

// Ensure Store implements the record store interfaces.
var (
	_ recordstore.Store         = (*Store)(nil)
	_ recordstore.KeyedAppender = (*Store)(nil)
)
