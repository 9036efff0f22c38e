// Package config collects runtime settings from flags, falling back to
// environment variables for every value.
package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Backend names a record store implementation.
type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendSQLite   Backend = "sqlite"
	BackendSheets   Backend = "sheets"
	BackendBigQuery Backend = "bigquery"
)

// Defaults shared by every entry point.
const (
	DefaultBackend         = BackendSheets
	DefaultSpreadsheetName = "MyFinanceTracker"
	DefaultWorksheet       = "Tracker"
	DefaultSQLitePath      = "tracker.db"
	DefaultDataset         = "finance"
	DefaultTable           = "daily_tracker"
	DefaultAppendAttempts  = 3
	DefaultAppendBackoff   = time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultExportPrefix    = "exports"
)

// Config holds settings for the record store, the cache and exports.
type Config struct {
	Backend Backend
	Debug   bool

	// CredentialsFile is a Google service account key. Empty uses
	// Application Default Credentials.
	CredentialsFile string

	SpreadsheetID   string
	SpreadsheetName string
	Worksheet       string

	SQLitePath string

	Project string
	Dataset string
	Table   string

	AppendAttempts int
	AppendBackoff  time.Duration
	ReadCheck      bool

	CacheTTL time.Duration

	ExportBucket string
	ExportPrefix string
	ExportDir    string

	NotionToken      string
	NotionDatabaseID string
}

// RegisterFlags binds every setting to fs. Flag defaults come from the
// environment so either source can configure a deployment.
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.Func("backend", "record store: memory, sqlite, sheets or bigquery (or set TRACKER_BACKEND)", func(v string) error {
		c.Backend = Backend(strings.ToLower(strings.TrimSpace(v)))
		return nil
	})
	c.Backend = Backend(envString("TRACKER_BACKEND", string(DefaultBackend)))

	fs.BoolVar(&c.Debug, "debug", envBool("DEBUG_MODE", false), "enable debug logging (or set DEBUG_MODE)")
	fs.StringVar(&c.CredentialsFile, "credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "service account key file (or set GOOGLE_APPLICATION_CREDENTIALS)")

	fs.StringVar(&c.SpreadsheetID, "spreadsheet-id", os.Getenv("TRACKER_SPREADSHEET_ID"), "spreadsheet ID, wins over -spreadsheet")
	fs.StringVar(&c.SpreadsheetName, "spreadsheet", envString("TRACKER_SPREADSHEET", DefaultSpreadsheetName), "spreadsheet name looked up through Drive")
	fs.StringVar(&c.Worksheet, "worksheet", envString("TRACKER_WORKSHEET", DefaultWorksheet), "worksheet holding the ledger")

	fs.StringVar(&c.SQLitePath, "sqlite-path", envString("TRACKER_SQLITE_PATH", DefaultSQLitePath), "SQLite database file")

	fs.StringVar(&c.Project, "project", envString("TRACKER_PROJECT", os.Getenv("GOOGLE_CLOUD_PROJECT")), "GCP project for BigQuery")
	fs.StringVar(&c.Dataset, "dataset", envString("TRACKER_DATASET", DefaultDataset), "BigQuery dataset")
	fs.StringVar(&c.Table, "table", envString("TRACKER_TABLE", DefaultTable), "BigQuery table")

	fs.IntVar(&c.AppendAttempts, "append-attempts", envInt("TRACKER_APPEND_ATTEMPTS", DefaultAppendAttempts), "total append attempts")
	fs.DurationVar(&c.AppendBackoff, "append-backoff", envDuration("TRACKER_APPEND_BACKOFF", DefaultAppendBackoff), "wait between append attempts")
	fs.BoolVar(&c.ReadCheck, "append-read-check", envBool("TRACKER_APPEND_READ_CHECK", false), "reread the store before retrying an unkeyed append")

	fs.DurationVar(&c.CacheTTL, "cache-ttl", envDuration("TRACKER_CACHE_TTL", DefaultCacheTTL), "ledger cache time to live")

	fs.StringVar(&c.ExportBucket, "bucket", os.Getenv("GCS_BUCKET"), "GCS bucket for exports (or set GCS_BUCKET)")
	fs.StringVar(&c.ExportPrefix, "export-prefix", envString("TRACKER_EXPORT_PREFIX", DefaultExportPrefix), "object prefix for exports in the bucket")
	fs.StringVar(&c.ExportDir, "export-dir", os.Getenv("TRACKER_EXPORT_DIR"), "local directory for exports when no bucket is set")

	fs.StringVar(&c.NotionToken, "notion-token", os.Getenv("NOTION_TOKEN"), "Notion integration token (or set NOTION_TOKEN)")
	fs.StringVar(&c.NotionDatabaseID, "notion-database", os.Getenv("NOTION_DATABASE_ID"), "Notion database mirroring the ledger")
}

// Load registers the flags on fs, parses args and validates the result.
func Load(fs *flag.FlagSet, args []string) (*Config, error) {
	cfg := &Config{}
	cfg.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("sqlite backend requires -sqlite-path"))
		}
	case BackendSheets:
		if c.SpreadsheetID == "" && c.SpreadsheetName == "" {
			errs = append(errs, errors.New("sheets backend requires -spreadsheet or -spreadsheet-id"))
		}
		if c.Worksheet == "" {
			errs = append(errs, errors.New("sheets backend requires -worksheet"))
		}
	case BackendBigQuery:
		if c.Project == "" {
			errs = append(errs, errors.New("bigquery backend requires -project"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}

	if c.AppendAttempts < 1 {
		errs = append(errs, fmt.Errorf("append attempts must be at least 1, got %d", c.AppendAttempts))
	}
	if c.AppendBackoff < 0 {
		errs = append(errs, fmt.Errorf("append backoff must not be negative, got %s", c.AppendBackoff))
	}
	if c.CacheTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache TTL must be positive, got %s", c.CacheTTL))
	}

	return errors.Join(errs...)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}
