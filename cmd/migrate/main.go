package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/infra"
	"github.com/dvloznov/daily-tracker/internal/ledger"
	"github.com/dvloznov/daily-tracker/internal/logger"
	"github.com/dvloznov/daily-tracker/internal/recordstore"
)

// sourceFlags override the destination configuration to describe where rows
// are copied from.
type sourceFlags struct {
	backend       string
	sqlitePath    string
	spreadsheetID string
	worksheet     string
	table         string
}

func (s *sourceFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.backend, "from", string(config.BackendSheets), "source backend: memory, sqlite, sheets or bigquery")
	fs.StringVar(&s.sqlitePath, "from-sqlite-path", "", "source SQLite file, defaults to -sqlite-path")
	fs.StringVar(&s.spreadsheetID, "from-spreadsheet-id", "", "source spreadsheet ID, defaults to -spreadsheet-id")
	fs.StringVar(&s.worksheet, "from-worksheet", "", "source worksheet, defaults to -worksheet")
	fs.StringVar(&s.table, "from-table", "", "source BigQuery table, defaults to -table")
}

func (s *sourceFlags) apply(dst *config.Config) *config.Config {
	src := *dst
	src.Backend = config.Backend(s.backend)
	if s.sqlitePath != "" {
		src.SQLitePath = s.sqlitePath
	}
	if s.spreadsheetID != "" {
		src.SpreadsheetID = s.spreadsheetID
	}
	if s.worksheet != "" {
		src.Worksheet = s.worksheet
	}
	if s.table != "" {
		src.Table = s.table
	}
	return &src
}

// copyResult counts what a copy did, or would do in dry-run mode.
type copyResult struct {
	Source  int
	Present int
	Copied  int
	Skipped int
}

func main() {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	var from sourceFlags
	from.register(fs)
	dryRun := fs.Bool("dry-run", false, "report what would be copied without writing")

	dstCfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}
	srcCfg := from.apply(dstCfg)
	if err := srcCfg.Validate(); err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid source configuration")
	}

	log := logger.ForDebug(dstCfg.Debug)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	if *srcCfg == *dstCfg {
		log.Fatal().Msg("Source and destination are the same store")
	}

	src, err := infra.Open(ctx, srcCfg, log.With().Str("side", "source").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open source")
	}
	defer src.Close()

	dst, err := infra.Open(ctx, dstCfg, log.With().Str("side", "destination").Logger())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open destination")
	}
	defer dst.Close()

	if !*dryRun {
		if ok, err := dst.Init(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare destination")
		} else if ok {
			log.Info().Msg("Destination storage ready")
		}
	}

	res, err := copyLedger(ctx, src.Store, dst.Store, *dryRun, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	verb := "Copied"
	if *dryRun {
		verb = "Would copy"
	}
	fmt.Printf("%s %d of %d rows from %s to %s (%d already present, %d unparseable skipped).\n",
		verb, res.Copied, res.Source, srcCfg.Backend, dstCfg.Backend, res.Present, res.Skipped)
}

// copyLedger appends every source row missing from dst, in source order.
// Rows are matched by content key with occurrence counts, so running it
// again after a partial failure copies only what is still missing.
func copyLedger(ctx context.Context, src, dst recordstore.Store, dryRun bool, log zerolog.Logger) (copyResult, error) {
	srcSnap, err := ledger.NewCache(src, nil, ledger.Options{}, log).Refresh(ctx)
	if err != nil {
		return copyResult{}, fmt.Errorf("read source: %w", err)
	}
	dstSnap, err := ledger.NewCache(dst, nil, ledger.Options{}, log).Refresh(ctx)
	if err != nil {
		return copyResult{}, fmt.Errorf("read destination: %w", err)
	}

	present := make(map[string]bool, dstSnap.Len())
	for _, k := range domain.RowKeys(dstSnap.Ledger()) {
		present[k] = true
	}

	rows := srcSnap.Ledger()
	res := copyResult{Source: len(rows), Skipped: srcSnap.Skipped}
	for i, key := range domain.RowKeys(rows) {
		if present[key] {
			res.Present++
			continue
		}
		if dryRun {
			res.Copied++
			continue
		}
		if err := dst.Append(ctx, rows[i].ToStorageRow()); err != nil {
			return res, fmt.Errorf("append row %d: %w", i+1, err)
		}
		res.Copied++
	}

	log.Info().
		Int("source", res.Source).
		Int("present", res.Present).
		Int("copied", res.Copied).
		Bool("dry_run", dryRun).
		Msg("Ledger copy finished")
	return res, nil
}
