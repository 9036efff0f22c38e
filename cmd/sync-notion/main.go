package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dvloznov/daily-tracker/internal/app"
	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/logger"
	"github.com/dvloznov/daily-tracker/internal/notionsync"
)

func main() {
	// Parse CLI flags
	fs := flag.NewFlagSet("sync-notion", flag.ExitOnError)
	dryRun := fs.Bool("dry-run", false, "Dry run mode - preview changes without syncing")

	cfg, err := config.Load(fs, os.Args[1:])
	if err != nil {
		l := logger.New()
		l.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Initialize structured logger
	log := logger.ForDebug(cfg.Debug)

	// Validate required flags
	if cfg.NotionToken == "" {
		log.Fatal().Msg("Error: -notion-token or NOTION_TOKEN is required")
	}
	if cfg.NotionDatabaseID == "" {
		log.Fatal().Msg("Error: -notion-database or NOTION_DATABASE_ID is required")
	}

	// Create context with timeout so CLI doesn't hang
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	// Add logger to context
	ctx = logger.WithContext(ctx, log)

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize tracker")
	}
	defer application.Close()

	snap, err := application.Cache.Refresh(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read ledger")
	}

	log.Info().
		Str("backend", string(cfg.Backend)).
		Int("rows", snap.Len()).
		Bool("dry_run", *dryRun).
		Msg("Starting Notion sync")

	notionClient := notionsync.NewNotionClient(cfg.NotionToken)

	missing, err := notionClient.MissingProperties(ctx, cfg.NotionDatabaseID)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read Notion database")
	}
	if len(missing) > 0 {
		log.Fatal().Strs("missing", missing).Msg("Notion database lacks mirror properties")
	}

	res, err := notionsync.SyncLedger(ctx, snap.Ledger(), notionClient, cfg.NotionDatabaseID, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Sync failed")
	}

	if *dryRun {
		fmt.Printf("Dry run: would create %d, archive %d, keep %d pages.\n", res.Created, res.Deleted, res.Skipped)
		return
	}
	fmt.Printf("Sync completed: created %d, archived %d, kept %d, failed %d.\n", res.Created, res.Deleted, res.Skipped, res.Failed)
	if res.Failed > 0 {
		application.Close()
		os.Exit(1)
	}
}
