// Package notionsync mirrors the ledger into a Notion database, one page per
// row. Pages carry a row key so repeated syncs create only what is missing.
package notionsync

import (
	"context"
	"fmt"

	"github.com/jomei/notionapi"

	"github.com/dvloznov/daily-tracker/internal/domain"
	"github.com/dvloznov/daily-tracker/internal/logger"
)

const (
	// BatchSize defines the number of rows to process in a single batch
	BatchSize = 100
)

// Result counts what a sync did, or would do in dry-run mode.
type Result struct {
	Created int `json:"created"`
	Deleted int `json:"deleted"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// SyncLedger makes the Notion database match the ledger:
// 1. Queries all existing pages
// 2. Archives pages whose row key is missing or no longer in the ledger
// 3. Creates pages for rows not mirrored yet
// Individual page failures are logged and counted, not returned.
func SyncLedger(ctx context.Context, l domain.Ledger, notionClient NotionService, notionDBID string, dryRun bool) (*Result, error) {
	log := logger.FromContext(ctx)

	log.Info().
		Int("rows", len(l)).
		Bool("dry_run", dryRun).
		Msg("Starting ledger sync to Notion")

	keys := domain.RowKeys(l)
	valid := make(map[string]bool, len(keys))
	for _, k := range keys {
		valid[k] = true
	}

	notionPages, err := queryAllNotionPages(ctx, notionClient, notionDBID)
	if err != nil {
		return nil, fmt.Errorf("SyncLedger: %w", err)
	}

	log.Info().Int("notion_page_count", len(notionPages)).Msg("Retrieved existing Notion pages")

	result := &Result{}
	existing := make(map[string]bool, len(notionPages))
	for _, page := range notionPages {
		key := extractRowKey(page)
		if key != "" && valid[key] && !existing[key] {
			existing[key] = true
			continue
		}

		// Stale, unkeyed or duplicate page.
		if dryRun {
			log.Info().
				Str("row_key", key).
				Str("page_id", string(page.ID)).
				Msg("[DRY RUN] Would archive stale Notion page")
			result.Deleted++
			continue
		}
		if err := notionClient.DeletePage(ctx, string(page.ID)); err != nil {
			log.Warn().
				Err(err).
				Str("row_key", key).
				Str("page_id", string(page.ID)).
				Msg("Failed to archive stale Notion page")
			result.Failed++
			continue
		}
		log.Debug().Str("row_key", key).Str("page_id", string(page.ID)).Msg("Archived stale Notion page")
		result.Deleted++
	}

	for i := 0; i < len(l); i += BatchSize {
		end := i + BatchSize
		if end > len(l) {
			end = len(l)
		}

		log.Debug().
			Int("batch_start", i).
			Int("batch_end", end).
			Msg("Processing batch")

		for j := i; j < end; j++ {
			tx, key := l[j], keys[j]
			if existing[key] {
				result.Skipped++
				continue
			}

			if dryRun {
				log.Info().
					Str("row_key", key).
					Str("date", tx.Date.Format(domain.DateLayout)).
					Str("category", string(tx.Category)).
					Msg("[DRY RUN] Would create Notion page")
				result.Created++
				continue
			}

			page, err := notionClient.CreatePage(ctx, notionDBID, TransactionToNotionProperties(tx, key))
			if err != nil {
				if ctx.Err() != nil {
					return result, fmt.Errorf("SyncLedger: %w", ctx.Err())
				}
				log.Warn().
					Err(err).
					Str("row_key", key).
					Msg("Failed to create Notion page")
				result.Failed++
				continue
			}
			log.Debug().Str("row_key", key).Str("page_id", string(page.ID)).Msg("Created Notion page")
			result.Created++
		}
	}

	log.Info().
		Int("created", result.Created).
		Int("deleted", result.Deleted).
		Int("skipped", result.Skipped).
		Int("failed", result.Failed).
		Int("total", len(l)).
		Msg("Ledger sync completed")

	return result, nil
}

// queryAllNotionPages queries all pages from a Notion database and returns them.
// Handles pagination automatically.
func queryAllNotionPages(ctx context.Context, notionClient NotionService, databaseID string) ([]notionapi.Page, error) {
	var allPages []notionapi.Page
	var cursor notionapi.Cursor

	for {
		req := &notionapi.DatabaseQueryRequest{
			PageSize: 100,
		}

		// Only set StartCursor if we have a cursor value
		if cursor != "" {
			req.StartCursor = cursor
		}

		resp, err := notionClient.QueryDatabase(ctx, databaseID, req)
		if err != nil {
			return nil, fmt.Errorf("queryAllNotionPages: %w", err)
		}

		allPages = append(allPages, resp.Results...)

		if !resp.HasMore {
			break
		}
		cursor = resp.NextCursor
	}

	return allPages, nil
}
