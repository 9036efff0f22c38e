// Package app wires the tracker service from configuration for the
// command-line entry points.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/daily-tracker/internal/config"
	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/infra"
	"github.com/dvloznov/daily-tracker/internal/ledger"
	"github.com/dvloznov/daily-tracker/internal/tracker"
)

// App is a fully wired tracker.
type App struct {
	Config  *config.Config
	Backend *infra.Backend
	Cache   *ledger.Cache
	Service *tracker.Service
	// Sink is nil when neither a bucket nor an export directory is set.
	Sink export.Sink
	// GCS is set when exports go to a bucket.
	GCS *export.GCSUploader
}

// New opens the configured backend and builds the service on top of it.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	backend, err := infra.Open(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Backend: backend}

	switch {
	case cfg.ExportBucket != "":
		up, err := export.NewGCSUploader(ctx, cfg.ExportBucket, cfg.ExportPrefix)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("app.New: %w", err)
		}
		a.GCS, a.Sink = up, up
	case cfg.ExportDir != "":
		a.Sink = export.DirSink{Dir: cfg.ExportDir}
	default:
		log.Warn().Msg("No export bucket or directory configured - background exports are disabled")
	}

	a.Cache = ledger.NewCache(backend.Store, ledger.NewCacheState(), ledger.Options{TTL: cfg.CacheTTL}, log)
	a.Service = tracker.NewService(backend.Store, a.Cache, tracker.Options{Sink: a.Sink}, log)
	return a, nil
}

// Close releases the backend and the export client.
func (a *App) Close() error {
	var errs []error
	if a.GCS != nil {
		errs = append(errs, a.GCS.Close())
	}
	errs = append(errs, a.Backend.Close())
	return errors.Join(errs...)
}
