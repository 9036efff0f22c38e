package tracker

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/daily-tracker/internal/export"
	"github.com/dvloznov/daily-tracker/internal/jobs"
)

// ErrNoSink is returned by export jobs when no sink is configured.
var ErrNoSink = errors.New("no export sink configured")

// RunExportJob is a jobs.JobHandler: it renders the current ledger and puts it
// into the configured sink, recording where it landed on the job.
func (s *Service) RunExportJob(ctx context.Context, job jobs.Job) error {
	exportJob, ok := job.(*jobs.ExportJob)
	if !ok {
		return fmt.Errorf("RunExportJob: unexpected job type %s", job.GetType())
	}
	if s.sink == nil {
		return ErrNoSink
	}

	snap, err := s.cache.Get(ctx)
	if err != nil {
		return fmt.Errorf("RunExportJob: loading ledger: %w", err)
	}

	file, err := export.Build(snap.Ledger(), s.now())
	if err != nil {
		return fmt.Errorf("RunExportJob: %w", err)
	}

	location, err := s.sink.Put(ctx, file)
	if err != nil {
		return fmt.Errorf("RunExportJob: storing %s: %w", file.Name, err)
	}

	exportJob.Location = location
	exportJob.FileName = file.Name
	exportJob.Rows = file.Rows
	exportJob.Generation = snap.Generation
	return nil
}
