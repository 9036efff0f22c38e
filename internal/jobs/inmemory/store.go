package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dvloznov/daily-tracker/internal/jobs"
)

// DefaultRetention is how many finished jobs NewStore keeps.
const DefaultRetention = 100

// Store is an in-memory implementation of JobStore.
// Data is lost on restart. Only the newest finished jobs are kept; pending
// and running jobs are never dropped.
type Store struct {
	mu        sync.RWMutex
	jobs      map[string]*jobs.ExportJob
	retention int
}

// NewStore creates a new in-memory job store keeping DefaultRetention
// finished jobs.
func NewStore() *Store {
	return NewStoreWithRetention(DefaultRetention)
}

// NewStoreWithRetention creates a store keeping at most retention finished
// jobs. Zero or less keeps them all.
func NewStoreWithRetention(retention int) *Store {
	return &Store{
		jobs:      make(map[string]*jobs.ExportJob),
		retention: retention,
	}
}

// SaveJob implements the JobStore interface.
func (s *Store) SaveJob(ctx context.Context, job *jobs.ExportJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Store a copy so callers can keep mutating theirs.
	jobCopy := *job
	s.jobs[job.JobID] = &jobCopy
	s.pruneLocked()

	return nil
}

// GetJob implements the JobStore interface.
func (s *Store) GetJob(ctx context.Context, jobID string) (*jobs.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	jobCopy := *job
	return &jobCopy, nil
}

// ListJobs implements the JobStore interface. Jobs are returned newest first.
func (s *Store) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ExportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*jobs.ExportJob
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		jobCopy := *job
		result = append(result, &jobCopy)
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].JobID < result[j].JobID
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []*jobs.ExportJob{}, nil
		}
		result = result[filter.Offset:]
	}

	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}

	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *Store) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", jobs.ErrJobNotFound, jobID)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	s.pruneLocked()

	return nil
}

func finished(job *jobs.ExportJob) bool {
	return job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed
}

// pruneLocked drops the oldest finished jobs beyond the retention limit.
func (s *Store) pruneLocked() {
	if s.retention <= 0 {
		return
	}
	var done []*jobs.ExportJob
	for _, job := range s.jobs {
		if finished(job) {
			done = append(done, job)
		}
	}
	if len(done) <= s.retention {
		return
	}
	sort.Slice(done, func(i, j int) bool {
		if !done[i].CreatedAt.Equal(done[j].CreatedAt) {
			return done[i].CreatedAt.Before(done[j].CreatedAt)
		}
		return done[i].JobID < done[j].JobID
	})
	for _, job := range done[:len(done)-s.retention] {
		delete(s.jobs, job.JobID)
	}
}

// Ensure Store implements JobStore interface.
var _ jobs.JobStore = (*Store)(nil)
