// Package memory provides in-memory store implementations for
// development and testing.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/tbakker/linkcrm/internal/crm"
)

// ErrJobExists is returned when a job id is inserted twice.
var ErrJobExists = errors.New("job already exists")

// JobStore is an in-memory crm.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]crm.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]crm.Job)}
}

// CreateJob stores a new job.
func (s *JobStore) CreateJob(_ context.Context, job crm.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return ErrJobExists
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a job by ID.
func (s *JobStore) GetJob(_ context.Context, jobID string) (crm.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crm.Job{}, crm.ErrJobNotFound
	}
	return job, nil
}

// CompleteJob writes the terminal completed state.
func (s *JobStore) CompleteJob(_ context.Context, jobID string, result []crm.Record, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crm.ErrJobNotFound
	}
	job.Status = crm.JobStatusCompleted
	job.Result = result
	job.CompletedAt = &completedAt
	s.jobs[jobID] = job
	return nil
}

// FailJob writes the terminal failed state.
func (s *JobStore) FailJob(_ context.Context, jobID string, errText string, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return crm.ErrJobNotFound
	}
	job.Status = crm.JobStatusFailed
	job.ErrorText = errText
	job.CompletedAt = &completedAt
	s.jobs[jobID] = job
	return nil
}

// ListJobs returns up to limit jobs newest-first, optionally status-filtered.
func (s *JobStore) ListJobs(_ context.Context, status crm.JobStatus, limit int) ([]crm.Job, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crm.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.Status != status {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
