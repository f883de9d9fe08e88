package storage

import (
	"context"
	"time"

	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// ErrJobNotFound is returned for unknown job ids
var ErrJobNotFound = domain.ErrJobNotFound

// Registry owns the job id → job association.
// Implementations return copies; callers never hold a reference into the store.
type Registry interface {
	// Put stores a new job
	Put(ctx context.Context, job *domain.Job) error
	// Get returns a copy of the job
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	// CompareAndSwapState moves the job from one status to another, applying
	// mutate to the stored job under the same lock, and returns the new copy
	CompareAndSwapState(ctx context.Context, jobID, from, to string, mutate func(*domain.Job)) (*domain.Job, error)
	// List returns up to PageSize+1 jobs, newest first
	List(ctx context.Context, filter JobFilter) ([]*domain.Job, error)
}

// JobFilter selects jobs for listing
type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// JobCursor is the keyset position of the last job of the previous page
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// before reports whether job sorts after the cursor in newest-first order
func (c *JobCursor) before(job *domain.Job) bool {
	if job.CreatedAt.Equal(c.CreatedAt) {
		return job.JobID < c.JobID
	}
	return job.CreatedAt.Before(c.CreatedAt)
}
