package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// MemoryRegistry keeps jobs in a map guarded by a RWMutex
type MemoryRegistry struct {
	mu   sync.RWMutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryRegistry creates an empty registry
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		jobs: make(map[string]*domain.Job),
		now:  time.Now,
	}
}

func (m *MemoryRegistry) Put(_ context.Context, job *domain.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.jobs[job.JobID]; ok {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	m.jobs[job.JobID] = job.Clone()
	return nil
}

func (m *MemoryRegistry) Get(_ context.Context, jobID string) (*domain.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *MemoryRegistry) CompareAndSwapState(_ context.Context, jobID, from, to string, mutate func(*domain.Job)) (*domain.Job, error) {
	if !domain.CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s → %s", domain.ErrInvalidTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if stored.Status != from {
		return nil, fmt.Errorf("%w: job %s is %s, expected %s", domain.ErrStateConflict, jobID, stored.Status, from)
	}

	next := stored.Clone()
	if mutate != nil {
		mutate(next)
	}
	next.JobID = jobID
	next.Status = to
	next.UpdatedAt = m.now()

	m.jobs[jobID] = next.Clone()
	return next, nil
}

func (m *MemoryRegistry) List(_ context.Context, filter JobFilter) ([]*domain.Job, error) {
	m.mu.RLock()
	matched := make([]*domain.Job, 0, len(m.jobs))
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Cursor != nil && !filter.Cursor.before(job) {
			continue
		}
		matched = append(matched, job.Clone())
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].JobID > matched[j].JobID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if filter.PageSize > 0 && len(matched) > filter.PageSize+1 {
		matched = matched[:filter.PageSize+1]
	}
	return matched, nil
}
