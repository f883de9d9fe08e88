package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/job-collector/internal/inference"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
	"github.com/cuongbtq/job-collector/internal/worker/storage"
)

// Submitter accepts documents for asynchronous processing
type Submitter interface {
	Submit(ctx context.Context, payload *domain.DocumentPayload, mode string) (*domain.Job, error)
	QueueDepth() int
}

// HealthChecker probes the inference backend
type HealthChecker interface {
	Health(ctx context.Context) inference.HealthStatus
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger       *slog.Logger
	Submitter    Submitter
	Registry     storage.Registry
	Health       HealthChecker
	MaxBodyBytes int64
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger    *slog.Logger
	submitter Submitter
	registry  storage.Registry
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:    deps.Logger,
		submitter: deps.Submitter,
		registry:  deps.Registry,
	}
}

// HealthHandler reports backend readiness
type HealthHandler struct {
	checker   HealthChecker
	submitter Submitter
}

// NewHealthHandler creates a new HealthHandler instance
func NewHealthHandler(deps *Dependencies) *HealthHandler {
	return &HealthHandler{checker: deps.Health, submitter: deps.Submitter}
}
