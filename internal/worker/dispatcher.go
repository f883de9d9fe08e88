package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// Submit validates the payload, registers a queued job and hands it to the
// pool without blocking. A full queue fails the job and returns ErrQueueFull.
func (w *Worker) Submit(ctx context.Context, payload *domain.DocumentPayload, mode string) (*domain.Job, error) {
	if payload == nil {
		return nil, domain.ErrInputMissing
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	if !domain.ValidMode(mode) {
		return nil, fmt.Errorf("unknown mode %q", mode)
	}
	if mode == "" {
		mode = w.defaultMode
	}

	now := time.Now().UTC()
	job := &domain.Job{
		JobID:     uuid.NewString(),
		Status:    domain.JobStatusQueued,
		Mode:      mode,
		InputKind: payload.Kind(),
		SourceURL: payload.URL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := w.registry.Put(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to register job: %w", err)
	}

	msg := &domain.JobMessage{JobID: job.JobID, Mode: mode, Payload: payload}
	select {
	case w.queue <- msg:
	default:
		w.logger.Warn("Job queue full, rejecting job",
			slog.String("job_id", job.JobID),
			slog.Int("queue_size", cap(w.queue)),
		)
		_, err := w.registry.CompareAndSwapState(ctx, job.JobID, domain.JobStatusQueued, domain.JobStatusFailed, func(j *domain.Job) {
			j.Error = domain.NewJobError(domain.KindInternal, "job queue is full", domain.ErrQueueFull)
			completed := time.Now().UTC()
			j.CompletedAt = &completed
		})
		if err != nil {
			w.logger.Error("Failed to mark rejected job as failed",
				slog.String("job_id", job.JobID),
				slog.Any("error", err),
			)
		}
		return nil, domain.ErrQueueFull
	}

	w.logger.Info("Job queued",
		slog.String("job_id", job.JobID),
		slog.String("mode", mode),
		slog.String("input_kind", job.InputKind),
		slog.Int("queue_depth", len(w.queue)),
	)
	return job, nil
}
