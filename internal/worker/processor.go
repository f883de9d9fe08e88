package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cuongbtq/job-collector/internal/pipeline"
	"github.com/cuongbtq/job-collector/internal/publish"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// processJob claims a queued job, runs the pipeline, persists the record and
// moves the job to a terminal state
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage, workerName string) {
	logger := w.logger.With(
		slog.String("job_id", msg.JobID),
		slog.String("worker_name", workerName),
	)
	start := time.Now()

	// Step 1: Claim job (QUEUED → PROCESSING)
	_, err := w.registry.CompareAndSwapState(ctx, msg.JobID, domain.JobStatusQueued, domain.JobStatusProcessing, func(j *domain.Job) {
		j.WorkerID = workerName
		started := time.Now().UTC()
		j.StartedAt = &started
	})
	if err != nil {
		logger.Warn("Failed to claim job, skipping", slog.Any("error", err))
		return
	}

	// Step 2: Run the pipeline
	mode := msg.Mode
	if mode == "" {
		mode = w.defaultMode
	}
	out, err := w.pipeline.Run(ctx, pipeline.Input{
		JobID:    msg.JobID,
		Payload:  msg.Payload,
		Strategy: pipeline.Strategy(mode),
	})
	if err != nil {
		w.finishFailed(ctx, logger, msg.JobID, classify(err))
		return
	}

	// Step 3: Persist the record
	file, err := w.store.Save(out.Record)
	if err != nil {
		jobErr := domain.NewJobError(domain.KindInternal, "failed to persist record", err)
		jobErr.Artifact = out.Artifact
		w.finishFailed(ctx, logger, msg.JobID, jobErr)
		return
	}

	// Step 4: Forward downstream, best effort
	completed := time.Now().UTC()
	event := publish.Event{
		JobID:       msg.JobID,
		File:        file,
		SourceURL:   msg.Payload.URL,
		Record:      out.Record,
		CompletedAt: completed,
	}
	if err := w.publisher.Publish(ctx, event); err != nil {
		logger.Warn("Failed to forward record downstream", slog.Any("error", err))
	}

	// Step 5: PROCESSING → SUCCEEDED
	_, err = w.registry.CompareAndSwapState(ctx, msg.JobID, domain.JobStatusProcessing, domain.JobStatusSucceeded, func(j *domain.Job) {
		j.Result = out.Record
		j.ResultFile = file
		j.CompletedAt = &completed
	})
	if err != nil {
		logger.Error("Failed to update job status to SUCCEEDED", slog.Any("error", err))
		return
	}

	logger.Info("Job completed successfully",
		slog.String("file", file),
		slog.Int("pages", out.Pages),
		slog.Int("inference_calls", out.Calls),
		slog.Int("record_bytes", jsonSize(out.Record)),
		slog.Duration("elapsed", time.Since(start)),
	)
}

func (w *Worker) finishFailed(ctx context.Context, logger *slog.Logger, jobID string, jobErr *domain.JobError) {
	logger.Error("Job execution failed",
		slog.String("kind", string(jobErr.Kind)),
		slog.String("message", jobErr.Message),
		slog.String("detail", jobErr.Detail),
	)
	if _, err := w.fail(ctx, jobID, domain.JobStatusProcessing, jobErr); err != nil {
		logger.Error("Failed to update job status to FAILED", slog.Any("error", err))
	}
}

// classify returns err as a *domain.JobError, treating anything else as internal
func classify(err error) *domain.JobError {
	var jobErr *domain.JobError
	if errors.As(err, &jobErr) {
		return jobErr
	}
	return domain.NewJobError(domain.KindInternal, "unexpected failure while processing job", err)
}
