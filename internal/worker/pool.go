package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/cuongbtq/job-collector/internal/worker/domain"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop drains the queue one job at a time. A job that has started
// runs to completion even if ctx is cancelled meanwhile.
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	workerName := fmt.Sprintf("%s-%d", w.workerID, workerNum)
	w.logger.Info("Worker goroutine started",
		slog.String("worker_name", workerName),
	)

	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-w.stopChan:
			w.logger.Info("Worker goroutine stopping - stopChan closed",
				slog.String("worker_name", workerName),
			)
			return

		case <-ctx.Done():
			w.logger.Info("Worker goroutine stopping - context canceled",
				slog.String("worker_name", workerName),
			)
			return

		case msg := <-w.queue:
			w.logger.Info("Worker received job",
				slog.String("worker_name", workerName),
				slog.String("job_id", msg.JobID),
			)
			w.safeProcess(jobCtx, msg, workerName)
		}
	}
}

// safeProcess records a panic inside a job as an internal failure
func (w *Worker) safeProcess(ctx context.Context, msg *domain.JobMessage, workerName string) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		w.logger.Error("Job panicked",
			slog.String("worker_name", workerName),
			slog.String("job_id", msg.JobID),
			slog.Any("panic", r),
			slog.String("stack", string(debug.Stack())),
		)
		jobErr := domain.NewJobError(domain.KindInternal, "unexpected failure while processing job", fmt.Errorf("panic: %v", r))
		for _, from := range []string{domain.JobStatusProcessing, domain.JobStatusQueued} {
			if _, err := w.fail(ctx, msg.JobID, from, jobErr); err == nil {
				return
			}
		}
	}()

	w.processJob(ctx, msg, workerName)
}

// fail moves a job into the failed state
func (w *Worker) fail(ctx context.Context, jobID, from string, jobErr *domain.JobError) (*domain.Job, error) {
	return w.registry.CompareAndSwapState(ctx, jobID, from, domain.JobStatusFailed, func(j *domain.Job) {
		j.Error = jobErr
		completed := time.Now().UTC()
		j.CompletedAt = &completed
	})
}
