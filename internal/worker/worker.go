package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/cuongbtq/job-collector/internal/extraction"
	"github.com/cuongbtq/job-collector/internal/pipeline"
	"github.com/cuongbtq/job-collector/internal/publish"
	"github.com/cuongbtq/job-collector/internal/worker/domain"
	"github.com/cuongbtq/job-collector/internal/worker/storage"
)

// PipelineRunner turns a payload into a record
type PipelineRunner interface {
	Run(ctx context.Context, in pipeline.Input) (*pipeline.Output, error)
}

// ResultStore persists finished records and returns the file name
type ResultStore interface {
	Save(record *extraction.Record) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger      *slog.Logger
	Registry    storage.Registry
	Pipeline    PipelineRunner
	Store       ResultStore
	Publisher   publish.Publisher // optional
	Concurrency int
	QueueSize   int
	DefaultMode string
}

// Worker owns the in-memory job queue and the goroutines draining it
type Worker struct {
	logger      *slog.Logger
	registry    storage.Registry
	pipeline    PipelineRunner
	store       ResultStore
	publisher   publish.Publisher
	concurrency int
	defaultMode string
	workerID    string
	queue       chan *domain.JobMessage
	wg          sync.WaitGroup
	stopChan    chan struct{}
	stopOnce    sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = publish.Noop{}
	}
	defaultMode := cfg.DefaultMode
	if defaultMode == "" {
		defaultMode = domain.ModeSingle
	}

	return &Worker{
		logger:      logger,
		registry:    cfg.Registry,
		pipeline:    cfg.Pipeline,
		store:       cfg.Store,
		publisher:   publisher,
		concurrency: concurrency,
		defaultMode: defaultMode,
		workerID:    generateWorkerID(),
		queue:       make(chan *domain.JobMessage, queueSize),
		stopChan:    make(chan struct{}),
	}
}

// Start spawns the worker pool and returns; workers run until ctx is
// cancelled or Stop is called
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Int("queue_size", cap(w.queue)),
		slog.String("default_mode", w.defaultMode),
	)
	w.spawnWorkerPool(ctx)
}

// Stop signals the pool and waits for in-flight jobs to finish
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.wg.Wait()
	w.logger.Info("Worker stopped", slog.Int("abandoned_jobs", len(w.queue)))
}

// QueueDepth returns the number of jobs waiting for a worker
func (w *Worker) QueueDepth() int {
	return len(w.queue)
}

// generateWorkerID builds a worker id from hostname, pid and a short uuid
func generateWorkerID() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("%s-%d-%s", hostname, os.Getpid(), uuid.NewString()[:8])
}

// jsonSize is used for log attributes only
func jsonSize(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
