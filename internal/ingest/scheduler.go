package ingest

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"
)

const defaultWorkers = 4

// Scheduler runs ingestion jobs in the background, at most `workers` at a time.
// Jobs are never cancelled once submitted.
type Scheduler struct {
	runner *Runner
	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewScheduler constructs a Scheduler; non-positive workers selects the default.
func NewScheduler(runner *Runner, workers int, logger *slog.Logger) *Scheduler {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(workers)),
		logger: logger.With("component", "ingest_scheduler"),
	}
}

// Submit queues job and returns immediately. The job outlives ctx's cancellation.
func (s *Scheduler) Submit(ctx context.Context, job Job) {
	ctx = context.WithoutCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.sem.Acquire(ctx, 1); err != nil {
			s.logger.Error("acquire ingest slot", "upload_id", job.Upload.ID, "error", err)
			return
		}
		defer s.sem.Release(1)
		s.runner.Ingest(ctx, job)
	}()
	s.logger.Debug("ingest job submitted", "upload_id", job.Upload.ID)
}

// Wait blocks until every submitted job has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
