package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
)

// ErrNoRecords marks a file in which no line could be parsed.
var ErrNoRecords = errors.New("ingest: no parseable lines")

// Job is one spooled upload awaiting ingestion. The runner owns Path and removes it.
type Job struct {
	Upload domain.Upload
	Path   string
}

// Outcome reports how a job finished.
type Outcome struct {
	UploadID int64
	UserID   string
	Status   domain.UploadStatus
	Counts   domain.IngestCounts
	Duration time.Duration
	Err      error
}

// Observer is notified after every job reaches a terminal status.
type Observer interface {
	Observe(Outcome)
}

// Runner ingests one file at a time into the upload store.
type Runner struct {
	pipeline  Pipeline
	uploads   repository.UploadRepository
	observers []Observer
	logger    *slog.Logger
	now       func() time.Time
}

// NewRunner constructs a Runner.
func NewRunner(pipeline Pipeline, uploads repository.UploadRepository, logger *slog.Logger, observers ...Observer) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		pipeline:  pipeline,
		uploads:   uploads,
		observers: observers,
		logger:    logger.With("component", "ingest"),
		now:       time.Now,
	}
}

// Ingest parses the job's file and finalizes its upload as completed or failed.
// The spooled file is removed on every path.
func (r *Runner) Ingest(ctx context.Context, job Job) Outcome {
	start := r.now()
	defer r.removeSpool(job.Path)

	outcome := Outcome{UploadID: job.Upload.ID, UserID: job.Upload.UserID}
	batch, err := r.parseFile(job.Path)
	if err != nil {
		return r.fail(ctx, outcome, start, err)
	}
	outcome.Counts = batch.Counts()
	if len(batch.Records) == 0 {
		return r.fail(ctx, outcome, start, ErrNoRecords)
	}

	entries := make([]domain.LogEntry, 0, len(batch.Records))
	for _, rec := range batch.Records {
		entries = append(entries, domain.LogEntry{
			UploadID:    job.Upload.ID,
			UserID:      job.Upload.UserID,
			Timestamp:   job.Upload.Timestamp,
			Level:       rec.Level,
			Source:      rec.Source,
			Message:     rec.Message,
			ExtraFields: rec.ExtraFields,
		})
	}
	if err := r.uploads.CompleteUpload(ctx, job.Upload.ID, entries, outcome.Counts); err != nil {
		return r.fail(ctx, outcome, start, fmt.Errorf("persist entries: %w", err))
	}

	outcome.Status = domain.UploadCompleted
	outcome.Duration = r.now().Sub(start)
	r.logger.Info("upload ingested",
		"upload_id", job.Upload.ID,
		"format", outcome.Counts.Format,
		"parsed", outcome.Counts.Parsed,
		"skipped", outcome.Counts.Skipped,
		"duration_ms", outcome.Duration.Milliseconds(),
	)
	r.notify(outcome)
	return outcome
}

func (r *Runner) parseFile(path string) (Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return Batch{}, fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()
	return r.pipeline.ParseReader(f)
}

func (r *Runner) fail(ctx context.Context, outcome Outcome, start time.Time, cause error) Outcome {
	outcome.Status = domain.UploadFailed
	outcome.Err = cause
	if err := r.uploads.FailUpload(ctx, outcome.UploadID, outcome.Counts); err != nil {
		r.logger.Error("mark upload failed", "upload_id", outcome.UploadID, "error", err)
	}
	outcome.Duration = r.now().Sub(start)
	r.logger.Warn("upload ingestion failed",
		"upload_id", outcome.UploadID,
		"skipped", outcome.Counts.Skipped,
		"error", cause,
	)
	r.notify(outcome)
	return outcome
}

func (r *Runner) notify(outcome Outcome) {
	for _, o := range r.observers {
		o.Observe(outcome)
	}
}

func (r *Runner) removeSpool(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.logger.Warn("remove spooled upload", "path", path, "error", err)
	}
}
