package domain

import "time"

// UploadStatus tracks where an upload is in the ingestion lifecycle.
type UploadStatus string

const (
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s UploadStatus) Terminal() bool {
	return s == UploadCompleted || s == UploadFailed
}

// Upload represents an ingested log file.
type Upload struct {
	ID           int64
	UserID       string
	Filename     string
	Size         int64
	Format       string
	Timestamp    string
	Status       UploadStatus
	ParsedLines  int
	SkippedLines int
}

// IngestCounts reports per-line results of a single ingestion run.
type IngestCounts struct {
	Format  string
	Parsed  int
	Skipped int
}

// NewUploadTimestamp renders t in the persisted timestamp form.
func NewUploadTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
