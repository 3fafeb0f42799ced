package repository

import (
	"context"

	"github.com/splax/logscribe/internal/domain"
)

// UserRepository persists users.
type UserRepository interface {
	CreateUser(ctx context.Context, user *domain.User) error
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	GetUserByID(ctx context.Context, id string) (*domain.User, error)
}

// UploadRepository tracks uploaded files and finalizes their ingestion.
type UploadRepository interface {
	// CreateUpload inserts the upload and assigns its ID.
	CreateUpload(ctx context.Context, upload *domain.Upload) error
	GetUpload(ctx context.Context, id int64) (*domain.Upload, error)
	// ListUploadsByUser returns the user's uploads, newest first.
	ListUploadsByUser(ctx context.Context, userID string) ([]domain.Upload, error)
	// CompleteUpload stores every entry and marks the upload completed atomically.
	CompleteUpload(ctx context.Context, id int64, entries []domain.LogEntry, counts domain.IngestCounts) error
	FailUpload(ctx context.Context, id int64, counts domain.IngestCounts) error
}

// EntryRepository answers search and aggregate queries over persisted entries.
type EntryRepository interface {
	// SearchEntries returns one page of matches, newest first, and the total match count.
	SearchEntries(ctx context.Context, filter domain.SearchFilter, limit, offset int) ([]domain.LogEntry, int, error)
	CountByInterval(ctx context.Context, query domain.TimeSeriesQuery) ([]domain.Point, error)
	CountByField(ctx context.Context, field domain.Field, uploadID *int64) ([]domain.Point, error)
	TopMessages(ctx context.Context, level string, n int, uploadID *int64) ([]domain.Point, error)
}
