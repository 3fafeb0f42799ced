package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
)

func TestUserUniqueness(t *testing.T) {
	ctx := context.Background()
	store := New()
	require.NoError(t, store.CreateUser(ctx, &domain.User{ID: "u1", Username: "ada", Email: "ada@example.com"}))

	err := store.CreateUser(ctx, &domain.User{ID: "u2", Username: "ADA", Email: "other@example.com"})
	assert.ErrorIs(t, err, repository.ErrConflict)

	u, err := store.GetUserByUsername(ctx, "ada")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)

	_, err = store.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestUploadLifecycle(t *testing.T) {
	ctx := context.Background()
	store := New()
	upload := &domain.Upload{UserID: "u1", Filename: "app.log", Timestamp: "2024-01-15 10:00:00"}
	require.NoError(t, store.CreateUpload(ctx, upload))
	assert.EqualValues(t, 1, upload.ID)
	assert.Equal(t, domain.UploadProcessing, upload.Status)

	entries := []domain.LogEntry{
		{UserID: "u1", Timestamp: upload.Timestamp, Level: "ERROR", Source: "Python", Message: "boom"},
		{UserID: "u1", Timestamp: upload.Timestamp, Level: "INFO", Source: "Python", Message: "ok"},
	}
	counts := domain.IngestCounts{Format: "pythonlog", Parsed: 2, Skipped: 1}
	require.NoError(t, store.CompleteUpload(ctx, upload.ID, entries, counts))

	got, err := store.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadCompleted, got.Status)
	assert.Equal(t, "pythonlog", got.Format)
	assert.Equal(t, 2, got.ParsedLines)
	assert.Equal(t, 1, got.SkippedLines)

	err = store.FailUpload(ctx, upload.ID, domain.IngestCounts{})
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	page, total, err := store.SearchEntries(ctx, domain.SearchFilter{UploadID: &upload.ID}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.EqualValues(t, 2, page[0].ID)
	assert.Equal(t, upload.ID, page[1].UploadID)
}

func TestFailedUploadStoresNothing(t *testing.T) {
	ctx := context.Background()
	store := New()
	upload := &domain.Upload{UserID: "u1", Timestamp: "2024-01-15 10:00:00"}
	require.NoError(t, store.CreateUpload(ctx, upload))
	require.NoError(t, store.FailUpload(ctx, upload.ID, domain.IngestCounts{Skipped: 3}))

	_, total, err := store.SearchEntries(ctx, domain.SearchFilter{}, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)

	got, err := store.GetUpload(ctx, upload.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.UploadFailed, got.Status)
	assert.Equal(t, 3, got.SkippedLines)

	assert.ErrorIs(t, store.FailUpload(ctx, 99, domain.IngestCounts{}), repository.ErrNotFound)
}

func TestListUploadsNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := New()
	for _, ts := range []string{"2024-01-15 10:00:00", "2024-01-16 09:00:00", "2024-01-14 23:59:59"} {
		require.NoError(t, store.CreateUpload(ctx, &domain.Upload{UserID: "u1", Timestamp: ts}))
	}
	require.NoError(t, store.CreateUpload(ctx, &domain.Upload{UserID: "u2", Timestamp: "2024-02-01 00:00:00"}))

	uploads, err := store.ListUploadsByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, uploads, 3)
	assert.Equal(t, "2024-01-16 09:00:00", uploads[0].Timestamp)
	assert.Equal(t, "2024-01-14 23:59:59", uploads[2].Timestamp)
}

func TestAggregatesAreRepeatable(t *testing.T) {
	ctx := context.Background()
	store := New()
	upload := &domain.Upload{UserID: "u1", Timestamp: "2024-01-15 10:30:00"}
	require.NoError(t, store.CreateUpload(ctx, upload))
	entries := []domain.LogEntry{
		{Timestamp: upload.Timestamp, Level: "ERROR", Source: "Apache", Message: "GET /missing"},
		{Timestamp: upload.Timestamp, Level: "ERROR", Source: "Apache", Message: "GET /missing"},
		{Timestamp: upload.Timestamp, Level: "INFO", Source: "Apache", Message: "GET /"},
	}
	require.NoError(t, store.CompleteUpload(ctx, upload.ID, entries, domain.IngestCounts{Parsed: 3}))

	q := domain.TimeSeriesQuery{
		Start:    time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.January, 16, 0, 0, 0, 0, time.UTC),
		Interval: domain.IntervalHour,
	}
	first, err := store.CountByInterval(ctx, q)
	require.NoError(t, err)
	second, err := store.CountByInterval(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, []domain.Point{{X: "2024-01-15T10:00:00", Y: 3}}, first)

	top, err := store.TopMessages(ctx, "ERROR", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, []domain.Point{{X: "GET /missing", Y: 2}}, top)

	dist, err := store.CountByField(ctx, domain.FieldLevel, &upload.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Point{{X: "ERROR", Y: 2}, {X: "INFO", Y: 1}}, dist)
}
