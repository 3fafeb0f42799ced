package analytics

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/splax/logscribe/internal/domain"
)

func entry(upload int64, ts, level, source, message string) domain.LogEntry {
	return domain.LogEntry{UploadID: upload, Timestamp: ts, Level: level, Source: source, Message: message}
}

func TestBucketizeHourly(t *testing.T) {
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 10:00:05", "INFO", "Python", "a"),
		entry(1, "2024-01-15 10:00:45", "INFO", "Python", "b"),
		entry(1, "2024-01-15 10:59:59", "INFO", "Python", "c"),
		entry(1, "2024-01-15 11:00:01", "INFO", "Python", "d"),
	}
	q := domain.TimeSeriesQuery{
		Start:    time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC),
		Interval: domain.IntervalHour,
	}

	got := Bucketize(entries, q)
	assert.Equal(t, []domain.Point{
		{X: "2024-01-15T10:00:00", Y: 3},
		{X: "2024-01-15T11:00:00", Y: 1},
	}, got)
}

func TestBucketizeExcludesOutsideRange(t *testing.T) {
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 09:59:59", "INFO", "Python", "before"),
		entry(1, "2024-01-15 10:05:00", "INFO", "Python", "inside"),
		entry(1, "2024-01-15 12:00:01", "INFO", "Python", "after"),
	}
	q := domain.TimeSeriesQuery{
		Start:    time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.January, 15, 12, 0, 0, 0, time.UTC),
		Interval: domain.IntervalHour,
	}
	assert.Equal(t, []domain.Point{{X: "2024-01-15T10:00:00", Y: 1}}, Bucketize(entries, q))
}

func TestBucketizeBoundsAreInclusive(t *testing.T) {
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 10:00:00", "INFO", "x", "start"),
		entry(1, "2024-01-15 10:59:59", "INFO", "x", "end"),
	}
	q := domain.TimeSeriesQuery{
		Start:    time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.January, 15, 10, 59, 59, 0, time.UTC),
		Interval: domain.IntervalMinute,
	}
	got := Bucketize(entries, q)
	require.Len(t, got, 2)
	assert.Equal(t, "2024-01-15T10:00:00", got[0].X)
	assert.Equal(t, "2024-01-15T10:59:00", got[1].X)
}

func TestBucketizeFiltersUpload(t *testing.T) {
	upload := int64(2)
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 10:05:00", "INFO", "x", "a"),
		entry(2, "2024-01-15 10:06:00", "INFO", "x", "b"),
	}
	q := domain.TimeSeriesQuery{
		Start:    time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC),
		Interval: domain.IntervalDay,
		UploadID: &upload,
	}
	assert.Equal(t, []domain.Point{{X: "2024-01-15T00:00:00", Y: 1}}, Bucketize(entries, q))
}

func TestIntervalTruncate(t *testing.T) {
	wed := time.Date(2024, time.January, 17, 13, 47, 12, 0, time.UTC)
	sun := time.Date(2024, time.January, 21, 23, 0, 0, 0, time.UTC)
	cases := []struct {
		interval domain.Interval
		in       time.Time
		want     time.Time
	}{
		{domain.IntervalMinute, wed, time.Date(2024, time.January, 17, 13, 47, 0, 0, time.UTC)},
		{domain.IntervalHour, wed, time.Date(2024, time.January, 17, 13, 0, 0, 0, time.UTC)},
		{domain.IntervalDay, wed, time.Date(2024, time.January, 17, 0, 0, 0, 0, time.UTC)},
		{domain.IntervalWeek, wed, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{domain.IntervalWeek, sun, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)},
		{domain.IntervalMonth, wed, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(string(tc.interval)+"/"+tc.in.Weekday().String(), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.interval.Truncate(tc.in))
		})
	}
}

func TestDistributeSumsToTotal(t *testing.T) {
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 10:00:00", "INFO", "Python", "a"),
		entry(1, "2024-01-15 10:00:00", "ERROR", "Apache", "b"),
		entry(1, "2024-01-15 10:00:00", "ERROR", "", "c"),
		entry(1, "2024-01-15 10:00:00", "WARNING", "Python", "d"),
	}

	byLevel := Distribute(entries, domain.FieldLevel, nil)
	assert.Equal(t, []domain.Point{
		{X: "ERROR", Y: 2},
		{X: "INFO", Y: 1},
		{X: "WARNING", Y: 1},
	}, byLevel)

	bySource := Distribute(entries, domain.FieldSource, nil)
	var total int64
	for _, p := range bySource {
		total += p.Y
	}
	assert.EqualValues(t, len(entries), total)
	assert.Contains(t, bySource, domain.Point{X: domain.UnknownLabel, Y: 1})
}

func TestRankMessagesTieBreak(t *testing.T) {
	var entries []domain.LogEntry
	add := func(msg string, times int) {
		for i := 0; i < times; i++ {
			entries = append(entries, entry(1, "2024-01-15 10:00:00", "ERROR", "x", msg))
		}
	}
	add("timeout", 3)
	add("disk full", 2)
	add("connection reset", 2)
	entries = append(entries, entry(1, "2024-01-15 10:00:00", "INFO", "x", "timeout"))

	got := RankMessages(entries, "ERROR", 2, nil)
	assert.Equal(t, []domain.Point{
		{X: "timeout", Y: 3},
		{X: "connection reset", Y: 2},
	}, got)
}

func TestRankMessagesEmptyMessageLabel(t *testing.T) {
	entries := []domain.LogEntry{entry(1, "2024-01-15 10:00:00", "ERROR", "x", "")}
	assert.Equal(t, []domain.Point{{X: domain.UnknownLabel, Y: 1}}, RankMessages(entries, "ERROR", 5, nil))
}

func TestRankMessagesMergesEmptyWithUnknown(t *testing.T) {
	entries := []domain.LogEntry{
		entry(1, "2024-01-15 10:00:00", "ERROR", "x", ""),
		entry(1, "2024-01-15 10:00:00", "ERROR", "x", domain.UnknownLabel),
		entry(1, "2024-01-15 10:00:00", "ERROR", "x", "disk full"),
	}
	assert.Equal(t, []domain.Point{
		{X: domain.UnknownLabel, Y: 2},
		{X: "disk full", Y: 1},
	}, RankMessages(entries, "ERROR", 5, nil))
}

type entryRepoStub struct {
	calls  int
	err    error
	points []domain.Point
	gotN   int
	gotLvl string
	gotQ   domain.TimeSeriesQuery
	gotFld domain.Field
}

func (s *entryRepoStub) SearchEntries(context.Context, domain.SearchFilter, int, int) ([]domain.LogEntry, int, error) {
	s.calls++
	return nil, 0, s.err
}

func (s *entryRepoStub) CountByInterval(_ context.Context, q domain.TimeSeriesQuery) ([]domain.Point, error) {
	s.calls++
	s.gotQ = q
	return s.points, s.err
}

func (s *entryRepoStub) CountByField(_ context.Context, f domain.Field, _ *int64) ([]domain.Point, error) {
	s.calls++
	s.gotFld = f
	return s.points, s.err
}

func (s *entryRepoStub) TopMessages(_ context.Context, level string, n int, _ *int64) ([]domain.Point, error) {
	s.calls++
	s.gotLvl = level
	s.gotN = n
	return s.points, s.err
}

func newTestService(repo *entryRepoStub) Service {
	return New(repo, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestServiceValidatesBeforeQuerying(t *testing.T) {
	repo := &entryRepoStub{}
	svc := newTestService(repo)
	ctx := context.Background()
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	_, err := svc.TimeSeries(ctx, TimeSeriesRequest{Start: start, End: end, Interval: "fortnight"})
	assert.ErrorIs(t, err, ErrInvalidInterval)
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "interval", verr.Arg)

	_, err = svc.TimeSeries(ctx, TimeSeriesRequest{Start: end, End: start, Interval: "hour"})
	assert.ErrorIs(t, err, ErrInvalidRange)

	_, err = svc.Distribution(ctx, "message", nil)
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = svc.TopErrors(ctx, 0, nil)
	assert.ErrorIs(t, err, ErrInvalidLimit)

	assert.Zero(t, repo.calls)
}

func TestServiceEmptyResults(t *testing.T) {
	repo := &entryRepoStub{}
	svc := newTestService(repo)
	ctx := context.Background()

	got, err := svc.TopErrors(ctx, 10, nil)
	require.NoError(t, err)
	assert.Equal(t, "Top Errors", got.Name)
	assert.NotNil(t, got.Data)
	assert.Empty(t, got.Data)
	assert.Equal(t, "ERROR", repo.gotLvl)
	assert.Equal(t, 10, repo.gotN)

	dist, err := svc.Distribution(ctx, "log_level", nil)
	require.NoError(t, err)
	assert.Equal(t, "log_level", dist.Name)
	assert.Equal(t, domain.FieldLevel, repo.gotFld)
}

func TestServiceTimeSeriesPassesQuery(t *testing.T) {
	repo := &entryRepoStub{points: []domain.Point{{X: "2024-01-15T10:00:00", Y: 2}}}
	svc := newTestService(repo)
	start := time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	got, err := svc.TimeSeries(context.Background(), TimeSeriesRequest{Start: start, End: end, Interval: "HOUR"})
	require.NoError(t, err)
	assert.Equal(t, "Log Count", got.Name)
	assert.Equal(t, repo.points, got.Data)
	assert.Equal(t, domain.IntervalHour, repo.gotQ.Interval)
	assert.Equal(t, start, repo.gotQ.Start)
}

func TestServicePropagatesStoreFailure(t *testing.T) {
	repo := &entryRepoStub{err: errors.New("connection refused")}
	svc := newTestService(repo)

	_, err := svc.TopErrors(context.Background(), 5, nil)
	assert.ErrorIs(t, err, ErrQuery)

	_, err = svc.Distribution(context.Background(), "source", nil)
	assert.ErrorIs(t, err, ErrQuery)
}
