package analytics

import (
	"sort"
	"time"

	"github.com/splax/logscribe/internal/domain"
)

// BucketLabelLayout renders bucket starts in series points.
const BucketLabelLayout = "2006-01-02T15:04:05"

// Bucketize counts entries per calendar bucket within [Start, End], oldest bucket first.
// Empty buckets are omitted.
func Bucketize(entries []domain.LogEntry, q domain.TimeSeriesQuery) []domain.Point {
	lower := q.Start.UTC().Format(domain.TimestampLayout)
	upper := q.End.UTC().Format(domain.TimestampLayout)
	counts := make(map[int64]int64)
	for _, e := range entries {
		if q.UploadID != nil && e.UploadID != *q.UploadID {
			continue
		}
		if e.Timestamp < lower || e.Timestamp > upper {
			continue
		}
		ts, err := e.Time()
		if err != nil {
			continue
		}
		counts[q.Interval.Truncate(ts).Unix()]++
	}
	keys := make([]int64, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	points := make([]domain.Point, 0, len(keys))
	for _, k := range keys {
		points = append(points, domain.Point{
			X: time.Unix(k, 0).UTC().Format(BucketLabelLayout),
			Y: counts[k],
		})
	}
	return points
}

// Distribute counts entries per value of field. Empty values are reported as Unknown.
// Points are ordered by count descending, then label.
func Distribute(entries []domain.LogEntry, field domain.Field, uploadID *int64) []domain.Point {
	counts := make(map[string]int64)
	for _, e := range entries {
		if uploadID != nil && e.UploadID != *uploadID {
			continue
		}
		label := field.Value(e)
		if label == "" {
			label = domain.UnknownLabel
		}
		counts[label]++
	}
	return rank(counts, 0)
}

// RankMessages returns the n most frequent messages among entries at level,
// ties broken by message in ascending byte order.
func RankMessages(entries []domain.LogEntry, level string, n int, uploadID *int64) []domain.Point {
	counts := make(map[string]int64)
	for _, e := range entries {
		if uploadID != nil && e.UploadID != *uploadID {
			continue
		}
		if e.Level != level {
			continue
		}
		label := e.Message
		if label == "" {
			label = domain.UnknownLabel
		}
		counts[label]++
	}
	return rank(counts, n)
}

func rank(counts map[string]int64, n int) []domain.Point {
	points := make([]domain.Point, 0, len(counts))
	for label, count := range counts {
		points = append(points, domain.Point{X: label, Y: count})
	}
	sort.Slice(points, func(i, j int) bool {
		if points[i].Y != points[j].Y {
			return points[i].Y > points[j].Y
		}
		return points[i].X < points[j].X
	})
	if n > 0 && len(points) > n {
		points = points[:n]
	}
	return points
}
