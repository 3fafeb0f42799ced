package domain

import (
	"strings"
	"time"
)

// Interval is the calendar granularity of a time-series bucket.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
	IntervalWeek   Interval = "week"
	IntervalMonth  Interval = "month"
)

// Intervals lists the accepted granularities.
var Intervals = []Interval{IntervalMinute, IntervalHour, IntervalDay, IntervalWeek, IntervalMonth}

// ParseInterval resolves a granularity name, case-insensitively.
func ParseInterval(raw string) (Interval, bool) {
	candidate := Interval(strings.ToLower(strings.TrimSpace(raw)))
	for _, iv := range Intervals {
		if iv == candidate {
			return iv, true
		}
	}
	return "", false
}

// Truncate returns the start of the bucket containing t, in UTC.
// Weeks start on Monday.
func (iv Interval) Truncate(t time.Time) time.Time {
	t = t.UTC()
	switch iv {
	case IntervalMinute:
		return t.Truncate(time.Minute)
	case IntervalHour:
		return t.Truncate(time.Hour)
	case IntervalDay:
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	case IntervalWeek:
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	case IntervalMonth:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return t
	}
}

// Field is a categorical column usable for distributions.
type Field string

const (
	FieldLevel  Field = "level"
	FieldSource Field = "source"
)

// ParseField resolves a categorical field name. "log_level" is accepted as an alias of level.
func ParseField(raw string) (Field, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "level", "log_level":
		return FieldLevel, true
	case "source":
		return FieldSource, true
	default:
		return "", false
	}
}

// Value extracts the field from an entry.
func (f Field) Value(e LogEntry) string {
	switch f {
	case FieldLevel:
		return e.Level
	case FieldSource:
		return e.Source
	default:
		return ""
	}
}

// TimeSeriesQuery selects entries for bucketed counting.
type TimeSeriesQuery struct {
	Start    time.Time
	End      time.Time
	Interval Interval
	UploadID *int64
}

// SearchFilter combines optional predicates; unset fields do not constrain.
type SearchFilter struct {
	Query    string
	Level    string
	Start    *time.Time
	End      *time.Time
	Source   string
	UploadID *int64
}

// Matches reports whether e satisfies every set predicate.
func (f SearchFilter) Matches(e LogEntry) bool {
	if f.Query != "" && !strings.Contains(strings.ToLower(e.Message), strings.ToLower(f.Query)) {
		return false
	}
	if f.Level != "" && e.Level != strings.ToUpper(f.Level) {
		return false
	}
	if f.Start != nil && e.Timestamp < f.Start.UTC().Format(TimestampLayout) {
		return false
	}
	if f.End != nil && e.Timestamp > f.End.UTC().Format(TimestampLayout) {
		return false
	}
	if f.Source != "" && e.Source != f.Source {
		return false
	}
	if f.UploadID != nil && e.UploadID != *f.UploadID {
		return false
	}
	return true
}

// Point is one labelled count in a series.
type Point struct {
	X string `json:"x"`
	Y int64  `json:"y"`
}

// Series is a named list of points, the shape every aggregate view returns.
type Series struct {
	Name string  `json:"name"`
	Data []Point `json:"data"`
}
