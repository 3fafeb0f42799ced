package domain

import "time"

// TimestampLayout is the fixed-width form persisted entries carry; lexical order equals time order.
const TimestampLayout = "2006-01-02 15:04:05"

// UnknownLabel replaces empty category values in aggregate views.
const UnknownLabel = "Unknown"

// Record is the canonical form of a single parsed log line.
type Record struct {
	Timestamp   time.Time
	Level       string
	Source      string
	Message     string
	ExtraFields map[string]any
}

// LogEntry is a Record persisted against its origin upload.
type LogEntry struct {
	ID          int64
	UploadID    int64
	UserID      string
	Timestamp   string
	Level       string
	Source      string
	Message     string
	ExtraFields map[string]any
}

// Time parses the stored timestamp back into an instant.
func (e LogEntry) Time() (time.Time, error) {
	return time.ParseInLocation(TimestampLayout, e.Timestamp, time.UTC)
}
