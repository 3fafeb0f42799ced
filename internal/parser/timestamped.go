package parser

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/splax/logscribe/internal/domain"
)

// IDTimestamped identifies "YYYY-MM-DD HH:MM:SS,mmm - LEVEL - message" lines.
const IDTimestamped = "pythonlog"

const (
	timestampedSource = "Python"
	timestampedLayout = "2006-01-02 15:04:05,000"
)

var timestampedPattern = regexp.MustCompile(`^(\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2},\d{3}) - ([A-Z]+) - (.*)$`)

// TimestampedVariant handles the default Python logging layout.
type TimestampedVariant struct{}

func (TimestampedVariant) ID() string { return IDTimestamped }

func (TimestampedVariant) Detect(line string) bool {
	return timestampedPattern.MatchString(line)
}

func (TimestampedVariant) Parse(line string) (domain.Record, error) {
	m := timestampedPattern.FindStringSubmatch(line)
	if m == nil {
		return domain.Record{}, ErrNoMatch
	}
	ts, err := time.ParseInLocation(timestampedLayout, m[1], time.UTC)
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", ErrTimestamp, err)
	}
	return normalize(ts, m[2], timestampedSource, strings.TrimSpace(m[3]), nil), nil
}
