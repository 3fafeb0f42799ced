package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/splax/logscribe/internal/domain"
)

// IDAccessLog identifies combined access-log lines.
const IDAccessLog = "apachelog"

const (
	accessLogSource = "Apache"
	accessLogLayout = "02/Jan/2006:15:04:05 -0700"
)

// Anchored at the start only; trailing content after the user agent is ignored.
var accessLogPattern = regexp.MustCompile(`^(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}) - - \[(.*?)\] "(.*?)" (\d{3}) (\d+) "(.*?)" "(.*?)"`)

// AccessLogVariant handles the combined log format written by Apache and nginx.
type AccessLogVariant struct{}

func (AccessLogVariant) ID() string { return IDAccessLog }

func (AccessLogVariant) Detect(line string) bool {
	return accessLogPattern.MatchString(line)
}

func (AccessLogVariant) Parse(line string) (domain.Record, error) {
	m := accessLogPattern.FindStringSubmatch(line)
	if m == nil {
		return domain.Record{}, ErrNoMatch
	}
	ts, err := time.Parse(accessLogLayout, m[2])
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", ErrTimestamp, err)
	}
	status, err := strconv.Atoi(m[4])
	if err != nil {
		return domain.Record{}, fmt.Errorf("%w: status %q", ErrMalformed, m[4])
	}
	level := "INFO"
	if status >= 400 {
		level = "ERROR"
	}
	extra := map[string]any{
		"ip":         m[1],
		"status":     m[4],
		"size":       m[5],
		"referer":    m[6],
		"user_agent": m[7],
	}
	return normalize(ts, level, accessLogSource, m[3], extra), nil
}
