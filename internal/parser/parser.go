// Package parser turns raw log lines into canonical records.
//
// A Registry holds an ordered list of Variants. The first Variant whose
// Detect accepts a line owns it: its Parse result is final, and a Parse
// failure makes the line unparsed rather than handing it to a later Variant.
package parser

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/splax/logscribe/internal/domain"
)

var (
	// ErrNoMatch is returned when no Variant recognizes a line.
	ErrNoMatch = errors.New("parser: no format matched")
	// ErrMalformed is returned when a recognized line cannot be decoded.
	ErrMalformed = errors.New("parser: malformed line")
	// ErrTimestamp is returned when a recognized line has an uncoercible timestamp.
	ErrTimestamp = errors.New("parser: invalid timestamp")
)

// Variant recognizes and extracts one log format.
type Variant interface {
	ID() string
	Detect(line string) bool
	Parse(line string) (domain.Record, error)
}

const (
	defaultLevel  = "INFO"
	defaultSource = "unknown"
)

// normalize applies the coercions every Variant shares.
func normalize(ts time.Time, level, source, message string, extra map[string]any) domain.Record {
	level = strings.ToUpper(strings.TrimSpace(level))
	if level == "" {
		level = defaultLevel
	}
	if extra == nil {
		extra = map[string]any{}
	}
	return domain.Record{
		Timestamp:   ts.UTC(),
		Level:       level,
		Source:      source,
		Message:     norm.NFC.String(message),
		ExtraFields: extra,
	}
}
