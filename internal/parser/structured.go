package parser

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/splax/logscribe/internal/domain"
)

// IDStructured identifies one-JSON-object-per-line logs.
const IDStructured = "jsonlog"

var structuredReserved = map[string]struct{}{
	"timestamp": {},
	"level":     {},
	"source":    {},
	"message":   {},
}

// ISO-8601 shapes accepted for the "timestamp" key. Zone-less values are read as UTC.
var isoLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// StructuredVariant handles JSON object lines with timestamp, level, source and message keys.
type StructuredVariant struct{}

func (StructuredVariant) ID() string { return IDStructured }

func (StructuredVariant) Detect(line string) bool {
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}")
}

func (StructuredVariant) Parse(line string) (domain.Record, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()
	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return domain.Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return domain.Record{}, fmt.Errorf("%w: trailing data", ErrMalformed)
	}
	if payload == nil {
		return domain.Record{}, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	raw, ok := payload["timestamp"].(string)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: missing timestamp", ErrTimestamp)
	}
	ts, err := parseISO(raw)
	if err != nil {
		return domain.Record{}, err
	}

	extra := make(map[string]any, len(payload))
	for key, value := range payload {
		if _, reserved := structuredReserved[key]; reserved {
			continue
		}
		extra[key] = value
	}
	return normalize(ts,
		stringField(payload, "level", defaultLevel),
		stringField(payload, "source", defaultSource),
		stringField(payload, "message", ""),
		extra,
	), nil
}

func parseISO(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range isoLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrTimestamp, raw)
}

// stringField renders payload[key] as text; absent or null keys yield fallback.
func stringField(payload map[string]any, key, fallback string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return fallback
	}
	switch v := value.(type) {
	case string:
		return v
	case json.Number, bool:
		return fmt.Sprint(v)
	default:
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(v); err != nil {
			return fmt.Sprint(v)
		}
		return strings.TrimSpace(buf.String())
	}
}
