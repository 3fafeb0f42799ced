package httpx

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Accepted query timestamp layouts; values without a zone are read as UTC.
var queryTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

type paramError struct {
	name  string
	value string
}

func (e *paramError) Error() string {
	return fmt.Sprintf("invalid %s: %q", e.name, e.value)
}

func parseQueryTime(raw string) (time.Time, bool) {
	for _, layout := range queryTimeLayouts {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// timeParam returns nil when name is absent.
func timeParam(q url.Values, name string) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	t, ok := parseQueryTime(raw)
	if !ok {
		return nil, &paramError{name: name, value: raw}
	}
	return &t, nil
}

func requiredTimeParam(q url.Values, name string) (time.Time, error) {
	t, err := timeParam(q, name)
	if err != nil {
		return time.Time{}, err
	}
	if t == nil {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	return *t, nil
}

func intParam(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &paramError{name: name, value: raw}
	}
	return v, nil
}

// uploadIDParam returns nil when upload_id is absent or empty.
func uploadIDParam(q url.Values) (*int64, error) {
	raw := strings.TrimSpace(q.Get("upload_id"))
	if raw == "" {
		return nil, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, &paramError{name: "upload_id", value: raw}
	}
	return &id, nil
}
