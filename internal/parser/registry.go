package parser

import (
	"strings"

	"github.com/splax/logscribe/internal/domain"
)

// Registry dispatches lines to the first Variant that recognizes them.
type Registry struct {
	variants []Variant
}

// NewRegistry builds a registry that consults variants in the given order.
func NewRegistry(variants ...Variant) *Registry {
	return &Registry{variants: append([]Variant(nil), variants...)}
}

// Default returns the built-in registry: timestamped-level, access-log, structured.
func Default() *Registry {
	return NewRegistry(TimestampedVariant{}, AccessLogVariant{}, StructuredVariant{})
}

// Variants returns the registry's variants in dispatch order.
func (r *Registry) Variants() []Variant {
	return append([]Variant(nil), r.variants...)
}

// Match returns the first Variant whose Detect accepts line.
func (r *Registry) Match(line string) (Variant, bool) {
	for _, v := range r.variants {
		if v.Detect(line) {
			return v, true
		}
	}
	return nil, false
}

// ParseLine parses line with the first accepting Variant. It returns
// ErrNoMatch when nothing accepts, or the owning Variant's error otherwise.
func (r *Registry) ParseLine(line string) (domain.Record, error) {
	v, ok := r.Match(line)
	if !ok {
		return domain.Record{}, ErrNoMatch
	}
	return v.Parse(line)
}

// Parse is ParseLine collapsed to the best-effort contract: any failure is a non-match.
func (r *Registry) Parse(line string) (domain.Record, bool) {
	rec, err := r.ParseLine(line)
	if err != nil {
		return domain.Record{}, false
	}
	return rec, true
}

// DetectFormat reports the first Variant accepting any non-empty sample line.
// Lines are scanned in order, and variants in registry order for each line.
func (r *Registry) DetectFormat(lines []string) (string, bool) {
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		if v, ok := r.Match(line); ok {
			return v.ID(), true
		}
	}
	return "", false
}
