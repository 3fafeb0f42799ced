// Package search answers filtered, paginated queries over persisted log entries.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
)

const (
	DefaultPage    = 1
	DefaultPerPage = 20
)

// ErrQuery wraps store failures so callers can tell them apart from an empty page.
var ErrQuery = errors.New("search: query failed")

// Result is one page of matching entries plus the unpaginated match count.
type Result struct {
	Logs    []domain.LogEntry
	Total   int
	Page    int
	PerPage int
}

// Service runs searches against an entry store.
type Service struct {
	entries repository.EntryRepository
	logger  *slog.Logger
}

// New constructs a Service.
func New(entries repository.EntryRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{entries: entries, logger: logger.With("component", "search")}
}

// Search returns page `page` (1-based) of entries matching filter, newest first.
// Pages below 1 and non-positive sizes fall back to the defaults.
func (s Service) Search(ctx context.Context, filter domain.SearchFilter, page, perPage int) (Result, error) {
	if page < 1 {
		page = DefaultPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	filter.Level = strings.ToUpper(strings.TrimSpace(filter.Level))

	logs, total, err := s.entries.SearchEntries(ctx, filter, perPage, (page-1)*perPage)
	if err != nil {
		s.logger.Error("search query failed", "page", page, "per_page", perPage, "error", err)
		return Result{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	if logs == nil {
		logs = []domain.LogEntry{}
	}
	return Result{Logs: logs, Total: total, Page: page, PerPage: perPage}, nil
}

// Select applies filter to entries in memory and returns the requested window,
// ordered by timestamp then ID, both descending, along with the total match count.
func Select(entries []domain.LogEntry, filter domain.SearchFilter, limit, offset int) ([]domain.LogEntry, int) {
	matches := make([]domain.LogEntry, 0)
	for _, e := range entries {
		if filter.Matches(e) {
			matches = append(matches, e)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Timestamp != matches[j].Timestamp {
			return matches[i].Timestamp > matches[j].Timestamp
		}
		return matches[i].ID > matches[j].ID
	})
	total := len(matches)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []domain.LogEntry{}, total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return matches[offset:end], total
}
