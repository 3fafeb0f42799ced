package analytics

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/splax/logscribe/internal/domain"
	"github.com/splax/logscribe/internal/repository"
)

const (
	timeSeriesName = "Log Count"
	topErrorsName  = "Top Errors"
	errorLevel     = "ERROR"
)

// TimeSeriesRequest carries unvalidated time-series parameters.
type TimeSeriesRequest struct {
	Start    time.Time
	End      time.Time
	Interval string
	UploadID *int64
}

// Service computes aggregate views over persisted entries.
type Service struct {
	entries repository.EntryRepository
	logger  *slog.Logger
}

// New constructs a Service.
func New(entries repository.EntryRepository, logger *slog.Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return Service{entries: entries, logger: logger.With("component", "analytics")}
}

// TimeSeries counts entries per calendar bucket between Start and End inclusive.
func (s Service) TimeSeries(ctx context.Context, req TimeSeriesRequest) (domain.Series, error) {
	interval, ok := domain.ParseInterval(req.Interval)
	if !ok {
		return domain.Series{}, &ValidationError{Arg: "interval", Value: req.Interval, Err: ErrInvalidInterval}
	}
	if req.Start.IsZero() || req.End.IsZero() {
		return domain.Series{}, &ValidationError{Arg: "time range", Value: "", Err: ErrInvalidRange}
	}
	if req.Start.After(req.End) {
		value := req.Start.UTC().Format(time.RFC3339) + ".." + req.End.UTC().Format(time.RFC3339)
		return domain.Series{}, &ValidationError{Arg: "time range", Value: value, Err: ErrInvalidRange}
	}
	points, err := s.entries.CountByInterval(ctx, domain.TimeSeriesQuery{
		Start:    req.Start,
		End:      req.End,
		Interval: interval,
		UploadID: req.UploadID,
	})
	if err != nil {
		s.logger.Error("time series query failed", "interval", interval, "error", err)
		return domain.Series{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return series(timeSeriesName, points), nil
}

// Distribution counts entries per value of a categorical field (level or source).
// The series is named after the field as requested, alias included.
func (s Service) Distribution(ctx context.Context, rawField string, uploadID *int64) (domain.Series, error) {
	field, ok := domain.ParseField(rawField)
	if !ok {
		return domain.Series{}, &ValidationError{Arg: "field", Value: rawField, Err: ErrInvalidField}
	}
	points, err := s.entries.CountByField(ctx, field, uploadID)
	if err != nil {
		s.logger.Error("distribution query failed", "field", field, "error", err)
		return domain.Series{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return series(strings.ToLower(strings.TrimSpace(rawField)), points), nil
}

// TopErrors ranks the n most frequent ERROR messages.
func (s Service) TopErrors(ctx context.Context, n int, uploadID *int64) (domain.Series, error) {
	if n <= 0 {
		return domain.Series{}, &ValidationError{Arg: "n", Value: strconv.Itoa(n), Err: ErrInvalidLimit}
	}
	points, err := s.entries.TopMessages(ctx, errorLevel, n, uploadID)
	if err != nil {
		s.logger.Error("top errors query failed", "n", n, "error", err)
		return domain.Series{}, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return series(topErrorsName, points), nil
}

func series(name string, points []domain.Point) domain.Series {
	if points == nil {
		points = []domain.Point{}
	}
	return domain.Series{Name: name, Data: points}
}
