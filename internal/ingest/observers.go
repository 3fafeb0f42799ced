package ingest

import (
	"encoding/json"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Broadcaster fans a payload out to subscribers of key.
type Broadcaster interface {
	Broadcast(key string, payload []byte)
}

// BroadcastObserver publishes outcomes to the uploading user's stream.
type BroadcastObserver struct {
	broadcaster Broadcaster
	logger      *slog.Logger
}

// NewBroadcastObserver constructs a BroadcastObserver.
func NewBroadcastObserver(b Broadcaster, logger *slog.Logger) BroadcastObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return BroadcastObserver{broadcaster: b, logger: logger}
}

func (o BroadcastObserver) Observe(outcome Outcome) {
	if o.broadcaster == nil || outcome.UserID == "" {
		return
	}
	payload, err := json.Marshal(MarshalOutcome(outcome))
	if err != nil {
		o.logger.Error("marshal ingest outcome", "upload_id", outcome.UploadID, "error", err)
		return
	}
	o.broadcaster.Broadcast(outcome.UserID, payload)
}

// MarshalOutcome renders an outcome as a status-stream event.
func MarshalOutcome(outcome Outcome) map[string]any {
	event := map[string]any{
		"type":          "upload_status",
		"upload_id":     outcome.UploadID,
		"status":        string(outcome.Status),
		"format":        outcome.Counts.Format,
		"parsed_lines":  outcome.Counts.Parsed,
		"skipped_lines": outcome.Counts.Skipped,
	}
	if outcome.Err != nil {
		event["error"] = outcome.Err.Error()
	}
	return event
}

var durationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// Metrics records ingestion outcomes as Prometheus series.
type Metrics struct {
	uploads  *prometheus.CounterVec
	lines    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers ingestion collectors with reg, reusing any already registered.
// A nil reg selects the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logscribe",
			Subsystem: "ingest",
			Name:      "uploads_total",
			Help:      "Uploads that reached a terminal status",
		}, []string{"status", "format"}),
		lines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "logscribe",
			Subsystem: "ingest",
			Name:      "lines_total",
			Help:      "Non-blank lines seen during ingestion",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "logscribe",
			Subsystem: "ingest",
			Name:      "duration_seconds",
			Help:      "Time spent ingesting one upload",
			Buckets:   durationBuckets,
		}, []string{"status"}),
	}
	m.uploads = registerCounter(reg, m.uploads)
	m.lines = registerCounter(reg, m.lines)
	if err := reg.Register(m.duration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
				m.duration = existing
			}
		}
	}
	return m
}

func registerCounter(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
	}
	return c
}

func (m *Metrics) Observe(outcome Outcome) {
	format := outcome.Counts.Format
	if format == "" {
		format = "unknown"
	}
	status := string(outcome.Status)
	m.uploads.WithLabelValues(status, format).Inc()
	m.lines.WithLabelValues("parsed").Add(float64(outcome.Counts.Parsed))
	m.lines.WithLabelValues("skipped").Add(float64(outcome.Counts.Skipped))
	m.duration.WithLabelValues(status).Observe(outcome.Duration.Seconds())
}
