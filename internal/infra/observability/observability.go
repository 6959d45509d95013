// Package observability holds the economy's Prometheus collectors and a
// lightweight in-memory span tracer for composite operations.
//
// Spans cover the units of work that touch several tables at once
// (transfer, distribution, reversal) so slow or failing steps can be
// inspected through the API without an external tracing backend.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Trace Spans
// ═══════════════════════════════════════════════════════════════════════════

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

func (s SpanStatus) String() string {
	if s == SpanError {
		return "error"
	}
	return "ok"
}

// MarshalText encodes the status by name.
func (s SpanStatus) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Span is one timed step of a composite operation.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// ─── Tracer ─────────────────────────────────────────────────────────────────

// Tracer keeps the most recent spans in a ring buffer.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool

	now func() time.Time
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int // ring buffer size (default 1_000)
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{
		Enabled:  true,
		MaxSpans: 1_000,
	}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxSpans <= 0 {
		cfg.MaxSpans = DefaultTracerConfig().MaxSpans
	}
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
		now:      time.Now,
	}
}

// StartSpan begins a span and returns a context carrying it, so nested
// spans are linked to their parent. A nil tracer is valid and records nothing.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) (context.Context, *Span) {
	if t == nil || !t.enabled {
		return ctx, &Span{Operation: operation}
	}

	span := &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    uuid.NewString(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		StartTime: t.now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
	ctx = context.WithValue(ctx, traceIDKey, span.TraceID)
	ctx = context.WithValue(ctx, spanIDKey, span.SpanID)
	return ctx, span
}

// EndSpan completes a span and records it.
func (t *Tracer) EndSpan(span *Span, err error) {
	if t == nil || !t.enabled || span == nil {
		return
	}

	span.EndTime = t.now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
		TraceErrors.Inc()
	}
	TracesRecorded.Inc()
	OperationDuration.WithLabelValues(span.Operation).Observe(span.Duration.Seconds())

	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)
}

// Spans returns a copy of the most recent spans, oldest first.
func (t *Tracer) Spans(limit int) []Span {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "ayni-trace-id"
	spanIDKey  contextKey = "ayni-span-id"
)

// WithTraceID returns a context with the given trace ID, e.g. a request ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok && v != "" {
		return v
	}
	return uuid.NewString()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

const namespace = "ayni"

// ─── Scoring Metrics ────────────────────────────────────────────────────────

// EventsRecorded counts appended reciprocity events by type.
var EventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "events",
	Name:      "recorded_total",
	Help:      "Reciprocity events appended to the log, by event type.",
}, []string{"type"})

// ScoreComputations counts score derivations.
var ScoreComputations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "score",
	Name:      "computations_total",
	Help:      "Reciprocity scores computed from the event log.",
})

// ScoreValues tracks the distribution of computed scores.
var ScoreValues = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "score",
	Name:      "value",
	Help:      "Computed reciprocity scores.",
	Buckets:   []float64{20, 40, 60, 80, 95, 100},
})

// ThresholdRewards counts first-time tier crossings.
var ThresholdRewards = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "score",
	Name:      "threshold_rewards_total",
	Help:      "Tier thresholds reached for the first time, by tier.",
}, []string{"tier"})

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// Transfers counts transfer attempts by outcome.
var Transfers = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "transfers_total",
	Help:      "Transfer attempts by result (ok, replayed, insufficient, invalid, not_found, error).",
}, []string{"result"})

// UnitsTransferred counts Ünits moved between actors by transfers.
var UnitsTransferred = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "units_transferred_total",
	Help:      "Ünits debited from senders by confirmed transfers.",
})

// UnitsIssued counts Ünits minted by the system account, by source.
var UnitsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "units_issued_total",
	Help:      "Ünits issued by the system account, by source (transfer_bonus, grant, distribution).",
}, []string{"source"})

// Reversals counts compensating transactions.
var Reversals = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "reversals_total",
	Help:      "Compensating transactions written.",
})

// ─── Distribution Metrics ───────────────────────────────────────────────────

// Distributions counts distributions by final status.
var Distributions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "distribution",
	Name:      "total",
	Help:      "Distributions by final status (completed, failed, rejected, replayed).",
}, []string{"status"})

// DistributionParticipants tracks how many participants a distribution has.
var DistributionParticipants = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "distribution",
	Name:      "participants",
	Help:      "Participants per completed distribution.",
	Buckets:   []float64{1, 2, 3, 5, 10, 20, 50},
})

// InvariantViolations counts distribution post-condition failures. Should stay 0.
var InvariantViolations = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "distribution",
	Name:      "invariant_violations_total",
	Help:      "Distributions rejected because finals did not sum to the total.",
})

// ─── Trace & Live Feed Metrics ──────────────────────────────────────────────

// OperationDuration tracks composite operation latency.
var OperationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ops",
	Name:      "duration_seconds",
	Help:      "Latency of composite economy operations.",
	Buckets:   prometheus.DefBuckets,
}, []string{"operation"})

// TracesRecorded counts completed spans.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tracing",
	Name:      "spans_recorded_total",
	Help:      "Spans recorded by the in-memory tracer.",
})

// TraceErrors counts spans that ended with an error.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "tracing",
	Name:      "span_errors_total",
	Help:      "Spans that ended with an error.",
})

// FeedSubscribers tracks live feed connections.
var FeedSubscribers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "feed",
	Name:      "subscribers",
	Help:      "Connected live feed subscribers.",
})

// FeedDropped counts activity messages dropped for slow subscribers.
var FeedDropped = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "feed",
	Name:      "dropped_total",
	Help:      "Live feed messages dropped because a subscriber was slow.",
})
