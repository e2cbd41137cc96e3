// Package observe holds storymix's telemetry: OpenTelemetry metrics and
// traces, trace-aware slog loggers, and the HTTP middleware joining them.
//
// Instruments are created against any [metric.MeterProvider]. In the server
// [InitProvider] installs a Prometheus-bridged global provider and
// [DefaultMetrics] binds to it; tests pass their own provider to [NewMetrics].
package observe

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope of every storymix instrument.
const meterName = "github.com/MrWong99/storymix"

// Metrics are the storymix instruments. Attribute keys are listed per field.
type Metrics struct {
	// Stage latencies in seconds. Analysis and speech carry "provider";
	// effects carry "kind".
	AnalysisDuration metric.Float64Histogram
	SpeechDuration   metric.Float64Histogram
	EffectDuration   metric.Float64Histogram
	MixDuration      metric.Float64Histogram

	// ProviderRequests: provider, kind ("analysis"|"tts"), status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors: provider, kind.
	ProviderErrors metric.Int64Counter
	// CacheLookups: kind ("speech"|"effect"), result ("hit"|"miss").
	CacheLookups metric.Int64Counter
	// GenerationRuns: status.
	GenerationRuns metric.Int64Counter
	// BreakerTransitions: breaker, state.
	BreakerTransitions metric.Int64Counter

	// QueuedTasks: pool. Tasks waiting for a scheduler slot.
	QueuedTasks    metric.Int64UpDownCounter
	ActiveSessions metric.Int64UpDownCounter

	// HTTPRequestDuration: method, route, status class.
	HTTPRequestDuration metric.Float64Histogram
}

// stageBuckets suit whole-line synthesis and offline mixing, which take
// seconds rather than milliseconds.
var stageBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

// instruments creates instruments on one meter and remembers the first
// failures so construction reads as a flat list.
type instruments struct {
	m    metric.Meter
	errs []error
}

func (b *instruments) seconds(name, desc string, buckets ...float64) metric.Float64Histogram {
	opts := []metric.Float64HistogramOption{metric.WithDescription(desc), metric.WithUnit("s")}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}
	h, err := b.m.Float64Histogram(name, opts...)
	b.errs = append(b.errs, err)
	return h
}

func (b *instruments) counter(name, desc string) metric.Int64Counter {
	c, err := b.m.Int64Counter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return c
}

func (b *instruments) gauge(name, desc string) metric.Int64UpDownCounter {
	g, err := b.m.Int64UpDownCounter(name, metric.WithDescription(desc))
	b.errs = append(b.errs, err)
	return g
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	b := &instruments{m: mp.Meter(meterName)}
	m := &Metrics{
		AnalysisDuration: b.seconds("storymix.analysis.duration", "Text analysis latency.", stageBuckets...),
		SpeechDuration:   b.seconds("storymix.speech.duration", "Latency of one speech synthesis request.", stageBuckets...),
		EffectDuration:   b.seconds("storymix.effect.duration", "Latency of one procedural effect render.", stageBuckets...),
		MixDuration:      b.seconds("storymix.mix.duration", "Timeline, compositing and bed synthesis latency.", stageBuckets...),

		ProviderRequests:   b.counter("storymix.provider.requests", "External service calls."),
		ProviderErrors:     b.counter("storymix.provider.errors", "Failed external service calls."),
		CacheLookups:       b.counter("storymix.cache.lookups", "Content cache submissions."),
		GenerationRuns:     b.counter("storymix.generation.runs", "Generate requests."),
		BreakerTransitions: b.counter("storymix.breaker.transitions", "Circuit breaker state changes."),

		QueuedTasks:    b.gauge("storymix.scheduler.queued", "Generation tasks waiting for a scheduler slot."),
		ActiveSessions: b.gauge("storymix.sessions.active", "Open studio sessions."),

		HTTPRequestDuration: b.seconds("storymix.http.request.duration", "HTTP request latency."),
	}
	if err := errors.Join(b.errs...); err != nil {
		return nil, err
	}
	return m, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the instruments bound to the global meter provider,
// created on first use. Call it after [InitProvider].
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		m, err := NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: default metrics: " + err.Error())
		}
		defaultMetrics = m
	})
	return defaultMetrics
}

// Attr is attribute.String.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Status is the "status" attribute value for err.
func Status(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// RecordProviderRequest counts one external call, counts its failure, and
// records took into h unless h is nil.
func (m *Metrics) RecordProviderRequest(ctx context.Context, h metric.Float64Histogram, provider, kind string, took time.Duration, err error) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		Attr("provider", provider), Attr("kind", kind), Attr("status", Status(err)),
	))
	if err != nil {
		m.RecordProviderError(ctx, provider, kind)
	}
	if h != nil {
		h.Record(ctx, took.Seconds(), metric.WithAttributes(Attr("provider", provider)))
	}
}

// RecordProviderError counts one failed external call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(Attr("provider", provider), Attr("kind", kind)))
}

// RecordCacheLookup counts one content cache submission.
func (m *Metrics) RecordCacheLookup(ctx context.Context, kind string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.Add(ctx, 1, metric.WithAttributes(Attr("kind", kind), Attr("result", result)))
}

// RecordGeneration counts one generate request.
func (m *Metrics) RecordGeneration(ctx context.Context, err error) {
	m.GenerationRuns.Add(ctx, 1, metric.WithAttributes(Attr("status", Status(err))))
}

// RecordBreakerTransition counts one circuit breaker state change.
func (m *Metrics) RecordBreakerTransition(ctx context.Context, breaker, state string) {
	m.BreakerTransitions.Add(ctx, 1, metric.WithAttributes(Attr("breaker", breaker), Attr("state", state)))
}
