package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const (
	metricFetchTotal     = "kino.draws.fetch.total"
	metricFetchDuration  = "kino.draws.fetch.duration"
	metricCacheLookups   = "kino.cache.lookups.total"
	metricPagesResolved  = "kino.pages.resolved.total"
	metricEvaluations    = "kino.payout.evaluations.total"
	metricMigrationsRuns = "kino.db.migrations.total"
)

// Metrics groups the KINO instruments. A nil *Metrics records nothing.
type Metrics struct {
	fetchTotal    metric.Int64Counter
	fetchDuration metric.Float64Histogram
	cacheLookups  metric.Int64Counter
	pagesResolved metric.Int64Counter
	evaluations   metric.Int64Counter
	migrations    metric.Int64Counter
}

// NewMetrics creates the instruments on the meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := new(Metrics)
	var err error
	if m.fetchTotal, err = meter.Int64Counter(metricFetchTotal,
		metric.WithDescription("Remote draw page fetches by result"),
		metric.WithUnit("{request}")); err != nil {
		return nil, err
	}
	if m.fetchDuration, err = meter.Float64Histogram(metricFetchDuration,
		metric.WithDescription("Remote draw page fetch latency including retries"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if m.cacheLookups, err = meter.Int64Counter(metricCacheLookups,
		metric.WithDescription("Draw cache lookups by outcome"),
		metric.WithUnit("{lookup}")); err != nil {
		return nil, err
	}
	if m.pagesResolved, err = meter.Int64Counter(metricPagesResolved,
		metric.WithDescription("Draw pages resolved by source"),
		metric.WithUnit("{page}")); err != nil {
		return nil, err
	}
	if m.evaluations, err = meter.Int64Counter(metricEvaluations,
		metric.WithDescription("Per-draw payout evaluations"),
		metric.WithUnit("{draw}")); err != nil {
		return nil, err
	}
	if m.migrations, err = meter.Int64Counter(metricMigrationsRuns,
		metric.WithDescription("Cache schema migrations executed via golang-migrate"),
		metric.WithUnit("{migration}")); err != nil {
		return nil, err
	}
	return m, nil
}

// RecordFetch counts a remote fetch and its latency.
func (m *Metrics) RecordFetch(ctx context.Context, result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(FetchAttributes(Environment(), result)...)
	m.fetchTotal.Add(ctx, 1, attrs)
	m.fetchDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond), attrs)
}

// RecordCacheLookup counts a cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, backend string, hit bool) {
	if m == nil {
		return
	}
	outcome := CacheMiss
	if hit {
		outcome = CacheHit
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(CacheAttributes(Environment(), backend, outcome)...))
}

// RecordPageResolved counts a page served from the cache or the remote service.
func (m *Metrics) RecordPageResolved(ctx context.Context, source string) {
	if m == nil {
		return
	}
	m.pagesResolved.Add(ctx, 1, metric.WithAttributes(
		AttrEnvironment.String(Environment()), AttrSource.String(source)))
}

// RecordEvaluations counts evaluated draws.
func (m *Metrics) RecordEvaluations(ctx context.Context, variant string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.evaluations.Add(ctx, int64(n), metric.WithAttributes(PayoutAttributes(Environment(), variant)...))
}

// RecordMigration counts a migration run by result (applied, noop, failed).
func (m *Metrics) RecordMigration(ctx context.Context, result string) {
	if m == nil {
		return
	}
	m.migrations.Add(ctx, 1, metric.WithAttributes(
		AttrEnvironment.String(Environment()), AttrResult.String(result)))
}
