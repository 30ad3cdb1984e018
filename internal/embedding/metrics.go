package embedding

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/embedding"

// Metrics holds embedding cache and generation metrics.
type Metrics struct {
	meter     metric.Meter
	logger    *zap.Logger
	hits      metric.Int64Counter
	misses    metric.Int64Counter
	evictions metric.Int64Counter
	duration  metric.Float64Histogram
	errors    metric.Int64Counter
}

// NewMetrics creates a Metrics instance for the embedding cache.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Metrics{
		meter:  otel.Meter(instrumentationName),
		logger: logger,
	}
	m.init()
	return m
}

func (m *Metrics) init() {
	var err error

	m.hits, err = m.meter.Int64Counter(
		"recalld.embedding.cache_hits_total",
		metric.WithDescription("Embedding cache hits."),
		metric.WithUnit("{hit}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache hits counter", zap.Error(err))
	}

	m.misses, err = m.meter.Int64Counter(
		"recalld.embedding.cache_misses_total",
		metric.WithDescription("Embedding cache misses, each costing one provider call."),
		metric.WithUnit("{miss}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache misses counter", zap.Error(err))
	}

	m.evictions, err = m.meter.Int64Counter(
		"recalld.embedding.cache_evictions_total",
		metric.WithDescription("Entries evicted in insertion order when the cache exceeds capacity."),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		m.logger.Warn("failed to create cache evictions counter", zap.Error(err))
	}

	m.duration, err = m.meter.Float64Histogram(
		"recalld.embedding.generation_duration_seconds",
		metric.WithDescription("Duration of provider embedding generation in seconds."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		m.logger.Warn("failed to create duration histogram", zap.Error(err))
	}

	m.errors, err = m.meter.Int64Counter(
		"recalld.embedding.errors_total",
		metric.WithDescription("Total embedding generation errors."),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		m.logger.Warn("failed to create errors counter", zap.Error(err))
	}
}

// RecordHit records a cache hit.
func (m *Metrics) RecordHit(ctx context.Context) {
	if m.hits != nil {
		m.hits.Add(ctx, 1)
	}
}

// RecordMiss records a cache miss.
func (m *Metrics) RecordMiss(ctx context.Context) {
	if m.misses != nil {
		m.misses.Add(ctx, 1)
	}
}

// RecordEviction records a capacity eviction.
func (m *Metrics) RecordEviction(ctx context.Context) {
	if m.evictions != nil {
		m.evictions.Add(ctx, 1)
	}
}

// RecordGeneration records one provider call.
func (m *Metrics) RecordGeneration(ctx context.Context, duration time.Duration, err error) {
	if m.duration != nil {
		m.duration.Record(ctx, duration.Seconds())
	}
	if err != nil && m.errors != nil {
		m.errors.Add(ctx, 1)
	}
}
