package memory

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const instrumentationName = "github.com/fyrsmithlabs/recalld/internal/memory"

// Metrics tracks retrieval and lifecycle behavior.
type Metrics struct {
	retrievals        metric.Int64Counter
	retrievalDuration metric.Float64Histogram
	failOpens         metric.Int64Counter
	storeFailures     metric.Int64Counter
	suppressions      metric.Int64Counter
	consolidations    metric.Int64Counter
	cleanupDeleted    metric.Int64Counter
}

// NewMetrics creates memory engine metrics using the global meter
// provider. Instrument creation failures are logged and the affected
// instrument stays nil; recording is a no-op in that case.
func NewMetrics(logger *zap.Logger) *Metrics {
	if logger == nil {
		logger = zap.NewNop()
	}
	meter := otel.Meter(instrumentationName)
	m := &Metrics{}
	var err error

	m.retrievals, err = meter.Int64Counter("memory.retrievals",
		metric.WithDescription("Total context retrievals"),
		metric.WithUnit("{retrieval}"))
	if err != nil {
		logger.Warn("failed to create retrievals counter", zap.Error(err))
	}

	m.retrievalDuration, err = meter.Float64Histogram("memory.retrieval.duration",
		metric.WithDescription("Context retrieval latency"),
		metric.WithUnit("s"))
	if err != nil {
		logger.Warn("failed to create retrieval duration histogram", zap.Error(err))
	}

	m.failOpens, err = meter.Int64Counter("memory.retrieval.fail_open",
		metric.WithDescription("Retrievals that returned an empty context after a provider failure"),
		metric.WithUnit("{retrieval}"))
	if err != nil {
		logger.Warn("failed to create fail-open counter", zap.Error(err))
	}

	m.storeFailures, err = meter.Int64Counter("memory.store.failures",
		metric.WithDescription("Store queries that degraded to an empty contribution"),
		metric.WithUnit("{failure}"))
	if err != nil {
		logger.Warn("failed to create store failure counter", zap.Error(err))
	}

	m.suppressions, err = meter.Int64Counter("memory.privacy.suppressions",
		metric.WithDescription("Writes suppressed by the privacy filter"),
		metric.WithUnit("{write}"))
	if err != nil {
		logger.Warn("failed to create suppression counter", zap.Error(err))
	}

	m.consolidations, err = meter.Int64Counter("memory.consolidation.promotions",
		metric.WithDescription("Clusters promoted to rules"),
		metric.WithUnit("{rule}"))
	if err != nil {
		logger.Warn("failed to create consolidation counter", zap.Error(err))
	}

	m.cleanupDeleted, err = meter.Int64Counter("memory.cleanup.deleted",
		metric.WithDescription("Records removed by cleanup"),
		metric.WithUnit("{record}"))
	if err != nil {
		logger.Warn("failed to create cleanup counter", zap.Error(err))
	}

	return m
}

// RecordRetrieval records a completed retrieval and its latency.
func (m *Metrics) RecordRetrieval(ctx context.Context, d time.Duration, failOpen bool) {
	if m.retrievals != nil {
		m.retrievals.Add(ctx, 1)
	}
	if m.retrievalDuration != nil {
		m.retrievalDuration.Record(ctx, d.Seconds())
	}
	if failOpen && m.failOpens != nil {
		m.failOpens.Add(ctx, 1)
	}
}

// RecordStoreFailure records a degraded store query for a scope.
func (m *Metrics) RecordStoreFailure(ctx context.Context, scope string) {
	if m.storeFailures != nil {
		m.storeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("scope", scope)))
	}
}

// RecordSuppression records a privacy-suppressed write.
func (m *Metrics) RecordSuppression(ctx context.Context) {
	if m.suppressions != nil {
		m.suppressions.Add(ctx, 1)
	}
}

// RecordPromotion records a cluster promoted to a rule.
func (m *Metrics) RecordPromotion(ctx context.Context) {
	if m.consolidations != nil {
		m.consolidations.Add(ctx, 1)
	}
}

// RecordCleanup records the number of records a cleanup run removed.
func (m *Metrics) RecordCleanup(ctx context.Context, kind string, deleted int64) {
	if m.cleanupDeleted != nil && deleted > 0 {
		m.cleanupDeleted.Add(ctx, deleted, metric.WithAttributes(attribute.String("kind", kind)))
	}
}
