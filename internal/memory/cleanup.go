package memory

import (
	"context"

	"go.uber.org/zap"
)

// CleanupResult reports how many records a cleanup run removed.
type CleanupResult struct {
	Rules      int64
	Learnings  int64
	Heuristics int64
}

// Total returns the total number of deleted records.
func (r CleanupResult) Total() int64 {
	return r.Rules + r.Learnings + r.Heuristics
}

// maybeCleanup triggers an expiration pass if the cleanup interval has
// elapsed since the last run. Cleanup piggybacks on retrieval; there is
// no background goroutine to manage.
func (e *Engine) maybeCleanup(ctx context.Context) {
	e.mu.Lock()
	due := e.clock().Sub(e.lastCleanup) >= e.opts.CleanupInterval
	if due {
		e.lastCleanup = e.clock()
	}
	e.mu.Unlock()

	if !due {
		return
	}

	if _, err := e.RunCleanup(ctx); err != nil {
		e.logger.Warn("scheduled cleanup failed", zap.Error(err))
	}
}

// RunCleanup expires stale records in every store.
//
// Rules are deleted only when both old and rarely hit; learnings and
// heuristics expire on age alone. A failing store is skipped so one bad
// scope never blocks expiry in the other.
func (e *Engine) RunCleanup(ctx context.Context) (CleanupResult, error) {
	var result CleanupResult

	for _, ss := range e.stores {
		n, err := ss.Store.DeleteExpiredRules(ctx, e.opts.RuleMaxAge, e.opts.RuleMinHits)
		if err != nil {
			e.degrade(ctx, ss.Scope, "expiring rules", err)
		}
		result.Rules += n

		n, err = ss.Store.DeleteExpiredLearnings(ctx, e.opts.LearningMaxAge)
		if err != nil {
			e.degrade(ctx, ss.Scope, "expiring learnings", err)
		}
		result.Learnings += n

		n, err = ss.Store.DeleteExpiredHeuristics(ctx, e.opts.HeuristicMaxAge)
		if err != nil {
			e.degrade(ctx, ss.Scope, "expiring heuristics", err)
		}
		result.Heuristics += n
	}

	e.metrics.RecordCleanup(ctx, "rules", result.Rules)
	e.metrics.RecordCleanup(ctx, "learnings", result.Learnings)
	e.metrics.RecordCleanup(ctx, "heuristics", result.Heuristics)

	if result.Total() > 0 {
		e.logger.Info("cleanup removed expired records",
			zap.Int64("rules", result.Rules),
			zap.Int64("learnings", result.Learnings),
			zap.Int64("heuristics", result.Heuristics))
	}

	return result, nil
}
