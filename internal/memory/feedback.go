package memory

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// MarkSurfaced records which learning ids were surfaced for the current
// interaction. The set is a one-shot token consumed by the next
// ApplyFeedback call; marking again replaces any unconsumed set.
func (e *Engine) MarkSurfaced(ids []string) {
	e.mu.Lock()
	e.surfaced = append([]string(nil), ids...)
	e.mu.Unlock()
}

// RecordRuleHits increments the hit count of each surfaced-and-used
// rule, in whichever store holds it.
func (e *Engine) RecordRuleHits(ctx context.Context, ruleIDs []string) {
	for _, id := range ruleIDs {
		hit := false
		for _, ss := range e.stores {
			err := ss.Store.UpdateRuleHitCount(ctx, id, 1)
			if err == nil {
				hit = true
				break
			}
			if errors.Is(err, ErrNotFound) {
				continue
			}
			e.degrade(ctx, ss.Scope, "updating rule hit count", err)
		}
		if !hit {
			e.logger.Debug("surfaced rule no longer present", zap.String("id", id))
		}
	}
}

// ApplyFeedback applies the utility delta for the observed outcome to
// every learning surfaced in the current interaction.
//
// The surfaced-id set is consumed and cleared before the deltas are
// applied, so a given surfacing is never double-credited or
// double-penalized. Each id is resolved against whichever store actually
// holds it.
func (e *Engine) ApplyFeedback(ctx context.Context, success bool) error {
	e.mu.Lock()
	ids := e.surfaced
	e.surfaced = nil
	e.mu.Unlock()

	if len(ids) == 0 {
		return nil
	}

	delta := e.opts.FeedbackDelta
	if !success {
		delta = -delta
	}

	for _, id := range ids {
		applied := false
		for _, ss := range e.stores {
			err := ss.Store.UpdateLearningUtility(ctx, id, delta)
			if err == nil {
				applied = true
				break
			}
			if errors.Is(err, ErrNotFound) {
				continue
			}
			e.degrade(ctx, ss.Scope, "updating learning utility", err)
		}
		if !applied {
			e.logger.Debug("surfaced learning no longer present", zap.String("id", id))
		}
	}

	e.logger.Debug("feedback applied",
		zap.Bool("success", success),
		zap.Float64("delta", delta),
		zap.Int("learnings", len(ids)))

	return nil
}
