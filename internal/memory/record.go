package memory

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// ContextHash computes the stable fingerprint of a raw outcome payload
// used to deduplicate learnings.
func ContextHash(payload []byte) string {
	return strconv.FormatUint(xxhash.Sum64(payload), 16)
}

// RecordLearning screens, embeds, and persists an observed outcome.
//
// The privacy filter runs strictly before the embedding cache is
// consulted, so private text is never vectorized or stored; a suppressed
// write is a silent no-op. A second record whose payload produces the
// same context hash is also a no-op. An embedding provider failure skips
// the write rather than erroring (fail-open).
func (e *Engine) RecordLearning(ctx context.Context, content string, category Category, payload []byte, scope Scope) error {
	if content == "" {
		return ErrEmptyContent
	}
	if category != CategorySuccess && category != CategoryFailure {
		return ErrInvalidCategory
	}
	if !scope.Valid() {
		return ErrInvalidScope
	}
	if len(payload) == 0 {
		payload = []byte(content)
	}

	if e.filter.Blocked(content) || e.filter.Blocked(string(payload)) {
		e.metrics.RecordSuppression(ctx)
		e.logger.Info("learning suppressed by privacy filter", zap.String("scope", string(scope)))
		return nil
	}

	store, err := e.storeFor(scope)
	if err != nil {
		return err
	}

	vec, err := e.cache.Get(ctx, content)
	if err != nil {
		e.logger.Error("embedding failed, skipping learning write", zap.Error(err))
		return nil
	}

	learning, err := NewLearning(content, category, vec, ContextHash(payload), scope)
	if err != nil {
		return err
	}

	if err := store.InsertLearning(ctx, learning); err != nil {
		return fmt.Errorf("recording learning: %w", err)
	}

	e.logger.Debug("learning recorded",
		zap.String("id", learning.ID),
		zap.String("category", string(category)),
		zap.String("scope", string(scope)))

	return nil
}

// AddRule embeds and persists a new rule in the target scope.
func (e *Engine) AddRule(ctx context.Context, content string, scope Scope) (*Rule, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}

	store, err := e.storeFor(scope)
	if err != nil {
		return nil, err
	}

	vec, err := e.cache.Get(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embedding rule: %w", err)
	}

	rule, err := NewRule(content, vec, scope)
	if err != nil {
		return nil, err
	}

	if err := store.InsertRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("adding rule: %w", err)
	}

	e.logger.Info("rule added",
		zap.String("id", rule.ID),
		zap.String("scope", string(scope)))

	return rule, nil
}

// AddHeuristic validates the pattern and persists a new heuristic in the
// target scope. Invalid patterns are rejected at creation rather than
// quarantined at query time.
func (e *Engine) AddHeuristic(ctx context.Context, pattern, suggestion string, scope Scope) (*Heuristic, error) {
	if _, err := regexp.Compile("(?i)" + pattern); err != nil {
		return nil, fmt.Errorf("invalid heuristic pattern: %w", err)
	}

	heuristic, err := NewHeuristic(pattern, suggestion, scope)
	if err != nil {
		return nil, err
	}

	store, err := e.storeFor(scope)
	if err != nil {
		return nil, err
	}

	if err := store.InsertHeuristic(ctx, heuristic); err != nil {
		return nil, fmt.Errorf("adding heuristic: %w", err)
	}

	e.logger.Info("heuristic added",
		zap.String("id", heuristic.ID),
		zap.String("scope", string(scope)))

	return heuristic, nil
}
