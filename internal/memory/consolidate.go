package memory

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
)

// Cluster is a group of recent learnings whose embeddings are mutually
// similar enough to represent one recurring pattern.
type Cluster struct {
	Members []Learning
}

// Summarizer condenses a cluster into rule content. The default picks
// the content of the highest-utility member; callers wanting an
// LLM-backed summary plug their own in via WithSummarizer.
type Summarizer func(Cluster) string

func defaultSummarizer(c Cluster) string {
	if len(c.Members) == 0 {
		return ""
	}
	best := c.Members[0]
	for _, m := range c.Members[1:] {
		if m.UtilityScore > best.UtilityScore {
			best = m
		}
	}
	return best.Content
}

// FindEmergentPatterns clusters learnings recorded within the lookback
// window and returns the clusters with at least minCount members.
//
// Clustering is single-link against the cluster seed: each unassigned
// learning joins the first cluster whose seed it is at least threshold
// similar to, otherwise it seeds a new cluster. Candidates are ordered
// deterministically so repeated runs over the same data cluster the
// same way.
func (e *Engine) FindEmergentPatterns(ctx context.Context, threshold float64, minCount int) ([]Cluster, error) {
	since := e.clock().Add(-e.opts.ConsolidationLookback)

	var candidates []Learning
	for _, ss := range e.stores {
		learnings, err := ss.Store.ListLearningsSince(ctx, since)
		if err != nil {
			e.degrade(ctx, ss.Scope, "listing recent learnings", err)
			continue
		}
		candidates = append(candidates, learnings...)
	}

	var clusters []Cluster
	for _, l := range candidates {
		placed := false
		for i := range clusters {
			seed := clusters[i].Members[0]
			if embedding.Cosine(l.Embedding, seed.Embedding) >= threshold {
				clusters[i].Members = append(clusters[i].Members, l)
				placed = true
				break
			}
		}
		if !placed {
			clusters = append(clusters, Cluster{Members: []Learning{l}})
		}
	}

	var emergent []Cluster
	for _, c := range clusters {
		if len(c.Members) >= minCount {
			emergent = append(emergent, c)
		}
	}

	e.logger.Debug("emergent pattern scan complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("clusters", len(clusters)),
		zap.Int("emergent", len(emergent)))

	return emergent, nil
}

// PromoteToRule summarizes a cluster and persists the result as a rule
// in the given scope.
func (e *Engine) PromoteToRule(ctx context.Context, cluster Cluster, scope Scope) (*Rule, error) {
	if len(cluster.Members) == 0 {
		return nil, fmt.Errorf("cannot promote an empty cluster")
	}

	content := e.summarize(cluster)
	if content == "" {
		return nil, ErrEmptyContent
	}

	rule, err := e.AddRule(ctx, content, scope)
	if err != nil {
		return nil, fmt.Errorf("promoting cluster: %w", err)
	}

	e.metrics.RecordPromotion(ctx)
	e.logger.Info("cluster promoted to rule",
		zap.String("rule_id", rule.ID),
		zap.Int("members", len(cluster.Members)),
		zap.String("scope", string(scope)))

	return rule, nil
}

// RunConsolidation finds emergent patterns and promotes each to a rule,
// returning the number of rules created.
//
// A cluster whose members are all project-scoped is promoted into the
// project store when one is active; anything else lands in global.
func (e *Engine) RunConsolidation(ctx context.Context, threshold float64, minCount int) (int, error) {
	if threshold <= 0 {
		threshold = DefaultConsolidationThreshold
	}
	if minCount <= 0 {
		minCount = DefaultConsolidationMinCount
	}

	clusters, err := e.FindEmergentPatterns(ctx, threshold, minCount)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, c := range clusters {
		if _, err := e.PromoteToRule(ctx, c, e.promotionScope(c)); err != nil {
			e.logger.Warn("cluster promotion failed", zap.Error(err))
			continue
		}
		promoted++
	}

	return promoted, nil
}

func (e *Engine) promotionScope(c Cluster) Scope {
	for _, m := range c.Members {
		if m.Scope != ScopeProject {
			return ScopeGlobal
		}
	}
	if e.hasScope(ScopeProject) {
		return ScopeProject
	}
	return ScopeGlobal
}
