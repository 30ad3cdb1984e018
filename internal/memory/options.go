package memory

import "time"

// Default retrieval and lifecycle tuning values.
const (
	DefaultMaxRules            = 10
	DefaultMaxLearnings        = 10
	DefaultSimilarityThreshold = 0.30
	DefaultKeywordLimit        = 10
	DefaultKeywordScore        = 0.90
	DefaultHybridBoost         = 0.15
	DefaultScopeBias           = 0.05
	DefaultFeedbackDelta       = 0.10

	DefaultConsolidationLookback  = 7 * 24 * time.Hour
	DefaultConsolidationThreshold = 0.80
	DefaultConsolidationMinCount  = 3

	DefaultRuleMaxAge      = 90 * 24 * time.Hour
	DefaultRuleMinHits     = 3
	DefaultLearningMaxAge  = 30 * 24 * time.Hour
	DefaultHeuristicMaxAge = 90 * 24 * time.Hour
	DefaultCleanupInterval = 24 * time.Hour
)

// Options tunes retrieval, feedback, consolidation, and cleanup.
// Zero values fall back to the package defaults.
type Options struct {
	// MaxRules caps the rules returned per retrieval.
	MaxRules int

	// MaxLearnings caps the learnings returned per retrieval.
	MaxLearnings int

	// SimilarityThreshold is the minimum cosine similarity for a
	// semantic match.
	SimilarityThreshold float64

	// KeywordLimit caps keyword matches per store.
	KeywordLimit int

	// KeywordScore is the fixed confidence assigned to keyword matches.
	KeywordScore float64

	// HybridBoost is added to the semantic score when a learning also
	// matches by keyword, capped at 1.0.
	HybridBoost float64

	// ScopeBias is the sort-key margin favoring project-scoped learnings.
	// It never changes the reported score.
	ScopeBias float64

	// FeedbackDelta is the additive utility adjustment per outcome.
	FeedbackDelta float64

	// ConsolidationLookback bounds how far back consolidation gathers
	// learnings.
	ConsolidationLookback time.Duration

	// RuleMaxAge and RuleMinHits drive rule expiration: rules older than
	// RuleMaxAge with fewer than RuleMinHits hits are deleted.
	RuleMaxAge  time.Duration
	RuleMinHits int

	// LearningMaxAge drives learning expiration, regardless of utility.
	LearningMaxAge time.Duration

	// HeuristicMaxAge drives heuristic expiration.
	HeuristicMaxAge time.Duration

	// CleanupInterval throttles lazy cleanup to at most one run per
	// interval per process.
	CleanupInterval time.Duration
}

// DefaultOptions returns the default tuning.
func DefaultOptions() Options {
	return Options{
		MaxRules:              DefaultMaxRules,
		MaxLearnings:          DefaultMaxLearnings,
		SimilarityThreshold:   DefaultSimilarityThreshold,
		KeywordLimit:          DefaultKeywordLimit,
		KeywordScore:          DefaultKeywordScore,
		HybridBoost:           DefaultHybridBoost,
		ScopeBias:             DefaultScopeBias,
		FeedbackDelta:         DefaultFeedbackDelta,
		ConsolidationLookback: DefaultConsolidationLookback,
		RuleMaxAge:            DefaultRuleMaxAge,
		RuleMinHits:           DefaultRuleMinHits,
		LearningMaxAge:        DefaultLearningMaxAge,
		HeuristicMaxAge:       DefaultHeuristicMaxAge,
		CleanupInterval:       DefaultCleanupInterval,
	}
}

// withDefaults fills zero-valued fields from DefaultOptions.
func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxRules <= 0 {
		o.MaxRules = d.MaxRules
	}
	if o.MaxLearnings <= 0 {
		o.MaxLearnings = d.MaxLearnings
	}
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = d.SimilarityThreshold
	}
	if o.KeywordLimit <= 0 {
		o.KeywordLimit = d.KeywordLimit
	}
	if o.KeywordScore <= 0 {
		o.KeywordScore = d.KeywordScore
	}
	if o.HybridBoost <= 0 {
		o.HybridBoost = d.HybridBoost
	}
	if o.ScopeBias <= 0 {
		o.ScopeBias = d.ScopeBias
	}
	if o.FeedbackDelta <= 0 {
		o.FeedbackDelta = d.FeedbackDelta
	}
	if o.ConsolidationLookback <= 0 {
		o.ConsolidationLookback = d.ConsolidationLookback
	}
	if o.RuleMaxAge <= 0 {
		o.RuleMaxAge = d.RuleMaxAge
	}
	if o.RuleMinHits <= 0 {
		o.RuleMinHits = d.RuleMinHits
	}
	if o.LearningMaxAge <= 0 {
		o.LearningMaxAge = d.LearningMaxAge
	}
	if o.HeuristicMaxAge <= 0 {
		o.HeuristicMaxAge = d.HeuristicMaxAge
	}
	if o.CleanupInterval <= 0 {
		o.CleanupInterval = d.CleanupInterval
	}
	return o
}
