// Package config provides configuration loading for recalld.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables, with hardcoded defaults filling the gaps.
package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/recalld/internal/memory"
)

// Config holds the complete recalld configuration.
type Config struct {
	Logging       LoggingConfig       `koanf:"logging"`
	Storage       StorageConfig       `koanf:"storage"`
	Embedding     EmbeddingConfig     `koanf:"embedding"`
	Cache         CacheConfig         `koanf:"cache"`
	Retrieval     RetrievalConfig     `koanf:"retrieval"`
	Consolidation ConsolidationConfig `koanf:"consolidation"`
	Cleanup       CleanupConfig       `koanf:"cleanup"`
	Privacy       PrivacyConfig       `koanf:"privacy"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// StorageConfig locates the scoped databases.
type StorageConfig struct {
	// GlobalPath is the global memory database file. Defaults to
	// ~/.local/share/recalld/memory.db.
	GlobalPath string `koanf:"global_path"`

	// ProjectMarker is the directory name whose presence marks a project
	// root. The project database lives inside it.
	ProjectMarker string `koanf:"project_marker"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	// Provider is "local" or "tei".
	Provider   string        `koanf:"provider"`
	Dimensions int           `koanf:"dimensions"`
	BaseURL    string        `koanf:"base_url"`
	Model      string        `koanf:"model"`
	Timeout    time.Duration `koanf:"timeout"`
}

// CacheConfig bounds the embedding cache.
type CacheConfig struct {
	Capacity int           `koanf:"capacity"`
	TTL      time.Duration `koanf:"ttl"`
}

// RetrievalConfig tunes hybrid retrieval and feedback.
type RetrievalConfig struct {
	MaxRules            int     `koanf:"max_rules"`
	MaxLearnings        int     `koanf:"max_learnings"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	KeywordLimit        int     `koanf:"keyword_limit"`
	KeywordScore        float64 `koanf:"keyword_score"`
	HybridBoost         float64 `koanf:"hybrid_boost"`
	ScopeBias           float64 `koanf:"scope_bias"`
	FeedbackDelta       float64 `koanf:"feedback_delta"`
}

// ConsolidationConfig tunes pattern clustering and promotion.
type ConsolidationConfig struct {
	Lookback  time.Duration `koanf:"lookback"`
	Threshold float64       `koanf:"threshold"`
	MinCount  int           `koanf:"min_count"`
}

// CleanupConfig tunes record expiration.
type CleanupConfig struct {
	Interval        time.Duration `koanf:"interval"`
	RuleMaxAge      time.Duration `koanf:"rule_max_age"`
	RuleMinHits     int           `koanf:"rule_min_hits"`
	LearningMaxAge  time.Duration `koanf:"learning_max_age"`
	HeuristicMaxAge time.Duration `koanf:"heuristic_max_age"`
}

// PrivacyConfig controls the write-path privacy filter.
type PrivacyConfig struct {
	// Disabled turns marker screening off. Screening is on by default.
	Disabled bool `koanf:"disabled"`

	// Markers override the default suppression markers.
	Markers []string `koanf:"markers"`
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q (expected debug, info, warn, or error)", c.Logging.Level)
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("invalid logging.format %q (expected json or console)", c.Logging.Format)
	}

	switch c.Embedding.Provider {
	case "local", "tei":
	default:
		return fmt.Errorf("invalid embedding.provider %q (expected local or tei)", c.Embedding.Provider)
	}

	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Embedding.Provider == "tei" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required for the tei provider")
	}

	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0, 1], got %v", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.KeywordScore < 0 || c.Retrieval.KeywordScore > 1 {
		return fmt.Errorf("retrieval.keyword_score must be in [0, 1], got %v", c.Retrieval.KeywordScore)
	}
	if c.Consolidation.Threshold < 0 || c.Consolidation.Threshold > 1 {
		return fmt.Errorf("consolidation.threshold must be in [0, 1], got %v", c.Consolidation.Threshold)
	}

	return nil
}

// RetrievalOptions converts the configuration into engine options.
func (c *Config) RetrievalOptions() memory.Options {
	return memory.Options{
		MaxRules:              c.Retrieval.MaxRules,
		MaxLearnings:          c.Retrieval.MaxLearnings,
		SimilarityThreshold:   c.Retrieval.SimilarityThreshold,
		KeywordLimit:          c.Retrieval.KeywordLimit,
		KeywordScore:          c.Retrieval.KeywordScore,
		HybridBoost:           c.Retrieval.HybridBoost,
		ScopeBias:             c.Retrieval.ScopeBias,
		FeedbackDelta:         c.Retrieval.FeedbackDelta,
		ConsolidationLookback: c.Consolidation.Lookback,
		RuleMaxAge:            c.Cleanup.RuleMaxAge,
		RuleMinHits:           c.Cleanup.RuleMinHits,
		LearningMaxAge:        c.Cleanup.LearningMaxAge,
		HeuristicMaxAge:       c.Cleanup.HeuristicMaxAge,
		CleanupInterval:       c.Cleanup.Interval,
	}
}
