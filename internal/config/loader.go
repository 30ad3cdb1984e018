package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/memory"
	"github.com/fyrsmithlabs/recalld/internal/scope"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	envPrefix = "RECALLD_"
)

// LoadWithFile loads configuration from a YAML file, then overrides with
// environment variables.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (RECALLD_LOGGING_LEVEL, RECALLD_CACHE_TTL, ...)
//  2. YAML config file (~/.config/recalld/config.yaml)
//  3. Hardcoded defaults
//
// The configPath parameter specifies the YAML file to load. If empty, the
// default path is used. A missing file is not an error; defaults apply.
//
// The config file must live under ~/.config/recalld/ or /etc/recalld/,
// must not be world-readable, and must not exceed 1MB.
//
// Environment variables map to config keys by stripping the prefix,
// lowercasing, and splitting on the first underscore:
//
//	RECALLD_LOGGING_LEVEL        -> logging.level
//	RECALLD_EMBEDDING_BASE_URL   -> embedding.base_url
//	RECALLD_CLEANUP_RULE_MAX_AGE -> cleanup.rule_max_age
func LoadWithFile(configPath string) (*Config, error) {
	k := koanf.New(".")

	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configPath = filepath.Join(home, ".config", "recalld", "config.yaml")
	}

	if err := validateConfigPath(configPath); err != nil {
		return nil, fmt.Errorf("config path validation failed: %w", err)
	}

	if _, err := os.Stat(configPath); err == nil {
		// Open once and validate through the descriptor to avoid a
		// check-then-open race.
		f, err := os.Open(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open config file: %w", err)
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
		if err := validateConfigFileProperties(info); err != nil {
			return nil, fmt.Errorf("config file validation failed: %w", err)
		}

		content, err := io.ReadAll(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		// RECALLD_LOGGING_LEVEL -> logging.level: the first underscore
		// separates section from field; later underscores stay in the
		// field name.
		lower := strings.ToLower(strings.TrimPrefix(s, envPrefix))
		parts := strings.SplitN(lower, "_", 2)
		if len(parts) == 1 {
			return lower
		}
		return parts[0] + "." + parts[1]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// EnsureConfigDir creates the recalld config directory if it doesn't
// exist, with owner-only permissions.
func EnsureConfigDir() error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(home, ".config", "recalld")
	if err := os.MkdirAll(configDir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", configDir, err)
	}

	return nil
}

// validateConfigPath checks that the path is in an allowed directory.
// This validation runs even if the file doesn't exist yet.
func validateConfigPath(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}

	// Resolve symlinks so a link cannot escape the allowed directories.
	resolvedPath, err := filepath.EvalSymlinks(absPath)
	if err != nil {
		// Paths that don't exist yet still validate by prefix.
		resolvedPath = absPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	allowedDirs := []string{
		filepath.Join(home, ".config", "recalld"),
		"/etc/recalld",
	}

	for _, dir := range allowedDirs {
		if strings.HasPrefix(resolvedPath, dir) {
			return nil
		}
	}

	return fmt.Errorf("config file must be in ~/.config/recalld/ or /etc/recalld/")
}

// validateConfigFileProperties checks file permissions and size using
// FileInfo from an already-opened descriptor.
func validateConfigFileProperties(info os.FileInfo) error {
	if runtime.GOOS != "windows" {
		perm := info.Mode().Perm()
		if perm != 0600 && perm != 0400 {
			return fmt.Errorf("insecure config file permissions: %v (expected 0600 or 0400)", perm)
		}
	}

	if info.Size() > maxConfigFileSize {
		return fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Storage.GlobalPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.Storage.GlobalPath = filepath.Join(home, ".local", "share", "recalld", "memory.db")
		}
	}
	if cfg.Storage.ProjectMarker == "" {
		cfg.Storage.ProjectMarker = scope.DefaultMarker
	}

	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "local"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = embedding.DefaultDimensions
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 10 * time.Second
	}

	if cfg.Cache.Capacity == 0 {
		cfg.Cache.Capacity = embedding.DefaultCacheCapacity
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = embedding.DefaultCacheTTL
	}

	if cfg.Retrieval.MaxRules == 0 {
		cfg.Retrieval.MaxRules = memory.DefaultMaxRules
	}
	if cfg.Retrieval.MaxLearnings == 0 {
		cfg.Retrieval.MaxLearnings = memory.DefaultMaxLearnings
	}
	if cfg.Retrieval.SimilarityThreshold == 0 {
		cfg.Retrieval.SimilarityThreshold = memory.DefaultSimilarityThreshold
	}
	if cfg.Retrieval.KeywordLimit == 0 {
		cfg.Retrieval.KeywordLimit = memory.DefaultKeywordLimit
	}
	if cfg.Retrieval.KeywordScore == 0 {
		cfg.Retrieval.KeywordScore = memory.DefaultKeywordScore
	}
	if cfg.Retrieval.HybridBoost == 0 {
		cfg.Retrieval.HybridBoost = memory.DefaultHybridBoost
	}
	if cfg.Retrieval.ScopeBias == 0 {
		cfg.Retrieval.ScopeBias = memory.DefaultScopeBias
	}
	if cfg.Retrieval.FeedbackDelta == 0 {
		cfg.Retrieval.FeedbackDelta = memory.DefaultFeedbackDelta
	}

	if cfg.Consolidation.Lookback == 0 {
		cfg.Consolidation.Lookback = memory.DefaultConsolidationLookback
	}
	if cfg.Consolidation.Threshold == 0 {
		cfg.Consolidation.Threshold = memory.DefaultConsolidationThreshold
	}
	if cfg.Consolidation.MinCount == 0 {
		cfg.Consolidation.MinCount = memory.DefaultConsolidationMinCount
	}

	if cfg.Cleanup.Interval == 0 {
		cfg.Cleanup.Interval = memory.DefaultCleanupInterval
	}
	if cfg.Cleanup.RuleMaxAge == 0 {
		cfg.Cleanup.RuleMaxAge = memory.DefaultRuleMaxAge
	}
	if cfg.Cleanup.RuleMinHits == 0 {
		cfg.Cleanup.RuleMinHits = memory.DefaultRuleMinHits
	}
	if cfg.Cleanup.LearningMaxAge == 0 {
		cfg.Cleanup.LearningMaxAge = memory.DefaultLearningMaxAge
	}
	if cfg.Cleanup.HeuristicMaxAge == 0 {
		cfg.Cleanup.HeuristicMaxAge = memory.DefaultHeuristicMaxAge
	}
}
