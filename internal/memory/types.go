package memory

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Common errors for memory operations.
var (
	ErrNotFound         = errors.New("record not found")
	ErrEmptyContent     = errors.New("content cannot be empty")
	ErrEmptyPattern     = errors.New("pattern cannot be empty")
	ErrInvalidCategory  = errors.New("category must be 'success' or 'failure'")
	ErrInvalidScope     = errors.New("scope must be 'global' or 'project'")
	ErrScopeUnavailable = errors.New("no store for scope")
)

// Scope identifies the logical partition a record belongs to.
//
// Records in the project scope belong to one codebase; records in the
// global scope apply across all of a user's work. Scope determines store
// placement and ranking bias, and is immutable for the life of a record.
type Scope string

const (
	// ScopeGlobal is the user-wide partition.
	ScopeGlobal Scope = "global"

	// ScopeProject is the per-codebase partition.
	ScopeProject Scope = "project"
)

// Valid reports whether the scope is one of the known partitions.
func (s Scope) Valid() bool {
	return s == ScopeGlobal || s == ScopeProject
}

// Rank returns the sort rank of the scope. Project scope ranks before
// global so project knowledge shadows user-wide knowledge.
func (s Scope) Rank() int {
	if s == ScopeProject {
		return 0
	}
	return 1
}

// Category classifies a learning by the outcome it records.
type Category string

const (
	// CategorySuccess marks a strategy that worked.
	CategorySuccess Category = "success"

	// CategoryFailure marks an approach to avoid.
	CategoryFailure Category = "failure"
)

// Rule is a standing principle that is always eligible for surfacing.
//
// Rules are created explicitly or promoted from clusters of similar
// learnings by consolidation. HitCount is incremented each time the rule
// is surfaced and used; cleanup removes rules whose hit count stayed
// below a minimum past the expiration window.
type Rule struct {
	// ID is the unique rule identifier (UUID).
	ID string `json:"id"`

	// Content is the rule text injected into the assistant's context.
	Content string `json:"content"`

	// Embedding is the content vector, fixed dimension per deployment.
	Embedding []float32 `json:"embedding,omitempty"`

	// CreatedAt is when the rule was created.
	CreatedAt time.Time `json:"created_at"`

	// HitCount tracks how many times this rule has been surfaced and used.
	HitCount int `json:"hit_count"`

	// Scope is the partition the rule lives in.
	Scope Scope `json:"scope"`
}

// NewRule creates a rule with a generated UUID.
func NewRule(content string, embedding []float32, scope Scope) (*Rule, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}

	return &Rule{
		ID:        uuid.New().String(),
		Content:   content,
		Embedding: embedding,
		CreatedAt: time.Now(),
		Scope:     scope,
	}, nil
}

// Learning is a recorded past outcome used for similarity retrieval.
//
// ContextHash is a stable fingerprint of the raw outcome payload; a second
// record with the same hash in the same store is a no-op. UtilityScore
// starts at 1.0 and is mutated additively by the feedback loop only.
type Learning struct {
	// ID is the unique learning identifier (UUID).
	ID string `json:"id"`

	// Content is the learning text.
	Content string `json:"content"`

	// Category indicates whether the recorded outcome succeeded or failed.
	Category Category `json:"category"`

	// Embedding is the content vector, fixed dimension per deployment.
	Embedding []float32 `json:"embedding,omitempty"`

	// CreatedAt is when the learning was recorded.
	CreatedAt time.Time `json:"created_at"`

	// ContextHash deduplicates learnings recorded from the same payload.
	ContextHash string `json:"context_hash"`

	// UtilityScore is the feedback-adjusted weight, default 1.0.
	UtilityScore float64 `json:"utility_score"`

	// Scope is the partition the learning lives in.
	Scope Scope `json:"scope"`
}

// NewLearning creates a learning with a generated UUID and default utility.
func NewLearning(content string, category Category, embedding []float32, contextHash string, scope Scope) (*Learning, error) {
	if content == "" {
		return nil, ErrEmptyContent
	}
	if category != CategorySuccess && category != CategoryFailure {
		return nil, ErrInvalidCategory
	}
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}

	return &Learning{
		ID:           uuid.New().String(),
		Content:      content,
		Category:     category,
		Embedding:    embedding,
		CreatedAt:    time.Now(),
		ContextHash:  contextHash,
		UtilityScore: 1.0,
		Scope:        scope,
	}, nil
}

// Heuristic is a pattern-triggered static suggestion.
//
// The pattern is a regular expression matched case-insensitively against
// the prompt. Heuristics are immutable after creation except for deletion
// by cleanup.
type Heuristic struct {
	// ID is the unique heuristic identifier (UUID).
	ID string `json:"id"`

	// Pattern is the text matching expression.
	Pattern string `json:"pattern"`

	// Suggestion is surfaced when the pattern matches the prompt.
	Suggestion string `json:"suggestion"`

	// CreatedAt is when the heuristic was created.
	CreatedAt time.Time `json:"created_at"`

	// Scope is the partition the heuristic lives in.
	Scope Scope `json:"scope"`
}

// NewHeuristic creates a heuristic with a generated UUID.
func NewHeuristic(pattern, suggestion string, scope Scope) (*Heuristic, error) {
	if pattern == "" {
		return nil, ErrEmptyPattern
	}
	if suggestion == "" {
		return nil, ErrEmptyContent
	}
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}

	return &Heuristic{
		ID:         uuid.New().String(),
		Pattern:    pattern,
		Suggestion: suggestion,
		CreatedAt:  time.Now(),
		Scope:      scope,
	}, nil
}

// MatchType tags how a learning entered the hybrid result set.
type MatchType string

const (
	// MatchSemantic means the learning matched by vector similarity only.
	MatchSemantic MatchType = "semantic"

	// MatchKeyword means the learning matched by keyword search only.
	MatchKeyword MatchType = "keyword"

	// MatchHybrid means the learning matched both ways.
	MatchHybrid MatchType = "hybrid"
)

// ScoredLearning is a learning with its retrieval score and match tag.
//
// Score is the raw confidence reported to the caller; ranking applies a
// scope bias to a separate sort key so the displayed score is never
// silently inflated.
type ScoredLearning struct {
	Learning  Learning  `json:"learning"`
	Score     float64   `json:"score"`
	MatchType MatchType `json:"match_type"`
}

// Context is the transient output of one retrieval call.
type Context struct {
	Rules      []Rule           `json:"rules"`
	Learnings  []ScoredLearning `json:"learnings"`
	Heuristics []Heuristic      `json:"heuristics"`
}

// Empty reports whether the context carries nothing worth injecting.
func (c *Context) Empty() bool {
	return len(c.Rules) == 0 && len(c.Learnings) == 0 && len(c.Heuristics) == 0
}

// KeywordMatch is one keyword-search result from a store.
type KeywordMatch struct {
	// ID is the matched learning's identifier.
	ID string `json:"id"`

	// Snippet is an excerpt of the matched text.
	Snippet string `json:"snippet"`
}

// StoreHandle is the durable CRUD and keyword-search accessor for one
// scope's data. Implementations must be safe for concurrent readers; a
// row deleted mid-scan simply does not appear.
type StoreHandle interface {
	// InsertRule persists a new rule.
	InsertRule(ctx context.Context, r *Rule) error

	// InsertLearning persists a new learning. Inserting a learning whose
	// context hash already exists in the store is a no-op.
	InsertLearning(ctx context.Context, l *Learning) error

	// InsertHeuristic persists a new heuristic.
	InsertHeuristic(ctx context.Context, h *Heuristic) error

	// ListRules returns all rules ordered by hit count descending.
	ListRules(ctx context.Context) ([]Rule, error)

	// ListLearnings returns all learnings.
	ListLearnings(ctx context.Context) ([]Learning, error)

	// ListLearningsSince returns learnings created at or after the cutoff.
	ListLearningsSince(ctx context.Context, cutoff time.Time) ([]Learning, error)

	// ListHeuristics returns all heuristics.
	ListHeuristics(ctx context.Context) ([]Heuristic, error)

	// GetLearning returns one learning by ID, or ErrNotFound.
	GetLearning(ctx context.Context, id string) (*Learning, error)

	// UpdateRuleHitCount adds delta to a rule's hit count.
	// Returns ErrNotFound if the store does not hold the rule.
	UpdateRuleHitCount(ctx context.Context, id string, delta int) error

	// UpdateLearningUtility adds delta to a learning's utility score.
	// Returns ErrNotFound if the store does not hold the learning.
	UpdateLearningUtility(ctx context.Context, id string, delta float64) error

	// KeywordSearch matches the sanitized query against the indexed
	// learning text and returns up to limit matches.
	KeywordSearch(ctx context.Context, query string, limit int) ([]KeywordMatch, error)

	// DeleteExpiredRules removes rules older than maxAge whose hit count
	// is below minHits. Returns the number of rows deleted.
	DeleteExpiredRules(ctx context.Context, maxAge time.Duration, minHits int) (int64, error)

	// DeleteExpiredLearnings removes learnings older than maxAge,
	// regardless of utility. Returns the number of rows deleted.
	DeleteExpiredLearnings(ctx context.Context, maxAge time.Duration) (int64, error)

	// DeleteExpiredHeuristics removes heuristics older than maxAge.
	// Returns the number of rows deleted.
	DeleteExpiredHeuristics(ctx context.Context, maxAge time.Duration) (int64, error)

	// Close releases the underlying storage resources.
	Close() error
}

// ScopedStore pairs a store handle with the scope it serves.
type ScopedStore struct {
	Scope Scope
	Store StoreHandle
}
