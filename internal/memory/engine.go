package memory

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/privacy"
)

// Engine is the central retrieval, feedback, and consolidation component.
//
// It holds the active scoped stores, the embedding cache, and the privacy
// filter explicitly; nothing is process-global, so isolated tests can
// construct an engine over in-memory fakes.
//
// Retrieval fans out independent store queries concurrently and performs
// an explicit deterministic merge, so the result never depends on
// completion order. A failing store degrades to an empty contribution;
// an embedding provider failure fails open to an empty Context.
type Engine struct {
	stores    []ScopedStore
	cache     *embedding.Cache
	filter    privacy.Filter
	opts      Options
	logger    *zap.Logger
	metrics   *Metrics
	summarize Summarizer

	mu          sync.Mutex
	surfaced    []string
	patterns    map[string]*regexp.Regexp
	disabled    map[string]struct{}
	lastCleanup time.Time

	// clock is swappable in tests.
	clock func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithSummarizer overrides the rule-content summarizer used when a
// cluster is promoted to a rule.
func WithSummarizer(s Summarizer) Option {
	return func(e *Engine) {
		if s != nil {
			e.summarize = s
		}
	}
}

// NewEngine creates an engine over the given scoped stores.
//
// Stores are ordered project scope first so project records shadow and
// outrank global ones wherever ordering matters. A nil filter disables
// privacy screening; a nil logger logs nothing.
func NewEngine(stores []ScopedStore, cache *embedding.Cache, filter privacy.Filter, opts Options, logger *zap.Logger, engineOpts ...Option) (*Engine, error) {
	if len(stores) == 0 {
		return nil, fmt.Errorf("at least one store is required")
	}
	for _, ss := range stores {
		if !ss.Scope.Valid() {
			return nil, ErrInvalidScope
		}
		if ss.Store == nil {
			return nil, fmt.Errorf("store for scope %s cannot be nil", ss.Scope)
		}
	}
	if cache == nil {
		return nil, fmt.Errorf("embedding cache cannot be nil")
	}
	if filter == nil {
		filter = privacy.NoopFilter{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	ordered := append([]ScopedStore(nil), stores...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Scope.Rank() < ordered[j].Scope.Rank()
	})

	e := &Engine{
		stores:      ordered,
		cache:       cache,
		filter:      filter,
		opts:        opts.withDefaults(),
		logger:      logger.Named("memory"),
		metrics:     NewMetrics(logger),
		summarize:   defaultSummarizer,
		patterns:    make(map[string]*regexp.Regexp),
		disabled:    make(map[string]struct{}),
		clock:       time.Now,
		lastCleanup: time.Now(),
	}

	for _, opt := range engineOpts {
		opt(e)
	}

	return e, nil
}

// GetContext builds the memory context for a prompt.
//
// The three merges (rules, hybrid learnings, heuristics) run
// concurrently. Store failures degrade to empty contributions; an
// embedding provider failure converts the whole call into an empty
// Context rather than an error, so the host conversation flow is never
// interrupted.
func (e *Engine) GetContext(ctx context.Context, prompt string) (*Context, error) {
	start := time.Now()

	if strings.TrimSpace(prompt) == "" {
		return &Context{}, nil
	}

	e.maybeCleanup(ctx)

	result := &Context{}
	var learnErr error

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		result.Rules = e.collectRules(ctx)
	}()
	go func() {
		defer wg.Done()
		result.Learnings, learnErr = e.searchHybrid(ctx, prompt)
	}()
	go func() {
		defer wg.Done()
		result.Heuristics = e.matchHeuristics(ctx, prompt)
	}()
	wg.Wait()

	if learnErr != nil {
		e.logger.Error("retrieval failed, returning empty context", zap.Error(learnErr))
		e.metrics.RecordRetrieval(ctx, time.Since(start), true)
		return &Context{}, nil
	}

	e.metrics.RecordRetrieval(ctx, time.Since(start), false)
	e.logger.Debug("context built",
		zap.Int("rules", len(result.Rules)),
		zap.Int("learnings", len(result.Learnings)),
		zap.Int("heuristics", len(result.Heuristics)))

	return result, nil
}

// collectRules fetches rules from every store concurrently and merges
// them project-first, each scope ordered by hit count descending.
func (e *Engine) collectRules(ctx context.Context) []Rule {
	perStore := make([][]Rule, len(e.stores))

	var wg sync.WaitGroup
	for i, ss := range e.stores {
		wg.Add(1)
		go func(i int, ss ScopedStore) {
			defer wg.Done()
			rules, err := ss.Store.ListRules(ctx)
			if err != nil {
				e.degrade(ctx, ss.Scope, "listing rules", err)
				return
			}
			perStore[i] = rules
		}(i, ss)
	}
	wg.Wait()

	var merged []Rule
	for _, rules := range perStore {
		merged = append(merged, rules...)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Scope.Rank() != merged[j].Scope.Rank() {
			return merged[i].Scope.Rank() < merged[j].Scope.Rank()
		}
		if merged[i].HitCount != merged[j].HitCount {
			return merged[i].HitCount > merged[j].HitCount
		}
		if !merged[i].CreatedAt.Equal(merged[j].CreatedAt) {
			return merged[i].CreatedAt.After(merged[j].CreatedAt)
		}
		return merged[i].ID < merged[j].ID
	})

	if len(merged) > e.opts.MaxRules {
		merged = merged[:e.opts.MaxRules]
	}
	return merged
}

// searchHybrid runs semantic and keyword search concurrently and merges
// the results by learning id.
//
// Only an embedding provider failure is returned as an error; store
// failures degrade per scope.
func (e *Engine) searchHybrid(ctx context.Context, prompt string) ([]ScoredLearning, error) {
	// Embed the prompt once. Without a vector nothing meaningful can be
	// retrieved, so this error is fatal to the call.
	promptVec, err := e.cache.Get(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("embedding prompt: %w", err)
	}

	var (
		semantic map[string]ScoredLearning
		keyword  map[string]ScoredLearning
	)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic = e.searchSemantic(ctx, promptVec)
	}()
	go func() {
		defer wg.Done()
		keyword = e.searchKeyword(ctx, prompt)
	}()
	wg.Wait()

	merged := make([]ScoredLearning, 0, len(semantic)+len(keyword))
	for id, sem := range semantic {
		if _, both := keyword[id]; both {
			sem.MatchType = MatchHybrid
			sem.Score = min(1.0, sem.Score+e.opts.HybridBoost)
		}
		merged = append(merged, sem)
	}
	for id, kw := range keyword {
		if _, both := semantic[id]; !both {
			merged = append(merged, kw)
		}
	}

	// Explicit multi-key sort: the scope bias is applied to the sort key
	// only, so the reported score stays the raw confidence.
	sort.SliceStable(merged, func(i, j int) bool {
		si := e.sortScore(merged[i])
		sj := e.sortScore(merged[j])
		if si != sj {
			return si > sj
		}
		if merged[i].Learning.Scope.Rank() != merged[j].Learning.Scope.Rank() {
			return merged[i].Learning.Scope.Rank() < merged[j].Learning.Scope.Rank()
		}
		if !merged[i].Learning.CreatedAt.Equal(merged[j].Learning.CreatedAt) {
			return merged[i].Learning.CreatedAt.After(merged[j].Learning.CreatedAt)
		}
		return merged[i].Learning.ID < merged[j].Learning.ID
	})

	if len(merged) > e.opts.MaxLearnings {
		merged = merged[:e.opts.MaxLearnings]
	}
	return merged, nil
}

func (e *Engine) sortScore(sl ScoredLearning) float64 {
	score := sl.Score
	if sl.Learning.Scope == ScopeProject {
		score += e.opts.ScopeBias
	}
	return score
}

// searchSemantic scores every learning in every store against the prompt
// vector, keeping those at or above the similarity threshold.
func (e *Engine) searchSemantic(ctx context.Context, promptVec []float32) map[string]ScoredLearning {
	perStore := make([][]Learning, len(e.stores))

	var wg sync.WaitGroup
	for i, ss := range e.stores {
		wg.Add(1)
		go func(i int, ss ScopedStore) {
			defer wg.Done()
			learnings, err := ss.Store.ListLearnings(ctx)
			if err != nil {
				e.degrade(ctx, ss.Scope, "listing learnings", err)
				return
			}
			perStore[i] = learnings
		}(i, ss)
	}
	wg.Wait()

	results := make(map[string]ScoredLearning)
	for _, learnings := range perStore {
		for _, l := range learnings {
			score := embedding.Cosine(promptVec, l.Embedding)
			if score < e.opts.SimilarityThreshold {
				continue
			}
			results[l.ID] = ScoredLearning{
				Learning:  l,
				Score:     score,
				MatchType: MatchSemantic,
			}
		}
	}
	return results
}

// searchKeyword runs a sanitized keyword match per store, capped per
// store, assigning the fixed keyword confidence.
func (e *Engine) searchKeyword(ctx context.Context, prompt string) map[string]ScoredLearning {
	query := sanitizeQuery(prompt)
	if query == "" {
		e.logger.Debug("keyword query empty after sanitization, skipping keyword search")
		return nil
	}

	perStore := make([][]Learning, len(e.stores))

	var wg sync.WaitGroup
	for i, ss := range e.stores {
		wg.Add(1)
		go func(i int, ss ScopedStore) {
			defer wg.Done()
			matches, err := ss.Store.KeywordSearch(ctx, query, e.opts.KeywordLimit)
			if err != nil {
				e.degrade(ctx, ss.Scope, "keyword search", err)
				return
			}
			var found []Learning
			for _, m := range matches {
				l, err := ss.Store.GetLearning(ctx, m.ID)
				if err != nil {
					// Row deleted mid-scan: it simply doesn't appear.
					continue
				}
				found = append(found, *l)
			}
			perStore[i] = found
		}(i, ss)
	}
	wg.Wait()

	results := make(map[string]ScoredLearning)
	for _, learnings := range perStore {
		for _, l := range learnings {
			results[l.ID] = ScoredLearning{
				Learning:  l,
				Score:     e.opts.KeywordScore,
				MatchType: MatchKeyword,
			}
		}
	}
	return results
}

// matchHeuristics tests every heuristic's pattern against the prompt,
// case-insensitively. Stores are iterated project first and heuristics
// deduplicated by pattern text, so project heuristics shadow
// identically-patterned global ones. Invalid patterns are quarantined
// and logged, never failing the call.
func (e *Engine) matchHeuristics(ctx context.Context, prompt string) []Heuristic {
	perStore := make([][]Heuristic, len(e.stores))

	var wg sync.WaitGroup
	for i, ss := range e.stores {
		wg.Add(1)
		go func(i int, ss ScopedStore) {
			defer wg.Done()
			heuristics, err := ss.Store.ListHeuristics(ctx)
			if err != nil {
				e.degrade(ctx, ss.Scope, "listing heuristics", err)
				return
			}
			perStore[i] = heuristics
		}(i, ss)
	}
	wg.Wait()

	seen := make(map[string]struct{})
	var matched []Heuristic
	for _, heuristics := range perStore {
		for _, h := range heuristics {
			if _, dup := seen[h.Pattern]; dup {
				continue
			}
			re := e.compiledPattern(h)
			if re == nil {
				continue
			}
			if re.MatchString(prompt) {
				seen[h.Pattern] = struct{}{}
				matched = append(matched, h)
			}
		}
	}
	return matched
}

// compiledPattern returns the cached compiled pattern for a heuristic,
// compiling on first use. Invalid patterns are quarantined so they are
// logged once, not recompiled per query.
func (e *Engine) compiledPattern(h Heuristic) *regexp.Regexp {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, bad := e.disabled[h.ID]; bad {
		return nil
	}
	if re, ok := e.patterns[h.ID]; ok {
		return re
	}

	re, err := regexp.Compile("(?i)" + h.Pattern)
	if err != nil {
		e.disabled[h.ID] = struct{}{}
		e.logger.Warn("disabling heuristic with invalid pattern",
			zap.String("id", h.ID),
			zap.String("pattern", h.Pattern),
			zap.Error(err))
		return nil
	}

	e.patterns[h.ID] = re
	return re
}

// degrade logs a failed store query; the scope contributes nothing.
func (e *Engine) degrade(ctx context.Context, scope Scope, op string, err error) {
	e.metrics.RecordStoreFailure(ctx, string(scope))
	e.logger.Warn("store query failed, degrading to empty contribution",
		zap.String("scope", string(scope)),
		zap.String("op", op),
		zap.Error(err))
}

// sanitizeQuery strips reserved search-syntax characters so user prompts
// cannot inject keyword-search operators.
func sanitizeQuery(query string) string {
	cleaned := strings.Map(func(r rune) rune {
		switch r {
		case '"', '\'', '(', ')', '*', '^', ':', '{', '}', '[', ']', '-', '+', '!', '?', '~', '/', '\\', '.', ',', ';':
			return ' '
		default:
			return r
		}
	}, query)
	return strings.Join(strings.Fields(cleaned), " ")
}

// storeFor returns the store handle serving the given scope.
func (e *Engine) storeFor(scope Scope) (StoreHandle, error) {
	for _, ss := range e.stores {
		if ss.Scope == scope {
			return ss.Store, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrScopeUnavailable, scope)
}

// hasScope reports whether a store is active for the scope.
func (e *Engine) hasScope(scope Scope) bool {
	_, err := e.storeFor(scope)
	return err == nil
}
