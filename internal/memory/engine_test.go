package memory

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
	"github.com/fyrsmithlabs/recalld/internal/privacy"
)

// fakeStore is an in-memory StoreHandle for engine tests.
type fakeStore struct {
	mu         sync.Mutex
	scope      Scope
	rules      []Rule
	learnings  []Learning
	heuristics []Heuristic

	failReads    bool
	failDeletes  bool
	cleanupCalls int
}

func (f *fakeStore) InsertRule(_ context.Context, r *Rule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, *r)
	return nil
}

func (f *fakeStore) InsertLearning(_ context.Context, l *Learning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.learnings {
		if existing.ContextHash == l.ContextHash {
			return nil
		}
	}
	f.learnings = append(f.learnings, *l)
	return nil
}

func (f *fakeStore) InsertHeuristic(_ context.Context, h *Heuristic) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.heuristics = append(f.heuristics, *h)
	return nil
}

func (f *fakeStore) ListRules(context.Context) ([]Rule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errors.New("store unavailable")
	}
	return append([]Rule(nil), f.rules...), nil
}

func (f *fakeStore) ListLearnings(context.Context) ([]Learning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errors.New("store unavailable")
	}
	return append([]Learning(nil), f.learnings...), nil
}

func (f *fakeStore) ListLearningsSince(_ context.Context, cutoff time.Time) ([]Learning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errors.New("store unavailable")
	}
	var out []Learning
	for _, l := range f.learnings {
		if !l.CreatedAt.Before(cutoff) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (f *fakeStore) ListHeuristics(context.Context) ([]Heuristic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errors.New("store unavailable")
	}
	return append([]Heuristic(nil), f.heuristics...), nil
}

func (f *fakeStore) GetLearning(_ context.Context, id string) (*Learning, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.learnings {
		if l.ID == id {
			out := l
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (f *fakeStore) UpdateRuleHitCount(_ context.Context, id string, delta int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.rules {
		if f.rules[i].ID == id {
			f.rules[i].HitCount += delta
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) UpdateLearningUtility(_ context.Context, id string, delta float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.learnings {
		if f.learnings[i].ID == id {
			f.learnings[i].UtilityScore += delta
			return nil
		}
	}
	return ErrNotFound
}

func (f *fakeStore) KeywordSearch(_ context.Context, query string, limit int) ([]KeywordMatch, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failReads {
		return nil, errors.New("store unavailable")
	}
	tokens := strings.Fields(strings.ToLower(query))
	var matches []KeywordMatch
	for _, l := range f.learnings {
		content := strings.ToLower(l.Content)
		all := len(tokens) > 0
		for _, tok := range tokens {
			if !strings.Contains(content, tok) {
				all = false
				break
			}
		}
		if all {
			matches = append(matches, KeywordMatch{ID: l.ID, Snippet: l.Content})
			if len(matches) >= limit {
				break
			}
		}
	}
	return matches, nil
}

func (f *fakeStore) DeleteExpiredRules(_ context.Context, maxAge time.Duration, minHits int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanupCalls++
	if f.failDeletes {
		return 0, errors.New("store unavailable")
	}
	cutoff := time.Now().Add(-maxAge)
	var kept []Rule
	var deleted int64
	for _, r := range f.rules {
		if r.CreatedAt.Before(cutoff) && r.HitCount < minHits {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	f.rules = kept
	return deleted, nil
}

func (f *fakeStore) DeleteExpiredLearnings(_ context.Context, maxAge time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeletes {
		return 0, errors.New("store unavailable")
	}
	cutoff := time.Now().Add(-maxAge)
	var kept []Learning
	var deleted int64
	for _, l := range f.learnings {
		if l.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	f.learnings = kept
	return deleted, nil
}

func (f *fakeStore) DeleteExpiredHeuristics(_ context.Context, maxAge time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeletes {
		return 0, errors.New("store unavailable")
	}
	cutoff := time.Now().Add(-maxAge)
	var kept []Heuristic
	var deleted int64
	for _, h := range f.heuristics {
		if h.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, h)
	}
	f.heuristics = kept
	return deleted, nil
}

func (f *fakeStore) Close() error { return nil }

var _ StoreHandle = (*fakeStore)(nil)

// stubProvider returns canned vectors per text, a fixed orthogonal
// fallback for everything else.
type stubProvider struct {
	vecs map[string][]float32
	err  error
}

func (p *stubProvider) Init(context.Context) error { return nil }

func (p *stubProvider) Embed(_ context.Context, text string) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	if vec, ok := p.vecs[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

func (p *stubProvider) Dimensions() int { return 3 }

func newTestEngine(t *testing.T, provider embedding.Provider, stores ...ScopedStore) *Engine {
	t.Helper()
	if provider == nil {
		provider = &stubProvider{}
	}
	cache, err := embedding.NewCache(provider, 64, time.Hour, nil)
	require.NoError(t, err)
	e, err := NewEngine(stores, cache, privacy.New(nil), Options{}, nil)
	require.NoError(t, err)
	return e
}

func mustTestLearning(t *testing.T, content string, vec []float32, scope Scope) Learning {
	t.Helper()
	l, err := NewLearning(content, CategorySuccess, vec, "hash-"+content, scope)
	require.NoError(t, err)
	return *l
}

func TestEngine_EmptyPromptReturnsEmptyContext(t *testing.T) {
	global := &fakeStore{scope: ScopeGlobal}
	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	got, err := e.GetContext(context.Background(), "   ")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestEngine_SemanticRetrieval(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	similar := mustTestLearning(t, "always check exit codes after running commands", []float32{1, 0, 0}, ScopeGlobal)
	unrelated := mustTestLearning(t, "prefer yaml anchors for repeated config", []float32{0, 1, 0}, ScopeGlobal)
	global.learnings = []Learning{similar, unrelated}

	provider := &stubProvider{vecs: map[string][]float32{
		"why did my command not report the error": {1, 0, 0},
	}}
	e := newTestEngine(t, provider, ScopedStore{Scope: ScopeGlobal, Store: global})

	got, err := e.GetContext(ctx, "why did my command not report the error")
	require.NoError(t, err)
	require.Len(t, got.Learnings, 1)
	assert.Equal(t, similar.ID, got.Learnings[0].Learning.ID)
	assert.Equal(t, MatchSemantic, got.Learnings[0].MatchType)
	assert.InDelta(t, 1.0, got.Learnings[0].Score, 0.0001)
}

func TestEngine_HybridMatchBoostsScore(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	both := mustTestLearning(t, "the build failed until the lockfile was regenerated", []float32{1, 0, 0}, ScopeGlobal)
	global.learnings = []Learning{both}

	provider := &stubProvider{vecs: map[string][]float32{
		"build failed": {0.8, 0.6, 0},
		both.Content:   {1, 0, 0},
	}}
	e := newTestEngine(t, provider, ScopedStore{Scope: ScopeGlobal, Store: global})

	got, err := e.GetContext(ctx, "build failed")
	require.NoError(t, err)
	require.Len(t, got.Learnings, 1)
	assert.Equal(t, MatchHybrid, got.Learnings[0].MatchType)
	// Cosine 0.8 plus the hybrid boost.
	assert.InDelta(t, 0.95, got.Learnings[0].Score, 0.0001)
}

func TestEngine_KeywordOnlyMatch(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	kw := mustTestLearning(t, "docker compose restart fixed the flaky port binding", []float32{0, 1, 0}, ScopeGlobal)
	global.learnings = []Learning{kw}

	provider := &stubProvider{vecs: map[string][]float32{
		"docker restart": {1, 0, 0},
	}}
	e := newTestEngine(t, provider, ScopedStore{Scope: ScopeGlobal, Store: global})

	got, err := e.GetContext(ctx, "docker restart")
	require.NoError(t, err)
	require.Len(t, got.Learnings, 1)
	assert.Equal(t, MatchKeyword, got.Learnings[0].MatchType)
	assert.InDelta(t, DefaultKeywordScore, got.Learnings[0].Score, 0.0001)
}

func TestEngine_ScopeBiasBreaksTiesWithoutChangingScore(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	project := &fakeStore{scope: ScopeProject}

	g := mustTestLearning(t, "global advice", []float32{1, 0, 0}, ScopeGlobal)
	p := mustTestLearning(t, "project advice", []float32{1, 0, 0}, ScopeProject)
	global.learnings = []Learning{g}
	project.learnings = []Learning{p}

	provider := &stubProvider{vecs: map[string][]float32{
		"advice please": {1, 0, 0},
	}}
	e := newTestEngine(t, provider,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	got, err := e.GetContext(ctx, "advice please")
	require.NoError(t, err)
	require.Len(t, got.Learnings, 2)
	assert.Equal(t, p.ID, got.Learnings[0].Learning.ID)
	assert.Equal(t, g.ID, got.Learnings[1].Learning.ID)
	// The bias is a sort key only; both report the raw similarity.
	assert.InDelta(t, 1.0, got.Learnings[0].Score, 0.0001)
	assert.InDelta(t, 1.0, got.Learnings[1].Score, 0.0001)
}

func TestEngine_ProviderFailureFailsOpen(t *testing.T) {
	global := &fakeStore{scope: ScopeGlobal}
	r, err := NewRule("a rule that would otherwise surface", nil, ScopeGlobal)
	require.NoError(t, err)
	global.rules = []Rule{*r}

	e := newTestEngine(t, &stubProvider{err: errors.New("model offline")},
		ScopedStore{Scope: ScopeGlobal, Store: global})

	got, err := e.GetContext(context.Background(), "anything")
	require.NoError(t, err)
	assert.True(t, got.Empty())
}

func TestEngine_StoreFailureDegradesPerScope(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal, failReads: true}
	project := &fakeStore{scope: ScopeProject}

	p := mustTestLearning(t, "project advice", []float32{1, 0, 0}, ScopeProject)
	project.learnings = []Learning{p}

	provider := &stubProvider{vecs: map[string][]float32{"advice": {1, 0, 0}}}
	e := newTestEngine(t, provider,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	got, err := e.GetContext(ctx, "advice")
	require.NoError(t, err)
	require.Len(t, got.Learnings, 1)
	assert.Equal(t, p.ID, got.Learnings[0].Learning.ID)
}

func TestEngine_RulesOrderedProjectFirstThenHits(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	project := &fakeStore{scope: ScopeProject}

	gHigh, err := NewRule("global, heavily used", nil, ScopeGlobal)
	require.NoError(t, err)
	gHigh.HitCount = 50
	pLow, err := NewRule("project, rarely used", nil, ScopeProject)
	require.NoError(t, err)
	pLow.HitCount = 1

	global.rules = []Rule{*gHigh}
	project.rules = []Rule{*pLow}

	e := newTestEngine(t, nil,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	got, err := e.GetContext(ctx, "anything at all")
	require.NoError(t, err)
	require.Len(t, got.Rules, 2)
	assert.Equal(t, pLow.ID, got.Rules[0].ID)
	assert.Equal(t, gHigh.ID, got.Rules[1].ID)
}

func TestEngine_HeuristicShadowingAndQuarantine(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	project := &fakeStore{scope: ScopeProject}

	gh, err := NewHeuristic(`migrate`, "global: take a backup first", ScopeGlobal)
	require.NoError(t, err)
	ph, err := NewHeuristic(`migrate`, "project: use the migration runner", ScopeProject)
	require.NoError(t, err)
	// Inserted directly with a broken pattern, as if written by an older
	// version without creation-time validation.
	bad, err := NewHeuristic(`migrate(`, "never surfaces", ScopeGlobal)
	require.NoError(t, err)

	global.heuristics = []Heuristic{*gh, *bad}
	project.heuristics = []Heuristic{*ph}

	e := newTestEngine(t, nil,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	got, err := e.GetContext(ctx, "how do I MIGRATE the schema")
	require.NoError(t, err)
	require.Len(t, got.Heuristics, 1)
	assert.Equal(t, ph.ID, got.Heuristics[0].ID)
}

func TestEngine_RetrievalIsIdempotent(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	l := mustTestLearning(t, "stable result", []float32{1, 0, 0}, ScopeGlobal)
	global.learnings = []Learning{l}

	provider := &stubProvider{vecs: map[string][]float32{"stable": {1, 0, 0}}}
	e := newTestEngine(t, provider, ScopedStore{Scope: ScopeGlobal, Store: global})

	first, err := e.GetContext(ctx, "stable")
	require.NoError(t, err)
	second, err := e.GetContext(ctx, "stable")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSanitizeQuery(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "build failed", "build failed"},
		{"operators stripped", `"build" AND (failed)*`, "build AND failed"},
		{"collapses whitespace", "  build\t failed  ", "build failed"},
		{"only operators", `"*()":`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, sanitizeQuery(tt.in))
		})
	}
}
