package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/recalld/internal/embedding"
)

func TestEngine_FindEmergentPatterns(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	// Three near-identical recent learnings, one unrelated, one too old.
	a := mustTestLearning(t, "lockfile regeneration fixed the build", []float32{1, 0, 0}, ScopeGlobal)
	b := mustTestLearning(t, "regenerating the lockfile resolved the failure", []float32{0.99, 0.1, 0}, ScopeGlobal)
	c := mustTestLearning(t, "deleted and regenerated the lockfile, build passed", []float32{0.98, 0.15, 0}, ScopeGlobal)
	other := mustTestLearning(t, "increased the test timeout", []float32{0, 1, 0}, ScopeGlobal)
	stale := mustTestLearning(t, "lockfile advice from last month", []float32{1, 0, 0}, ScopeGlobal)
	stale.CreatedAt = time.Now().Add(-30 * 24 * time.Hour)

	global.learnings = []Learning{a, b, c, other, stale}

	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	clusters, err := e.FindEmergentPatterns(ctx, 0.8, 3)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Len(t, clusters[0].Members, 3)
}

func TestEngine_PromoteToRuleUsesHighestUtilityMember(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	low := mustTestLearning(t, "vague phrasing", []float32{1, 0, 0}, ScopeGlobal)
	best := mustTestLearning(t, "regenerate the lockfile when the build breaks after a merge", []float32{1, 0, 0}, ScopeGlobal)
	best.UtilityScore = 1.4

	rule, err := e.PromoteToRule(ctx, Cluster{Members: []Learning{low, best}}, ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, best.Content, rule.Content)

	rules, err := global.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestEngine_PromoteToRuleEmptyCluster(t *testing.T) {
	global := &fakeStore{scope: ScopeGlobal}
	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	_, err := e.PromoteToRule(context.Background(), Cluster{}, ScopeGlobal)
	require.Error(t, err)
}

func TestEngine_RunConsolidation(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	for _, content := range []string{
		"retried the flaky test and it passed",
		"the flaky test passed on retry",
		"rerunning the flaky test succeeded",
	} {
		l := mustTestLearning(t, content, []float32{1, 0, 0}, ScopeGlobal)
		global.learnings = append(global.learnings, l)
	}

	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	promoted, err := e.RunConsolidation(ctx, 0.8, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	rules, err := global.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
}

func TestEngine_RunConsolidationPromotesProjectClustersToProject(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	project := &fakeStore{scope: ScopeProject}

	for _, content := range []string{
		"this repo needs CGO disabled",
		"builds here require CGO off",
		"disable CGO for this codebase",
	} {
		l := mustTestLearning(t, content, []float32{1, 0, 0}, ScopeProject)
		project.learnings = append(project.learnings, l)
	}

	e := newTestEngine(t, nil,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	promoted, err := e.RunConsolidation(ctx, 0.8, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, promoted)

	projectRules, err := project.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, projectRules, 1)
	globalRules, err := global.ListRules(ctx)
	require.NoError(t, err)
	assert.Empty(t, globalRules)
}

func TestEngine_CustomSummarizer(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}

	cache, err := embedding.NewCache(&stubProvider{}, 64, time.Hour, nil)
	require.NoError(t, err)
	e, err := NewEngine([]ScopedStore{{Scope: ScopeGlobal, Store: global}}, cache, nil, Options{}, nil,
		WithSummarizer(func(Cluster) string { return "condensed principle" }))
	require.NoError(t, err)

	l := mustTestLearning(t, "raw member", []float32{1, 0, 0}, ScopeGlobal)
	rule, err := e.PromoteToRule(ctx, Cluster{Members: []Learning{l}}, ScopeGlobal)
	require.NoError(t, err)
	assert.Equal(t, "condensed principle", rule.Content)
}
