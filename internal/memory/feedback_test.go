package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngine_FeedbackAdjustsUtility(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	l := mustTestLearning(t, "cache go modules in CI", []float32{1, 0, 0}, ScopeGlobal)
	global.learnings = []Learning{l}

	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	// Two successful outcomes, then one failed one.
	e.MarkSurfaced([]string{l.ID})
	require.NoError(t, e.ApplyFeedback(ctx, true))
	e.MarkSurfaced([]string{l.ID})
	require.NoError(t, e.ApplyFeedback(ctx, true))
	e.MarkSurfaced([]string{l.ID})
	require.NoError(t, e.ApplyFeedback(ctx, false))

	got, err := global.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, got.UtilityScore, 0.001)
}

func TestEngine_FeedbackTokenIsOneShot(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	l := mustTestLearning(t, "one credit only", []float32{1, 0, 0}, ScopeGlobal)
	global.learnings = []Learning{l}

	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	e.MarkSurfaced([]string{l.ID})
	require.NoError(t, e.ApplyFeedback(ctx, true))
	// Second outcome without a new surfacing must not double-credit.
	require.NoError(t, e.ApplyFeedback(ctx, true))

	got, err := global.GetLearning(ctx, l.ID)
	require.NoError(t, err)
	assert.InDelta(t, 1.1, got.UtilityScore, 0.001)
}

func TestEngine_FeedbackSkipsDeletedLearnings(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	e.MarkSurfaced([]string{"gone-since-surfacing"})
	assert.NoError(t, e.ApplyFeedback(ctx, true))
}

func TestEngine_FeedbackResolvesAcrossStores(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	project := &fakeStore{scope: ScopeProject}

	g := mustTestLearning(t, "global learning", []float32{1, 0, 0}, ScopeGlobal)
	p := mustTestLearning(t, "project learning", []float32{0, 1, 0}, ScopeProject)
	global.learnings = []Learning{g}
	project.learnings = []Learning{p}

	e := newTestEngine(t, nil,
		ScopedStore{Scope: ScopeGlobal, Store: global},
		ScopedStore{Scope: ScopeProject, Store: project})

	e.MarkSurfaced([]string{g.ID, p.ID})
	require.NoError(t, e.ApplyFeedback(ctx, false))

	gotG, err := global.GetLearning(ctx, g.ID)
	require.NoError(t, err)
	gotP, err := project.GetLearning(ctx, p.ID)
	require.NoError(t, err)
	assert.InDelta(t, 0.9, gotG.UtilityScore, 0.001)
	assert.InDelta(t, 0.9, gotP.UtilityScore, 0.001)
}

func TestEngine_RecordRuleHits(t *testing.T) {
	ctx := context.Background()
	global := &fakeStore{scope: ScopeGlobal}
	r, err := NewRule("check exit codes", nil, ScopeGlobal)
	require.NoError(t, err)
	global.rules = []Rule{*r}

	e := newTestEngine(t, nil, ScopedStore{Scope: ScopeGlobal, Store: global})

	e.RecordRuleHits(ctx, []string{r.ID, "no-such-rule"})
	e.RecordRuleHits(ctx, []string{r.ID})

	rules, err := global.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, 2, rules[0].HitCount)
}
