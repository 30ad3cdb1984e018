package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatForPrompt(t *testing.T) {
	c := &Context{
		Rules: []Rule{
			{ID: "r1", Content: "always check exit codes", Scope: ScopeGlobal, CreatedAt: time.Now()},
			{ID: "r2", Content: "use the migration runner", Scope: ScopeProject, CreatedAt: time.Now()},
		},
		Learnings: []ScoredLearning{
			{
				Learning: Learning{ID: "l1", Content: "retrying fixed the flaky test", Category: CategorySuccess, Scope: ScopeGlobal},
				Score:    0.87,
			},
			{
				Learning: Learning{ID: "l2", Content: "force-pushing broke the release branch", Category: CategoryFailure, Scope: ScopeProject},
				Score:    0.90,
			},
		},
		Heuristics: []Heuristic{
			{ID: "h1", Suggestion: "back up the database first", Scope: ScopeGlobal},
		},
	}

	got := FormatForPrompt(c)
	want := `## Golden Rules
- always check exit codes
- use the migration runner [project]

## Relevant Past Experiences
- [success] retrying fixed the flaky test (87%)
- [failure] force-pushing broke the release branch (90%) [project]

## Applicable Heuristics
- back up the database first
`
	assert.Equal(t, want, got)
}

func TestFormatForPrompt_Empty(t *testing.T) {
	assert.Empty(t, FormatForPrompt(nil))
	assert.Empty(t, FormatForPrompt(&Context{}))
}

func TestFormatForPrompt_SectionsOmittedWhenEmpty(t *testing.T) {
	c := &Context{
		Heuristics: []Heuristic{{ID: "h1", Suggestion: "only heuristics here", Scope: ScopeGlobal}},
	}

	got := FormatForPrompt(c)
	assert.Equal(t, "## Applicable Heuristics\n- only heuristics here\n", got)
}
