package memory

import (
	"fmt"
	"strings"
)

// FormatForPrompt renders a context as markdown suitable for injection
// into a model prompt. An empty context renders as an empty string so
// callers can skip injection entirely.
func FormatForPrompt(c *Context) string {
	if c == nil || c.Empty() {
		return ""
	}

	var b strings.Builder

	if len(c.Rules) > 0 {
		b.WriteString("## Golden Rules\n")
		for _, r := range c.Rules {
			b.WriteString("- ")
			b.WriteString(r.Content)
			b.WriteString(scopeSuffix(r.Scope))
			b.WriteByte('\n')
		}
	}

	if len(c.Learnings) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("## Relevant Past Experiences\n")
		for _, sl := range c.Learnings {
			fmt.Fprintf(&b, "- [%s] %s (%d%%)%s\n",
				sl.Learning.Category, sl.Learning.Content,
				int(sl.Score*100), scopeSuffix(sl.Learning.Scope))
		}
	}

	if len(c.Heuristics) > 0 {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("## Applicable Heuristics\n")
		for _, h := range c.Heuristics {
			b.WriteString("- ")
			b.WriteString(h.Suggestion)
			b.WriteString(scopeSuffix(h.Scope))
			b.WriteByte('\n')
		}
	}

	return b.String()
}

func scopeSuffix(s Scope) string {
	if s == ScopeProject {
		return " [project]"
	}
	return ""
}
