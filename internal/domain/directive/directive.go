// Package directive builds the bounded instruction package handed to the
// coding agent when a task is routed.
package directive

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Strob0t/taskrelay/internal/domain/task"
)

// Section headings, in the order they appear in the context bundle.
const (
	HeadingDescription = "## Description"
	HeadingCriteria    = "## Acceptance Criteria"
	HeadingFiles       = "## Related Files"
	HeadingDesign      = "## Design References"
	HeadingPlanning    = "## Priority & Estimate"
	HeadingDeps        = "## Dependencies"
	HeadingContext     = "## Additional Context"
)

// RoutingDirective is a read-only snapshot of a task at hand-off time. It is
// rebuilt on every hand-off and never persisted.
type RoutingDirective struct {
	TaskID             string            `json:"taskId"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria"`
	RelatedFiles       []string          `json:"relatedFiles,omitempty"`
	DesignReferences   map[string]string `json:"designReferences,omitempty"`
	EstimatedHours     float64           `json:"estimatedHours"`
	Priority           task.Priority     `json:"priority"`
	ContextBundle      string            `json:"contextBundle"`
	EstimatedTokens    int               `json:"estimatedTokens"`
}

// OverBudget reports whether the directive exceeds budget tokens. A
// non-positive budget never overflows.
func (d *RoutingDirective) OverBudget(budget int) bool {
	return budget > 0 && d.EstimatedTokens > budget
}

// Build assembles the directive for t.
func Build(t *task.Task) RoutingDirective {
	c := t.Clone()
	bundle := Bundle(&c)
	return RoutingDirective{
		TaskID:             c.ID,
		Title:              c.Title,
		Description:        c.Description,
		AcceptanceCriteria: c.AcceptanceCriteria,
		RelatedFiles:       c.RelatedFiles,
		DesignReferences:   c.DesignReferences,
		EstimatedHours:     c.EstimatedHours,
		Priority:           c.Priority,
		ContextBundle:      bundle,
		EstimatedTokens:    EstimateTokens(bundle),
	}
}

// Bundle renders the context bundle text for t. Optional sections are
// omitted when empty.
func Bundle(t *task.Task) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", t.Title)

	section(&b, HeadingDescription)
	b.WriteString(strings.TrimSpace(t.Description))
	b.WriteString("\n\n")

	section(&b, HeadingCriteria)
	for i, c := range t.AcceptanceCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	b.WriteString("\n")

	if len(t.RelatedFiles) > 0 {
		section(&b, HeadingFiles)
		for _, f := range t.RelatedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
		b.WriteString("\n")
	}

	if len(t.DesignReferences) > 0 {
		section(&b, HeadingDesign)
		keys := make([]string, 0, len(t.DesignReferences))
		for k := range t.DesignReferences {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, t.DesignReferences[k])
		}
		b.WriteString("\n")
	}

	section(&b, HeadingPlanning)
	fmt.Fprintf(&b, "Priority: %s\nEstimated hours: %g\n\n", t.Priority, t.EstimatedHours)

	if len(t.Dependencies) > 0 {
		section(&b, HeadingDeps)
		for _, d := range t.Dependencies {
			fmt.Fprintf(&b, "- %s (completed)\n", d)
		}
		b.WriteString("\n")
	}

	if ctx := strings.TrimSpace(t.ContextBundle); ctx != "" {
		section(&b, HeadingContext)
		b.WriteString(ctx)
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

func section(b *strings.Builder, heading string) {
	b.WriteString(heading)
	b.WriteString("\n")
}

// EstimateTokens returns an approximate token count for a string.
// Uses the heuristic 1 token ≈ 4 characters.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && s != "" {
		return 1
	}
	return n
}
