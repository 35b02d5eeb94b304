package heuristic

import (
	"context"
	"strings"

	"github.com/Strob0t/taskrelay/internal/domain/report"
)

// topic is one row of the fixed knowledge table.
type topic struct {
	name       string
	keywords   []string
	answer     string
	confidence float64
	evidence   string
	guidance   []string
	decisions  []string
}

// topics is ordered; the first matched topic supplies the answer.
var topics = []topic{
	{
		name:       "responsive",
		keywords:   []string{"responsive", "mobile", "breakpoint", "viewport", "screen size"},
		answer:     "Design mobile-first and layer larger layouts on the shared breakpoints (640, 768, 1024, 1280px).",
		confidence: 0.85,
		evidence:   "design-system.md#breakpoints",
		guidance: []string{
			"Start from the smallest layout and add min-width media queries",
			"Use the shared breakpoint tokens instead of literal pixel values",
			"Verify touch targets are at least 44px on small screens",
		},
		decisions: []string{
			"ADR-004: mobile-first layouts",
			"ADR-007: shared breakpoint tokens",
		},
	},
	{
		name:       "accessibility",
		keywords:   []string{"accessibility", "accessible", "a11y", "aria", "screen reader", "keyboard", "contrast"},
		answer:     "Target WCAG 2.1 AA: semantic elements first, ARIA only to fill gaps, full keyboard operation and 4.5:1 text contrast.",
		confidence: 0.9,
		evidence:   "accessibility-guidelines.md#wcag-aa",
		guidance: []string{
			"Prefer native elements (button, a, label) over ARIA roles",
			"Every interactive element must be reachable and operable by keyboard",
			"Keep a visible focus indicator",
		},
		decisions: []string{
			"ADR-002: WCAG 2.1 AA as the baseline",
			"ADR-009: focus ring is never removed",
		},
	},
	{
		name:       "animation",
		keywords:   []string{"animation", "animate", "transition", "motion"},
		answer:     "Keep animations under 300ms, animate transform and opacity only, and honour prefers-reduced-motion.",
		confidence: 0.75,
		evidence:   "design-system.md#motion",
		guidance: []string{
			"Use the shared easing and duration tokens",
			"Disable non-essential motion when prefers-reduced-motion is set",
		},
		decisions: []string{
			"ADR-011: motion tokens",
		},
	},
	{
		name:       "styling",
		keywords:   []string{"styling", "style", "css", "color", "colour", "theme", "font"},
		answer:     "Use the design tokens through the theme layer; no hard-coded colours, sizes or fonts in components.",
		confidence: 0.8,
		evidence:   "design-system.md#tokens",
		guidance: []string{
			"Reference theme tokens for colour, spacing and typography",
			"Scope component styles to the component",
		},
		decisions: []string{
			"ADR-003: design tokens as the single source of styling values",
			"ADR-006: component-scoped styles",
		},
	},
	{
		name:       "navigation",
		keywords:   []string{"navigation", "navigate", "routing", "route", "menu", "link"},
		answer:     "Routes are declared centrally; navigation components read from the route table and never hard-code paths.",
		confidence: 0.8,
		evidence:   "architecture.md#routing",
		guidance: []string{
			"Add new pages to the central route table",
			"Use the shared link component for internal navigation",
			"Mark the active route for assistive technology",
		},
		decisions: []string{
			"ADR-005: central route table",
		},
	},
	{
		name:       "state",
		keywords:   []string{"state", "store", "redux", "context"},
		answer:     "Keep state local by default; lift to the shared store only when several distant components need it.",
		confidence: 0.65,
		evidence:   "architecture.md#state-management",
		guidance: []string{
			"Start with component state",
			"Derive values instead of duplicating them in the store",
		},
		decisions: []string{
			"ADR-008: local state first",
			"ADR-010: single shared store for cross-cutting data",
		},
	},
	{
		name:       "testing",
		keywords:   []string{"testing", "test", "jest", "coverage"},
		answer:     "Every acceptance criterion needs a test; unit-test logic, integration-test user flows, 80% line coverage on new code.",
		confidence: 0.85,
		evidence:   "testing-strategy.md#coverage",
		guidance: []string{
			"Write one test per acceptance criterion",
			"Test behaviour through the public interface, not internals",
			"Mock only at process boundaries",
		},
		decisions: []string{
			"ADR-012: 80% coverage on new code",
			"ADR-013: acceptance criteria map to tests",
		},
	},
	{
		name:       "performance",
		keywords:   []string{"performance", "optimize", "optimise", "slow", "lazy", "bundle size"},
		answer:     "Measure before optimising; lazy-load routes and heavy components and keep the initial bundle under budget.",
		confidence: 0.6,
		evidence:   "performance-budget.md",
		guidance: []string{
			"Profile the slow path before changing code",
			"Lazy-load routes and rarely used components",
		},
		decisions: []string{
			"ADR-014: route-level code splitting",
		},
	},
}

const (
	unmatchedAnswer      = "No documented guidance covers this question. Follow the existing patterns in the surrounding code and raise it with the planning team."
	unmatchedUncertainty = "The question did not match any documented topic; this answer is a generic fallback and should be confirmed by a human."
	lowConfidenceNote    = "Documentation on this topic is incomplete; confirm the approach with the planning team before relying on it."
)

// KnowledgeBase implements insight.Answerer with the fixed topic table.
type KnowledgeBase struct{}

// NewKnowledgeBase creates the fixed-table knowledge base.
func NewKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{}
}

// Topics returns the names of every topic whose keywords appear in text, in
// table order.
func Topics(text string) []string {
	lower := strings.ToLower(text)
	var out []string
	for i := range topics {
		if containsAny(lower, topics[i].keywords) {
			out = append(out, topics[i].name)
		}
	}
	return out
}

// Answer returns the canned answer for the first topic in q.
func (k *KnowledgeBase) Answer(ctx context.Context, q report.Question) (report.Answer, error) {
	if err := ctx.Err(); err != nil {
		return report.Answer{}, err
	}

	names := Topics(q.Text + " " + q.Context)
	if len(names) == 0 {
		return report.Answer{
			Answer:      unmatchedAnswer,
			Confidence:  report.UnmatchedConfidence,
			Topics:      []string{},
			Uncertainty: unmatchedUncertainty,
		}, nil
	}

	var t *topic
	for i := range topics {
		if topics[i].name == names[0] {
			t = &topics[i]
			break
		}
	}

	a := report.Answer{
		Answer:           t.answer,
		Confidence:       t.confidence,
		Topics:           names,
		Evidence:         t.evidence,
		Guidance:         append([]string(nil), t.guidance...),
		RelatedDecisions: append([]string(nil), t.decisions...),
	}
	if a.Confidence < report.ConfidenceThreshold {
		a.Uncertainty = lowConfidenceNote
	}
	return a, nil
}
