// Package insight defines the ports behind which the report heuristics and
// the question-answering knowledge base live. A real search or ranking
// backend replaces the heuristic adapter without touching the dispatcher or
// the queue.
package insight

import (
	"context"

	"github.com/Strob0t/taskrelay/internal/domain/report"
)

// Analyzer classifies free text reported by the coding agent.
type Analyzer interface {
	// RootCause classifies a failing test. possibilities are caller-supplied
	// suggestions placed ahead of the generated ones.
	RootCause(errorText string, possibilities []string) report.RootCause

	// ClassifyObservation buckets a free-text note.
	ClassifyObservation(text string) report.ObservationClass

	// Complexity labels a task description as low, medium or high.
	Complexity(description string) string

	// Clarifications lists a question for every vague line of text. An
	// empty result means the text reads as concrete.
	Clarifications(text string) []string
}

// Answerer responds to questions asked by the coding agent.
type Answerer interface {
	Answer(ctx context.Context, q report.Question) (report.Answer, error)
}
