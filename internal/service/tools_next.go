package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Strob0t/taskrelay/internal/domain/task"
)

// QualityRequirements are appended to every enriched prompt.
var QualityRequirements = []string{
	"Keep changes scoped to the task; do not refactor unrelated code",
	"Add or update tests covering every acceptance criterion",
	"Follow the existing code style and naming of the files you touch",
	"Leave no TODOs or debug output in the delivered change",
	"Report observations and test failures through the reporting tools",
}

// GetNextTaskParams are the parameters of get-next-task.
type GetNextTaskParams struct {
	Status         string `json:"status,omitempty"`
	Priority       string `json:"priority,omitempty"`
	IncludeContext *bool  `json:"includeContext,omitempty"` // default true
	Claim          bool   `json:"claim,omitempty"`
}

func (p *GetNextTaskParams) validate() fieldErrors {
	var fe fieldErrors
	if p.Status != "" && !task.Status(p.Status).Valid() {
		fe.add("status", "%q is not a known status", p.Status)
	}
	if p.Priority != "" && !task.Priority(p.Priority).Valid() {
		fe.add("priority", "%q is not one of P1, P2, P3", p.Priority)
	}
	return fe
}

// EnrichedTask is the head task plus the prompt handed to the agent.
type EnrichedTask struct {
	task.Task
	Prompt              string   `json:"prompt"`
	Complexity          string   `json:"complexity"`
	QualityRequirements []string `json:"qualityRequirements"`
	Clarifications      []string `json:"clarifications,omitempty"`
}

// GetNextTaskResult is the result of get-next-task.
type GetNextTaskResult struct {
	Task        *task.Task     `json:"task"`
	Enriched    *EnrichedTask  `json:"enriched,omitempty"`
	Upcoming    []task.Summary `json:"upcoming"`
	QueueLength int            `json:"queueLength"`
	Handoff     *Handoff       `json:"handoff,omitempty"`
}

// GetNextTask returns the head of the eligible queue, or of the filtered
// queue when a status or priority is given.
func (s *ToolService) GetNextTask(ctx context.Context, p *GetNextTaskParams) (GetNextTaskResult, error) {
	var candidates []task.Task
	if p.Status == "" && p.Priority == "" {
		candidates = s.queue.ReadyTasks()
	} else {
		candidates = s.queue.List(Filter{Status: task.Status(p.Status), Priority: task.Priority(p.Priority)})
		task.Sort(candidates)
	}

	res := GetNextTaskResult{QueueLength: len(candidates), Upcoming: []task.Summary{}}
	if len(candidates) == 0 {
		return res, nil
	}

	head := candidates[0]
	res.Task = &head
	res.Upcoming = summaries(candidates[1:], previewSize)
	if p.IncludeContext == nil || *p.IncludeContext {
		res.Enriched = s.enrich(&head)
	}

	if p.Claim {
		h, err := s.routing.Route(ctx, head.ID)
		if err != nil {
			return GetNextTaskResult{}, err
		}
		res.Handoff = &h
		started := head
		started.Status = task.StatusInProgress
		res.Task = &started
		if res.Enriched != nil {
			res.Enriched.Status = task.StatusInProgress
		}
	}
	return res, nil
}

func (s *ToolService) enrich(t *task.Task) *EnrichedTask {
	complexity := s.analyzer.Complexity(t.Description)
	clarifications := s.analyzer.Clarifications(t.Description + "\n" + strings.Join(t.AcceptanceCriteria, "\n"))

	var b strings.Builder
	fmt.Fprintf(&b, "You are working on %q (%s, priority %s, estimated %.1fh, complexity %s).\n\n",
		t.Title, t.ID, t.Priority, t.EstimatedHours, complexity)
	b.WriteString(strings.TrimSpace(t.Description))
	b.WriteString("\n\nAcceptance criteria:\n")
	for i, c := range t.AcceptanceCriteria {
		fmt.Fprintf(&b, "%d. %s\n", i+1, c)
	}
	if len(t.RelatedFiles) > 0 {
		b.WriteString("\nRelated files:\n")
		for _, f := range t.RelatedFiles {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if len(clarifications) > 0 {
		b.WriteString("\nAsk before assuming:\n")
		for _, c := range clarifications {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}
	b.WriteString("\nQuality requirements:\n")
	for _, q := range QualityRequirements {
		fmt.Fprintf(&b, "- %s\n", q)
	}

	return &EnrichedTask{
		Task:                t.Clone(),
		Prompt:              b.String(),
		Complexity:          complexity,
		QualityRequirements: QualityRequirements,
		Clarifications:      clarifications,
	}
}
