// Package task defines the Task domain entity, its state machine and the
// pure scheduling functions over a set of tasks.
package task

import (
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/taskrelay/internal/domain"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusBlocked    Status = "blocked"
	StatusFailed     Status = "failed"
)

// Statuses lists every status in display order.
var Statuses = []Status{
	StatusPending, StatusReady, StatusInProgress,
	StatusCompleted, StatusBlocked, StatusFailed,
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusReady, StatusInProgress,
		StatusCompleted, StatusBlocked, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible without an
// explicit reset.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Priority is the scheduling rank of a task. P1 is the highest.
type Priority string

const (
	PriorityP1 Priority = "P1"
	PriorityP2 Priority = "P2"
	PriorityP3 Priority = "P3"
)

// Priorities lists every priority from highest to lowest.
var Priorities = []Priority{PriorityP1, PriorityP2, PriorityP3}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p.Rank() > 0
}

// Rank returns 1 for P1, 2 for P2, 3 for P3 and 0 for anything else.
func (p Priority) Rank() int {
	switch p {
	case PriorityP1:
		return 1
	case PriorityP2:
		return 2
	case PriorityP3:
		return 3
	}
	return 0
}

// Origin records why a task was created. Audit only.
type Origin string

const (
	OriginProducer      Origin = "producer"
	OriginVerification  Origin = "verification"
	OriginFollowUp      Origin = "follow-up"
	OriginObservation   Origin = "observation"
	OriginInvestigation Origin = "investigation"
)

// DefaultEstimatedHours is applied when a producer leaves the estimate unset.
const DefaultEstimatedHours = 1.0

// DefaultDescriptionMinLen is the minimum description length when the queue
// is not configured otherwise.
const DefaultDescriptionMinLen = 10

// Metadata carries de-duplication and audit information. It never takes
// part in scheduling.
type Metadata struct {
	TicketID          string  `json:"ticketId,omitempty"`
	Team              string  `json:"team,omitempty"`
	RoutingConfidence float64 `json:"routingConfidence,omitempty"`
	Escalated         bool    `json:"escalated,omitempty"`
	Origin            Origin  `json:"origin,omitempty"`
	SourceTaskID      string  `json:"sourceTaskId,omitempty"`
}

// Task is an atomic unit of work accepted into the queue.
type Task struct {
	ID                 string            `json:"taskId"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Priority           Priority          `json:"priority"`
	Status             Status            `json:"status"`
	Dependencies       []string          `json:"dependencies,omitempty"`
	BlockedBy          []string          `json:"blockedBy,omitempty"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria"`
	EstimatedHours     float64           `json:"estimatedHours"`
	RelatedFiles       []string          `json:"relatedFiles,omitempty"`
	DesignReferences   map[string]string `json:"designReferences,omitempty"`
	ContextBundle      string            `json:"contextBundle,omitempty"`
	FromPlanningTeam   bool              `json:"fromPlanningTeam"`
	CreatedAt          time.Time         `json:"createdAt"`
	AssignedTo         string            `json:"assignedTo,omitempty"`
	Metadata           *Metadata         `json:"metadata,omitempty"`
}

// Problems returns every admission rule t violates, one message per field.
// An empty result means t is admissible.
func (t *Task) Problems(descriptionMinLen int) []string {
	var problems []string
	if !t.FromPlanningTeam {
		problems = append(problems, "fromPlanningTeam: must be true")
	}
	if strings.TrimSpace(t.Title) == "" {
		problems = append(problems, "title: is required")
	}
	desc := strings.TrimSpace(t.Description)
	switch {
	case desc == "":
		problems = append(problems, "description: is required")
	case len(desc) < descriptionMinLen:
		problems = append(problems, fmt.Sprintf("description: must be at least %d characters", descriptionMinLen))
	}
	if len(t.AcceptanceCriteria) == 0 {
		problems = append(problems, "acceptanceCriteria: at least one criterion is required")
	}
	for i, c := range t.AcceptanceCriteria {
		if strings.TrimSpace(c) == "" {
			problems = append(problems, fmt.Sprintf("acceptanceCriteria[%d]: must not be empty", i))
		}
	}
	if !t.Priority.Valid() {
		problems = append(problems, fmt.Sprintf("priority: %q is not one of P1, P2, P3", t.Priority))
	}
	if !t.Status.Valid() {
		problems = append(problems, fmt.Sprintf("status: %q is not a known status", t.Status))
	}
	if t.EstimatedHours < 0 {
		problems = append(problems, "estimatedHours: must be positive")
	}
	for i, dep := range t.Dependencies {
		if dep == "" {
			problems = append(problems, fmt.Sprintf("dependencies[%d]: must not be empty", i))
		}
		if t.ID != "" && dep == t.ID {
			problems = append(problems, fmt.Sprintf("dependencies[%d]: task cannot depend on itself", i))
		}
	}
	return problems
}

// Validate checks admission rules and returns a domain.ErrValidation-wrapped
// error listing every violation.
func (t *Task) Validate(descriptionMinLen int) error {
	if problems := t.Problems(descriptionMinLen); len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	return nil
}

// IsBlocked reports whether the task cannot be scheduled regardless of its
// status field.
func (t *Task) IsBlocked() bool {
	return t.Status == StatusBlocked || len(t.BlockedBy) > 0
}

// TicketID returns the originating ticket id, or "" when none is set.
func (t *Task) TicketID() string {
	if t.Metadata == nil {
		return ""
	}
	return t.Metadata.TicketID
}

// Clone returns a deep copy so callers never share slices or maps with the
// store.
func (t *Task) Clone() Task {
	c := *t
	c.Dependencies = cloneStrings(t.Dependencies)
	c.BlockedBy = cloneStrings(t.BlockedBy)
	c.AcceptanceCriteria = cloneStrings(t.AcceptanceCriteria)
	c.RelatedFiles = cloneStrings(t.RelatedFiles)
	if t.DesignReferences != nil {
		c.DesignReferences = make(map[string]string, len(t.DesignReferences))
		for k, v := range t.DesignReferences {
			c.DesignReferences[k] = v
		}
	}
	if t.Metadata != nil {
		m := *t.Metadata
		c.Metadata = &m
	}
	return c
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	return out
}

// Summary is the id/title/priority preview used in queue listings.
type Summary struct {
	ID       string   `json:"taskId"`
	Title    string   `json:"title"`
	Priority Priority `json:"priority"`
}

// Summarize returns the preview of t.
func (t *Task) Summarize() Summary {
	return Summary{ID: t.ID, Title: t.Title, Priority: t.Priority}
}
