package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/insight"
	"github.com/Strob0t/taskrelay/internal/protocol"
)

// Tool method names exposed through the dispatcher.
const (
	MethodGetNextTask       = "get-next-task"
	MethodReportTaskStatus  = "report-task-status"
	MethodReportObservation = "report-observation"
	MethodReportTestFailure = "report-test-failure"
	MethodAskQuestion       = "ask-question"
)

// ToolDescriptions documents each tool for transports that list them.
var ToolDescriptions = map[string]string{
	MethodGetNextTask:       "Return the next eligible task with an enriched prompt and a preview of the queue. Set claim to start it.",
	MethodReportTaskStatus:  "Report the outcome (done, failed, blocked, partial) of a task, with optional test results, observations and follow-ups.",
	MethodReportObservation: "Record an observation about a task; optionally create a dependent task and raise an alert.",
	MethodReportTestFailure: "Report a failing test; returns a likely cause, suggestions and dependents, and raises a critical alert.",
	MethodAskQuestion:       "Ask a question about conventions and get an answer with a confidence score.",
}

// previewSize is how many queued tasks follow the head in previews.
const previewSize = 3

// ToolService implements the five operations the coding agent calls.
type ToolService struct {
	routing    *RoutingService
	queue      *TaskQueue
	analyzer   insight.Analyzer
	answerer   insight.Answerer
	alerts     *AlertLog
	askTimeout time.Duration
	now        func() time.Time
}

// NewToolService creates the tool handlers.
func NewToolService(routing *RoutingService, analyzer insight.Analyzer, answerer insight.Answerer, alerts *AlertLog) *ToolService {
	return &ToolService{
		routing:    routing,
		queue:      routing.Queue(),
		analyzer:   analyzer,
		answerer:   answerer,
		alerts:     alerts,
		askTimeout: routing.cfg.AskTimeout,
		now:        time.Now,
	}
}

// Register installs every tool on d.
func (s *ToolService) Register(d *protocol.Dispatcher) {
	d.Register(MethodGetNextTask, handle(s.GetNextTask))
	d.Register(MethodReportTaskStatus, handle(s.ReportTaskStatus))
	d.Register(MethodReportObservation, handle(s.ReportObservation))
	d.Register(MethodReportTestFailure, handle(s.ReportTestFailure))
	d.Register(MethodAskQuestion, handle(s.AskQuestion))
}

// validator is implemented by every params type.
type validator interface {
	validate() fieldErrors
}

// handle adapts a typed tool function to a protocol.Handler: decode, validate,
// then call.
func handle[P any, PP interface {
	*P
	validator
}, R any](fn func(context.Context, *P) (R, error)) protocol.Handler {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var p P
		if err := protocol.DecodeParams(raw, &p); err != nil {
			return nil, err
		}
		if fe := PP(&p).validate(); len(fe) > 0 {
			return nil, protocol.InvalidParams(fe...)
		}
		return fn(ctx, &p)
	}
}

// fieldErrors collects parameter problems.
type fieldErrors []protocol.FieldError

func (f *fieldErrors) add(field, format string, args ...any) {
	*f = append(*f, protocol.FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (f *fieldErrors) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		f.add(field, "is required")
	}
}

// parsePriority accepts either queue priorities (P1..P3) or the report
// severity scale, which is mapped through report.PriorityForSeverity.
func parsePriority(s string) (task.Priority, bool) {
	if p := task.Priority(strings.ToUpper(s)); p.Valid() {
		return p, true
	}
	if sev := report.Severity(strings.ToLower(s)); sev.Valid() {
		return report.PriorityForSeverity(sev), true
	}
	return "", false
}

// NewTaskParams describes a task created from a report.
type NewTaskParams struct {
	Title              string   `json:"title"`
	Description        string   `json:"description"`
	Priority           string   `json:"priority,omitempty"`
	AcceptanceCriteria []string `json:"acceptanceCriteria,omitempty"`
	RelatedFiles       []string `json:"relatedFiles,omitempty"`
	EstimatedHours     float64  `json:"estimatedHours,omitempty"`
}

func (n *NewTaskParams) validate(field string, fe *fieldErrors) {
	fe.required(field+".title", n.Title)
	if n.Priority != "" {
		if _, ok := parsePriority(n.Priority); !ok {
			fe.add(field+".priority", "%q is not one of P1, P2, P3, critical, high, medium, low", n.Priority)
		}
	}
	if n.EstimatedHours < 0 {
		fe.add(field+".estimatedHours", "must be positive")
	}
}

// derive builds a task depending on source. fallback is used when no
// explicit priority was given.
func (n *NewTaskParams) derive(source *task.Task, fallback task.Priority, origin task.Origin) task.Task {
	priority := fallback
	if p, ok := parsePriority(n.Priority); ok {
		priority = p
	}
	desc := strings.TrimSpace(n.Description)
	if desc == "" {
		desc = n.Title
	}
	desc = fmt.Sprintf("%s\n\nRaised while working on %s (%s).", desc, source.ID, source.Title)
	criteria := n.AcceptanceCriteria
	if len(criteria) == 0 {
		criteria = []string{n.Title + " is resolved"}
	}
	return task.Task{
		Title:              n.Title,
		Description:        desc,
		Priority:           priority,
		Status:             task.StatusReady,
		Dependencies:       []string{source.ID},
		AcceptanceCriteria: criteria,
		EstimatedHours:     n.EstimatedHours,
		RelatedFiles:       n.RelatedFiles,
		FromPlanningTeam:   true,
		Metadata:           &task.Metadata{Origin: origin, SourceTaskID: source.ID},
	}
}

func summaries(tasks []task.Task, limit int) []task.Summary {
	if len(tasks) < limit {
		limit = len(tasks)
	}
	out := make([]task.Summary, limit)
	for i := range out {
		out[i] = tasks[i].Summarize()
	}
	return out
}
