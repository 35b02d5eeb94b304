package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/logger"
)

// Alert sources.
const (
	SourceObservation = "report-observation"
	SourceTestFailure = "report-test-failure"
)

// ReportObservationParams are the parameters of report-observation.
type ReportObservationParams struct {
	TaskID       string                 `json:"taskId"`
	Observation  string                 `json:"observation"`
	Severity     report.Severity        `json:"severity"`
	Type         report.ObservationType `json:"type"`
	RelatedFiles []string               `json:"relatedFiles,omitempty"`
	CreateTask   bool                   `json:"createTask,omitempty"`
	NewTask      *NewTaskParams         `json:"newTask,omitempty"`
}

func (p *ReportObservationParams) validate() fieldErrors {
	var fe fieldErrors
	fe.required("taskId", p.TaskID)
	fe.required("observation", p.Observation)
	switch {
	case p.Severity == "":
		fe.add("severity", "is required")
	case !p.Severity.Valid():
		fe.add("severity", "%q is not one of critical, high, medium, low", p.Severity)
	}
	switch {
	case p.Type == "":
		fe.add("type", "is required")
	case !p.Type.Valid():
		fe.add("type", "%q is not a known observation type", p.Type)
	}
	if p.CreateTask {
		if p.NewTask == nil {
			fe.add("newTask", "is required when createTask is set")
		} else {
			p.NewTask.validate("newTask", &fe)
		}
	}
	return fe
}

// ReportObservationResult is the result of report-observation.
type ReportObservationResult struct {
	Observation   report.Observation `json:"recorded"`
	Task          *task.Task         `json:"task,omitempty"`
	QueuePosition string             `json:"queuePosition,omitempty"`
	Alert         *report.Alert      `json:"alert,omitempty"`
}

// ReportObservation records a note about a task. On request it queues a task
// depending on the observed one, prioritized by severity unless the caller
// chose a priority. critical and high notes and architecture concerns also
// raise an alert.
func (s *ToolService) ReportObservation(ctx context.Context, p *ReportObservationParams) (ReportObservationResult, error) {
	ctx = logger.WithTaskID(ctx, p.TaskID)
	source, err := s.queue.Get(p.TaskID)
	if err != nil {
		return ReportObservationResult{}, err
	}

	obs := report.Observation{
		ID:           uuid.New().String(),
		TaskID:       p.TaskID,
		Text:         p.Observation,
		Severity:     p.Severity,
		Type:         p.Type,
		RelatedFiles: p.RelatedFiles,
		RecordedAt:   s.now().UTC(),
	}
	slog.InfoContext(ctx, "observation recorded",
		"observation_id", obs.ID, "severity", obs.Severity, "type", obs.Type)
	res := ReportObservationResult{Observation: obs}

	if p.CreateTask {
		nt := p.NewTask.derive(&source, report.PriorityForSeverity(p.Severity), task.OriginObservation)
		nt.RelatedFiles = mergeFiles(nt.RelatedFiles, p.RelatedFiles)
		nt.DesignReferences = map[string]string{
			"observationId":   obs.ID,
			"observationType": string(obs.Type),
		}
		stored, _, err := s.routing.Admit(ctx, nt)
		if err != nil {
			return ReportObservationResult{}, fmt.Errorf("observation task: %w", err)
		}
		res.Task = &stored
		res.QueuePosition = report.QueuePositionHint(p.Severity)
	}

	if obs.RaisesAlert() {
		a := s.alerts.Raise(ctx, report.Alert{
			Message:                fmt.Sprintf("%s %s on %s: %s", obs.Severity, obs.Type, source.Title, obs.Text),
			Severity:               obs.Severity,
			TaskID:                 obs.TaskID,
			Source:                 SourceObservation,
			RequiresHumanAttention: obs.Severity == report.SeverityCritical || obs.Type == report.TypeArchitectureConcern,
		})
		res.Alert = &a
	}
	return res, nil
}

// ReportTestFailureParams are the parameters of report-test-failure.
type ReportTestFailureParams struct {
	report.TestFailure
}

func (p *ReportTestFailureParams) validate() fieldErrors {
	var fe fieldErrors
	fe.required("taskId", p.TaskID)
	fe.required("testName", p.TestName)
	fe.required("errorMessage", p.ErrorMessage)
	return fe
}

// ReportTestFailureResult is the result of report-test-failure.
type ReportTestFailureResult struct {
	RootCause         report.RootCause `json:"rootCause"`
	Dependents        []string         `json:"dependents"`
	BlocksDependents  bool             `json:"blocksDependents"`
	InvestigationTask *task.Task       `json:"investigationTask,omitempty"`
	Alert             report.Alert     `json:"alert"`
}

// ReportTestFailure analyzes a failing test against the task it belongs to.
// Every failure raises a critical alert; it needs a human when the test used
// to pass or when other tasks wait on the failing one.
func (s *ToolService) ReportTestFailure(ctx context.Context, p *ReportTestFailureParams) (ReportTestFailureResult, error) {
	ctx = logger.WithTaskID(ctx, p.TaskID)
	source, err := s.queue.Get(p.TaskID)
	if err != nil {
		return ReportTestFailureResult{}, err
	}

	rc := s.analyzer.RootCause(p.ErrorMessage, p.PossibleCauses)
	dependents := s.queue.DependentsOf(p.TaskID)
	if dependents == nil {
		dependents = []string{}
	}
	res := ReportTestFailureResult{
		RootCause:        rc,
		Dependents:       dependents,
		BlocksDependents: len(dependents) > 0,
	}
	slog.InfoContext(ctx, "test failure reported",
		"test", p.TestName, "category", rc.Category, "dependents", len(dependents))

	if p.NeedsInvestigation {
		inv, err := s.queueInvestigation(ctx, &source, p, rc)
		if err != nil {
			return ReportTestFailureResult{}, err
		}
		res.InvestigationTask = &inv
	}

	res.Alert = s.alerts.Raise(ctx, report.Alert{
		Message:                fmt.Sprintf("Test %s failed on %s: %s", p.TestName, source.Title, rc.LikelyCause),
		Severity:               report.SeverityCritical,
		TaskID:                 p.TaskID,
		Source:                 SourceTestFailure,
		RequiresHumanAttention: p.PreviouslyPassed || res.BlocksDependents,
	})
	return res, nil
}

func (s *ToolService) queueInvestigation(ctx context.Context, source *task.Task, p *ReportTestFailureParams, rc report.RootCause) (task.Task, error) {
	var desc strings.Builder
	fmt.Fprintf(&desc, "Test %s fails on %s (%s).\n\nError: %s\n\nLikely cause: %s\n",
		p.TestName, source.ID, source.Title, p.ErrorMessage, rc.LikelyCause)
	if len(rc.Suggestions) > 0 {
		desc.WriteString("\nStart with:\n")
		for _, sg := range rc.Suggestions {
			fmt.Fprintf(&desc, "- %s\n", sg)
		}
	}

	var files []string
	if p.TestFile != "" {
		files = []string{p.TestFile}
	}
	inv := task.Task{
		Title:        "Investigate failing test " + p.TestName,
		Description:  desc.String(),
		Priority:     report.PriorityForSeverity(report.SeverityCritical),
		Status:       task.StatusReady,
		Dependencies: []string{source.ID},
		AcceptanceCriteria: []string{
			"Root cause of " + p.TestName + " identified",
			p.TestName + " passes",
		},
		RelatedFiles: mergeFiles(files, source.RelatedFiles),
		DesignReferences: map[string]string{
			"failureCategory": string(rc.Category),
			"testName":        p.TestName,
		},
		FromPlanningTeam: true,
		Metadata:         &task.Metadata{Origin: task.OriginInvestigation, SourceTaskID: source.ID},
	}
	stored, _, err := s.routing.Admit(ctx, inv)
	if err != nil {
		return task.Task{}, fmt.Errorf("investigation task: %w", err)
	}
	return stored, nil
}

// AskQuestionParams are the parameters of ask-question.
type AskQuestionParams struct {
	report.Question
}

func (p *AskQuestionParams) validate() fieldErrors {
	var fe fieldErrors
	fe.required("question", p.Text)
	return fe
}

// AskQuestion answers a question from the knowledge base.
func (s *ToolService) AskQuestion(ctx context.Context, p *AskQuestionParams) (report.Answer, error) {
	if p.TaskID != "" {
		ctx = logger.WithTaskID(ctx, p.TaskID)
	}
	ctx, cancel := context.WithTimeout(ctx, s.askTimeout)
	defer cancel()
	a, err := s.answerer.Answer(ctx, p.Question)
	if err != nil {
		return report.Answer{}, fmt.Errorf("answer question: %w", err)
	}
	slog.DebugContext(ctx, "question answered", "confidence", a.Confidence, "topics", a.Topics)
	return a, nil
}

// mergeFiles appends extra to files, skipping duplicates.
func mergeFiles(files, extra []string) []string {
	seen := make(map[string]bool, len(files)+len(extra))
	out := make([]string, 0, len(files)+len(extra))
	for _, f := range append(append([]string{}, files...), extra...) {
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
