package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Strob0t/taskrelay/internal/domain"
	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/logger"
)

// TestResults summarizes the test run accompanying a status report.
type TestResults struct {
	Passed  bool   `json:"passed"`
	Total   int    `json:"total,omitempty"`
	Failed  int    `json:"failed,omitempty"`
	Summary string `json:"summary,omitempty"`
}

// ReportTaskStatusParams are the parameters of report-task-status.
type ReportTaskStatusParams struct {
	TaskID       string          `json:"taskId"`
	Outcome      report.Outcome  `json:"outcome"`
	Summary      string          `json:"summary,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	TestResults  *TestResults    `json:"testResults,omitempty"`
	Observations []string        `json:"observations,omitempty"`
	FollowUps    []NewTaskParams `json:"followUps,omitempty"`
}

func (p *ReportTaskStatusParams) validate() fieldErrors {
	var fe fieldErrors
	fe.required("taskId", p.TaskID)
	switch {
	case p.Outcome == "":
		fe.add("outcome", "is required")
	case !p.Outcome.Valid():
		fe.add("outcome", "%q is not one of done, failed, blocked, partial", p.Outcome)
	}
	if p.Outcome == report.OutcomeBlocked && strings.TrimSpace(p.Reason) == "" {
		fe.add("reason", "is required when outcome is blocked")
	}
	if p.TestResults != nil && (p.TestResults.Total < 0 || p.TestResults.Failed < 0) {
		fe.add("testResults", "counts must not be negative")
	}
	for i := range p.FollowUps {
		p.FollowUps[i].validate(fmt.Sprintf("followUps[%d]", i), &fe)
	}
	return fe
}

// Dashboard is the progress summary returned after a status report.
type Dashboard struct {
	Completed           int `json:"completed"`
	Total               int `json:"total"`
	PercentComplete     int `json:"percentComplete"`
	Blocked             int `json:"blocked"`
	PendingVerification int `json:"pendingVerification"`
}

// ReportTaskStatusResult is the result of report-task-status.
type ReportTaskStatusResult struct {
	Task              task.Task                      `json:"task"`
	VerificationTask  *task.Task                     `json:"verificationTask,omitempty"`
	VerificationError string                         `json:"verificationError,omitempty"`
	FollowUps         []task.Task                    `json:"followUps"`
	Observations      []report.ClassifiedObservation `json:"observations"`
	Answer            *report.Answer                 `json:"answer,omitempty"`
	AnswerError       string                         `json:"answerError,omitempty"`
	Dashboard         Dashboard                      `json:"dashboard"`
	Next              *task.Summary                  `json:"next"`
}

// ReportTaskStatus applies the agent's outcome for a task. done, failed and
// blocked drive the matching transitions; partial records progress on a task
// that stays in-progress. A done task whose tests passed, or that reported no
// tests, gets a verification task queued behind it unless it is a
// verification task itself.
func (s *ToolService) ReportTaskStatus(ctx context.Context, p *ReportTaskStatusParams) (ReportTaskStatusResult, error) {
	ctx = logger.WithTaskID(ctx, p.TaskID)

	res := ReportTaskStatusResult{FollowUps: []task.Task{}, Observations: []report.ClassifiedObservation{}}
	var err error
	switch p.Outcome {
	case report.OutcomeDone:
		res.Task, err = s.routing.Complete(ctx, p.TaskID, p.Summary)
	case report.OutcomeFailed:
		res.Task, err = s.routing.Fail(ctx, p.TaskID, firstNonEmpty(p.Reason, p.Summary))
	case report.OutcomeBlocked:
		var br BlockResult
		br, err = s.routing.Block(ctx, p.TaskID, p.Reason)
		res.Task, res.Answer, res.AnswerError = br.Task, br.Answer, br.AnswerError
	case report.OutcomePartial:
		res.Task, err = s.partial(ctx, p)
	}
	if err != nil {
		return ReportTaskStatusResult{}, err
	}

	if p.Outcome == report.OutcomeDone && needsVerification(&res.Task, p.TestResults) {
		// The completion is already committed; a full queue must not hide it.
		v, err := s.queueVerification(ctx, &res.Task)
		if err != nil {
			slog.WarnContext(ctx, "verification task not queued", "error", err)
			res.VerificationError = err.Error()
		} else {
			res.VerificationTask = &v
		}
	}

	for _, text := range p.Observations {
		res.Observations = append(res.Observations, report.ClassifiedObservation{
			Text:  text,
			Class: s.analyzer.ClassifyObservation(text),
		})
	}

	for i := range p.FollowUps {
		f := p.FollowUps[i].derive(&res.Task, res.Task.Priority, task.OriginFollowUp)
		stored, _, err := s.routing.Admit(ctx, f)
		if err != nil {
			return ReportTaskStatusResult{}, fmt.Errorf("follow-up %q: %w", f.Title, err)
		}
		res.FollowUps = append(res.FollowUps, stored)
	}

	res.Dashboard = s.dashboard()
	if next, ok := s.queue.NextTask(); ok {
		sum := next.Summarize()
		res.Next = &sum
	}
	return res, nil
}

// needsVerification reports whether done work gets a verification task:
// tests passed or none were reported, and the work is not itself a
// verification.
func needsVerification(t *task.Task, tests *TestResults) bool {
	if t.Metadata != nil && t.Metadata.Origin == task.OriginVerification {
		return false
	}
	return tests == nil || tests.Passed
}

func (s *ToolService) partial(ctx context.Context, p *ReportTaskStatusParams) (task.Task, error) {
	t, err := s.queue.Get(p.TaskID)
	if err != nil {
		return task.Task{}, err
	}
	if t.Status != task.StatusInProgress {
		return task.Task{}, fmt.Errorf("%w: partial progress on %s requires in-progress, task is %s",
			domain.ErrConflict, t.ID, t.Status)
	}
	slog.InfoContext(ctx, "partial progress reported", "summary", p.Summary)
	return t, nil
}

// queueVerification creates the task that verifies done. Its automation tier
// follows the priority of the verified task.
func (s *ToolService) queueVerification(ctx context.Context, done *task.Task) (task.Task, error) {
	criteria := make([]string, 0, len(done.AcceptanceCriteria)+1)
	for _, c := range done.AcceptanceCriteria {
		criteria = append(criteria, "Verified: "+c)
	}
	criteria = append(criteria, "No regressions in related tests")

	tier := report.TierForPriority(done.Priority)
	v := task.Task{
		Title: "Verify: " + done.Title,
		Description: fmt.Sprintf("Verify the completed work of %s (%s) against its acceptance criteria using %s automation.",
			done.ID, done.Title, tier),
		Priority:           done.Priority,
		Status:             task.StatusReady,
		Dependencies:       []string{done.ID},
		AcceptanceCriteria: criteria,
		EstimatedHours:     task.DefaultEstimatedHours,
		RelatedFiles:       done.RelatedFiles,
		DesignReferences: map[string]string{
			"automationTier": tier,
			"verifies":       done.ID,
		},
		FromPlanningTeam: true,
		Metadata:         &task.Metadata{Origin: task.OriginVerification, SourceTaskID: done.ID},
	}
	stored, added, err := s.routing.Admit(ctx, v)
	if err != nil {
		return task.Task{}, fmt.Errorf("verification task: %w", err)
	}
	if added {
		slog.InfoContext(ctx, "verification task queued", "verification_id", stored.ID, "tier", tier)
	}
	return stored, nil
}

func (s *ToolService) dashboard() Dashboard {
	tasks := s.queue.Snapshot()
	var d Dashboard
	d.Total = len(tasks)
	for i := range tasks {
		t := &tasks[i]
		switch t.Status {
		case task.StatusCompleted:
			d.Completed++
		case task.StatusBlocked:
			d.Blocked++
		}
		if t.Metadata != nil && t.Metadata.Origin == task.OriginVerification && t.Status != task.StatusCompleted {
			d.PendingVerification++
		}
	}
	if d.Total > 0 {
		d.PercentComplete = d.Completed * 100 / d.Total
	}
	return d
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
