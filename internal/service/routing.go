package service

import (
	"context"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/taskrelay/internal/adapter/otel"
	"github.com/Strob0t/taskrelay/internal/domain/directive"
	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/session"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/logger"
	"github.com/Strob0t/taskrelay/internal/port/broadcast"
	"github.com/Strob0t/taskrelay/internal/port/insight"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

// DefaultAskTimeout bounds the question asked when a task becomes blocked.
const DefaultAskTimeout = 30 * time.Second

// RoutingConfig configures the RoutingService.
type RoutingConfig struct {
	DirectiveBudget int           // soft limit in estimated tokens; 0 disables the check
	AskTimeout      time.Duration // bound on the question asked by Block
}

// Handoff is the result of routing a task.
type Handoff struct {
	Directive directive.RoutingDirective `json:"directive"`
	Session   session.Session            `json:"session"`
}

// BlockResult is the result of blocking a task. The block stands whether or
// not the question could be answered.
type BlockResult struct {
	Task        task.Task      `json:"task"`
	Answer      *report.Answer `json:"answer,omitempty"`
	AnswerError string         `json:"answerError,omitempty"`
}

// RoutingService hands tasks to the coding agent and applies the agent's
// completion, failure and block reports to the queue.
type RoutingService struct {
	queue    *TaskQueue
	answerer insight.Answerer
	cfg      RoutingConfig
	hub      broadcast.Broadcaster
	mq       messagequeue.Queue
	metrics  *cfotel.Metrics
}

// NewRoutingService creates a RoutingService. hub and mq may be nil.
func NewRoutingService(queue *TaskQueue, answerer insight.Answerer, cfg RoutingConfig, hub broadcast.Broadcaster, mq messagequeue.Queue) *RoutingService {
	if cfg.AskTimeout <= 0 {
		cfg.AskTimeout = DefaultAskTimeout
	}
	return &RoutingService{
		queue:    queue,
		answerer: answerer,
		cfg:      cfg,
		hub:      hub,
		mq:       mq,
	}
}

// SetMetrics attaches metric instruments.
func (s *RoutingService) SetMetrics(m *cfotel.Metrics) { s.metrics = m }

// Queue returns the store the service routes from.
func (s *RoutingService) Queue() *TaskQueue { return s.queue }

// Admit adds a task to the queue on behalf of a producer or a handler.
func (s *RoutingService) Admit(ctx context.Context, t task.Task) (task.Task, bool, error) {
	stored, added, err := s.queue.Add(t)
	if err != nil {
		return task.Task{}, false, err
	}
	if added {
		s.metrics.RecordAdded(ctx, string(stored.Priority))
	}
	return stored, added, nil
}

// Route hands task id to the agent. All preconditions are enforced by the
// store in one atomic step; the directive is built from the task as it was
// when it entered in-progress. An oversized directive is logged, not refused.
func (s *RoutingService) Route(ctx context.Context, id string) (Handoff, error) {
	ctx = logger.WithTaskID(ctx, id)
	ctx, span := cfotel.StartRouteSpan(ctx, id)
	defer span.End()

	started, sess, err := s.queue.Start(id)
	if err != nil {
		span.RecordError(err)
		return Handoff{}, err
	}

	d := directive.Build(&started)
	if d.OverBudget(s.cfg.DirectiveBudget) {
		slog.WarnContext(ctx, "directive exceeds token budget",
			"estimated_tokens", d.EstimatedTokens, "budget", s.cfg.DirectiveBudget)
	}
	slog.InfoContext(ctx, "task routed", "session_id", sess.ID, "priority", started.Priority, "estimated_tokens", d.EstimatedTokens)

	s.metrics.RecordRouted(ctx, string(started.Priority), d.EstimatedTokens)
	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, EventTaskRouted, started.Summarize())
	}
	publishJSON(ctx, s.mq, messagequeue.SubjectTaskRouted, messagequeue.TaskRoutedPayload{
		TaskID:          started.ID,
		SessionID:       sess.ID,
		EstimatedTokens: d.EstimatedTokens,
	})
	return Handoff{Directive: d, Session: sess}, nil
}

// Complete records that the agent finished task id.
func (s *RoutingService) Complete(ctx context.Context, id, output string) (task.Task, error) {
	t, err := s.queue.Complete(id)
	if err != nil {
		return task.Task{}, err
	}
	s.finished(ctx, &t, output)
	return t, nil
}

// Fail records that the agent failed task id. Retrying is an explicit Reset.
func (s *RoutingService) Fail(ctx context.Context, id, reason string) (task.Task, error) {
	t, err := s.queue.Fail(id)
	if err != nil {
		return task.Task{}, err
	}
	s.finished(ctx, &t, reason)
	return t, nil
}

// Block records that the agent is stuck on task id and asks the knowledge
// base about it. The question is bounded by the configured timeout; a slow or
// failed answer is reported in the result and never undoes the block.
func (s *RoutingService) Block(ctx context.Context, id, reason string) (BlockResult, error) {
	t, err := s.queue.Block(id, reason)
	if err != nil {
		return BlockResult{}, err
	}
	s.finished(ctx, &t, reason)

	res := BlockResult{Task: t}
	if s.answerer == nil {
		return res, nil
	}

	askCtx, cancel := context.WithTimeout(ctx, s.cfg.AskTimeout)
	defer cancel()
	answer, err := s.answerer.Answer(askCtx, report.Question{
		Text:    reason,
		TaskID:  id,
		Context: t.Title + "\n" + t.Description,
	})
	if err != nil {
		slog.WarnContext(logger.WithTaskID(ctx, id), "blocked task question unanswered", "error", err)
		res.AnswerError = err.Error()
		return res, nil
	}
	res.Answer = &answer
	return res, nil
}

// Reset returns a failed or blocked task to ready so it can be routed again.
func (s *RoutingService) Reset(ctx context.Context, id string) (task.Task, error) {
	t, err := s.queue.Reset(id)
	if err != nil {
		return task.Task{}, err
	}
	slog.InfoContext(logger.WithTaskID(ctx, id), "task reset to ready")
	return t, nil
}

func (s *RoutingService) finished(ctx context.Context, t *task.Task, reason string) {
	slog.InfoContext(logger.WithTaskID(ctx, t.ID), "task finished", "status", t.Status, "reason", reason)
	s.metrics.RecordFinished(ctx, string(t.Status))
	publishJSON(ctx, s.mq, messagequeue.SubjectTaskFinished, messagequeue.TaskFinishedPayload{
		TaskID: t.ID,
		Status: string(t.Status),
		Reason: reason,
	})
}

