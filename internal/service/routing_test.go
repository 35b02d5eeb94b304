package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Strob0t/taskrelay/internal/domain"
	"github.com/Strob0t/taskrelay/internal/domain/report"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/insight"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

func newRouting(t *testing.T, answerer insight.Answerer, cfg RoutingConfig) (*RoutingService, *fakeBroadcaster, *fakeQueue) {
	t.Helper()
	hub := &fakeBroadcaster{}
	mq := &fakeQueue{}
	return NewRoutingService(NewTaskQueue(QueueLimits{}), answerer, cfg, hub, mq), hub, mq
}

func TestRoute_BuildsDirectiveAndPublishes(t *testing.T) {
	svc, hub, mq := newRouting(t, nil, RoutingConfig{})
	ctx := context.Background()
	tk := newTask("t1", "Header", task.PriorityP1)
	tk.RelatedFiles = []string{"web/header.tsx"}
	if _, _, err := svc.Admit(ctx, tk); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	h, err := svc.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("Route: %v", err)
	}
	if h.Directive.TaskID != "t1" {
		t.Errorf("directive task = %q, want t1", h.Directive.TaskID)
	}
	if h.Directive.EstimatedTokens <= 0 {
		t.Errorf("expected a token estimate, got %d", h.Directive.EstimatedTokens)
	}
	if !h.Session.Active || h.Session.TaskID != "t1" {
		t.Errorf("unexpected session %+v", h.Session)
	}

	got, _ := svc.Queue().Get("t1")
	if got.Status != task.StatusInProgress {
		t.Errorf("status = %s, want in-progress", got.Status)
	}
	if n := len(hub.ofType(EventTaskRouted)); n != 1 {
		t.Errorf("expected 1 routed event, got %d", n)
	}
	msgs := mq.onSubject(messagequeue.SubjectTaskRouted)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 tasks.routed message, got %d", len(msgs))
	}
	var p messagequeue.TaskRoutedPayload
	if err := json.Unmarshal(msgs[0].data, &p); err != nil {
		t.Fatal(err)
	}
	if p.TaskID != "t1" || p.SessionID != h.Session.ID {
		t.Errorf("unexpected payload %+v", p)
	}
}

func TestRoute_OverBudgetStillRoutes(t *testing.T) {
	svc, _, _ := newRouting(t, nil, RoutingConfig{DirectiveBudget: 1})
	ctx := context.Background()
	if _, _, err := svc.Admit(ctx, newTask("t1", "Header", task.PriorityP2)); err != nil {
		t.Fatal(err)
	}
	h, err := svc.Route(ctx, "t1")
	if err != nil {
		t.Fatalf("over-budget directive should not be refused: %v", err)
	}
	if !h.Directive.OverBudget(1) {
		t.Error("expected directive to be over a budget of 1")
	}
}

func TestRoute_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown task", func(t *testing.T) {
		svc, _, _ := newRouting(t, nil, RoutingConfig{})
		if _, err := svc.Route(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("second task while one in progress", func(t *testing.T) {
		svc, _, _ := newRouting(t, nil, RoutingConfig{})
		_, _, _ = svc.Admit(ctx, newTask("a", "First", task.PriorityP1))
		_, _, _ = svc.Admit(ctx, newTask("b", "Second", task.PriorityP2))
		if _, err := svc.Route(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Route(ctx, "b"); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("dependency not completed", func(t *testing.T) {
		svc, _, _ := newRouting(t, nil, RoutingConfig{})
		_, _, _ = svc.Admit(ctx, newTask("a", "First", task.PriorityP2))
		dep := newTask("b", "Second", task.PriorityP1)
		dep.Dependencies = []string{"a"}
		_, _, _ = svc.Admit(ctx, dep)
		if _, err := svc.Route(ctx, "b"); !errors.Is(err, domain.ErrDependency) {
			t.Fatalf("expected ErrDependency, got %v", err)
		}
	})

	t.Run("completed task", func(t *testing.T) {
		svc, _, _ := newRouting(t, nil, RoutingConfig{})
		_, _, _ = svc.Admit(ctx, newTask("a", "First", task.PriorityP2))
		_, _ = svc.Route(ctx, "a")
		_, _ = svc.Complete(ctx, "a", "")
		if _, err := svc.Route(ctx, "a"); !errors.Is(err, domain.ErrTerminal) {
			t.Fatalf("expected ErrTerminal, got %v", err)
		}
	})
}

func TestComplete_PublishesFinished(t *testing.T) {
	svc, _, mq := newRouting(t, nil, RoutingConfig{})
	ctx := context.Background()
	_, _, _ = svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	if _, err := svc.Route(ctx, "t1"); err != nil {
		t.Fatal(err)
	}

	done, err := svc.Complete(ctx, "t1", "all good")
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if done.Status != task.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}
	if id := svc.Queue().CurrentTaskID(); id != "" {
		t.Errorf("slot still held by %q", id)
	}

	msgs := mq.onSubject(messagequeue.SubjectTaskFinished)
	if len(msgs) != 1 {
		t.Fatalf("expected 1 tasks.finished message, got %d", len(msgs))
	}
	var p messagequeue.TaskFinishedPayload
	if err := json.Unmarshal(msgs[0].data, &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != string(task.StatusCompleted) || p.Reason != "all good" {
		t.Errorf("unexpected payload %+v", p)
	}

	if _, err := svc.Complete(ctx, "t1", ""); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("second Complete: expected ErrTerminal, got %v", err)
	}
}

func TestFail_ThenReset(t *testing.T) {
	svc, _, _ := newRouting(t, nil, RoutingConfig{})
	ctx := context.Background()
	_, _, _ = svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	_, _ = svc.Route(ctx, "t1")

	failed, err := svc.Fail(ctx, "t1", "compile error")
	if err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if failed.Status != task.StatusFailed {
		t.Fatalf("status = %s, want failed", failed.Status)
	}
	if _, err := svc.Route(ctx, "t1"); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("failed task must not be routed without reset, got %v", err)
	}

	reset, err := svc.Reset(ctx, "t1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if reset.Status != task.StatusReady {
		t.Fatalf("status = %s, want ready", reset.Status)
	}
	if _, err := svc.Route(ctx, "t1"); err != nil {
		t.Fatalf("Route after reset: %v", err)
	}
}

func TestBlock_AnswersQuestion(t *testing.T) {
	ans := &fakeAnswerer{answer: report.Answer{Answer: "Use the shared HTTP client", Confidence: 0.9}}
	svc, _, _ := newRouting(t, ans, RoutingConfig{})
	ctx := context.Background()
	_, _, _ = svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	_, _ = svc.Route(ctx, "t1")

	res, err := svc.Block(ctx, "t1", "which HTTP client should I use?")
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if res.Task.Status != task.StatusBlocked {
		t.Errorf("status = %s, want blocked", res.Task.Status)
	}
	if res.Answer == nil || res.Answer.Answer != "Use the shared HTTP client" {
		t.Errorf("unexpected answer %+v", res.Answer)
	}
	if len(ans.asked) != 1 || ans.asked[0].TaskID != "t1" {
		t.Errorf("unexpected questions %+v", ans.asked)
	}
	if len(res.Task.BlockedBy) != 1 {
		t.Errorf("expected the reason in BlockedBy, got %v", res.Task.BlockedBy)
	}
}

func TestBlock_SlowAnswerDoesNotUndoBlock(t *testing.T) {
	ans := &fakeAnswerer{delay: time.Second}
	svc, _, _ := newRouting(t, ans, RoutingConfig{AskTimeout: 20 * time.Millisecond})
	ctx := context.Background()
	_, _, _ = svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	_, _ = svc.Route(ctx, "t1")

	start := time.Now()
	res, err := svc.Block(ctx, "t1", "stuck")
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Block waited %v, expected the ask timeout to cut it short", elapsed)
	}
	if res.Answer != nil {
		t.Errorf("expected no answer, got %+v", res.Answer)
	}
	if !strings.Contains(res.AnswerError, "deadline") {
		t.Errorf("expected a deadline error, got %q", res.AnswerError)
	}
	got, _ := svc.Queue().Get("t1")
	if got.Status != task.StatusBlocked {
		t.Errorf("status = %s, want blocked", got.Status)
	}
}

func TestBlock_RequiresInProgress(t *testing.T) {
	svc, _, _ := newRouting(t, &fakeAnswerer{}, RoutingConfig{})
	ctx := context.Background()
	_, _, _ = svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	if _, err := svc.Block(ctx, "t1", "stuck"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestAdmit_DuplicateNotCounted(t *testing.T) {
	svc, _, _ := newRouting(t, nil, RoutingConfig{})
	ctx := context.Background()
	first, added, err := svc.Admit(ctx, newTask("t1", "Header", task.PriorityP1))
	if err != nil || !added {
		t.Fatalf("first Admit: added=%v err=%v", added, err)
	}
	dup, added, err := svc.Admit(ctx, newTask("t2", "Header", task.PriorityP1))
	if err != nil {
		t.Fatal(err)
	}
	if added || dup.ID != first.ID {
		t.Errorf("expected existing task %s, got %s (added=%v)", first.ID, dup.ID, added)
	}
}
