package service

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Strob0t/taskrelay/internal/domain"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/broadcast"
)

func newTask(id, title string, p task.Priority) task.Task {
	return task.Task{
		ID:                 id,
		Title:              title,
		Description:        "Implement " + title + " end to end",
		Priority:           p,
		Status:             task.StatusReady,
		AcceptanceCriteria: []string{title + " works"},
		FromPlanningTeam:   true,
	}
}

func mustAdd(t *testing.T, q *TaskQueue, tk task.Task) task.Task {
	t.Helper()
	stored, added, err := q.Add(tk)
	if err != nil {
		t.Fatalf("Add(%s): %v", tk.ID, err)
	}
	if !added {
		t.Fatalf("Add(%s): unexpectedly deduplicated", tk.ID)
	}
	return stored
}

func TestAdd_RejectsNonPlanningTask(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	tk := newTask("t1", "Header", task.PriorityP1)
	tk.FromPlanningTeam = false

	_, _, err := q.Add(tk)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if got := q.Status().TotalTasks; got != 0 {
		t.Fatalf("expected 0 tasks, got %d", got)
	}
}

func TestAdd_RejectsInvalidFields(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	tests := []struct {
		name   string
		mutate func(*task.Task)
	}{
		{"empty title", func(tk *task.Task) { tk.Title = "" }},
		{"short description", func(tk *task.Task) { tk.Description = "short" }},
		{"no criteria", func(tk *task.Task) { tk.AcceptanceCriteria = nil }},
		{"bad priority", func(tk *task.Task) { tk.Priority = "P4" }},
		{"bad status", func(tk *task.Task) { tk.Status = "queued" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tk := newTask("bad", "Bad task", task.PriorityP2)
			tt.mutate(&tk)
			if _, _, err := q.Add(tk); !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestAdd_RoundTrip(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	in := newTask("t1", "Header", task.PriorityP2)
	in.Dependencies = []string{"t0"}
	in.RelatedFiles = []string{"src/Header.tsx"}
	in.DesignReferences = map[string]string{"figma": "frame-12"}
	in.EstimatedHours = 3
	in.Metadata = &task.Metadata{TicketID: "T-1", Team: "frontend", RoutingConfidence: 0.9}

	mustAdd(t, q, in)
	got, err := q.Get("t1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != in.Title || got.Description != in.Description || got.Priority != in.Priority ||
		got.Status != in.Status || got.EstimatedHours != 3 || got.Dependencies[0] != "t0" ||
		got.RelatedFiles[0] != "src/Header.tsx" || got.DesignReferences["figma"] != "frame-12" ||
		got.Metadata.TicketID != "T-1" || !got.FromPlanningTeam {
		t.Fatalf("round trip mismatch: %+v", got)
	}

	// Mutating the returned copy must not reach the store.
	got.AcceptanceCriteria[0] = "changed"
	again, _ := q.Get("t1")
	if again.AcceptanceCriteria[0] == "changed" {
		t.Fatal("store shares slices with callers")
	}
}

func TestAdd_Defaults(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	tk := newTask("", "Footer", task.PriorityP3)
	tk.Status = ""
	stored := mustAdd(t, q, tk)
	if stored.ID == "" {
		t.Fatal("expected generated id")
	}
	if stored.CreatedAt.IsZero() {
		t.Fatal("expected createdAt")
	}
	if stored.EstimatedHours != task.DefaultEstimatedHours {
		t.Fatalf("expected default estimate, got %v", stored.EstimatedHours)
	}
	if stored.Status != task.StatusReady {
		t.Fatalf("expected ready, got %s", stored.Status)
	}
}

func TestAdd_DeduplicatesByTicket(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	a := newTask("a", "Login form", task.PriorityP1)
	a.Metadata = &task.Metadata{TicketID: "SUP-7"}
	mustAdd(t, q, a)

	b := newTask("b", "Another title", task.PriorityP3)
	b.Metadata = &task.Metadata{TicketID: "SUP-7"}
	got, added, err := q.Add(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added || got.ID != "a" {
		t.Fatalf("expected existing task a, got %s (added=%v)", got.ID, added)
	}
	if q.Status().TotalTasks != 1 {
		t.Fatal("duplicate was inserted")
	}
}

func TestAdd_DeduplicatesByTitleAndPriority(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("a", "Login form", task.PriorityP1))

	if _, added, _ := q.Add(newTask("b", "Login form", task.PriorityP1)); added {
		t.Fatal("expected title+priority duplicate to be ignored")
	}
	// Same title at another priority is a different task.
	mustAdd(t, q, newTask("c", "Login form", task.PriorityP2))
}

func TestAdd_CapacityEvictsOldestCompleted(t *testing.T) {
	q := NewTaskQueue(QueueLimits{MaxSize: 2})
	old := newTask("old", "Old work", task.PriorityP2)
	old.Status = task.StatusCompleted
	old.CreatedAt = time.Now().Add(-time.Hour)
	mustAdd(t, q, old)
	mustAdd(t, q, newTask("live", "Live work", task.PriorityP2))

	mustAdd(t, q, newTask("new", "New work", task.PriorityP2))
	if _, err := q.Get("old"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected old to be evicted, got %v", err)
	}

	_, _, err := q.Add(newTask("over", "Overflow", task.PriorityP2))
	if !errors.Is(err, domain.ErrCapacity) {
		t.Fatalf("expected ErrCapacity, got %v", err)
	}
}

func TestAdd_CapacityKeepsCompletedDependencies(t *testing.T) {
	older := time.Now().Add(-2 * time.Hour)
	tests := []struct {
		name      string
		incoming  func() task.Task
		wantGone  string
		wantKept  []string
		wantError error
	}{
		{
			name:     "needed by an unfinished task",
			incoming: func() task.Task { return newTask("new", "New work", task.PriorityP2) },
			wantGone: "spare",
			wantKept: []string{"base"},
		},
		{
			name: "needed by the incoming task",
			incoming: func() task.Task {
				tk := newTask("new", "New work", task.PriorityP2)
				tk.Dependencies = []string{"spare"}
				return tk
			},
			wantError: domain.ErrCapacity,
			wantKept:  []string{"base", "spare"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := NewTaskQueue(QueueLimits{MaxSize: 3})
			base := newTask("base", "Base work", task.PriorityP2)
			base.Status = task.StatusCompleted
			base.CreatedAt = older
			mustAdd(t, q, base)
			spare := newTask("spare", "Spare work", task.PriorityP2)
			spare.Status = task.StatusCompleted
			spare.CreatedAt = older.Add(time.Hour)
			mustAdd(t, q, spare)
			live := newTask("live", "Live work", task.PriorityP2)
			live.Dependencies = []string{"base"}
			mustAdd(t, q, live)

			_, _, err := q.Add(tt.incoming())
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Fatalf("expected %v, got %v", tt.wantError, err)
				}
			} else if err != nil {
				t.Fatalf("Add: %v", err)
			}
			if tt.wantGone != "" {
				if _, err := q.Get(tt.wantGone); !errors.Is(err, domain.ErrNotFound) {
					t.Errorf("expected %s to be evicted, got %v", tt.wantGone, err)
				}
			}
			for _, id := range tt.wantKept {
				if _, err := q.Get(id); err != nil {
					t.Errorf("%s was evicted: %v", id, err)
				}
			}
		})
	}
}

func TestAdd_RejectsInProgressStatus(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("x", "X", task.PriorityP1))
	if _, _, err := q.Start("x"); err != nil {
		t.Fatalf("Start: %v", err)
	}

	second := newTask("y", "Y", task.PriorityP1)
	second.Status = task.StatusInProgress
	if _, _, err := q.Add(second); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if n := q.Status().ByStatus[task.StatusInProgress]; n != 1 {
		t.Errorf("in-progress count = %d, want 1", n)
	}
	if id := q.CurrentTaskID(); id != "x" {
		t.Errorf("current = %q, want x", id)
	}
}

func TestNextTask_PriorityBeatsInsertionOrder(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("A", "Task A", task.PriorityP2))
	mustAdd(t, q, newTask("B", "Task B", task.PriorityP1))

	next, ok := q.NextTask()
	if !ok || next.ID != "B" {
		t.Fatalf("expected B, got %+v", next)
	}
}

func TestReadyTasks_SortedAndGated(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	base := time.Now()
	add := func(id string, p task.Priority, offset time.Duration, deps ...string) {
		tk := newTask(id, "Task "+id, p)
		tk.CreatedAt = base.Add(offset)
		tk.Dependencies = deps
		mustAdd(t, q, tk)
	}
	add("p3", task.PriorityP3, 0)
	add("p1-late", task.PriorityP1, 2*time.Second)
	add("p1-early", task.PriorityP1, time.Second)
	add("p2", task.PriorityP2, 0)
	add("gated", task.PriorityP1, 0, "p3")

	ready := q.ReadyTasks()
	want := []string{"p1-early", "p1-late", "p2", "p3"}
	if len(ready) != len(want) {
		t.Fatalf("expected %d ready, got %d", len(want), len(ready))
	}
	for i, id := range want {
		if ready[i].ID != id {
			t.Fatalf("position %d: want %s, got %s", i, id, ready[i].ID)
		}
	}
}

func TestStart_OneThingAtATime(t *testing.T) {
	q := NewTaskQueue(QueueLimits{MaxSessions: 3})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	mustAdd(t, q, newTask("Y", "Task Y", task.PriorityP1))

	if _, _, err := q.Start("X"); err != nil {
		t.Fatalf("Start(X): %v", err)
	}
	_, _, err := q.Start("Y")
	if !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	y, _ := q.Get("Y")
	if y.Status != task.StatusReady {
		t.Fatalf("Y changed to %s", y.Status)
	}
	if q.CurrentTaskID() != "X" {
		t.Fatalf("expected X to hold the slot, got %q", q.CurrentTaskID())
	}
	if n := task.InProgressCount(q.Snapshot()); n != 1 {
		t.Fatalf("expected 1 in progress, got %d", n)
	}
}

func TestStart_UnknownTask(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	if _, _, err := q.Start("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStart_DependenciesNotMet(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("dep", "Dependency", task.PriorityP1))
	tk := newTask("child", "Child", task.PriorityP1)
	tk.Dependencies = []string{"dep"}
	mustAdd(t, q, tk)

	_, _, err := q.Start("child")
	if !errors.Is(err, domain.ErrDependency) {
		t.Fatalf("expected ErrDependency, got %v", err)
	}
	got, _ := q.Get("child")
	if got.Status != task.StatusReady {
		t.Fatalf("status changed to %s", got.Status)
	}
	if q.CurrentTaskID() != "" {
		t.Fatal("slot taken by failed route")
	}
}

func TestStart_RecordsSession(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	_, sess, err := q.Start("X")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !sess.Active || sess.TaskID != "X" || sess.ID == "" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if got := q.Status().ActiveSessions; got != 1 {
		t.Fatalf("expected 1 active session, got %d", got)
	}

	if _, err := q.Complete("X"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if got := q.Status().ActiveSessions; got != 0 {
		t.Fatalf("expected session closed, got %d active", got)
	}
	all := q.Sessions()
	if len(all) != 1 || all[0].ID != sess.ID || all[0].Active || all[0].EndedAt.IsZero() {
		t.Fatalf("expected one closed session in history, got %+v", all)
	}
}

func TestSessions_HistoryIsBounded(t *testing.T) {
	q := NewTaskQueue(QueueLimits{MaxSize: 2 * maxSessionHistory})
	for i := range maxSessionHistory + 10 {
		id := fmt.Sprintf("t%03d", i)
		mustAdd(t, q, newTask(id, "Task "+id, task.PriorityP2))
		if _, _, err := q.Start(id); err != nil {
			t.Fatalf("Start(%s): %v", id, err)
		}
		if _, err := q.Complete(id); err != nil {
			t.Fatalf("Complete(%s): %v", id, err)
		}
	}
	if got := len(q.Sessions()); got != maxSessionHistory {
		t.Fatalf("retained %d sessions, want %d", got, maxSessionHistory)
	}
}

func TestComplete_RequiresInProgress(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))

	if _, err := q.Complete("X"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	got, _ := q.Get("X")
	if got.Status != task.StatusReady {
		t.Fatalf("status changed to %s", got.Status)
	}
	if _, err := q.Complete("ghost"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComplete_ClearsSlot(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	mustAdd(t, q, newTask("Y", "Task Y", task.PriorityP2))
	if _, _, err := q.Start("X"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := q.Complete("X"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if q.CurrentTaskID() != "" {
		t.Fatal("slot not cleared")
	}
	if _, err := q.Complete("X"); !errors.Is(err, domain.ErrTerminal) {
		t.Fatalf("expected ErrTerminal on second completion, got %v", err)
	}
	if _, _, err := q.Start("Y"); err != nil {
		t.Fatalf("Start(Y) after completion: %v", err)
	}
}

func TestFail_ClearsSlotAndNeedsExplicitReset(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	_, _, _ = q.Start("X")

	if _, err := q.Fail("X"); err != nil {
		t.Fatalf("Fail: %v", err)
	}
	if q.CurrentTaskID() != "" {
		t.Fatal("slot not cleared")
	}
	if _, ok := q.NextTask(); ok {
		t.Fatal("failed task must not be eligible without a reset")
	}
	if _, err := q.Reset("X"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if next, ok := q.NextTask(); !ok || next.ID != "X" {
		t.Fatal("expected X to be eligible after reset")
	}
}

func TestBlock_KeepsSlotUntilReroute(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	mustAdd(t, q, newTask("Y", "Task Y", task.PriorityP2))
	_, _, _ = q.Start("X")

	blocked, err := q.Block("X", "waiting for API contract")
	if err != nil {
		t.Fatalf("Block: %v", err)
	}
	if blocked.Status != task.StatusBlocked || len(blocked.BlockedBy) != 1 {
		t.Fatalf("unexpected blocked task %+v", blocked)
	}
	if q.CurrentTaskID() != "X" {
		t.Fatal("block must not clear the slot")
	}
	if _, _, err := q.Start("Y"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict while X is blocked, got %v", err)
	}

	rerouted, _, err := q.Start("X")
	if err != nil {
		t.Fatalf("re-route blocked task: %v", err)
	}
	if rerouted.Status != task.StatusInProgress || len(rerouted.BlockedBy) != 0 {
		t.Fatalf("unexpected re-routed task %+v", rerouted)
	}
}

func TestReset_RejectsReady(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	if _, err := q.Reset("X"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSetTasks_AllOrNothing(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("keep", "Keep me", task.PriorityP1))

	bad := newTask("bad", "Bad", task.PriorityP1)
	bad.AcceptanceCriteria = nil
	err := q.SetTasks([]task.Task{newTask("a", "Task A", task.PriorityP1), bad})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := q.Get("keep"); err != nil {
		t.Fatal("store changed after rejected SetTasks")
	}

	if err := q.SetTasks([]task.Task{newTask("a", "Task A", task.PriorityP1)}); err != nil {
		t.Fatalf("SetTasks: %v", err)
	}
	if q.Status().TotalTasks != 1 {
		t.Fatal("expected replace-all")
	}
}

func TestSetTasks_RejectsTwoInProgress(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	a := newTask("a", "Task A", task.PriorityP1)
	a.Status = task.StatusInProgress
	b := newTask("b", "Task B", task.PriorityP1)
	b.Status = task.StatusInProgress
	if err := q.SetTasks([]task.Task{a, b}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestClear(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	_, _, _ = q.Start("X")
	q.Clear()
	st := q.Status()
	if st.TotalTasks != 0 || st.CurrentTask != nil || st.ActiveSessions != 0 {
		t.Fatalf("expected empty status, got %+v", st)
	}
}

func TestStatus_Counters(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	mustAdd(t, q, newTask("a", "Task A", task.PriorityP1))
	mustAdd(t, q, newTask("b", "Task B", task.PriorityP2))
	c := newTask("c", "Task C", task.PriorityP2)
	c.Status = task.StatusPending
	mustAdd(t, q, c)
	_, _, _ = q.Start("a")

	st := q.Status()
	if st.TotalTasks != 3 {
		t.Fatalf("expected 3, got %d", st.TotalTasks)
	}
	if st.ByPriority[task.PriorityP2] != 2 || st.ByPriority[task.PriorityP3] != 0 {
		t.Fatalf("unexpected byPriority %v", st.ByPriority)
	}
	if st.ByStatus[task.StatusInProgress] != 1 || st.ByStatus[task.StatusPending] != 1 || st.ByStatus[task.StatusFailed] != 0 {
		t.Fatalf("unexpected byStatus %v", st.ByStatus)
	}
	if st.CurrentTask == nil || st.CurrentTask.ID != "a" {
		t.Fatalf("unexpected current task %+v", st.CurrentTask)
	}
}

func TestNotifiersCalledAfterMutation(t *testing.T) {
	var calls atomic.Int32
	q := NewTaskQueue(QueueLimits{}, broadcast.NotifyFunc(func() { calls.Add(1) }))

	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	_, _, _ = q.Add(newTask("dup", "Task X", task.PriorityP1)) // duplicate, no notify
	_, _, _ = q.Start("X")
	_, _ = q.Complete("X")
	_, _ = q.Complete("X") // rejected, no notify

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected 3 notifications, got %d", got)
	}
}

func TestNotifierMayReadQueue(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	var seen int
	q.Subscribe(broadcast.NotifyFunc(func() { seen = q.Status().TotalTasks }))
	mustAdd(t, q, newTask("X", "Task X", task.PriorityP1))
	if seen != 1 {
		t.Fatalf("notifier saw %d tasks", seen)
	}
}

func TestStart_ConcurrentRace(t *testing.T) {
	for round := range 20 {
		q := NewTaskQueue(QueueLimits{MaxSessions: 10})
		const n = 8
		for i := range n {
			mustAdd(t, q, newTask(fmt.Sprintf("t%d", i), fmt.Sprintf("Task %d", i), task.PriorityP1))
		}

		var (
			wg        sync.WaitGroup
			successes atomic.Int32
		)
		for i := range n {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := q.Start(fmt.Sprintf("t%d", i)); err == nil {
					successes.Add(1)
				} else if !errors.Is(err, domain.ErrConflict) {
					t.Errorf("unexpected error %v", err)
				}
			}()
		}
		wg.Wait()

		if got := successes.Load(); got != 1 {
			t.Fatalf("round %d: expected exactly 1 success, got %d", round, got)
		}
		if got := task.InProgressCount(q.Snapshot()); got != 1 {
			t.Fatalf("round %d: expected 1 in progress, got %d", round, got)
		}
	}
}

func TestConcurrentAddAndRead(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _, _ = q.Add(newTask(fmt.Sprintf("t%d", i), fmt.Sprintf("Task %d", i), task.Priorities[i%3]))
		}()
		go func() {
			defer wg.Done()
			ready := q.ReadyTasks()
			for j := 1; j < len(ready); j++ {
				if ready[j].Priority.Rank() < ready[j-1].Priority.Rank() {
					t.Errorf("torn ready view at %d", j)
				}
			}
		}()
	}
	wg.Wait()
	if got := q.Status().TotalTasks; got != 50 {
		t.Fatalf("expected 50 tasks, got %d", got)
	}
}

func TestRestore_SkipsInvalidAndKeepsOneInProgress(t *testing.T) {
	q := NewTaskQueue(QueueLimits{})
	a := newTask("a", "Task A", task.PriorityP1)
	a.Status = task.StatusInProgress
	b := newTask("b", "Task B", task.PriorityP1)
	b.Status = task.StatusInProgress
	bad := newTask("bad", "Bad", task.PriorityP1)
	bad.FromPlanningTeam = false

	if n := q.Restore([]task.Task{a, b, bad}); n != 2 {
		t.Fatalf("expected 2 restored, got %d", n)
	}
	if q.CurrentTaskID() != "a" {
		t.Fatalf("expected a to hold the slot, got %q", q.CurrentTaskID())
	}
	got, _ := q.Get("b")
	if got.Status != task.StatusReady {
		t.Fatalf("expected b demoted to ready, got %s", got.Status)
	}
}
