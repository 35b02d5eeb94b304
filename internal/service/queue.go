// Package service contains application services.
package service

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Strob0t/taskrelay/internal/domain"
	"github.com/Strob0t/taskrelay/internal/domain/session"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/broadcast"
)

// maxSessionHistory caps how many sessions, active or closed, are retained.
const maxSessionHistory = 256

// QueueLimits bounds the Task Store.
type QueueLimits struct {
	MaxSize           int
	DescriptionMinLen int
	MaxSessions       int
}

// QueueStatus is the aggregate view of the store.
type QueueStatus struct {
	TotalTasks     int                   `json:"totalTasks"`
	ByPriority     map[task.Priority]int `json:"byPriority"`
	ByStatus       map[task.Status]int   `json:"byStatus"`
	CurrentTask    *task.Summary         `json:"currentTask"`
	ActiveSessions int                   `json:"activeSessions"`
}

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Status   task.Status
	Priority task.Priority
}

func (f Filter) match(t *task.Task) bool {
	return (f.Status == "" || t.Status == f.Status) &&
		(f.Priority == "" || t.Priority == f.Priority)
}

// TaskQueue is the in-memory Task Store. All state lives behind one mutex and
// every returned task is a copy. Notifiers run after the lock is released.
type TaskQueue struct {
	mu        sync.RWMutex
	tasks     []*task.Task // insertion order
	byID      map[string]*task.Task
	current   string // id of the task holding the in-progress slot
	sessions  map[string]*session.Session
	limits    QueueLimits
	notifiers []broadcast.Notifier
	now       func() time.Time
}

// NewTaskQueue creates an empty store. Non-positive limits fall back to
// defaults.
func NewTaskQueue(limits QueueLimits, notifiers ...broadcast.Notifier) *TaskQueue {
	if limits.MaxSize <= 0 {
		limits.MaxSize = 1000
	}
	if limits.DescriptionMinLen <= 0 {
		limits.DescriptionMinLen = task.DefaultDescriptionMinLen
	}
	if limits.MaxSessions <= 0 {
		limits.MaxSessions = 1
	}
	return &TaskQueue{
		byID:      make(map[string]*task.Task),
		sessions:  make(map[string]*session.Session),
		limits:    limits,
		notifiers: notifiers,
		now:       time.Now,
	}
}

// Subscribe registers n to be notified after every mutation.
func (q *TaskQueue) Subscribe(n broadcast.Notifier) {
	q.mu.Lock()
	q.notifiers = append(q.notifiers, n)
	q.mu.Unlock()
}

// Limits returns the configured bounds.
func (q *TaskQueue) Limits() QueueLimits { return q.limits }

// mutate runs fn under the write lock and notifies subscribers when fn
// succeeds.
func (q *TaskQueue) mutate(fn func() error) error {
	q.mu.Lock()
	err := fn()
	notifiers := q.notifiers
	q.mu.Unlock()
	if err == nil {
		for _, n := range notifiers {
			n.Notify()
		}
	}
	return err
}

// normalize fills producer-omitted defaults.
func (q *TaskQueue) normalize(t *task.Task) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = q.now()
	}
	if t.EstimatedHours == 0 {
		t.EstimatedHours = task.DefaultEstimatedHours
	}
	if t.Status == "" {
		t.Status = task.StatusReady
	}
}

// Add admits t. When t duplicates a queued task (same ticket id, or same
// title and priority when no ticket id is set) the existing task is returned
// with added=false.
func (q *TaskQueue) Add(t task.Task) (stored task.Task, added bool, err error) {
	c := t.Clone()
	q.normalize(&c)
	if err := c.Validate(q.limits.DescriptionMinLen); err != nil {
		return task.Task{}, false, err
	}
	if c.Status == task.StatusInProgress {
		return task.Task{}, false, fmt.Errorf("%w: status: %s is entered only by routing", domain.ErrValidation, c.Status)
	}

	err = q.mutate(func() error {
		if dup := q.findDuplicate(&c); dup != nil {
			stored = dup.Clone()
			return errDuplicate
		}
		if _, exists := q.byID[c.ID]; exists {
			return fmt.Errorf("%w: task %s already exists", domain.ErrConflict, c.ID)
		}
		if len(q.tasks) >= q.limits.MaxSize {
			if !q.evictOldestCompleted(&c) {
				return fmt.Errorf("%w: queue holds %d tasks and no completed task can be evicted", domain.ErrCapacity, len(q.tasks))
			}
		}
		q.insert(&c)
		stored = c.Clone()
		return nil
	})
	if errors.Is(err, errDuplicate) {
		slog.Debug("duplicate task ignored", "task_id", stored.ID, "title", c.Title)
		return stored, false, nil
	}
	if err != nil {
		return task.Task{}, false, err
	}
	slog.Info("task added", "task_id", stored.ID, "priority", stored.Priority, "status", stored.Status)
	return stored, true, nil
}

// errDuplicate aborts mutate without notifying.
var errDuplicate = errors.New("duplicate")

func (q *TaskQueue) findDuplicate(t *task.Task) *task.Task {
	if ticket := t.TicketID(); ticket != "" {
		for _, existing := range q.tasks {
			if existing.TicketID() == ticket {
				return existing
			}
		}
		return nil
	}
	title := strings.TrimSpace(t.Title)
	for _, existing := range q.tasks {
		if strings.TrimSpace(existing.Title) == title && existing.Priority == t.Priority {
			return existing
		}
	}
	return nil
}

func (q *TaskQueue) insert(t *task.Task) {
	q.tasks = append(q.tasks, t)
	q.byID[t.ID] = t
}

// evictOldestCompleted removes the completed task with the earliest
// CreatedAt that neither an unfinished task nor incoming depends on. Caller
// holds the write lock.
func (q *TaskQueue) evictOldestCompleted(incoming *task.Task) bool {
	needed := q.neededLocked()
	for _, dep := range incoming.Dependencies {
		needed[dep] = true
	}
	victim := -1
	for i, t := range q.tasks {
		if t.Status != task.StatusCompleted || needed[t.ID] {
			continue
		}
		if victim < 0 || t.CreatedAt.Before(q.tasks[victim].CreatedAt) {
			victim = i
		}
	}
	if victim < 0 {
		return false
	}
	evicted := q.tasks[victim]
	q.tasks = append(q.tasks[:victim], q.tasks[victim+1:]...)
	delete(q.byID, evicted.ID)
	slog.Info("evicted completed task", "task_id", evicted.ID)
	return true
}

// neededLocked returns the ids that some unfinished task depends on.
func (q *TaskQueue) neededLocked() map[string]bool {
	needed := make(map[string]bool)
	for _, t := range q.tasks {
		if t.Status == task.StatusCompleted {
			continue
		}
		for _, dep := range t.Dependencies {
			needed[dep] = true
		}
	}
	return needed
}

// SetTasks replaces the whole store. Every task is validated first; on any
// failure nothing changes. Tasks beyond MaxSize are dropped.
func (q *TaskQueue) SetTasks(tasks []task.Task) error {
	next, current, err := q.prepare(tasks)
	if err != nil {
		return err
	}
	return q.mutate(func() error {
		q.replace(next, current)
		return nil
	})
}

func (q *TaskQueue) prepare(tasks []task.Task) ([]*task.Task, string, error) {
	var (
		next     []*task.Task
		seen     = make(map[string]bool, len(tasks))
		current  string
		problems []string
	)
	for i := range tasks {
		c := tasks[i].Clone()
		q.normalize(&c)
		if err := c.Validate(q.limits.DescriptionMinLen); err != nil {
			problems = append(problems, fmt.Sprintf("task %d (%s): %v", i, c.ID, err))
			continue
		}
		if seen[c.ID] {
			problems = append(problems, fmt.Sprintf("task %d: duplicate id %s", i, c.ID))
			continue
		}
		seen[c.ID] = true
		if c.Status == task.StatusInProgress {
			if current != "" {
				problems = append(problems, fmt.Sprintf("task %d: %s and %s are both in progress", i, current, c.ID))
				continue
			}
			current = c.ID
		}
		next = append(next, &c)
	}
	if len(problems) > 0 {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrValidation, strings.Join(problems, "; "))
	}
	if len(next) > q.limits.MaxSize {
		next = next[:q.limits.MaxSize]
	}
	return next, current, nil
}

// replace swaps in a prepared task list. Caller holds the write lock.
func (q *TaskQueue) replace(next []*task.Task, current string) {
	q.tasks = next
	q.byID = make(map[string]*task.Task, len(next))
	for _, t := range next {
		q.byID[t.ID] = t
	}
	q.current = ""
	if _, ok := q.byID[current]; ok {
		q.current = current
	}
	q.sessions = make(map[string]*session.Session)
}

// Get returns a copy of the task with id.
func (q *TaskQueue) Get(id string) (task.Task, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	t, ok := q.byID[id]
	if !ok {
		return task.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
	}
	return t.Clone(), nil
}

// Clear removes every task and session.
func (q *TaskQueue) Clear() {
	_ = q.mutate(func() error {
		q.replace(nil, "")
		return nil
	})
	slog.Info("queue cleared")
}

// Snapshot returns a copy of every task in insertion order.
func (q *TaskQueue) Snapshot() []task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.snapshotLocked()
}

func (q *TaskQueue) snapshotLocked() []task.Task {
	out := make([]task.Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.Clone()
	}
	return out
}

// List returns the tasks matching f in insertion order.
func (q *TaskQueue) List(f Filter) []task.Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var out []task.Task
	for _, t := range q.tasks {
		if f.match(t) {
			out = append(out, t.Clone())
		}
	}
	return out
}

// ReadyTasks returns the eligible tasks in scheduling order.
func (q *TaskQueue) ReadyTasks() []task.Task {
	return task.Ready(q.Snapshot())
}

// NextTask returns the head of ReadyTasks.
func (q *TaskQueue) NextTask() (task.Task, bool) {
	return task.Next(q.Snapshot())
}

// DependentsOf returns the ids of tasks that depend on id.
func (q *TaskQueue) DependentsOf(id string) []string {
	return task.Dependents(q.Snapshot(), id)
}

// Status returns the aggregate counters.
func (q *TaskQueue) Status() QueueStatus {
	q.mu.RLock()
	defer q.mu.RUnlock()

	counts := task.Count(q.snapshotLocked())
	st := QueueStatus{
		TotalTasks:     len(q.tasks),
		ByPriority:     counts.ByPriority,
		ByStatus:       counts.ByStatus,
		ActiveSessions: q.activeSessionsLocked(),
	}
	if t, ok := q.byID[q.current]; ok {
		sum := t.Summarize()
		st.CurrentTask = &sum
	}
	return st
}

// CurrentTaskID returns the id holding the in-progress slot, or "".
func (q *TaskQueue) CurrentTaskID() string {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.current
}

func (q *TaskQueue) activeSessionsLocked() int {
	n := 0
	for _, s := range q.sessions {
		if s.Active {
			n++
		}
	}
	return n
}

// Sessions returns the recorded sessions, oldest first. Closed sessions
// beyond maxSessionHistory are forgotten.
func (q *TaskQueue) Sessions() []session.Session {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]session.Session, 0, len(q.sessions))
	for _, s := range q.sessions {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// pruneSessionsLocked drops the oldest closed sessions once the history
// exceeds maxSessionHistory.
func (q *TaskQueue) pruneSessionsLocked() {
	if len(q.sessions) <= maxSessionHistory {
		return
	}
	closed := make([]*session.Session, 0, len(q.sessions))
	for _, s := range q.sessions {
		if !s.Active {
			closed = append(closed, s)
		}
	}
	sort.Slice(closed, func(i, j int) bool { return closed[i].EndedAt.Before(closed[j].EndedAt) })
	for _, s := range closed[:min(len(closed), len(q.sessions)-maxSessionHistory)] {
		delete(q.sessions, s.ID)
	}
}

// Start moves task id into progress. Every precondition is checked and the
// status flipped under one write lock, so of two concurrent callers exactly
// one wins the in-progress slot.
func (q *TaskQueue) Start(id string) (started task.Task, sess session.Session, err error) {
	err = q.mutate(func() error {
		t, ok := q.byID[id]
		if !ok {
			return fmt.Errorf("%w: task %s must be queued before it can be routed", domain.ErrNotFound, id)
		}
		if err := t.Validate(q.limits.DescriptionMinLen); err != nil {
			return err
		}
		if q.current != "" && q.current != id {
			return fmt.Errorf("%w: task %s is already in progress, finish it first", domain.ErrConflict, q.current)
		}
		if t.Status == task.StatusReady && len(t.BlockedBy) > 0 {
			return fmt.Errorf("%w: task %s is blocked by %s", domain.ErrConflict, id, strings.Join(t.BlockedBy, "; "))
		}
		if err := task.CheckTransition(id, t.Status, task.StatusInProgress); err != nil {
			return err
		}
		if n := q.activeSessionsLocked(); n >= q.limits.MaxSessions {
			return fmt.Errorf("%w: %d of %d sessions active", domain.ErrCapacity, n, q.limits.MaxSessions)
		}
		if unmet := q.unmetLocked(t); len(unmet) > 0 {
			return fmt.Errorf("%w: task %s waits on %s", domain.ErrDependency, id, strings.Join(unmet, ", "))
		}

		t.Status = task.StatusInProgress
		t.BlockedBy = nil
		q.current = id
		s := &session.Session{
			ID:        uuid.New().String(),
			TaskID:    id,
			Active:    true,
			StartedAt: q.now(),
		}
		q.sessions[s.ID] = s
		q.pruneSessionsLocked()
		started, sess = t.Clone(), *s
		return nil
	})
	return started, sess, err
}

func (q *TaskQueue) unmetLocked(t *task.Task) []string {
	var unmet []string
	for _, dep := range t.Dependencies {
		d, ok := q.byID[dep]
		if !ok || d.Status != task.StatusCompleted {
			unmet = append(unmet, dep)
		}
	}
	return unmet
}

// closeSessionsLocked ends every active session for taskID.
func (q *TaskQueue) closeSessionsLocked(taskID string) {
	now := q.now()
	for _, s := range q.sessions {
		if s.TaskID == taskID && s.Active {
			s.Close(now)
		}
	}
}

// finish applies an in-progress → to transition.
func (q *TaskQueue) finish(id string, to task.Status, reason string) (task.Task, error) {
	var out task.Task
	err := q.mutate(func() error {
		t, ok := q.byID[id]
		if !ok {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
		}
		if err := task.CheckTransition(id, t.Status, to); err != nil {
			return err
		}
		t.Status = to
		if to == task.StatusBlocked && reason != "" {
			t.BlockedBy = append(t.BlockedBy, reason)
		}
		q.closeSessionsLocked(id)
		if to != task.StatusBlocked && q.current == id {
			q.current = ""
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// Complete marks an in-progress task completed and frees the slot.
func (q *TaskQueue) Complete(id string) (task.Task, error) {
	return q.finish(id, task.StatusCompleted, "")
}

// Fail marks an in-progress task failed and frees the slot.
func (q *TaskQueue) Fail(id string) (task.Task, error) {
	return q.finish(id, task.StatusFailed, "")
}

// Block marks an in-progress task blocked and records reason. The task keeps
// the in-progress slot until it is routed again or reset.
func (q *TaskQueue) Block(id, reason string) (task.Task, error) {
	return q.finish(id, task.StatusBlocked, reason)
}

// Reset returns a failed or blocked task to ready, clearing its block
// reasons, and frees the slot if the task held it.
func (q *TaskQueue) Reset(id string) (task.Task, error) {
	var out task.Task
	err := q.mutate(func() error {
		t, ok := q.byID[id]
		if !ok {
			return fmt.Errorf("%w: task %s", domain.ErrNotFound, id)
		}
		if err := task.CheckTransition(id, t.Status, task.StatusReady); err != nil {
			return err
		}
		t.Status = task.StatusReady
		t.BlockedBy = nil
		q.closeSessionsLocked(id)
		if q.current == id {
			q.current = ""
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// Restore loads persisted tasks without notifying subscribers. Invalid
// records are skipped and logged rather than failing the load.
func (q *TaskQueue) Restore(tasks []task.Task) int {
	var (
		next    []*task.Task
		seen    = make(map[string]bool, len(tasks))
		current string
	)
	for i := range tasks {
		c := tasks[i].Clone()
		q.normalize(&c)
		if err := c.Validate(q.limits.DescriptionMinLen); err != nil {
			slog.Warn("skipping persisted task", "task_id", c.ID, "error", err)
			continue
		}
		if seen[c.ID] {
			continue
		}
		if c.Status == task.StatusInProgress {
			if current != "" {
				slog.Warn("second in-progress task restored as ready", "task_id", c.ID, "current", current)
				c.Status = task.StatusReady
			} else {
				current = c.ID
			}
		}
		seen[c.ID] = true
		next = append(next, &c)
		if len(next) == q.limits.MaxSize {
			break
		}
	}

	q.mu.Lock()
	q.replace(next, current)
	q.mu.Unlock()
	return len(next)
}
