package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cfotel "github.com/Strob0t/taskrelay/internal/adapter/otel"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/cache"
	"github.com/Strob0t/taskrelay/internal/resilience"
)

// DefaultPersistKey is the slot the queue is mirrored into.
const DefaultPersistKey = "task-queue"

// finalFlushTimeout bounds the flush performed after Run's context ends.
const finalFlushTimeout = 5 * time.Second

// taskRecord is the persisted shape of a task. ContextBundle is left out and
// CreatedAt travels as a string so a corrupt value cannot fail the load.
type taskRecord struct {
	ID                 string            `json:"taskId"`
	Title              string            `json:"title"`
	Description        string            `json:"description"`
	Priority           task.Priority     `json:"priority"`
	Status             task.Status       `json:"status"`
	Dependencies       []string          `json:"dependencies,omitempty"`
	BlockedBy          []string          `json:"blockedBy,omitempty"`
	AcceptanceCriteria []string          `json:"acceptanceCriteria"`
	EstimatedHours     float64           `json:"estimatedHours"`
	RelatedFiles       []string          `json:"relatedFiles,omitempty"`
	DesignReferences   map[string]string `json:"designReferences,omitempty"`
	FromPlanningTeam   bool              `json:"fromPlanningTeam"`
	CreatedAt          string            `json:"createdAt"`
	AssignedTo         string            `json:"assignedTo,omitempty"`
	Metadata           *task.Metadata    `json:"metadata,omitempty"`
}

func toRecord(t *task.Task) taskRecord {
	return taskRecord{
		ID:                 t.ID,
		Title:              t.Title,
		Description:        t.Description,
		Priority:           t.Priority,
		Status:             t.Status,
		Dependencies:       t.Dependencies,
		BlockedBy:          t.BlockedBy,
		AcceptanceCriteria: t.AcceptanceCriteria,
		EstimatedHours:     t.EstimatedHours,
		RelatedFiles:       t.RelatedFiles,
		DesignReferences:   t.DesignReferences,
		FromPlanningTeam:   t.FromPlanningTeam,
		CreatedAt:          t.CreatedAt.UTC().Format(time.RFC3339Nano),
		AssignedTo:         t.AssignedTo,
		Metadata:           t.Metadata,
	}
}

// fromRecord rebuilds a task. An empty or unparseable createdAt becomes now.
func fromRecord(r *taskRecord, now time.Time) task.Task {
	created, err := time.Parse(time.RFC3339Nano, r.CreatedAt)
	if err != nil || created.IsZero() {
		if r.CreatedAt != "" {
			slog.Warn("persisted task has invalid createdAt, using load time", "task_id", r.ID, "created_at", r.CreatedAt)
		}
		created = now
	}
	return task.Task{
		ID:                 r.ID,
		Title:              r.Title,
		Description:        r.Description,
		Priority:           r.Priority,
		Status:             r.Status,
		Dependencies:       r.Dependencies,
		BlockedBy:          r.BlockedBy,
		AcceptanceCriteria: r.AcceptanceCriteria,
		EstimatedHours:     r.EstimatedHours,
		RelatedFiles:       r.RelatedFiles,
		DesignReferences:   r.DesignReferences,
		FromPlanningTeam:   r.FromPlanningTeam,
		CreatedAt:          created,
		AssignedTo:         r.AssignedTo,
		Metadata:           r.Metadata,
	}
}

// PersistConfig configures a Persister.
type PersistConfig struct {
	Key      string
	Debounce time.Duration
}

// Persister mirrors the queue into a key/value slot. It is registered as a
// queue notifier: Notify only signals, and Run coalesces bursts of signals
// into one write after a quiet period. The queue stays authoritative; write
// failures are logged and never reach the caller that mutated the queue.
type Persister struct {
	queue    *TaskQueue
	store    cache.Cache
	breaker  *resilience.Breaker
	key      string
	debounce time.Duration
	kick     chan struct{}
	metrics  *cfotel.Metrics
	now      func() time.Time
}

// NewPersister creates a Persister. breaker may be nil.
func NewPersister(queue *TaskQueue, store cache.Cache, breaker *resilience.Breaker, cfg PersistConfig) *Persister {
	if cfg.Key == "" {
		cfg.Key = DefaultPersistKey
	}
	return &Persister{
		queue:    queue,
		store:    store,
		breaker:  breaker,
		key:      cfg.Key,
		debounce: cfg.Debounce,
		kick:     make(chan struct{}, 1),
		now:      time.Now,
	}
}

// SetMetrics attaches metric instruments.
func (p *Persister) SetMetrics(m *cfotel.Metrics) { p.metrics = m }

// Notify schedules a write. It never blocks.
func (p *Persister) Notify() {
	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Run performs debounced writes until ctx is cancelled, then flushes any
// pending change once more with a fresh bounded context.
func (p *Persister) Run(ctx context.Context) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending bool
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			if pending {
				flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalFlushTimeout)
				if err := p.Flush(flushCtx); err != nil {
					slog.Warn("final queue flush failed", "key", p.key, "error", err)
				}
				cancel()
			}
			return nil
		case <-p.kick:
			pending = true
			if timer == nil {
				timer = time.NewTimer(p.debounce)
			} else {
				timer.Reset(p.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			pending = false
			if err := p.Flush(ctx); err != nil {
				slog.Warn("queue flush failed", "key", p.key, "error", err)
			}
		}
	}
}

// Flush writes the current queue immediately. When the backend reports it
// is full, completed tasks are dropped from the payload and the write is
// retried once.
func (p *Persister) Flush(ctx context.Context) error {
	tasks := p.queue.Snapshot()
	if limit := p.queue.Limits().MaxSize; len(tasks) > limit {
		tasks = tasks[:limit]
	}

	ctx, span := cfotel.StartPersistSpan(ctx, p.key, len(tasks))
	defer span.End()

	n, err := p.write(ctx, tasks)
	if errors.Is(err, cache.ErrStorageFull) {
		trimmed := withoutCompleted(tasks)
		slog.Warn("persistence slot full, retrying without completed tasks",
			"key", p.key, "tasks", len(tasks), "kept", len(trimmed))
		n, err = p.write(ctx, trimmed)
	}
	p.metrics.RecordPersist(ctx, n, err)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("persist %s: %w", p.key, err)
	}
	slog.Debug("queue persisted", "key", p.key, "tasks", len(tasks), "bytes", n)
	return nil
}

func (p *Persister) write(ctx context.Context, tasks []task.Task) (int, error) {
	records := make([]taskRecord, len(tasks))
	for i := range tasks {
		records[i] = toRecord(&tasks[i])
	}
	data, err := json.Marshal(records)
	if err != nil {
		return 0, fmt.Errorf("encode queue: %w", err)
	}

	set := func(ctx context.Context) error {
		return p.store.Set(ctx, p.key, data, 0)
	}
	if p.breaker != nil {
		err = p.breaker.Execute(ctx, set)
	} else {
		err = set(ctx)
	}
	return len(data), err
}

// withoutCompleted drops completed tasks that no unfinished task depends on.
func withoutCompleted(tasks []task.Task) []task.Task {
	needed := task.Needed(tasks)
	out := make([]task.Task, 0, len(tasks))
	for i := range tasks {
		if tasks[i].Status != task.StatusCompleted || needed[tasks[i].ID] {
			out = append(out, tasks[i])
		}
	}
	return out
}

// Load reads the slot and restores the queue from it. A missing slot leaves
// the queue empty. It returns the number of tasks restored.
func (p *Persister) Load(ctx context.Context) (int, error) {
	data, ok, err := p.store.Get(ctx, p.key)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", p.key, err)
	}
	if !ok || len(data) == 0 {
		return 0, nil
	}

	var records []taskRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return 0, fmt.Errorf("decode %s: %w", p.key, err)
	}

	now := p.now()
	tasks := make([]task.Task, len(records))
	for i := range records {
		tasks[i] = fromRecord(&records[i], now)
	}
	n := p.queue.Restore(tasks)
	slog.Info("queue restored", "key", p.key, "records", len(records), "restored", n)
	return n, nil
}
