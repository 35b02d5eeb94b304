package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Strob0t/taskrelay/internal/domain"
	"github.com/Strob0t/taskrelay/internal/domain/task"
	"github.com/Strob0t/taskrelay/internal/port/messagequeue"
)

// Intake admits tasks submitted by producers over the message queue.
type Intake struct {
	routing *RoutingService
	mq      messagequeue.Queue
}

// NewIntake creates the tasks.submit consumer.
func NewIntake(routing *RoutingService, mq messagequeue.Queue) *Intake {
	return &Intake{routing: routing, mq: mq}
}

// Run subscribes to tasks.submit and blocks until ctx is done.
func (in *Intake) Run(ctx context.Context) error {
	cancel, err := in.mq.Subscribe(ctx, messagequeue.SubjectTaskSubmit, in.Handle)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", messagequeue.SubjectTaskSubmit, err)
	}
	defer cancel()
	<-ctx.Done()
	return nil
}

// Handle admits one submitted task. Rejections that retrying cannot fix are
// logged and acknowledged; only unexpected failures are returned so the
// queue redelivers them.
func (in *Intake) Handle(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	var p messagequeue.TaskSubmitPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}

	stored, added, err := in.routing.Admit(ctx, fromSubmit(&p))
	switch {
	case errors.Is(err, domain.ErrValidation), errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrCapacity):
		slog.WarnContext(ctx, "submitted task rejected", "title", p.Title, "ticket_id", p.TicketID, "error", err)
		return nil
	case err != nil:
		return err
	}
	if !added {
		slog.InfoContext(ctx, "submitted task already queued", "task_id", stored.ID, "ticket_id", p.TicketID)
	}
	return nil
}

// fromSubmit maps a producer payload onto a task. Producers may send either
// queue priorities or the severity scale.
func fromSubmit(p *messagequeue.TaskSubmitPayload) task.Task {
	priority := task.Priority(p.Priority)
	if mapped, ok := parsePriority(p.Priority); ok {
		priority = mapped
	}
	return task.Task{
		ID:                 p.TaskID,
		Title:              p.Title,
		Description:        p.Description,
		Priority:           priority,
		Status:             task.Status(p.Status),
		Dependencies:       p.Dependencies,
		AcceptanceCriteria: p.AcceptanceCriteria,
		EstimatedHours:     p.EstimatedHours,
		RelatedFiles:       p.RelatedFiles,
		DesignReferences:   p.DesignReferences,
		ContextBundle:      p.ContextBundle,
		FromPlanningTeam:   p.FromPlanningTeam,
		Metadata: &task.Metadata{
			TicketID:          p.TicketID,
			Team:              p.Team,
			RoutingConfidence: p.RoutingConfidence,
			Escalated:         p.Escalated,
			Origin:            task.OriginProducer,
		},
	}
}
