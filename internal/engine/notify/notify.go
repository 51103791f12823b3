// Package notify implements notification creation and the task-update
// fan-out. Fan-out is best-effort: failures are logged and never surface to
// the caller of the triggering mutation.
package notify

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
	"taskhub/internal/repo"
)

// statusMessages maps a new task status to the human-readable fragment used
// in task_updated notifications.
var statusMessages = map[string]string{
	domain.StatusTodo:       "moved to To Do",
	domain.StatusInProgress: "moved to in progress",
	domain.StatusCompleted:  "completed",
}

// StatusMessage returns the message fragment for a status value, falling
// back to a generic fragment for unknown statuses.
func StatusMessage(status string) string {
	if msg, ok := statusMessages[status]; ok {
		return msg
	}
	return "updated"
}

type Service struct {
	Repo   repo.Repo
	Logger *log.Logger
	Now    func() time.Time
}

func (s Service) logger() *log.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return log.Default()
}

func (s Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// CreateParams describes a single notification to record.
type CreateParams struct {
	Recipient string
	Sender    string
	Type      string
	Title     string
	Message   string
	Data      map[string]any
}

// Create records one notification. Recipient and type are required.
func (s Service) Create(ctx context.Context, p CreateParams) (domain.Notification, error) {
	if p.Recipient == "" {
		return domain.Notification{}, domain.ValidationError{Field: "recipient", Reason: "required"}
	}
	if p.Type == "" {
		return domain.Notification{}, domain.ValidationError{Field: "type", Reason: "required"}
	}
	now := s.now().UTC().Format(time.RFC3339)
	n := domain.Notification{
		ID:        uuid.New().String(),
		Recipient: perm.NormalizeID(p.Recipient),
		Type:      p.Type,
		Title:     p.Title,
		Message:   p.Message,
		Data:      p.Data,
		Read:      false,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if p.Sender != "" {
		sender := perm.NormalizeID(p.Sender)
		n.Sender = &sender
	}
	if err := s.Repo.InsertNotification(ctx, n); err != nil {
		return domain.Notification{}, err
	}
	return n, nil
}

// TaskUpdateFanOut emits the notifications owed after a committed task
// update. It never returns an error: each failed write is logged and the
// remaining recipients are still attempted. Delivery is at-most-once; a
// crash after the update commit loses the batch.
func (s Service) TaskUpdateFanOut(ctx context.Context, updated domain.Task, actorID string, statusChanged bool, oldAssignees []string, assigneesProvided bool) {
	actor := perm.NormalizeID(actorID)

	if statusChanged {
		msg := fmt.Sprintf("Task %q was %s", updated.Title, StatusMessage(updated.Status))
		for _, assignee := range updated.Assignees {
			if perm.SameID(assignee, actor) {
				continue
			}
			if _, err := s.Create(ctx, CreateParams{
				Recipient: assignee,
				Sender:    actor,
				Type:      domain.NotificationTaskUpdated,
				Title:     "Task updated",
				Message:   msg,
				Data:      map[string]any{"taskId": updated.ID},
			}); err != nil {
				s.logger().Printf("notify: task_updated to %s for task %s failed: %v", assignee, updated.ID, err)
			}
		}
	}

	if assigneesProvided {
		old := make(map[string]bool, len(oldAssignees))
		for _, a := range oldAssignees {
			old[perm.NormalizeID(a)] = true
		}
		for _, assignee := range updated.Assignees {
			if old[perm.NormalizeID(assignee)] || perm.SameID(assignee, actor) {
				continue
			}
			if _, err := s.Create(ctx, CreateParams{
				Recipient: assignee,
				Sender:    actor,
				Type:      domain.NotificationTaskAssigned,
				Title:     "New task assigned",
				Message:   fmt.Sprintf("You have been assigned a new task: %q", updated.Title),
				Data:      map[string]any{"taskId": updated.ID},
			}); err != nil {
				s.logger().Printf("notify: task_assigned to %s for task %s failed: %v", assignee, updated.ID, err)
			}
		}
	}
}
