package domain

import "fmt"

// Roles. Exactly one per user; the first registered user is promoted to
// RoleAdmin regardless of the requested role.
const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleMember  = "member"
)

const (
	UserStatusOnline  = "online"
	UserStatusOffline = "offline"
)

const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusCompleted  = "completed"
)

const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Notification types. Only task_assigned and task_updated are emitted by the
// fan-out engine; the rest are written by other collaborators.
const (
	NotificationTaskAssigned     = "task_assigned"
	NotificationTaskUpdated      = "task_updated"
	NotificationProjectUpdated   = "project_updated"
	NotificationCommentAdded     = "comment_added"
	NotificationDeadlineReminder = "deadline_reminder"
	NotificationSystem           = "system"
	NotificationDocument         = "document"
)

type User struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,manager,member"`
	Status    string `json:"status" enum:"online,offline"`
	CreatedAt string `json:"created_at" format:"date-time"`
	UpdatedAt string `json:"updated_at" format:"date-time"`

	PasswordHash string `json:"-"`
}

type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   string   `json:"created_at" format:"date-time"`
	UpdatedAt   string   `json:"updated_at" format:"date-time"`
}

type SubtaskCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

type Task struct {
	ID          string        `json:"id"`
	ProjectID   string        `json:"project_id"`
	Title       string        `json:"title"`
	Description string        `json:"description,omitempty"`
	Status      string        `json:"status" enum:"todo,in-progress,completed"`
	Priority    string        `json:"priority" enum:"low,medium,high"`
	Assignees   []string      `json:"assignees"`
	DueDate     *string       `json:"due_date,omitempty" format:"date-time"`
	Subtasks    SubtaskCounts `json:"subtasks"`
	CreatedBy   string        `json:"created_by"`
	CreatedAt   string        `json:"created_at" format:"date-time"`
	UpdatedAt   string        `json:"updated_at" format:"date-time"`
}

type Notification struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Sender    *string        `json:"sender,omitempty"`
	Type      string         `json:"type" enum:"task_assigned,task_updated,project_updated,comment_added,deadline_reminder,system,document"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"created_at" format:"date-time"`
	UpdatedAt string         `json:"updated_at" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// ValidationError marks a request rejected before any write happened.
type ValidationError struct {
	Field  string
	Reason string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleMember:
		return true
	}
	return false
}

func ValidTaskStatus(status string) bool {
	switch status {
	case StatusTodo, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func ValidTaskPriority(priority string) bool {
	switch priority {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}
