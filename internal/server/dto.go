package server

import (
	"taskhub/internal/domain"
	"taskhub/internal/engine"
)

// Request payloads

type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email" format:"email"`
	Password  string `json:"password"`
	Role      string `json:"role,omitempty" enum:"admin,manager,member"`
}

type LoginRequest struct {
	Email    string `json:"email" format:"email"`
	Password string `json:"password"`
}

type CreateProjectRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members,omitempty"`
}

type SubtasksRequest struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
}

type CreateTaskRequest struct {
	ProjectID   string           `json:"projectId"`
	Title       string           `json:"title"`
	Description string           `json:"description,omitempty"`
	Status      string           `json:"status,omitempty" enum:"todo,in-progress,completed"`
	Priority    string           `json:"priority,omitempty" enum:"low,medium,high"`
	Assignees   []string         `json:"assignees,omitempty"`
	DueDate     *string          `json:"dueDate,omitempty" format:"date-time"`
	Subtasks    *SubtasksRequest `json:"subtasks,omitempty"`
}

// UpdateTaskRequest carries a partial update. Absent fields stay untouched;
// fields present with a zero value still apply.
type UpdateTaskRequest struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Status      *string          `json:"status,omitempty" enum:"todo,in-progress,completed"`
	Priority    *string          `json:"priority,omitempty" enum:"low,medium,high"`
	Assignees   *[]string        `json:"assignees,omitempty"`
	DueDate     *string          `json:"dueDate,omitempty"`
	Subtasks    *SubtasksRequest `json:"subtasks,omitempty"`
}

func (r UpdateTaskRequest) toUpdate() engine.TaskUpdate {
	upd := engine.TaskUpdate{
		Title:       r.Title,
		Description: r.Description,
		Status:      r.Status,
		Priority:    r.Priority,
	}
	if r.Assignees != nil {
		upd.Assignees = *r.Assignees
		upd.AssigneesProvided = true
	}
	if r.DueDate != nil {
		upd.DueDate = r.DueDate
		upd.DueDateProvided = true
	}
	if r.Subtasks != nil {
		upd.Subtasks = &domain.SubtaskCounts{Total: r.Subtasks.Total, Completed: r.Subtasks.Completed}
	}
	return upd
}

// Response payloads

type UserResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Role      string `json:"role" enum:"admin,manager,member"`
	Status    string `json:"status" enum:"online,offline"`
	CreatedAt string `json:"createdAt" format:"date-time"`
}

type TokenResponse struct {
	Token string       `json:"token"`
	User  UserResponse `json:"user"`
}

type ProjectResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Members     []string `json:"members"`
	CreatedBy   string   `json:"createdBy"`
	CreatedAt   string   `json:"createdAt" format:"date-time"`
	UpdatedAt   string   `json:"updatedAt" format:"date-time"`
}

type TaskResponse struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"projectId"`
	Title       string          `json:"title"`
	Description string          `json:"description,omitempty"`
	Status      string          `json:"status" enum:"todo,in-progress,completed"`
	Priority    string          `json:"priority" enum:"low,medium,high"`
	Assignees   []string        `json:"assignees"`
	DueDate     *string         `json:"dueDate,omitempty"`
	Subtasks    SubtasksRequest `json:"subtasks"`
	CreatedBy   string          `json:"createdBy"`
	CreatedAt   string          `json:"createdAt" format:"date-time"`
	UpdatedAt   string          `json:"updatedAt" format:"date-time"`
}

type NotificationResponse struct {
	ID        string         `json:"id"`
	Recipient string         `json:"recipient"`
	Sender    *string        `json:"sender,omitempty"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
	CreatedAt string         `json:"createdAt" format:"date-time"`
	UpdatedAt string         `json:"updatedAt" format:"date-time"`
}

func userResponse(u domain.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Role:      u.Role,
		Status:    u.Status,
		CreatedAt: u.CreatedAt,
	}
}

func mapUsers(users []domain.User) []UserResponse {
	out := make([]UserResponse, 0, len(users))
	for _, u := range users {
		out = append(out, userResponse(u))
	}
	return out
}

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Members:     p.Members,
		CreatedBy:   p.CreatedBy,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	out := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		out = append(out, projectResponse(p))
	}
	return out
}

func taskResponse(t domain.Task) TaskResponse {
	return TaskResponse{
		ID:          t.ID,
		ProjectID:   t.ProjectID,
		Title:       t.Title,
		Description: t.Description,
		Status:      t.Status,
		Priority:    t.Priority,
		Assignees:   t.Assignees,
		DueDate:     t.DueDate,
		Subtasks:    SubtasksRequest{Total: t.Subtasks.Total, Completed: t.Subtasks.Completed},
		CreatedBy:   t.CreatedBy,
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

func mapTasks(items []domain.Task) []TaskResponse {
	out := make([]TaskResponse, 0, len(items))
	for _, t := range items {
		out = append(out, taskResponse(t))
	}
	return out
}

func notificationResponse(n domain.Notification) NotificationResponse {
	return NotificationResponse{
		ID:        n.ID,
		Recipient: n.Recipient,
		Sender:    n.Sender,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		Data:      n.Data,
		Read:      n.Read,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

func mapNotifications(items []domain.Notification) []NotificationResponse {
	out := make([]NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse(n))
	}
	return out
}
