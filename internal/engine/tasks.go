package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
	"taskhub/internal/repo"
)

type TaskCreateOptions struct {
	ProjectID   string
	Title       string
	Description string
	Status      string
	Priority    string
	Assignees   []string
	DueDate     *string
	Subtasks    *domain.SubtaskCounts
}

// TaskUpdate carries a partial task mutation. A nil pointer means the field
// was absent from the request; a non-nil pointer applies, including pointers
// to zero values. Assignees follow the same rule through AssigneesProvided.
type TaskUpdate struct {
	Title             *string
	Description       *string
	Status            *string
	Priority          *string
	Assignees         []string
	AssigneesProvided bool
	DueDate           *string
	DueDateProvided   bool
	Subtasks          *domain.SubtaskCounts
}

// CreateTask creates a task in an existing project. Requires assign_tasks or
// manage_all_tasks. Status and priority default to todo/medium; with no
// explicit assignee list the creator is assigned.
func (e Engine) CreateTask(ctx context.Context, principal *domain.User, opts TaskCreateOptions) (domain.Task, error) {
	if principal == nil {
		return domain.Task{}, perm.UnauthenticatedError{}
	}
	if !perm.HasAny(principal, perm.AssignTasks, perm.ManageAllTasks) {
		return domain.Task{}, perm.ForbiddenError{Permission: perm.AssignTasks}
	}

	opts.Title = strings.TrimSpace(opts.Title)
	if opts.Title == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "required"}
	}
	if opts.ProjectID == "" {
		return domain.Task{}, domain.ValidationError{Field: "projectId", Reason: "required"}
	}
	if opts.Status == "" {
		opts.Status = domain.StatusTodo
	}
	if !domain.ValidTaskStatus(opts.Status) {
		return domain.Task{}, domain.ValidationError{Field: "status", Reason: "unknown status"}
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidTaskPriority(opts.Priority) {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if opts.Subtasks != nil {
		if err := validateSubtasks(*opts.Subtasks); err != nil {
			return domain.Task{}, err
		}
	}

	if _, err := e.Repo.GetProject(ctx, opts.ProjectID); err != nil {
		return domain.Task{}, err
	}

	assignees := normalizeIDs(opts.Assignees)
	if len(assignees) == 0 {
		assignees = []string{perm.NormalizeID(principal.ID)}
	}
	if err := e.requireUsersExist(ctx, "assignees", assignees); err != nil {
		return domain.Task{}, err
	}

	t := domain.Task{
		ID:          uuid.NewString(),
		ProjectID:   opts.ProjectID,
		Title:       opts.Title,
		Description: strings.TrimSpace(opts.Description),
		Status:      opts.Status,
		Priority:    opts.Priority,
		Assignees:   assignees,
		DueDate:     opts.DueDate,
		CreatedBy:   principal.ID,
		CreatedAt:   e.timestamp(),
		UpdatedAt:   e.timestamp(),
	}
	if opts.Subtasks != nil {
		t.Subtasks = *opts.Subtasks
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}
	return t, nil
}

// UpdateTask applies a partial mutation under the task update rule. Full
// editors are principals with manage_all_tasks or assign_tasks, plus the
// task's creator. An assignee with update_own_tasks but no full edit right
// may change status, and only status: a request from such a principal that
// also touches title, description, priority, assignees or the due date is
// rejected whole, with nothing written. Notification fan-out runs after the
// transaction commits and cannot fail the update.
func (e Engine) UpdateTask(ctx context.Context, principal *domain.User, taskID string, upd TaskUpdate) (domain.Task, error) {
	if principal == nil {
		return domain.Task{}, perm.UnauthenticatedError{}
	}

	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, err
	}

	isAssignee := containsID(t.Assignees, principal.ID)
	isCreator := perm.SameID(t.CreatedBy, principal.ID)

	canFullyUpdate := perm.Has(principal, perm.ManageAllTasks) ||
		perm.Has(principal, perm.AssignTasks) ||
		isCreator
	canUpdateStatusOnly := isAssignee && perm.Has(principal, perm.UpdateOwnTasks)

	if !canFullyUpdate && !canUpdateStatusOnly {
		return domain.Task{}, perm.ForbiddenError{}
	}
	if !canFullyUpdate {
		if f := restrictedField(upd); f != "" {
			return domain.Task{}, perm.FieldForbiddenError{Field: f}
		}
	}

	if upd.Status != nil && !domain.ValidTaskStatus(*upd.Status) {
		return domain.Task{}, domain.ValidationError{Field: "status", Reason: "unknown status"}
	}
	if upd.Priority != nil && !domain.ValidTaskPriority(*upd.Priority) {
		return domain.Task{}, domain.ValidationError{Field: "priority", Reason: "unknown priority"}
	}
	if upd.Title != nil && strings.TrimSpace(*upd.Title) == "" {
		return domain.Task{}, domain.ValidationError{Field: "title", Reason: "required"}
	}
	if upd.Subtasks != nil {
		if err := validateSubtasks(*upd.Subtasks); err != nil {
			return domain.Task{}, err
		}
	}

	oldStatus := t.Status
	oldAssignees := t.Assignees

	if upd.Title != nil {
		t.Title = strings.TrimSpace(*upd.Title)
	}
	if upd.Description != nil {
		t.Description = strings.TrimSpace(*upd.Description)
	}
	if upd.Status != nil {
		t.Status = *upd.Status
	}
	if upd.Priority != nil {
		t.Priority = *upd.Priority
	}
	if upd.AssigneesProvided {
		assignees := normalizeIDs(upd.Assignees)
		if err := e.requireUsersExist(ctx, "assignees", assignees); err != nil {
			return domain.Task{}, err
		}
		t.Assignees = assignees
	}
	if upd.DueDateProvided {
		if upd.DueDate == nil || *upd.DueDate == "" {
			t.DueDate = nil
		} else {
			t.DueDate = upd.DueDate
		}
	}
	if upd.Subtasks != nil {
		t.Subtasks = *upd.Subtasks
	}
	t.UpdatedAt = e.timestamp()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Task{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.UpdateTask(ctx, tx, t); err != nil {
		return domain.Task{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Task{}, err
	}

	statusChanged := upd.Status != nil && *upd.Status != oldStatus
	e.Notify.TaskUpdateFanOut(ctx, t, principal.ID, statusChanged, oldAssignees, upd.AssigneesProvided)

	return t, nil
}

// ListTasks returns tasks within the principal's visibility, optionally
// narrowed by project and status.
func (e Engine) ListTasks(ctx context.Context, principal *domain.User, projectID, status string) ([]domain.Task, error) {
	if principal == nil {
		return nil, perm.UnauthenticatedError{}
	}
	if status != "" && !domain.ValidTaskStatus(status) {
		return nil, domain.ValidationError{Field: "status", Reason: "unknown status"}
	}
	f := repo.TaskFilters{
		Scope:     taskScope(principal),
		UserID:    principal.ID,
		ProjectID: projectID,
		Status:    status,
	}
	return e.Repo.ListTasks(ctx, f)
}

// GetTask fetches a single task under the same visibility rule as ListTasks.
// Invisible tasks read as not found.
func (e Engine) GetTask(ctx context.Context, principal *domain.User, id string) (domain.Task, error) {
	if principal == nil {
		return domain.Task{}, perm.UnauthenticatedError{}
	}
	t, err := e.Repo.GetTask(ctx, id)
	if err != nil {
		return domain.Task{}, err
	}
	if !taskVisible(principal, t) {
		return domain.Task{}, repo.ErrNotFound
	}
	return t, nil
}

func taskScope(u *domain.User) repo.TaskScope {
	switch {
	case perm.Has(u, perm.ManageAllTasks):
		return repo.TaskScopeAll
	case perm.Has(u, perm.AssignTasks):
		return repo.TaskScopeAssignedOrCreated
	default:
		return repo.TaskScopeAssigned
	}
}

func taskVisible(u *domain.User, t domain.Task) bool {
	if perm.Has(u, perm.ManageAllTasks) {
		return true
	}
	if perm.Has(u, perm.AssignTasks) && perm.SameID(t.CreatedBy, u.ID) {
		return true
	}
	return containsID(t.Assignees, u.ID)
}

// restrictedField names the first field a status-only principal may not
// touch, or "" when the request is plain. Subtask counters stay editable so
// assignees can track their own breakdown.
func restrictedField(upd TaskUpdate) string {
	switch {
	case upd.Title != nil:
		return "title"
	case upd.Description != nil:
		return "description"
	case upd.Priority != nil:
		return "priority"
	case upd.AssigneesProvided:
		return "assignees"
	case upd.DueDateProvided:
		return "dueDate"
	}
	return ""
}

func validateSubtasks(s domain.SubtaskCounts) error {
	if s.Total < 0 || s.Completed < 0 {
		return domain.ValidationError{Field: "subtasks", Reason: "counts must not be negative"}
	}
	if s.Completed > s.Total {
		return domain.ValidationError{Field: "subtasks", Reason: "completed exceeds total"}
	}
	return nil
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if perm.SameID(v, id) {
			return true
		}
	}
	return false
}
