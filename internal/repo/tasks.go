package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskhub/internal/domain"
)

// TaskScope is the role-derived visibility for task list queries.
type TaskScope int

const (
	// TaskScopeAll returns every task (manage_all_tasks).
	TaskScopeAll TaskScope = iota
	// TaskScopeAssignedOrCreated returns tasks the user is assigned to or
	// created (assign_tasks).
	TaskScopeAssignedOrCreated
	// TaskScopeAssigned returns tasks the user is assigned to only.
	TaskScopeAssigned
)

type TaskFilters struct {
	Scope     TaskScope
	UserID    string
	ProjectID string
	Status    string
}

const taskColumns = `id,project_id,title,description,status,priority,due_date,subtasks_total,subtasks_completed,created_by,created_at,updated_at`

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.Title, nullable(t.Description), t.Status, t.Priority,
		nullableStringPtr(t.DueDate), t.Subtasks.Total, t.Subtasks.Completed,
		t.CreatedBy, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return err
	}
	return r.replaceAssignees(ctx, tx, t.ID, t.Assignees)
}

// UpdateTask writes all mutable columns and the assignee set. Partial-merge
// semantics are resolved by the caller before this point.
func (r Repo) UpdateTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `UPDATE tasks SET title=?, description=?, status=?, priority=?, due_date=?, subtasks_total=?, subtasks_completed=?, updated_at=? WHERE id=?`,
		t.Title, nullable(t.Description), t.Status, t.Priority, nullableStringPtr(t.DueDate),
		t.Subtasks.Total, t.Subtasks.Completed, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	return r.replaceAssignees(ctx, tx, t.ID, t.Assignees)
}

func (r Repo) replaceAssignees(ctx context.Context, tx *sql.Tx, taskID string, assignees []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_assignees WHERE task_id=?`, taskID); err != nil {
		return err
	}
	for _, a := range assignees {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO task_assignees(task_id,user_id) VALUES (?,?)`, taskID, a); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	var t domain.Task
	var desc, dueDate sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id=?`, id).
		Scan(&t.ID, &t.ProjectID, &t.Title, &desc, &t.Status, &t.Priority, &dueDate,
			&t.Subtasks.Total, &t.Subtasks.Completed, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	if err != nil {
		return t, err
	}
	if desc.Valid {
		t.Description = desc.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	assignees, err := r.listTaskAssignees(ctx, t.ID)
	if err != nil {
		return t, err
	}
	t.Assignees = assignees
	return t, nil
}

func (r Repo) listTaskAssignees(ctx context.Context, taskID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM task_assignees WHERE task_id=? ORDER BY user_id`, taskID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var assignees []string
	for rows.Next() {
		var a string
		if err := rows.Scan(&a); err != nil {
			return nil, err
		}
		assignees = append(assignees, a)
	}
	return assignees, rows.Err()
}

// ListTasks applies the role-derived scope first; the optional project and
// status filters are ANDed on top and can only narrow the result.
func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	switch f.Scope {
	case TaskScopeAll:
	case TaskScopeAssignedOrCreated:
		clauses = append(clauses, `(created_by=? OR EXISTS (SELECT 1 FROM task_assignees ta WHERE ta.task_id=tasks.id AND ta.user_id=?))`)
		args = append(args, f.UserID, f.UserID)
	case TaskScopeAssigned:
		clauses = append(clauses, `EXISTS (SELECT 1 FROM task_assignees ta WHERE ta.task_id=tasks.id AND ta.user_id=?)`)
		args = append(args, f.UserID)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id=?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + taskColumns + ` FROM tasks ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		var t domain.Task
		var desc, dueDate sql.NullString
		if err := rows.Scan(&t.ID, &t.ProjectID, &t.Title, &desc, &t.Status, &t.Priority, &dueDate,
			&t.Subtasks.Total, &t.Subtasks.Completed, &t.CreatedBy, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			t.Description = desc.String
		}
		if dueDate.Valid {
			t.DueDate = &dueDate.String
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		assignees, err := r.listTaskAssignees(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Assignees = assignees
	}
	return res, nil
}
