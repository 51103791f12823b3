package repo

import (
	"context"
	"database/sql"
	"strings"

	"taskhub/internal/domain"
)

// ProjectScope is the role-derived visibility for project list queries.
type ProjectScope int

const (
	// ProjectScopeAll returns every project (manage_all_projects).
	ProjectScopeAll ProjectScope = iota
	// ProjectScopeOwnedOrMember returns projects the user created or
	// belongs to (manage_own_projects).
	ProjectScopeOwnedOrMember
	// ProjectScopeMember returns projects the user belongs to only.
	ProjectScopeMember
)

type ProjectFilters struct {
	Scope  ProjectScope
	UserID string
}

func (r Repo) InsertProject(ctx context.Context, tx *sql.Tx, p domain.Project) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO projects(id,name,description,created_by,created_at,updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Description), p.CreatedBy, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return err
	}
	for _, m := range p.Members {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO project_members(project_id,user_id) VALUES (?,?)`, p.ID, m); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetProject(ctx context.Context, id string) (domain.Project, error) {
	var p domain.Project
	var desc sql.NullString
	err := r.DB.QueryRowContext(ctx, `SELECT id,name,description,created_by,created_at,updated_at FROM projects WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &desc, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if desc.Valid {
		p.Description = desc.String
	}
	members, err := r.listProjectMembers(ctx, p.ID)
	if err != nil {
		return p, err
	}
	p.Members = members
	return p, nil
}

func (r Repo) listProjectMembers(ctx context.Context, projectID string) ([]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT user_id FROM project_members WHERE project_id=? ORDER BY user_id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var members []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// ListProjects applies the role-derived scope; narrowing filters never widen
// it.
func (r Repo) ListProjects(ctx context.Context, f ProjectFilters) ([]domain.Project, error) {
	var clauses []string
	var args []any
	switch f.Scope {
	case ProjectScopeAll:
	case ProjectScopeOwnedOrMember:
		clauses = append(clauses, `(created_by=? OR EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id=projects.id AND pm.user_id=?))`)
		args = append(args, f.UserID, f.UserID)
	case ProjectScopeMember:
		clauses = append(clauses, `EXISTS (SELECT 1 FROM project_members pm WHERE pm.project_id=projects.id AND pm.user_id=?)`)
		args = append(args, f.UserID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT id,name,description,created_by,created_at,updated_at FROM projects ` + where + ` ORDER BY created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Project
	for rows.Next() {
		var p domain.Project
		var desc sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &desc, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		if desc.Valid {
			p.Description = desc.String
		}
		res = append(res, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		members, err := r.listProjectMembers(ctx, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Members = members
	}
	return res, nil
}
