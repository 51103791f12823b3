package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
	"taskhub/internal/repo"
)

type ProjectCreateOptions struct {
	Name        string
	Description string
	Members     []string
}

// CreateProject creates a project. When no member list is given the creator
// becomes the sole member; an explicit member list is taken as-is.
func (e Engine) CreateProject(ctx context.Context, principal *domain.User, opts ProjectCreateOptions) (domain.Project, error) {
	if principal == nil {
		return domain.Project{}, perm.UnauthenticatedError{}
	}
	if !perm.HasAny(principal, perm.CreateProjects, perm.ManageAllProjects) {
		return domain.Project{}, perm.ForbiddenError{Permission: perm.CreateProjects}
	}

	opts.Name = strings.TrimSpace(opts.Name)
	if opts.Name == "" {
		return domain.Project{}, domain.ValidationError{Field: "name", Reason: "required"}
	}

	members := normalizeIDs(opts.Members)
	if len(members) == 0 {
		members = []string{perm.NormalizeID(principal.ID)}
	}
	if err := e.requireUsersExist(ctx, "members", members); err != nil {
		return domain.Project{}, err
	}

	p := domain.Project{
		ID:          uuid.NewString(),
		Name:        opts.Name,
		Description: strings.TrimSpace(opts.Description),
		Members:     members,
		CreatedBy:   principal.ID,
		CreatedAt:   e.timestamp(),
		UpdatedAt:   e.timestamp(),
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Project{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertProject(ctx, tx, p); err != nil {
		return domain.Project{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Project{}, err
	}
	return p, nil
}

// ListProjects returns the projects the principal may see: everything for
// manage_all_projects, owned or joined projects for manage_own_projects,
// joined projects only otherwise.
func (e Engine) ListProjects(ctx context.Context, principal *domain.User) ([]domain.Project, error) {
	if principal == nil {
		return nil, perm.UnauthenticatedError{}
	}
	f := repo.ProjectFilters{Scope: projectScope(principal), UserID: principal.ID}
	return e.Repo.ListProjects(ctx, f)
}

// GetProject fetches a single project, applying the same visibility rule as
// ListProjects. Invisible projects read as not found.
func (e Engine) GetProject(ctx context.Context, principal *domain.User, id string) (domain.Project, error) {
	if principal == nil {
		return domain.Project{}, perm.UnauthenticatedError{}
	}
	p, err := e.Repo.GetProject(ctx, id)
	if err != nil {
		return domain.Project{}, err
	}
	if !projectVisible(principal, p) {
		return domain.Project{}, repo.ErrNotFound
	}
	return p, nil
}

func projectScope(u *domain.User) repo.ProjectScope {
	switch {
	case perm.Has(u, perm.ManageAllProjects):
		return repo.ProjectScopeAll
	case perm.Has(u, perm.ManageOwnProjects):
		return repo.ProjectScopeOwnedOrMember
	default:
		return repo.ProjectScopeMember
	}
}

func projectVisible(u *domain.User, p domain.Project) bool {
	if perm.Has(u, perm.ManageAllProjects) {
		return true
	}
	if perm.Has(u, perm.ManageOwnProjects) && perm.SameID(p.CreatedBy, u.ID) {
		return true
	}
	for _, m := range p.Members {
		if perm.SameID(m, u.ID) {
			return true
		}
	}
	return false
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = perm.NormalizeID(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// requireUsersExist resolves every referenced user id against the store, so
// a dangling reference reads as a validation error instead of a foreign key
// failure surfacing from the database.
func (e Engine) requireUsersExist(ctx context.Context, field string, ids []string) error {
	for _, id := range ids {
		if _, err := e.Repo.GetUser(ctx, id); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return domain.ValidationError{Field: field, Reason: "unknown user " + id}
			}
			return err
		}
	}
	return nil
}
