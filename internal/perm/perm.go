// Package perm holds the static role-permission catalog and the pure
// authorization evaluator layered on top of it.
package perm

import (
	"fmt"
	"strings"

	"taskhub/internal/domain"
)

const (
	ManageUsers          = "manage_users"
	ManageAllProjects    = "manage_all_projects"
	ManageAllTasks       = "manage_all_tasks"
	ViewAllData          = "view_all_data"
	ViewTeamData         = "view_team_data"
	CreateProjects       = "create_projects"
	ManageOwnProjects    = "manage_own_projects"
	AssignTasks          = "assign_tasks"
	ViewAssignedProjects = "view_assigned_projects"
	UpdateOwnTasks       = "update_own_tasks"
	ViewOwnData          = "view_own_data"
)

// catalog is the complete role-permission table, kept as data so it can be
// audited and tested in isolation. Roles absent from the table hold no
// permissions.
var catalog = map[string][]string{
	domain.RoleAdmin: {
		ManageUsers,
		ManageAllProjects,
		ManageAllTasks,
		ViewAllData,
		ViewTeamData,
	},
	domain.RoleManager: {
		CreateProjects,
		ManageOwnProjects,
		AssignTasks,
		ViewTeamData,
	},
	domain.RoleMember: {
		ViewAssignedProjects,
		UpdateOwnTasks,
		ViewOwnData,
	},
}

// PermissionsFor returns the permissions granted to a role. Unknown roles
// get an empty set.
func PermissionsFor(role string) []string {
	perms, ok := catalog[role]
	if !ok {
		return nil
	}
	out := make([]string, len(perms))
	copy(out, perms)
	return out
}

// Has reports whether the principal holds the named permission. A nil
// principal (unauthenticated request) never holds anything.
func Has(user *domain.User, permission string) bool {
	if user == nil {
		return false
	}
	for _, p := range catalog[user.Role] {
		if p == permission {
			return true
		}
	}
	return false
}

// HasAny reports whether the principal holds at least one of the named
// permissions.
func HasAny(user *domain.User, permissions ...string) bool {
	for _, p := range permissions {
		if Has(user, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether the principal holds every named permission.
func HasAll(user *domain.User, permissions ...string) bool {
	if user == nil {
		return false
	}
	for _, p := range permissions {
		if !Has(user, p) {
			return false
		}
	}
	return true
}

// IsOwnerOrHas reports whether the principal owns the resource or holds the
// named permission. Ids are normalized before comparison so differing
// representations of the same identifier compare equal.
func IsOwnerOrHas(user *domain.User, resourceOwnerID, permission string) bool {
	if user == nil {
		return false
	}
	if resourceOwnerID != "" && NormalizeID(user.ID) == NormalizeID(resourceOwnerID) {
		return true
	}
	return Has(user, permission)
}

// NormalizeID canonicalizes an entity reference for equality comparison.
func NormalizeID(id string) string {
	return strings.TrimSpace(id)
}

// SameID compares two entity references in canonical form.
func SameID(a, b string) bool {
	return NormalizeID(a) != "" && NormalizeID(a) == NormalizeID(b)
}

// ForbiddenError indicates a resolved principal lacking a required
// permission or ownership.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	if e.Permission == "" {
		return "permission denied"
	}
	return fmt.Sprintf("permission %s required", e.Permission)
}

// FieldForbiddenError indicates an update touching a field outside the
// principal's allowed scope.
type FieldForbiddenError struct {
	Field string
}

func (e FieldForbiddenError) Error() string {
	return fmt.Sprintf("field %s not permitted", e.Field)
}

// UnauthenticatedError indicates no resolvable principal.
type UnauthenticatedError struct{}

func (UnauthenticatedError) Error() string { return "authentication required" }
