package perm_test

import (
	"testing"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
)

func TestCatalogIsTotal(t *testing.T) {
	for _, role := range []string{domain.RoleAdmin, domain.RoleManager, domain.RoleMember} {
		if len(perm.PermissionsFor(role)) == 0 {
			t.Fatalf("role %s has no permissions", role)
		}
	}
	if got := perm.PermissionsFor("ghost"); len(got) != 0 {
		t.Fatalf("unknown role should map to empty set, got %v", got)
	}
}

func TestHasDeniesOutsideCatalog(t *testing.T) {
	all := map[string]bool{}
	for _, role := range []string{domain.RoleAdmin, domain.RoleManager, domain.RoleMember} {
		for _, p := range perm.PermissionsFor(role) {
			all[p] = true
		}
	}
	for _, role := range []string{domain.RoleAdmin, domain.RoleManager, domain.RoleMember} {
		granted := map[string]bool{}
		for _, p := range perm.PermissionsFor(role) {
			granted[p] = true
		}
		u := &domain.User{ID: "u1", Role: role}
		for p := range all {
			if granted[p] {
				if !perm.Has(u, p) {
					t.Errorf("role %s should hold %s", role, p)
				}
			} else if perm.Has(u, p) {
				t.Errorf("role %s should not hold %s", role, p)
			}
		}
	}
}

func TestHasNilPrincipal(t *testing.T) {
	if perm.Has(nil, perm.ManageAllTasks) {
		t.Fatal("nil principal must be denied")
	}
	if perm.HasAny(nil, perm.ManageAllTasks, perm.AssignTasks) {
		t.Fatal("nil principal must be denied by HasAny")
	}
	if perm.HasAll(nil) {
		t.Fatal("nil principal must be denied by HasAll")
	}
	if perm.IsOwnerOrHas(nil, "u1", perm.ManageAllTasks) {
		t.Fatal("nil principal must be denied by IsOwnerOrHas")
	}
}

func TestHasAnyHasAll(t *testing.T) {
	manager := &domain.User{ID: "m1", Role: domain.RoleManager}
	if !perm.HasAny(manager, perm.ManageAllTasks, perm.AssignTasks) {
		t.Fatal("manager holds assign_tasks")
	}
	if perm.HasAll(manager, perm.AssignTasks, perm.ManageAllTasks) {
		t.Fatal("manager does not hold manage_all_tasks")
	}
	if !perm.HasAll(manager, perm.AssignTasks, perm.ViewTeamData) {
		t.Fatal("manager holds both assign_tasks and view_team_data")
	}
}

func TestIsOwnerOrHas(t *testing.T) {
	member := &domain.User{ID: "u1", Role: domain.RoleMember}
	if !perm.IsOwnerOrHas(member, "u1", perm.ManageAllTasks) {
		t.Fatal("owner must pass regardless of permission")
	}
	// Ids from different representations compare equal after normalization.
	if !perm.IsOwnerOrHas(member, "  u1 ", perm.ManageAllTasks) {
		t.Fatal("normalized id comparison failed")
	}
	if perm.IsOwnerOrHas(member, "u2", perm.ManageAllTasks) {
		t.Fatal("non-owner member must be denied")
	}
	admin := &domain.User{ID: "a1", Role: domain.RoleAdmin}
	if !perm.IsOwnerOrHas(admin, "u2", perm.ManageAllTasks) {
		t.Fatal("admin passes via permission")
	}
}
