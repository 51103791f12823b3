package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
	"taskhub/internal/repo"
)

type UserCreateOptions struct {
	FirstName string
	LastName  string
	Email     string
	Password  string
	Role      string
}

// RegisterUser creates an account. The very first account in the store is
// always an admin, regardless of the requested role; later accounts get the
// requested role, defaulting to member.
func (e Engine) RegisterUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	opts.Email = strings.ToLower(strings.TrimSpace(opts.Email))
	opts.FirstName = strings.TrimSpace(opts.FirstName)
	opts.LastName = strings.TrimSpace(opts.LastName)

	if opts.FirstName == "" {
		return domain.User{}, domain.ValidationError{Field: "firstName", Reason: "required"}
	}
	if opts.LastName == "" {
		return domain.User{}, domain.ValidationError{Field: "lastName", Reason: "required"}
	}
	if opts.Email == "" {
		return domain.User{}, domain.ValidationError{Field: "email", Reason: "required"}
	}
	if len(opts.Password) < 6 {
		return domain.User{}, domain.ValidationError{Field: "password", Reason: "must be at least 6 characters"}
	}
	if opts.Role != "" && !domain.ValidRole(opts.Role) {
		return domain.User{}, domain.ValidationError{Field: "role", Reason: "unknown role"}
	}

	if _, err := e.Repo.GetUserByEmail(ctx, opts.Email); err == nil {
		return domain.User{}, domain.ValidationError{Field: "email", Reason: "already registered"}
	} else if err != repo.ErrNotFound {
		return domain.User{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.User{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()

	existing, err := e.Repo.CountUsersTx(ctx, tx)
	if err != nil {
		return domain.User{}, err
	}
	role := opts.Role
	if role == "" {
		role = domain.RoleMember
	}
	if existing == 0 {
		role = domain.RoleAdmin
	}

	u := domain.User{
		ID:           uuid.NewString(),
		FirstName:    opts.FirstName,
		LastName:     opts.LastName,
		Email:        opts.Email,
		PasswordHash: string(hash),
		Role:         role,
		Status:       domain.UserStatusOffline,
		CreatedAt:    e.timestamp(),
		UpdatedAt:    e.timestamp(),
	}
	if err := e.Repo.InsertUser(ctx, tx, u); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// Authenticate checks an email/password pair and marks the user online.
func (e Engine) Authenticate(ctx context.Context, email, password string) (domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	u, err := e.Repo.GetUserByEmail(ctx, email)
	if err == repo.ErrNotFound {
		return domain.User{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.User{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return domain.User{}, ErrInvalidCredentials
	}
	if err := e.Repo.SetUserStatus(ctx, u.ID, domain.UserStatusOnline, e.timestamp()); err != nil {
		return domain.User{}, err
	}
	u.Status = domain.UserStatusOnline
	return u, nil
}

// Logout marks the user offline. Token invalidation is the caller's concern.
func (e Engine) Logout(ctx context.Context, principal *domain.User) error {
	if principal == nil {
		return perm.UnauthenticatedError{}
	}
	return e.Repo.SetUserStatus(ctx, principal.ID, domain.UserStatusOffline, e.timestamp())
}

// ListUsers returns the member directory. Visible to principals that manage
// users or can see team data.
func (e Engine) ListUsers(ctx context.Context, principal *domain.User) ([]domain.User, error) {
	if principal == nil {
		return nil, perm.UnauthenticatedError{}
	}
	if !perm.HasAny(principal, perm.ManageUsers, perm.ViewTeamData) {
		return nil, perm.ForbiddenError{Permission: perm.ViewTeamData}
	}
	return e.Repo.ListUsers(ctx)
}
