package engine

import (
	"context"

	"taskhub/internal/domain"
	"taskhub/internal/perm"
)

// ListNotifications returns the principal's own notifications, newest first.
// The limit is clamped to the configured page bounds.
func (e Engine) ListNotifications(ctx context.Context, principal *domain.User, limit, offset int) ([]domain.Notification, error) {
	if principal == nil {
		return nil, perm.UnauthenticatedError{}
	}
	if limit <= 0 {
		limit = e.Config.Notifications.DefaultPageSize
	}
	if max := e.Config.Notifications.MaxPageSize; limit > max {
		limit = max
	}
	if offset < 0 {
		offset = 0
	}
	return e.Repo.ListNotifications(ctx, principal.ID, limit, offset)
}

func (e Engine) UnreadNotificationCount(ctx context.Context, principal *domain.User) (int, error) {
	if principal == nil {
		return 0, perm.UnauthenticatedError{}
	}
	return e.Repo.CountUnreadNotifications(ctx, principal.ID)
}

// MarkNotificationRead marks one of the principal's notifications read.
// Idempotent; a notification belonging to someone else reads as not found.
func (e Engine) MarkNotificationRead(ctx context.Context, principal *domain.User, id string) (domain.Notification, error) {
	if principal == nil {
		return domain.Notification{}, perm.UnauthenticatedError{}
	}
	return e.Repo.MarkNotificationRead(ctx, id, principal.ID, e.timestamp())
}

func (e Engine) MarkAllNotificationsRead(ctx context.Context, principal *domain.User) error {
	if principal == nil {
		return perm.UnauthenticatedError{}
	}
	return e.Repo.MarkAllNotificationsRead(ctx, principal.ID, e.timestamp())
}

// DeleteNotification removes one of the principal's notifications. As with
// reads, someone else's notification is indistinguishable from a missing one.
func (e Engine) DeleteNotification(ctx context.Context, principal *domain.User, id string) error {
	if principal == nil {
		return perm.UnauthenticatedError{}
	}
	return e.Repo.DeleteNotification(ctx, id, principal.ID)
}
