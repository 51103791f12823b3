package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"taskhub/internal/domain"
)

const notificationColumns = `id,recipient,sender,type,title,message,data_json,read,created_at,updated_at`

func (r Repo) InsertNotification(ctx context.Context, n domain.Notification) error {
	var dataJSON any
	if len(n.Data) > 0 {
		b, err := json.Marshal(n.Data)
		if err != nil {
			return fmt.Errorf("marshal notification data: %w", err)
		}
		dataJSON = string(b)
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO notifications(`+notificationColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		n.ID, n.Recipient, nullableStringPtr(n.Sender), n.Type, n.Title, n.Message, dataJSON, n.Read, n.CreatedAt, n.UpdatedAt)
	return err
}

func scanNotification(scan func(dest ...any) error) (domain.Notification, error) {
	var n domain.Notification
	var sender, dataJSON sql.NullString
	if err := scan(&n.ID, &n.Recipient, &sender, &n.Type, &n.Title, &n.Message, &dataJSON, &n.Read, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return n, err
	}
	if sender.Valid {
		n.Sender = &sender.String
	}
	if dataJSON.Valid && dataJSON.String != "" {
		_ = json.Unmarshal([]byte(dataJSON.String), &n.Data)
	}
	return n, nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (r Repo) ListNotifications(ctx context.Context, recipient string, limit, offset int) ([]domain.Notification, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE recipient=? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		recipient, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Notification
	for rows.Next() {
		n, err := scanNotification(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (r Repo) CountUnreadNotifications(ctx context.Context, recipient string) (int, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT count(*) FROM notifications WHERE recipient=? AND read=0`, recipient).Scan(&n)
	return n, err
}

// MarkNotificationRead flags a single notification as read. The recipient
// predicate makes "not found" and "not yours" indistinguishable on purpose;
// marking an already-read notification is a no-op success.
func (r Repo) MarkNotificationRead(ctx context.Context, id, recipient, now string) (domain.Notification, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1, updated_at=? WHERE id=? AND recipient=?`, now, id, recipient)
	if err != nil {
		return domain.Notification{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Notification{}, ErrNotFound
	}
	return scanNotification(r.DB.QueryRowContext(ctx, `SELECT `+notificationColumns+` FROM notifications WHERE id=?`, id).Scan)
}

func (r Repo) MarkAllNotificationsRead(ctx context.Context, recipient, now string) error {
	_, err := r.DB.ExecContext(ctx, `UPDATE notifications SET read=1, updated_at=? WHERE recipient=? AND read=0`, now, recipient)
	return err
}

func (r Repo) DeleteNotification(ctx context.Context, id, recipient string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM notifications WHERE id=? AND recipient=?`, id, recipient)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
