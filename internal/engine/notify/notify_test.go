package notify_test

import (
	"context"
	"testing"
	"time"

	"taskhub/internal/db"
	"taskhub/internal/domain"
	"taskhub/internal/engine/notify"
	"taskhub/internal/migrate"
	"taskhub/internal/repo"
)

func newService(t *testing.T) (notify.Service, repo.Repo) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	for _, id := range []string{"u1", "actor", "peer", "joiner"} {
		_, err := conn.Exec(`INSERT INTO users(id,first_name,last_name,email,password_hash,role,status,created_at,updated_at) VALUES (?,?,?,?,?,?,?,?,?)`,
			id, id, "User", id+"@example.com", "x", domain.RoleMember, domain.UserStatusOffline, "2026-03-01T12:00:00Z", "2026-03-01T12:00:00Z")
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
	s := notify.Service{Repo: r, Now: func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }}
	return s, r
}

func TestStatusMessage(t *testing.T) {
	cases := map[string]string{
		domain.StatusTodo:       "moved to To Do",
		domain.StatusInProgress: "moved to in progress",
		domain.StatusCompleted:  "completed",
		"bogus":                 "updated",
	}
	for status, want := range cases {
		if got := notify.StatusMessage(status); got != want {
			t.Errorf("StatusMessage(%q) = %q, want %q", status, got, want)
		}
	}
}

func TestCreateRequiresRecipientAndType(t *testing.T) {
	s, _ := newService(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, notify.CreateParams{Type: "system"}); err == nil {
		t.Fatal("missing recipient accepted")
	}
	if _, err := s.Create(ctx, notify.CreateParams{Recipient: "u1"}); err == nil {
		t.Fatal("missing type accepted")
	}
	n, err := s.Create(ctx, notify.CreateParams{Recipient: "u1", Type: "system", Title: "hi"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if n.Read {
		t.Fatal("new notification marked read")
	}
}

func TestFanOutExcludesActorAndExistingAssignees(t *testing.T) {
	s, r := newService(t)
	ctx := context.Background()

	task := domain.Task{
		ID:        "t1",
		Title:     "Ship it",
		Status:    domain.StatusInProgress,
		Assignees: []string{"actor", "peer", "joiner"},
	}
	s.TaskUpdateFanOut(ctx, task, "actor", true, []string{"actor", "peer"}, true)

	// The actor receives nothing.
	actorNotes, err := r.ListNotifications(ctx, "actor", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(actorNotes) != 0 {
		t.Fatalf("actor notes = %d, want 0", len(actorNotes))
	}

	// An existing assignee gets the status change only.
	peerNotes, err := r.ListNotifications(ctx, "peer", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(peerNotes) != 1 || peerNotes[0].Type != domain.NotificationTaskUpdated {
		t.Fatalf("peer notes = %+v", peerNotes)
	}

	// A newly added assignee gets both the status change and the assignment.
	joinerNotes, err := r.ListNotifications(ctx, "joiner", 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(joinerNotes) != 2 {
		t.Fatalf("joiner notes = %d, want 2", len(joinerNotes))
	}
	types := map[string]bool{}
	for _, n := range joinerNotes {
		types[n.Type] = true
	}
	if !types[domain.NotificationTaskUpdated] || !types[domain.NotificationTaskAssigned] {
		t.Fatalf("joiner types = %v", types)
	}
}
