package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"

	"taskhub/internal/config"
	"taskhub/internal/db"
	"taskhub/internal/domain"
	"taskhub/internal/engine"
	"taskhub/internal/migrate"
)

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	e := engine.New(conn, config.Default())
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v1",
		Auth:     AuthConfig{JWTSecret: "test-secret"},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// register creates an account through the API and returns the issued token
// alongside the user record.
func register(t *testing.T, srv *testServer, email, role string) (string, UserResponse) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"firstName": "Test",
		"lastName":  "User",
		"email":     email,
		"password":  "hunter22",
		"role":      role,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s: %d %s", email, res.StatusCode, string(data))
	}
	var out TokenResponse
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal register response: %v", err)
	}
	return out.Token, out.User
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestRegisterAndLogin(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	_, first := register(t, srv, "boss@example.com", "member")
	if first.Role != domain.RoleAdmin {
		t.Fatalf("first user role = %q, want admin", first.Role)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "boss@example.com",
		"password": "hunter22",
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login: %d %s", res.StatusCode, string(data))
	}
	var login TokenResponse
	if err := json.Unmarshal(data, &login); err != nil {
		t.Fatalf("unmarshal login: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, bearer(login.Token))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me: %d %s", res.StatusCode, string(data))
	}
	var me struct {
		User        UserResponse `json:"user"`
		Permissions []string     `json:"permissions"`
	}
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("unmarshal me: %v", err)
	}
	if me.User.Email != "boss@example.com" || len(me.Permissions) == 0 {
		t.Fatalf("me = %+v", me)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"email":    "boss@example.com",
		"password": "wrong",
	}, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login: %d %s", res.StatusCode, string(data))
	}
}

func TestUnauthenticatedRejected(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no auth: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "unauthorized" {
		t.Fatalf("code = %q, want unauthorized", envelope.Error.Code)
	}

	// Health stays open.
	res, _ = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d", res.StatusCode)
	}
}

// seedBoard registers a team and creates a project plus one task assigned to
// member A, returning tokens and the task id.
func seedBoard(t *testing.T, srv *testServer) (managerTok, aTok, bTok string, memberA, memberB UserResponse, taskID string) {
	t.Helper()
	register(t, srv, "admin@example.com", "admin")
	managerTok, _ = register(t, srv, "manager@example.com", "manager")
	aTok, memberA = register(t, srv, "a@example.com", "member")
	bTok, memberB = register(t, srv, "b@example.com", "member")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name":    "Board",
		"members": []string{memberA.ID, memberB.ID},
	}, bearer(managerTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create project: %d %s", res.StatusCode, string(data))
	}
	var project ProjectResponse
	if err := json.Unmarshal(data, &project); err != nil {
		t.Fatalf("unmarshal project: %v", err)
	}

	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"projectId": project.ID,
		"title":     "Ship the thing",
		"assignees": []string{memberA.ID},
	}, bearer(managerTok))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	if err := json.Unmarshal(data, &task); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	return managerTok, aTok, bTok, memberA, memberB, task.ID
}

func TestTaskUpdateAuthorization(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, aTok, bTok, _, _, taskID := seedBoard(t, srv)

	// Non-assignee member may not touch the task at all.
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/tasks/"+taskID, map[string]any{
		"status": "completed",
	}, bearer(bTok))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("outsider update: %d %s", res.StatusCode, string(data))
	}

	// Assignee may flip status.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/tasks/"+taskID, map[string]any{
		"status": "in-progress",
	}, bearer(aTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("assignee status update: %d %s", res.StatusCode, string(data))
	}

	// A mixed payload from a status-only principal is rejected whole.
	res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/tasks/"+taskID, map[string]any{
		"status":   "completed",
		"priority": "high",
	}, bearer(aTok))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("mixed update: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Code != "forbidden_field" || envelope.Error.Details["field"] != "priority" {
		t.Fatalf("envelope = %+v", envelope.Error)
	}

	// Nothing was written by the rejected request.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+taskID, nil, bearer(aTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("get task: %d %s", res.StatusCode, string(data))
	}
	var task TaskResponse
	_ = json.Unmarshal(data, &task)
	if task.Status != "in-progress" || task.Priority != "medium" {
		t.Fatalf("task after rejection = %s/%s", task.Status, task.Priority)
	}
}

func TestMemberVisibility(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, aTok, bTok, _, _, taskID := seedBoard(t, srv)

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, bearer(aTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, string(data))
	}
	var aTasks []TaskResponse
	if err := json.Unmarshal(data, &aTasks); err != nil {
		t.Fatalf("unmarshal tasks: %v", err)
	}
	if len(aTasks) != 1 || aTasks[0].ID != taskID {
		t.Fatalf("member A tasks = %+v", aTasks)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks", nil, bearer(bTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list tasks: %d %s", res.StatusCode, string(data))
	}
	var bTasks []TaskResponse
	_ = json.Unmarshal(data, &bTasks)
	if len(bTasks) != 0 {
		t.Fatalf("member B tasks = %+v", bTasks)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/tasks/"+taskID, nil, bearer(bTok))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("invisible task read: %d %s", res.StatusCode, string(data))
	}
}

func TestNotificationFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	managerTok, aTok, bTok, memberA, memberB, taskID := seedBoard(t, srv)

	// Reassign to include B; B gets a task_assigned notification.
	res, data := doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/tasks/"+taskID, map[string]any{
		"assignees": []string{memberA.ID, memberB.ID},
	}, bearer(managerTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("reassign: %d %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications", nil, bearer(bTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list notifications: %d %s", res.StatusCode, string(data))
	}
	var notes []NotificationResponse
	if err := json.Unmarshal(data, &notes); err != nil {
		t.Fatalf("unmarshal notifications: %v", err)
	}
	if len(notes) != 1 || notes[0].Type != "task_assigned" {
		t.Fatalf("B notifications = %+v", notes)
	}
	noteID := notes[0].ID

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications/unread-count", nil, bearer(bTok))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("unread count: %d %s", res.StatusCode, string(data))
	}
	var count map[string]int
	_ = json.Unmarshal(data, &count)
	if count["unread"] != 1 {
		t.Fatalf("unread = %d, want 1", count["unread"])
	}

	// A may not read or delete B's notification.
	res, _ = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/notifications/"+noteID+"/read", nil, bearer(aTok))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign mark-read: %d", res.StatusCode)
	}
	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/notifications/"+noteID, nil, bearer(aTok))
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("foreign delete: %d", res.StatusCode)
	}

	// Owner marks read; the operation is idempotent.
	for i := 0; i < 2; i++ {
		res, data = doJSON(t, srv.Client(), http.MethodPut, srv.URL+"/v1/notifications/"+noteID+"/read", nil, bearer(bTok))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("mark read attempt %d: %d %s", i+1, res.StatusCode, string(data))
		}
	}
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/notifications/unread-count", nil, bearer(bTok))
	_ = json.Unmarshal(data, &count)
	if res.StatusCode != http.StatusOK || count["unread"] != 0 {
		t.Fatalf("unread after read = %d (%d)", count["unread"], res.StatusCode)
	}

	res, _ = doJSON(t, srv.Client(), http.MethodDelete, srv.URL+"/v1/notifications/"+noteID, nil, bearer(bTok))
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("owner delete: %d", res.StatusCode)
	}
}

func TestMemberCannotCreateProject(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	register(t, srv, "admin@example.com", "admin")
	memberTok, _ := register(t, srv, "m@example.com", "member")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/projects", map[string]any{
		"name": "Nope",
	}, bearer(memberTok))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("member create project: %d %s", res.StatusCode, string(data))
	}
	var envelope struct {
		Error struct {
			Code    string         `json:"code"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	if envelope.Error.Details["permission"] != "create_projects" {
		t.Fatalf("envelope = %+v", envelope.Error)
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	_, admin := register(t, srv, "admin@example.com", "admin")

	// Mint a key directly through the engine, as the CLI would.
	_, plain, err := srv.Engine.CreateAPIKey(context.Background(), admin.ID, "ci")
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/users", nil, map[string]string{"X-Api-Key": plain})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key auth: %d %s", res.StatusCode, string(data))
	}
	var users []UserResponse
	if err := json.Unmarshal(data, &users); err != nil {
		t.Fatalf("unmarshal users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %+v", users)
	}

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/users", nil, map[string]string{"X-Api-Key": "not-a-key"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bogus api key: %d %s", res.StatusCode, string(data))
	}
}
