package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"debatehall/internal/app"
	"debatehall/internal/config"
	"debatehall/pkg/types"
)

var (
	moderator = &types.User{ID: 1, Username: "moderator", Role: types.RoleModerator}
	alice     = &types.User{ID: 2, Username: "alice", Role: types.RoleStudent}
	bob       = &types.User{ID: 3, Username: "bob", Role: types.RoleStudent}
	carol     = &types.User{ID: 4, Username: "carol", Role: types.RoleStudent}
)

// backends runs fn against the in-memory store and a fresh SQLite file
func backends(t *testing.T, fn func(t *testing.T, env *testEnv)) {
	for _, name := range []string{"memory", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			path := app.MemoryDatabasePath
			if name == "sqlite" {
				path = filepath.Join(t.TempDir(), "debatehall.db")
			}
			fn(t, newTestEnv(t, path))
		})
	}
}

type testEnv struct {
	app    *app.Application
	server *httptest.Server
	topic  *types.DebateTopic
}

func newTestEnv(t *testing.T, dbPath string) *testEnv {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Database.Path = dbPath
	cfg.Debate.TypingTimeout = 200 * time.Millisecond

	application, err := app.NewApplication(cfg)
	if err != nil {
		t.Fatalf("NewApplication() error = %v", err)
	}
	ctx := context.Background()
	if err := application.StartWorkers(ctx); err != nil {
		t.Fatalf("StartWorkers() error = %v", err)
	}

	server := httptest.NewServer(application.Handler())
	t.Cleanup(func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := application.Stop(shutdownCtx); err != nil {
			t.Logf("Stop() error = %v", err)
		}
		server.Close()
	})

	for _, u := range []*types.User{moderator, alice, bob, carol} {
		if err := application.Store().CreateUser(ctx, u); err != nil {
			t.Fatalf("CreateUser(%s) error = %v", u.Username, err)
		}
	}
	topic, err := application.Sessions().CreateTopic(ctx, moderator.ID,
		"School uniforms", "Should secondary schools require uniforms for all students?")
	if err != nil {
		t.Fatalf("CreateTopic() error = %v", err)
	}

	return &testEnv{app: application, server: server, topic: topic}
}

// session creates a session whose window is offset from now
func (e *testEnv) session(t *testing.T, startIn, duration time.Duration, capacity int) *types.DebateSession {
	t.Helper()
	start := time.Now().Add(startIn)
	s, err := e.app.Sessions().CreateSession(context.Background(), moderator.ID, e.topic.ID, start, start.Add(duration), capacity)
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	return s
}

func (e *testEnv) token(t *testing.T, user *types.User) string {
	t.Helper()
	token, err := e.app.Auth().IssueToken(user)
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}
	return token
}

func (e *testEnv) post(t *testing.T, user *types.User, path string) *http.Response {
	t.Helper()
	return e.request(t, http.MethodPost, user, path)
}

func (e *testEnv) request(t *testing.T, method string, user *types.User, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (e *testEnv) join(t *testing.T, user *types.User, sessionID int64) {
	t.Helper()
	if resp := e.post(t, user, fmt.Sprintf("/api/sessions/%d/join", sessionID)); resp.StatusCode != http.StatusCreated {
		t.Fatalf("%s join status = %d", user.Username, resp.StatusCode)
	}
}

// dial opens the real-time connection; the response is returned for rejected handshakes
func (e *testEnv) dial(t *testing.T, user *types.User, sessionID int64) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := fmt.Sprintf("ws%s/ws/debate/%d/?token=%s", strings.TrimPrefix(e.server.URL, "http"), sessionID, e.token(t, user))
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		t.Cleanup(func() { conn.Close() })
	}
	return conn, resp, err
}

func (e *testEnv) connect(t *testing.T, user *types.User, sessionID int64) *websocket.Conn {
	t.Helper()
	conn, resp, err := e.dial(t, user, sessionID)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		t.Fatalf("%s dial error = %v (status %d)", user.Username, err, status)
	}
	return conn
}

// readEvent skips frames until one of eventType arrives
func readEvent(t *testing.T, conn *websocket.Conn, eventType string) map[string]interface{} {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		if err := conn.SetReadDeadline(deadline); err != nil {
			t.Fatal(err)
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		var event map[string]interface{}
		if err := json.Unmarshal(data, &event); err != nil {
			t.Fatalf("invalid frame %q: %v", data, err)
		}
		if event["type"] == eventType {
			return event
		}
	}
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("write error = %v", err)
	}
}

func number(v interface{}) int {
	n, _ := v.(float64)
	return int(n)
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func jsonBody(s string) *strings.Reader {
	return strings.NewReader(s)
}
