package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Test WebSocket upgrader for creating test connections
var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

var testUser = &types.User{ID: 7, Username: "alice", Role: types.RoleStudent}

func TestConnection_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Connection = &Connection{}
}

func TestConnection_NewConnectionInitialization(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, DefaultConnectionOptions())
	defer conn.Close()

	if conn.ID() == "" {
		t.Error("connection ID should be assigned")
	}
	if cap(conn.writeCh) != 100 {
		t.Errorf("Expected write channel buffer of 100, got %d", cap(conn.writeCh))
	}
	if conn.State() != StateJoined {
		t.Errorf("State() = %v, want joined", conn.State())
	}
	if conn.UserID() != 7 || conn.SessionID() != 3 || conn.User().Username != "alice" {
		t.Errorf("unexpected identity: user=%d session=%d", conn.UserID(), conn.SessionID())
	}
	if conn.ConnectedAt().IsZero() {
		t.Error("ConnectedAt should be set")
	}
}

func TestConnection_IDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		c := newConnection()
		if seen[c.ID()] {
			t.Fatalf("duplicate connection ID %s", c.ID())
		}
		seen[c.ID()] = true
	}
}

func TestConnection_StateOnlyMovesForward(t *testing.T) {
	c := newConnection()
	if c.State() != StateConnecting {
		t.Fatalf("initial state = %v", c.State())
	}

	steps := []struct {
		next State
		want bool
	}{
		{StateAuthenticating, true},
		{StateConnecting, false},
		{StateValidating, true},
		{StateValidating, false},
		{StateJoined, true},
	}
	for _, step := range steps {
		if got := c.advance(step.next); got != step.want {
			t.Errorf("advance(%v) = %t, want %t", step.next, got, step.want)
		}
	}

	c.Close()
	if c.State() != StateClosed {
		t.Errorf("State() after Close = %v", c.State())
	}
	if c.advance(StateJoined) {
		t.Error("a closed connection must not be reopened")
	}
}

func TestConnection_SendBeforeJoin(t *testing.T) {
	c := newConnection()
	defer c.Close()

	if err := c.Send([]byte("{}")); !errors.Is(err, ErrNotJoined) {
		t.Errorf("Send() before join error = %v, want ErrNotJoined", err)
	}
}

func TestConnection_WriteJSONDelivers(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, DefaultConnectionOptions())
	defer conn.Close()

	if err := conn.WriteJSON(map[string]interface{}{"type": "pong"}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}

	select {
	case data := <-received:
		var event map[string]interface{}
		if err := json.Unmarshal(data, &event); err != nil || event["type"] != "pong" {
			t.Errorf("unexpected frame %s", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("frame was not delivered")
	}
}

func TestConnection_WriteJSONInvalidData(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, DefaultConnectionOptions())
	defer conn.Close()

	// Function type cannot be marshaled to JSON
	err := conn.WriteJSON(map[string]interface{}{"func": func() {}})
	if err != ErrInvalidJSON {
		t.Errorf("Expected ErrInvalidJSON, got %v", err)
	}
}

func TestConnection_SendNeverBlocksOnFullBuffer(t *testing.T) {
	c := newConnection()
	c.writeCh = make(chan []byte, 2) // no writer goroutine drains it
	c.advance(StateJoined)
	defer c.Close()

	_ = c.Send([]byte("1"))
	_ = c.Send([]byte("2"))

	done := make(chan error, 1)
	go func() { done <- c.Send([]byte("3")) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSendBufferFull) {
			t.Errorf("Send() on full buffer error = %v, want ErrSendBufferFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
}

func TestConnection_CloseIdempotent(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, DefaultConnectionOptions())

	if err := conn.Close(); err != nil {
		t.Errorf("First close failed: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}

	select {
	case <-conn.Done():
	default:
		t.Error("Done() should be closed after Close")
	}
}

func TestConnection_WriteAfterClose(t *testing.T) {
	wsConn, _ := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, DefaultConnectionOptions())
	conn.Close()

	err := conn.WriteJSON(map[string]interface{}{"type": "test"})
	if err != ErrConnectionClosed {
		t.Errorf("Expected ErrConnectionClosed, got %v", err)
	}
}

func TestConnection_ConcurrentWrites(t *testing.T) {
	wsConn, received := createTestWebSocketConnection(t)

	conn := NewConnection(wsConn, testUser, 3, ConnectionOptions{SendBuffer: 200})
	defer conn.Close()

	const numGoroutines = 10
	const messagesPerGoroutine = 10

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < messagesPerGoroutine; j++ {
				if err := conn.WriteJSON(map[string]interface{}{"worker": id, "message": j}); err != nil {
					t.Errorf("WriteJSON failed: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	deadline := time.After(3 * time.Second)
	for n := 0; n < numGoroutines*messagesPerGoroutine; n++ {
		select {
		case <-received:
		case <-deadline:
			t.Fatalf("only %d frames delivered", n)
		}
	}
}

// createTestWebSocketConnection dials a server that forwards every frame it reads
func createTestWebSocketConnection(t *testing.T) (*websocket.Conn, <-chan []byte) {
	received := make(chan []byte, 256)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		defer conn.Close()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			received <- data
		}
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to create test WebSocket connection: %v", err)
	}
	t.Cleanup(func() { conn.Close() })

	return conn, received
}
