package websocket

import (
	"fmt"
	"sync"
	"testing"

	"debatehall/pkg/types"
)

// fakeConn is a minimal interfaces.Connection for registry tests
type fakeConn struct {
	id        string
	user      *types.User
	sessionID int64

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

func newFakeConn(id string, userID, sessionID int64) *fakeConn {
	return &fakeConn{id: id, user: &types.User{ID: userID}, sessionID: sessionID}
}

func (f *fakeConn) ID() string                    { return f.id }
func (f *fakeConn) User() *types.User             { return f.user }
func (f *fakeConn) SessionID() int64              { return f.sessionID }
func (f *fakeConn) WriteJSON(v interface{}) error { return nil }

func (f *fakeConn) Send(data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, data)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeConn) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func TestRegistry_NewRegistryInitialization(t *testing.T) {
	registry := NewRegistry()

	stats := registry.GetStats()
	if stats["total_connections"] != 0 || stats["active_sessions"] != 0 {
		t.Errorf("Expected empty registry, got %v", stats)
	}
}

func TestRegistry_RegisterNil(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(nil); err != ErrNilConnection {
		t.Errorf("Expected ErrNilConnection, got %v", err)
	}
}

func TestRegistry_GroupsBySession(t *testing.T) {
	registry := NewRegistry()

	conns := []*fakeConn{
		newFakeConn("a", 1, 10),
		newFakeConn("b", 2, 10),
		newFakeConn("c", 1, 20),
	}
	for _, c := range conns {
		if err := registry.Register(c); err != nil {
			t.Fatalf("Register() error = %v", err)
		}
	}

	group := registry.SessionConnections(10)
	if len(group) != 2 || group[0].ID() != "a" || group[1].ID() != "b" {
		t.Errorf("SessionConnections(10) = %v", group)
	}
	if len(registry.SessionConnections(20)) != 1 {
		t.Error("session 20 should hold one connection")
	}
	if len(registry.SessionConnections(30)) != 0 {
		t.Error("unknown session should be empty")
	}

	stats := registry.GetStats()
	if stats["total_connections"] != 3 || stats["active_sessions"] != 2 {
		t.Errorf("unexpected stats %v", stats)
	}
}

func TestRegistry_MultipleConnectionsPerUser(t *testing.T) {
	registry := NewRegistry()

	first := newFakeConn("a", 1, 10)
	second := newFakeConn("b", 1, 10)
	registry.Register(first)
	registry.Register(second)

	if first.isClosed() {
		t.Error("a second tab must not close the first connection")
	}
	if got := len(registry.UserConnections(10, 1)); got != 2 {
		t.Errorf("UserConnections() = %d, want 2", got)
	}

	registry.Unregister(first)
	if got := len(registry.UserConnections(10, 1)); got != 1 {
		t.Errorf("UserConnections() after unregister = %d, want 1", got)
	}
}

func TestRegistry_UnregisterDropsEmptyGroup(t *testing.T) {
	registry := NewRegistry()
	conn := newFakeConn("a", 1, 10)

	registry.Register(conn)
	registry.Unregister(conn)
	registry.Unregister(conn) // idempotent
	registry.Unregister(nil)

	if stats := registry.GetStats(); stats["active_sessions"] != 0 {
		t.Errorf("empty group should be dropped, stats %v", stats)
	}
}

func TestRegistry_CloseAll(t *testing.T) {
	registry := NewRegistry()
	conns := []*fakeConn{newFakeConn("a", 1, 10), newFakeConn("b", 2, 20)}
	for _, c := range conns {
		registry.Register(c)
	}

	registry.CloseAll()
	for _, c := range conns {
		if !c.isClosed() {
			t.Errorf("connection %s not closed", c.ID())
		}
	}
}

func TestRegistry_ConcurrentRegistrationAndUnregistration(t *testing.T) {
	registry := NewRegistry()

	const workers = 50
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// all workers share one session so group creation and removal race
			conn := newFakeConn(fmt.Sprintf("conn-%d", i), int64(i), 10)
			for j := 0; j < 20; j++ {
				if err := registry.Register(conn); err != nil {
					t.Errorf("Register() error = %v", err)
				}
				registry.SessionConnections(10)
				registry.Unregister(conn)
			}
			if i%2 == 0 {
				registry.Register(conn)
			}
		}(i)
	}
	wg.Wait()

	if got := len(registry.SessionConnections(10)); got != workers/2 {
		t.Errorf("expected %d connections to remain, got %d", workers/2, got)
	}
}
