package router

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

type mockConn struct {
	id      string
	user    *types.User
	session int64
	full    bool

	mu   sync.Mutex
	sent [][]byte
}

func (m *mockConn) ID() string                    { return m.id }
func (m *mockConn) User() *types.User             { return m.user }
func (m *mockConn) SessionID() int64              { return m.session }
func (m *mockConn) WriteJSON(v interface{}) error { return nil }
func (m *mockConn) Close() error                  { return nil }

func (m *mockConn) Send(data []byte) error {
	if m.full {
		return errors.New("send buffer full")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) frames() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.sent...)
}

type staticGroups map[int64][]interfaces.Connection

func (s staticGroups) SessionConnections(sessionID int64) []interfaces.Connection {
	return s[sessionID]
}

type countingMetrics struct {
	delivered, dropped int
}

func (c *countingMetrics) BroadcastDelivered(sessionID int64, count int) { c.delivered += count }
func (c *countingMetrics) BroadcastDropped(sessionID int64, count int)   { c.dropped += count }

func conn(id string, userID int64) *mockConn {
	return &mockConn{id: id, user: &types.User{ID: userID}, session: 1}
}

func TestRouter_InterfaceCompliance(t *testing.T) {
	var _ interfaces.Broadcaster = NewRouter(staticGroups{}, nil)
}

func TestRouter_SendReachesWholeGroup(t *testing.T) {
	a, b, other := conn("a", 1), conn("b", 2), conn("c", 3)
	groups := staticGroups{1: {a, b}, 2: {other}}
	r := NewRouter(groups, nil)

	n := r.Send(1, map[string]string{"type": "pong"})
	if n != 2 {
		t.Errorf("Send() delivered %d, want 2", n)
	}
	if len(a.frames()) != 1 || len(b.frames()) != 1 {
		t.Error("every member should receive the event")
	}
	if len(other.frames()) != 0 {
		t.Error("other sessions must not receive the event")
	}

	var event map[string]string
	if err := json.Unmarshal(a.frames()[0], &event); err != nil || event["type"] != "pong" {
		t.Errorf("unexpected frame %s", a.frames()[0])
	}
}

func TestRouter_SendExcept(t *testing.T) {
	tests := []struct {
		name    string
		exclude interfaces.Exclude
		want    []string
	}{
		{"nobody", interfaces.Exclude{}, []string{"a1", "a2", "b"}},
		{"one connection", interfaces.Exclude{ConnectionID: "a1"}, []string{"a2", "b"}},
		{"every tab of a user", interfaces.Exclude{UserID: 1}, []string{"b"}},
		{"unknown", interfaces.Exclude{ConnectionID: "zzz", UserID: 99}, []string{"a1", "a2", "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a1, a2, b := conn("a1", 1), conn("a2", 1), conn("b", 2)
			r := NewRouter(staticGroups{1: {a1, a2, b}}, nil)

			n := r.SendExcept(1, map[string]string{"type": "typing_indicator"}, tt.exclude)
			if n != len(tt.want) {
				t.Errorf("SendExcept() delivered %d, want %d", n, len(tt.want))
			}

			var got []string
			for _, c := range []*mockConn{a1, a2, b} {
				if len(c.frames()) > 0 {
					got = append(got, c.id)
				}
			}
			if len(got) != len(tt.want) {
				t.Fatalf("recipients = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("recipients = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestRouter_FullBufferDropsOnlyThatMember(t *testing.T) {
	slow := conn("slow", 1)
	slow.full = true
	fast := conn("fast", 2)
	metrics := &countingMetrics{}
	r := NewRouter(staticGroups{1: {slow, fast}}, metrics)

	if n := r.Send(1, map[string]string{"type": "chat_message"}); n != 1 {
		t.Errorf("Send() delivered %d, want 1", n)
	}
	if len(fast.frames()) != 1 {
		t.Error("healthy member should still receive the event")
	}
	if metrics.delivered != 1 || metrics.dropped != 1 {
		t.Errorf("metrics delivered=%d dropped=%d", metrics.delivered, metrics.dropped)
	}
}

func TestRouter_EncodesOnce(t *testing.T) {
	a, b := conn("a", 1), conn("b", 2)
	r := NewRouter(staticGroups{1: {a, b}}, nil)

	r.Send(1, map[string]string{"type": "pong"})
	if &a.frames()[0][0] != &b.frames()[0][0] {
		t.Error("members should share one encoded frame")
	}
}

func TestRouter_PreEncodedAndUnencodable(t *testing.T) {
	a := conn("a", 1)
	r := NewRouter(staticGroups{1: {a}}, nil)

	if n := r.Send(1, []byte(`{"type":"pong"}`)); n != 1 || string(a.frames()[0]) != `{"type":"pong"}` {
		t.Errorf("pre-encoded frame should pass through unchanged")
	}
	if n := r.Send(1, map[string]interface{}{"bad": func() {}}); n != 0 {
		t.Errorf("unencodable event delivered to %d members", n)
	}
	if n := r.Send(42, map[string]string{"type": "pong"}); n != 0 {
		t.Errorf("empty group delivered %d", n)
	}
}

func TestRouter_ConcurrentBroadcasts(t *testing.T) {
	members := []interfaces.Connection{conn("a", 1), conn("b", 2), conn("c", 3)}
	r := NewRouter(staticGroups{1: members}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Send(1, map[string]string{"type": "pong"})
		}()
	}
	wg.Wait()

	for _, m := range members {
		if got := len(m.(*mockConn).frames()); got != 20 {
			t.Errorf("member %s received %d frames, want 20", m.ID(), got)
		}
	}
}
