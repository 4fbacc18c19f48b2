package websocket

import (
	"sort"
	"sync"

	"debatehall/pkg/interfaces"
)

// group is one session's broadcast group
type group struct {
	mu      sync.RWMutex
	conns   map[string]interfaces.Connection // connectionID -> Connection
	removed bool
}

// Registry maps sessions to their broadcast groups.
// The outer lock is held only to find, create or remove a group.
type Registry struct {
	mu     sync.RWMutex
	groups map[int64]*group // sessionID -> group
}

func NewRegistry() *Registry {
	return &Registry{
		groups: make(map[int64]*group),
	}
}

func (r *Registry) groupFor(sessionID int64) *group {
	r.mu.RLock()
	g, ok := r.groups[sessionID]
	r.mu.RUnlock()
	if ok {
		return g
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok = r.groups[sessionID]; !ok {
		g = &group{conns: make(map[string]interfaces.Connection)}
		r.groups[sessionID] = g
	}
	return g
}

// Register adds conn to its session's group. A user may hold several connections.
func (r *Registry) Register(conn interfaces.Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	for {
		g := r.groupFor(conn.SessionID())
		g.mu.Lock()
		if g.removed {
			// lost a race with Unregister dropping the empty group
			g.mu.Unlock()
			continue
		}
		g.conns[conn.ID()] = conn
		g.mu.Unlock()
		return nil
	}
}

// Unregister removes conn from its group and drops the group once empty.
// Idempotent.
func (r *Registry) Unregister(conn interfaces.Connection) {
	if conn == nil {
		return
	}
	sessionID := conn.SessionID()

	r.mu.RLock()
	g, ok := r.groups[sessionID]
	r.mu.RUnlock()
	if !ok {
		return
	}

	g.mu.Lock()
	delete(g.conns, conn.ID())
	empty := len(g.conns) == 0
	g.mu.Unlock()
	if !empty {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.conns) == 0 && r.groups[sessionID] == g {
		g.removed = true
		delete(r.groups, sessionID)
	}
}

// SessionConnections returns a snapshot of the group ordered by connection ID
func (r *Registry) SessionConnections(sessionID int64) []interfaces.Connection {
	r.mu.RLock()
	g, ok := r.groups[sessionID]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	g.mu.RLock()
	connections := make([]interfaces.Connection, 0, len(g.conns))
	for _, conn := range g.conns {
		connections = append(connections, conn)
	}
	g.mu.RUnlock()

	sort.Slice(connections, func(i, j int) bool { return connections[i].ID() < connections[j].ID() })
	return connections
}

// UserConnections returns the user's connections in one session
func (r *Registry) UserConnections(sessionID, userID int64) []interfaces.Connection {
	var result []interfaces.Connection
	for _, conn := range r.SessionConnections(sessionID) {
		if conn.User() != nil && conn.User().ID == userID {
			result = append(result, conn)
		}
	}
	return result
}

// CloseAll closes every registered connection. Used on shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	groups := make([]*group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	for _, g := range groups {
		g.mu.RLock()
		conns := make([]interfaces.Connection, 0, len(g.conns))
		for _, conn := range g.conns {
			conns = append(conns, conn)
		}
		g.mu.RUnlock()

		for _, conn := range conns {
			_ = conn.Close()
		}
	}
}

// GetStats returns registry statistics for monitoring and debugging
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	groups := make([]*group, 0, len(r.groups))
	for _, g := range r.groups {
		groups = append(groups, g)
	}
	r.mu.RUnlock()

	total := 0
	for _, g := range groups {
		g.mu.RLock()
		total += len(g.conns)
		g.mu.RUnlock()
	}

	return map[string]int{
		"total_connections": total,
		"active_sessions":   len(groups),
	}
}
