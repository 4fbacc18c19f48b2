// Package router fans encoded events out to a session's broadcast group.
package router

import (
	"encoding/json"
	"fmt"
	"log"

	"debatehall/pkg/interfaces"
)

// GroupSource lists the live connections of a session
type GroupSource interface {
	SessionConnections(sessionID int64) []interfaces.Connection
}

// Metrics observes broadcast outcomes. A nil Metrics is allowed.
type Metrics interface {
	BroadcastDelivered(sessionID int64, count int)
	BroadcastDropped(sessionID int64, count int)
}

// Router implements interfaces.Broadcaster.
// Delivery is at-most-once: a member whose buffer is full or whose
// connection is closed misses the event.
type Router struct {
	groups  GroupSource
	metrics Metrics
}

func NewRouter(groups GroupSource, metrics Metrics) *Router {
	return &Router{
		groups:  groups,
		metrics: metrics,
	}
}

// Send delivers event to every connection in the session's group
func (r *Router) Send(sessionID int64, event interface{}) int {
	return r.SendExcept(sessionID, event, interfaces.Exclude{})
}

// SendExcept delivers event to every connection not matched by exclude
func (r *Router) SendExcept(sessionID int64, event interface{}, exclude interfaces.Exclude) int {
	data, err := encode(event)
	if err != nil {
		log.Printf("Broadcast skipped: session=%d error=%v", sessionID, err)
		return 0
	}

	delivered, dropped := 0, 0
	for _, conn := range r.groups.SessionConnections(sessionID) {
		if excluded(conn, exclude) {
			continue
		}
		if err := conn.Send(data); err != nil {
			dropped++
			log.Printf("Broadcast dropped: session=%d connection=%s error=%v", sessionID, conn.ID(), err)
			continue
		}
		delivered++
	}

	if r.metrics != nil {
		r.metrics.BroadcastDelivered(sessionID, delivered)
		if dropped > 0 {
			r.metrics.BroadcastDropped(sessionID, dropped)
		}
	}
	return delivered
}

func excluded(conn interfaces.Connection, exclude interfaces.Exclude) bool {
	if exclude.ConnectionID != "" && conn.ID() == exclude.ConnectionID {
		return true
	}
	if exclude.UserID != 0 && conn.User() != nil && conn.User().ID == exclude.UserID {
		return true
	}
	return false
}

// encode marshals once per broadcast; pre-encoded frames pass through
func encode(event interface{}) ([]byte, error) {
	switch v := event.(type) {
	case []byte:
		return v, nil
	case json.RawMessage:
		return v, nil
	}
	data, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnencodableEvent, err)
	}
	return data, nil
}
