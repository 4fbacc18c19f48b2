// Package presence tracks which participants are connected to which session.
// State is in-memory and scoped to the process lifetime.
package presence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"debatehall/pkg/types"
)

// MemberCounter supplies the durable participant total
type MemberCounter interface {
	Count(ctx context.Context, sessionID int64) (int, error)
}

type sessionPresence struct {
	mu      sync.Mutex
	records map[int64]*types.OnlinePresence // userID -> record
	removed bool                            // unlinked from Tracker.sessions
}

// Tracker holds at most one presence record per (user, session).
// Each session has its own lock; the outer lock only guards the session map.
type Tracker struct {
	mu       sync.RWMutex
	sessions map[int64]*sessionPresence
	members  MemberCounter
}

func NewTracker(members MemberCounter) *Tracker {
	return &Tracker{
		sessions: make(map[int64]*sessionPresence),
		members:  members,
	}
}

func (t *Tracker) session(sessionID int64, create bool) *sessionPresence {
	t.mu.RLock()
	sp, ok := t.sessions[sessionID]
	t.mu.RUnlock()
	if ok || !create {
		return sp
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if sp, ok = t.sessions[sessionID]; !ok {
		sp = &sessionPresence{records: make(map[int64]*types.OnlinePresence)}
		t.sessions[sessionID] = sp
	}
	return sp
}

// Attach upserts the presence record; the latest connection ID wins
func (t *Tracker) Attach(userID, sessionID int64, connectionID string, now time.Time) {
	sp := t.session(sessionID, true)
	sp.mu.Lock()
	for sp.removed {
		sp.mu.Unlock()
		sp = t.session(sessionID, true)
		sp.mu.Lock()
	}
	defer sp.mu.Unlock()

	if rec, ok := sp.records[userID]; ok {
		rec.ConnectionID = connectionID
		rec.LastSeen = now
		return
	}
	sp.records[userID] = &types.OnlinePresence{
		SessionID:    sessionID,
		UserID:       userID,
		ConnectionID: connectionID,
		ConnectedAt:  now,
		LastSeen:     now,
	}
}

// Touch refreshes last_seen. It reports false when no record exists.
func (t *Tracker) Touch(userID, sessionID int64, now time.Time) bool {
	sp := t.session(sessionID, false)
	if sp == nil {
		return false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()

	rec, ok := sp.records[userID]
	if !ok {
		return false
	}
	rec.LastSeen = now
	return true
}

// Detach removes the record unconditionally; calling it twice is harmless
func (t *Tracker) Detach(userID, sessionID int64) {
	sp := t.session(sessionID, false)
	if sp == nil {
		return
	}
	sp.mu.Lock()
	delete(sp.records, userID)
	empty := len(sp.records) == 0
	sp.mu.Unlock()

	if empty {
		t.mu.Lock()
		// recheck under the outer lock; an Attach may have raced in
		sp.mu.Lock()
		if len(sp.records) == 0 && !sp.removed {
			sp.removed = true
			delete(t.sessions, sessionID)
		}
		sp.mu.Unlock()
		t.mu.Unlock()
	}
}

// IsOnline reports whether the user has a presence record in the session
func (t *Tracker) IsOnline(userID, sessionID int64) bool {
	sp := t.session(sessionID, false)
	if sp == nil {
		return false
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	_, ok := sp.records[userID]
	return ok
}

// OnlineCount returns the number of connected users in the session
func (t *Tracker) OnlineCount(sessionID int64) int {
	sp := t.session(sessionID, false)
	if sp == nil {
		return 0
	}
	sp.mu.Lock()
	defer sp.mu.Unlock()
	return len(sp.records)
}

// Counts returns online and total participants together so callers broadcast one snapshot
func (t *Tracker) Counts(ctx context.Context, sessionID int64) (online, total int, err error) {
	online = t.OnlineCount(sessionID)
	total, err = t.members.Count(ctx, sessionID)
	if err != nil {
		return online, 0, fmt.Errorf("failed to count participants: %w", err)
	}
	return online, total, nil
}

// Online lists the session's presence records ordered by connect time
func (t *Tracker) Online(sessionID int64) []types.OnlinePresence {
	sp := t.session(sessionID, false)
	if sp == nil {
		return nil
	}
	sp.mu.Lock()
	result := make([]types.OnlinePresence, 0, len(sp.records))
	for _, rec := range sp.records {
		result = append(result, *rec)
	}
	sp.mu.Unlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].ConnectedAt.Equal(result[j].ConnectedAt) {
			return result[i].UserID < result[j].UserID
		}
		return result[i].ConnectedAt.Before(result[j].ConnectedAt)
	})
	return result
}

// Snapshot copies every presence record grouped by session
func (t *Tracker) Snapshot() map[int64][]types.OnlinePresence {
	t.mu.RLock()
	ids := make([]int64, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.RUnlock()

	snapshot := make(map[int64][]types.OnlinePresence, len(ids))
	for _, id := range ids {
		if records := t.Online(id); len(records) > 0 {
			snapshot[id] = records
		}
	}
	return snapshot
}
