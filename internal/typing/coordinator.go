// Package typing keeps per-user typing indicators that expire on their own.
package typing

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"debatehall/pkg/types"
)

// DefaultTimeout is how long an indicator lives without further activity
const DefaultTimeout = 3 * time.Second

// ExpireFunc is called, outside any lock, when an indicator times out
type ExpireFunc func(userID, sessionID int64)

type indicator struct {
	state      types.TypingIndicator
	timer      *time.Timer
	generation uint64
}

type sessionTyping struct {
	mu         sync.Mutex
	indicators map[int64]*indicator // userID -> indicator
}

// Coordinator debounces typing state per (user, session).
// Every SetTyping takes a fresh generation from one coordinator-wide counter;
// a timer only clears the generation it was armed for, so generations are never reused.
type Coordinator struct {
	timeout     time.Duration
	onExpire    ExpireFunc
	generations atomic.Uint64

	mu       sync.RWMutex
	sessions map[int64]*sessionTyping
	closed   bool
}

func NewCoordinator(timeout time.Duration, onExpire ExpireFunc) *Coordinator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Coordinator{
		timeout:  timeout,
		onExpire: onExpire,
		sessions: make(map[int64]*sessionTyping),
	}
}

// SetOnExpire replaces the expiry callback. Used when the broadcaster is built after the coordinator.
func (c *Coordinator) SetOnExpire(fn ExpireFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onExpire = fn
}

func (c *Coordinator) session(sessionID int64) *sessionTyping {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if ok {
		return st
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if st, ok = c.sessions[sessionID]; !ok {
		st = &sessionTyping{indicators: make(map[int64]*indicator)}
		c.sessions[sessionID] = st
	}
	return st
}

// SetTyping marks the user as typing and re-arms the expiry window.
// It reports whether the user was not typing before.
func (c *Coordinator) SetTyping(userID, sessionID int64, now time.Time) bool {
	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return false
	}

	st := c.session(sessionID)
	st.mu.Lock()
	defer st.mu.Unlock()

	ind, existed := st.indicators[userID]
	if existed {
		ind.timer.Stop()
		ind.state.UpdatedAt = now
	} else {
		ind = &indicator{
			state: types.TypingIndicator{
				SessionID: sessionID,
				UserID:    userID,
				IsTyping:  true,
				StartedAt: now,
				UpdatedAt: now,
			},
		}
		st.indicators[userID] = ind
	}

	generation := c.generations.Add(1)
	ind.generation = generation
	ind.timer = time.AfterFunc(c.timeout, func() {
		c.expire(userID, sessionID, generation)
	})

	return !existed
}

// ClearTyping removes the indicator and cancels its timer.
// It reports whether an indicator existed.
func (c *Coordinator) ClearTyping(userID, sessionID int64) bool {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return false
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	ind, ok := st.indicators[userID]
	if !ok {
		return false
	}
	ind.timer.Stop()
	delete(st.indicators, userID)
	return true
}

func (c *Coordinator) expire(userID, sessionID int64, generation uint64) {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	onExpire := c.onExpire
	c.mu.RUnlock()
	if !ok {
		return
	}

	st.mu.Lock()
	ind, ok := st.indicators[userID]
	if !ok || ind.generation != generation {
		st.mu.Unlock()
		return
	}
	delete(st.indicators, userID)
	st.mu.Unlock()

	if onExpire != nil {
		onExpire(userID, sessionID)
	}
}

// IsTyping reports whether the user currently has an indicator
func (c *Coordinator) IsTyping(userID, sessionID int64) bool {
	_, ok := c.Indicator(userID, sessionID)
	return ok
}

// Indicator returns a copy of the user's indicator
func (c *Coordinator) Indicator(userID, sessionID int64) (types.TypingIndicator, bool) {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return types.TypingIndicator{}, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	ind, ok := st.indicators[userID]
	if !ok {
		return types.TypingIndicator{}, false
	}
	return ind.state, true
}

// Typing lists the session's active indicators ordered by user ID
func (c *Coordinator) Typing(sessionID int64) []types.TypingIndicator {
	c.mu.RLock()
	st, ok := c.sessions[sessionID]
	c.mu.RUnlock()
	if !ok {
		return nil
	}

	st.mu.Lock()
	result := make([]types.TypingIndicator, 0, len(st.indicators))
	for _, ind := range st.indicators {
		result = append(result, ind.state)
	}
	st.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].UserID < result[j].UserID })
	return result
}

// Close stops every pending timer; later SetTyping calls are ignored
func (c *Coordinator) Close() {
	c.mu.Lock()
	c.closed = true
	sessions := c.sessions
	c.sessions = make(map[int64]*sessionTyping)
	c.mu.Unlock()

	for _, st := range sessions {
		st.mu.Lock()
		for userID, ind := range st.indicators {
			ind.timer.Stop()
			delete(st.indicators, userID)
		}
		st.mu.Unlock()
	}
}
