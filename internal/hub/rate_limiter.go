package hub

import (
	"sync"
	"time"
)

// RateLimiter implements a per-user fixed window
type RateLimiter struct {
	mu      sync.Mutex
	clients map[int64]*ClientLimit
	limit   int
	window  time.Duration
	now     func() time.Time
}

// ClientLimit tracks rate limiting for a single user
type ClientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter allows limit messages per window for each user
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		clients: make(map[int64]*ClientLimit),
		limit:   limit,
		window:  window,
		now:     time.Now,
	}
}

// Allow checks if the user can send another message in the current window
func (rl *RateLimiter) Allow(userID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()

	limit, exists := rl.clients[userID]
	if !exists {
		rl.clients[userID] = &ClientLimit{
			messageCount: 1,
			windowStart:  now,
		}
		return true
	}

	if now.Sub(limit.windowStart) >= rl.window {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= rl.limit {
		return false
	}

	limit.messageCount++
	return true
}

// Cleanup removes entries idle for more than five windows
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for userID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*rl.window {
			delete(rl.clients, userID)
		}
	}
}

// Len returns the number of tracked users
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
