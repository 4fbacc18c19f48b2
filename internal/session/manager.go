// Package session manages topics, session windows and connection admission.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"debatehall/internal/keylock"
	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

// Store is the persistence the manager reads and writes
type Store interface {
	interfaces.UserStore
	interfaces.SessionStore
	interfaces.ParticipantStore
}

// Manager caches sessions and serializes window changes per session
type Manager struct {
	store               Store
	allowCreatorConnect bool

	cache map[int64]*types.DebateSession // sessionID -> Session
	mu    sync.RWMutex
	locks *keylock.Map
}

// NewManager creates a session manager. allowCreatorConnect lets a
// session's creator connect without a membership row.
func NewManager(store Store, allowCreatorConnect bool) *Manager {
	return &Manager{
		store:               store,
		allowCreatorConnect: allowCreatorConnect,
		cache:               make(map[int64]*types.DebateSession),
		locks:               keylock.New(),
	}
}

func (m *Manager) requireModerator(ctx context.Context, userID int64) (*types.User, error) {
	user, err := m.store.GetUser(ctx, userID)
	if errors.Is(err, interfaces.ErrUserNotFound) {
		return nil, ErrModeratorRequired
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsModerator() {
		return nil, ErrModeratorRequired
	}
	return user, nil
}

// CreateTopic stores a new active topic owned by a moderator
func (m *Manager) CreateTopic(ctx context.Context, createdBy int64, title, description string) (*types.DebateTopic, error) {
	topic := &types.DebateTopic{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		CreatedBy:   createdBy,
		IsActive:    true,
	}
	if err := topic.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.requireModerator(ctx, createdBy); err != nil {
		return nil, err
	}

	if err := m.store.CreateTopic(ctx, topic); err != nil {
		return nil, fmt.Errorf("failed to create topic: %w", err)
	}

	log.Printf("Created topic: id=%d by=%d", topic.ID, createdBy)
	return topic, nil
}

// CreateSession schedules a session for an active topic
func (m *Manager) CreateSession(ctx context.Context, createdBy, topicID int64, start, end time.Time, maxParticipants int) (*types.DebateSession, error) {
	session := &types.DebateSession{
		TopicID:         topicID,
		StartTime:       start,
		EndTime:         end,
		CreatedBy:       createdBy,
		MaxParticipants: maxParticipants,
		IsActive:        true,
	}
	if err := session.Validate(); err != nil {
		return nil, err
	}
	if _, err := m.requireModerator(ctx, createdBy); err != nil {
		return nil, err
	}

	topic, err := m.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	if !topic.IsActive {
		return nil, ErrTopicInactive
	}

	if err := m.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	m.remember(session)
	log.Printf("Created session: id=%d topic=%d capacity=%d", session.ID, topicID, session.MaxParticipants)
	return session, nil
}

// GetSession returns a copy of the session, checking the cache first
func (m *Manager) GetSession(ctx context.Context, sessionID int64) (*types.DebateSession, error) {
	m.mu.RLock()
	if cached, ok := m.cache[sessionID]; ok {
		copied := *cached
		m.mu.RUnlock()
		return &copied, nil
	}
	m.mu.RUnlock()

	session, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	m.remember(session)
	return session, nil
}

func (m *Manager) remember(session *types.DebateSession) {
	copied := *session
	m.mu.Lock()
	m.cache[session.ID] = &copied
	m.mu.Unlock()
}

// StartNow moves a scheduled session's window to begin at now, keeping its duration
func (m *Manager) StartNow(ctx context.Context, actorID, sessionID int64, now time.Time) (*types.DebateSession, error) {
	return m.moveWindow(ctx, actorID, sessionID, now, now)
}

// Reschedule moves a scheduled session's window to begin at newStart, keeping its duration
func (m *Manager) Reschedule(ctx context.Context, actorID, sessionID int64, newStart, now time.Time) (*types.DebateSession, error) {
	if !newStart.After(now) {
		return nil, ErrStartInPast
	}
	return m.moveWindow(ctx, actorID, sessionID, newStart, now)
}

func (m *Manager) moveWindow(ctx context.Context, actorID, sessionID int64, start, now time.Time) (*types.DebateSession, error) {
	unlock := m.locks.Lock(sessionID)
	defer unlock()

	session, err := m.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.CreatedBy != actorID {
		return nil, ErrUnauthorized
	}
	if session.Status(now) != types.StatusScheduled {
		return nil, ErrSessionAlreadyStarted
	}

	duration := session.Duration()
	session.StartTime = start
	session.EndTime = start.Add(duration)

	if err := m.store.UpdateSessionWindow(ctx, sessionID, session.StartTime, session.EndTime); err != nil {
		return nil, fmt.Errorf("failed to update session window: %w", err)
	}
	m.remember(session)

	log.Printf("Session window moved: id=%d start=%s end=%s", sessionID,
		session.StartTime.Format(time.RFC3339), session.EndTime.Format(time.RFC3339))
	return session, nil
}

// ValidateConnection decides whether user may open a real-time connection.
// Connections are allowed in any status while the session is active.
func (m *Manager) ValidateConnection(ctx context.Context, session *types.DebateSession, user *types.User) error {
	if !session.IsActive {
		return ErrSessionInactive
	}
	if m.allowCreatorConnect && session.CreatedBy == user.ID {
		return nil
	}

	p, err := m.store.GetParticipant(ctx, session.ID, user.ID)
	if errors.Is(err, interfaces.ErrParticipantNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("failed to load participant: %w", err)
	}
	if !p.IsActive {
		return ErrUnauthorized
	}
	return nil
}

// GetStats returns session manager statistics
func (m *Manager) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"cached_sessions": len(m.cache),
		"session_locks":   m.locks.Len(),
	}
}
