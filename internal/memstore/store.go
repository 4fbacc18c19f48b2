// Package memstore is an in-process implementation of interfaces.Store.
// It backs tests and single-node deployments that run without SQLite.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"debatehall/pkg/interfaces"
	"debatehall/pkg/types"
)

type participantKey struct {
	sessionID int64
	userID    int64
}

// Store keeps all rows in maps guarded by one RWMutex
type Store struct {
	mu           sync.RWMutex
	users        map[int64]*types.User
	topics       map[int64]*types.DebateTopic
	sessions     map[int64]*types.DebateSession
	participants map[participantKey]*types.Participant
	messages     map[int64]*types.Message
	bySession    map[int64][]int64 // sessionID -> message IDs in insertion order
	moderation   []*types.ModerationAction

	nextTopicID      int64
	nextSessionID    int64
	nextMessageID    int64
	nextModerationID int64
}

var _ interfaces.Store = (*Store)(nil)

// New creates an empty store
func New() *Store {
	return &Store{
		users:        make(map[int64]*types.User),
		topics:       make(map[int64]*types.DebateTopic),
		sessions:     make(map[int64]*types.DebateSession),
		participants: make(map[participantKey]*types.Participant),
		messages:     make(map[int64]*types.Message),
		bySession:    make(map[int64][]int64),
	}
}

func (s *Store) CreateUser(ctx context.Context, user *types.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[user.ID]; exists {
		return interfaces.ErrDuplicateRow
	}
	u := *user
	s.users[user.ID] = &u
	return nil
}

func (s *Store) GetUser(ctx context.Context, userID int64) (*types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, interfaces.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (s *Store) CreateTopic(ctx context.Context, topic *types.DebateTopic) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextTopicID++
	topic.ID = s.nextTopicID
	if topic.CreatedAt.IsZero() {
		topic.CreatedAt = time.Now()
	}
	t := *topic
	s.topics[t.ID] = &t
	return nil
}

func (s *Store) GetTopic(ctx context.Context, topicID int64) (*types.DebateTopic, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.topics[topicID]
	if !ok {
		return nil, interfaces.ErrTopicNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *Store) CreateSession(ctx context.Context, session *types.DebateSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSessionID++
	session.ID = s.nextSessionID
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	copied := *session
	s.sessions[copied.ID] = &copied
	return nil
}

func (s *Store) GetSession(ctx context.Context, sessionID int64) (*types.DebateSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, interfaces.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (s *Store) UpdateSessionWindow(ctx context.Context, sessionID int64, start, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return interfaces.ErrSessionNotFound
	}
	session.StartTime = start
	session.EndTime = end
	return nil
}

func (s *Store) GetParticipant(ctx context.Context, sessionID, userID int64) (*types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.participants[participantKey{sessionID, userID}]
	if !ok {
		return nil, interfaces.ErrParticipantNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *Store) CreateParticipant(ctx context.Context, participant *types.Participant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := participantKey{participant.SessionID, participant.UserID}
	if _, exists := s.participants[key]; exists {
		return interfaces.ErrDuplicateRow
	}
	copied := *participant
	s.participants[key] = &copied
	return nil
}

func (s *Store) SetParticipantActive(ctx context.Context, sessionID, userID int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.participants[participantKey{sessionID, userID}]
	if !ok {
		return interfaces.ErrParticipantNotFound
	}
	p.IsActive = active
	return nil
}

func (s *Store) CountActiveParticipants(ctx context.Context, sessionID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for key, p := range s.participants {
		if key.sessionID == sessionID && p.IsActive {
			count++
		}
	}
	return count, nil
}

func (s *Store) ListActiveParticipants(ctx context.Context, sessionID int64) ([]*types.Participant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.Participant
	for key, p := range s.participants {
		if key.sessionID == sessionID && p.IsActive {
			copied := *p
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].JoinedAt.Before(result[j].JoinedAt)
	})
	return result, nil
}

func (s *Store) AppendMessage(ctx context.Context, message *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[message.SessionID]; !ok {
		return interfaces.ErrSessionNotFound
	}
	s.nextMessageID++
	message.ID = s.nextMessageID
	copied := *message
	s.messages[copied.ID] = &copied
	s.bySession[copied.SessionID] = append(s.bySession[copied.SessionID], copied.ID)
	return nil
}

func (s *Store) GetMessage(ctx context.Context, messageID int64) (*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.messages[messageID]
	if !ok {
		return nil, interfaces.ErrMessageNotFound
	}
	copied := *m
	return &copied, nil
}

func (s *Store) SetMessageDeleted(ctx context.Context, messageID int64, deleted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return interfaces.ErrMessageNotFound
	}
	m.IsDeleted = deleted
	return nil
}

func (s *Store) ListMessages(ctx context.Context, sessionID int64, since time.Time) ([]*types.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.Message
	for _, id := range s.bySession[sessionID] {
		m := s.messages[id]
		if m.IsDeleted || m.Timestamp.Before(since) {
			continue
		}
		copied := *m
		result = append(result, &copied)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Timestamp.Equal(result[j].Timestamp) {
			return result[i].ID < result[j].ID
		}
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (s *Store) LastMessageTime(ctx context.Context, sessionID int64) (time.Time, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.bySession[sessionID]
	if len(ids) == 0 {
		return time.Time{}, false, nil
	}
	var last time.Time
	for _, id := range ids {
		if ts := s.messages[id].Timestamp; ts.After(last) {
			last = ts
		}
	}
	return last, true, nil
}

func (s *Store) RecordModerationAction(ctx context.Context, action *types.ModerationAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextModerationID++
	action.ID = s.nextModerationID
	copied := *action
	s.moderation = append(s.moderation, &copied)
	return nil
}

func (s *Store) ListModerationActions(ctx context.Context, sessionID int64) ([]*types.ModerationAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*types.ModerationAction
	for _, a := range s.moderation {
		if a.SessionID == sessionID {
			copied := *a
			result = append(result, &copied)
		}
	}
	return result, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}
