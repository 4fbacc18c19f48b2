package interfaces

import (
	"context"
	"time"

	"debatehall/pkg/types"
)

// UserStore persists user records referenced by credentials
type UserStore interface {
	CreateUser(ctx context.Context, user *types.User) error
	GetUser(ctx context.Context, userID int64) (*types.User, error)
}

// SessionStore persists topics and sessions
type SessionStore interface {
	CreateTopic(ctx context.Context, topic *types.DebateTopic) error
	GetTopic(ctx context.Context, topicID int64) (*types.DebateTopic, error)
	CreateSession(ctx context.Context, session *types.DebateSession) error
	GetSession(ctx context.Context, sessionID int64) (*types.DebateSession, error)

	// UpdateSessionWindow moves a session's start and end time
	UpdateSessionWindow(ctx context.Context, sessionID int64, start, end time.Time) error
}

// ParticipantStore persists session membership rows.
// Callers serialize mutations per session; the store enforces (user, session) uniqueness.
type ParticipantStore interface {
	// GetParticipant returns ErrParticipantNotFound when no row exists, active or not
	GetParticipant(ctx context.Context, sessionID, userID int64) (*types.Participant, error)
	CreateParticipant(ctx context.Context, participant *types.Participant) error
	SetParticipantActive(ctx context.Context, sessionID, userID int64, active bool) error
	CountActiveParticipants(ctx context.Context, sessionID int64) (int, error)
	ListActiveParticipants(ctx context.Context, sessionID int64) ([]*types.Participant, error)
}

// MessageStore persists the append-only message log
type MessageStore interface {
	// AppendMessage assigns message.ID; IDs increase with insertion order
	AppendMessage(ctx context.Context, message *types.Message) error
	GetMessage(ctx context.Context, messageID int64) (*types.Message, error)
	SetMessageDeleted(ctx context.Context, messageID int64, deleted bool) error

	// ListMessages returns non-deleted messages with timestamp >= since,
	// ordered by timestamp then ID. A zero since returns the whole log.
	ListMessages(ctx context.Context, sessionID int64, since time.Time) ([]*types.Message, error)

	// LastMessageTime returns the newest timestamp in the session, deleted rows included
	LastMessageTime(ctx context.Context, sessionID int64) (time.Time, bool, error)
}

// ModerationStore records moderation decisions for audit
type ModerationStore interface {
	RecordModerationAction(ctx context.Context, action *types.ModerationAction) error
	ListModerationActions(ctx context.Context, sessionID int64) ([]*types.ModerationAction, error)
}

// Store is the full durable surface used by the application
type Store interface {
	UserStore
	SessionStore
	ParticipantStore
	MessageStore
	ModerationStore

	// HealthCheck verifies the backing store is reachable
	HealthCheck(ctx context.Context) error

	// Close releases store resources
	Close() error
}
