package types

import (
	"time"
)

// Inbound and outbound real-time event types
const (
	EventChatMessage           = "chat_message"
	EventTyping                = "typing"
	EventPing                  = "ping"
	EventConnectionEstablished = "connection_established"
	EventTypingIndicator       = "typing_indicator"
	EventOnlineCountUpdate     = "online_count_update"
	EventPong                  = "pong"
	EventError                 = "error"
)

// Role is the platform role carried by a user record
type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleModerator Role = "MODERATOR"
)

// SessionStatus is derived from the session window and never stored
type SessionStatus string

const (
	StatusScheduled SessionStatus = "scheduled"
	StatusOngoing   SessionStatus = "ongoing"
	StatusEnded     SessionStatus = "ended"
)

// ModerationKind enumerates the recordable moderation actions
type ModerationKind string

const (
	ModerationMute   ModerationKind = "MUTE"
	ModerationWarn   ModerationKind = "WARN"
	ModerationRemove ModerationKind = "REMOVE"
)

// DefaultMaxParticipants applies when a session is created without a capacity
const DefaultMaxParticipants = 20

// User is the identity resolved from a connection credential
type User struct {
	ID       int64  `json:"id" db:"id"`
	Username string `json:"username" db:"username"`
	Role     Role   `json:"role" db:"role"`
}

// IsModerator reports whether the user holds the moderator role
func (u *User) IsModerator() bool {
	return u != nil && u.Role == RoleModerator
}

// DebateTopic is the subject a moderator schedules sessions for
type DebateTopic struct {
	ID          int64     `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	CreatedBy   int64     `json:"created_by" db:"created_by"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// DebateSession is a time-boxed debate instance tied to one topic.
// Status is computed from StartTime/EndTime, see StatusAt.
type DebateSession struct {
	ID              int64     `json:"id" db:"id"`
	TopicID         int64     `json:"topic_id" db:"topic_id"`
	StartTime       time.Time `json:"start_time" db:"start_time"`
	EndTime         time.Time `json:"end_time" db:"end_time"`
	CreatedBy       int64     `json:"created_by" db:"created_by"`
	MaxParticipants int       `json:"max_participants" db:"max_participants"`
	IsActive        bool      `json:"is_active" db:"is_active"`
	CreatedAt       time.Time `json:"created_at" db:"created_at"`
}

// Participant is durable membership of a user in a session.
// At most one row exists per (user, session); rejoining reactivates it.
type Participant struct {
	SessionID int64     `json:"session_id" db:"session_id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	JoinedAt  time.Time `json:"joined_at" db:"joined_at"`
	IsActive  bool      `json:"is_active" db:"is_active"`
}

// OnlinePresence records one live participant of a session
type OnlinePresence struct {
	SessionID    int64     `json:"session_id"`
	UserID       int64     `json:"user_id"`
	ConnectionID string    `json:"connection_id"`
	ConnectedAt  time.Time `json:"connected_at"`
	LastSeen     time.Time `json:"last_seen"`
}

// TypingIndicator is the typing state of one user in one session
type TypingIndicator struct {
	SessionID int64     `json:"session_id"`
	UserID    int64     `json:"user_id"`
	IsTyping  bool      `json:"is_typing"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Message is one chat message in a session's append-only log
type Message struct {
	ID        int64     `json:"id" db:"id"`
	SessionID int64     `json:"session_id" db:"session_id"`
	Sender    User      `json:"user"`
	Content   string    `json:"content" db:"content"`
	Timestamp time.Time `json:"timestamp" db:"timestamp"`
	IsDeleted bool      `json:"-" db:"is_deleted"`
}

// ModerationAction is an audit record of a moderator decision
type ModerationAction struct {
	ID            int64          `json:"id" db:"id"`
	SessionID     int64          `json:"session_id" db:"session_id"`
	ParticipantID int64          `json:"participant_id" db:"participant_id"`
	ModeratorID   int64          `json:"moderator_id" db:"moderator_id"`
	Action        ModerationKind `json:"action" db:"action"`
	Timestamp     time.Time      `json:"timestamp" db:"timestamp"`
}

// MessagePostedEvent is handed to the notification sink after a successful append
type MessagePostedEvent struct {
	MessageID  int64     `json:"message_id"`
	SessionID  int64     `json:"session_id"`
	SenderID   int64     `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	Content    string    `json:"content"`
	Recipients []int64   `json:"recipients"`
	Timestamp  time.Time `json:"timestamp"`
}
