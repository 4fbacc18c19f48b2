package hub

import (
	"encoding/json"
	"time"

	"debatehall/pkg/types"
)

// inboundEvent is any client frame. The chat text arrives as "content";
// older clients send it as "message".
type inboundEvent struct {
	Type     string  `json:"type"`
	Content  *string `json:"content"`
	Message  *string `json:"message"`
	IsTyping *bool   `json:"is_typing"`
}

func parseInbound(data []byte) (*inboundEvent, error) {
	var event inboundEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, ErrMalformedEvent
	}
	if event.Type == "" {
		event.Type = types.EventChatMessage
	}
	return &event, nil
}

func (e *inboundEvent) text() string {
	switch {
	case e.Content != nil:
		return *e.Content
	case e.Message != nil:
		return *e.Message
	default:
		return ""
	}
}

// UserRef identifies a user in presence and typing events
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

func refOf(user *types.User) *UserRef {
	return &UserRef{ID: user.ID, Username: user.Username}
}

type ConnectionEstablishedEvent struct {
	Type              string `json:"type"`
	SessionID         int64  `json:"session_id"`
	OnlineCount       int    `json:"online_count"`
	TotalParticipants int    `json:"total_participants"`
}

type ChatMessageEvent struct {
	Type    string         `json:"type"`
	Message *types.Message `json:"message"`
}

type TypingIndicatorEvent struct {
	Type     string   `json:"type"`
	User     *UserRef `json:"user"`
	IsTyping bool     `json:"is_typing"`
}

type OnlineCountUpdateEvent struct {
	Type              string   `json:"type"`
	OnlineCount       int      `json:"online_count"`
	TotalParticipants int      `json:"total_participants"`
	UserJoined        *UserRef `json:"user_joined,omitempty"`
	UserLeft          *UserRef `json:"user_left,omitempty"`
}

type PongEvent struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func typingEvent(user *UserRef, isTyping bool) *TypingIndicatorEvent {
	return &TypingIndicatorEvent{Type: types.EventTypingIndicator, User: user, IsTyping: isTyping}
}

func errorEvent(message string) *ErrorEvent {
	return &ErrorEvent{Type: types.EventError, Message: message}
}
