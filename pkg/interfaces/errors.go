package interfaces

import "errors"

// Common store errors used across components
var (
	ErrSessionNotFound     = errors.New("session not found")
	ErrTopicNotFound       = errors.New("topic not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrDuplicateRow        = errors.New("row already exists")
)
