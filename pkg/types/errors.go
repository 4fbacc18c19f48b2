package types

import "errors"

// Validation errors for the data model
var (
	ErrInvalidTopicTitle       = errors.New("topic title must be 5-255 characters")
	ErrInvalidTopicDescription = errors.New("topic description must be at least 20 characters")
	ErrInvalidSessionWindow    = errors.New("session end_time must be after start_time")
	ErrInvalidCapacity         = errors.New("max_participants must be at least 1")
	ErrInvalidCreatedBy        = errors.New("created_by must be a valid user ID")
	ErrInvalidModerationKind   = errors.New("invalid moderation action: must be 'mute', 'warn' or 'remove'")
	ErrInvalidUsername         = errors.New("username must be 1-150 characters")
	ErrInvalidRole             = errors.New("invalid role: must be 'STUDENT' or 'MODERATOR'")
)
