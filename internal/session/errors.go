package session

import "errors"

// Session management errors
var (
	ErrUnauthorized          = errors.New("user not authorized for this session")
	ErrModeratorRequired     = errors.New("only moderators can perform this action")
	ErrSessionInactive       = errors.New("session is not active")
	ErrSessionAlreadyStarted = errors.New("session has already started")
	ErrTopicInactive         = errors.New("topic is not active")
	ErrStartInPast           = errors.New("new start time must be in the future")
)
