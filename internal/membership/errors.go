package membership

import (
	"errors"
	"fmt"

	"debatehall/pkg/types"
)

// Membership state conflicts
var (
	ErrSessionNotOngoing        = errors.New("session is not ongoing")
	ErrAlreadyActiveParticipant = errors.New("you are already a participant in this session")
	ErrNotAParticipant          = errors.New("you are not a participant in this session")
	ErrCapacityExceeded         = errors.New("session has reached maximum participants")
)

// StatusError reports why a session outside its window rejected an operation.
// It matches ErrSessionNotOngoing with errors.Is.
type StatusError struct {
	Op     string // "join", "post in", "type in"
	Status types.SessionStatus
}

func (e *StatusError) Error() string {
	switch e.Status {
	case types.StatusScheduled:
		return fmt.Sprintf("cannot %s a session that has not started yet", e.Op)
	case types.StatusEnded:
		return fmt.Sprintf("cannot %s a session that has already ended", e.Op)
	default:
		return ErrSessionNotOngoing.Error()
	}
}

func (e *StatusError) Unwrap() error {
	return ErrSessionNotOngoing
}
