package interfaces

import (
	"context"

	"debatehall/pkg/types"
)

// IdentityResolver turns a bearer credential into a user record
type IdentityResolver interface {
	Resolve(ctx context.Context, credential string) (*types.User, error)
}

// SessionReader gives read access to sessions for components that only gate on them
type SessionReader interface {
	GetSession(ctx context.Context, sessionID int64) (*types.DebateSession, error)
}

// NotificationSink receives "message posted" events for downstream fan-out.
// Failures are reported to the caller but must never fail the send itself.
type NotificationSink interface {
	MessagePosted(ctx context.Context, event *types.MessagePostedEvent) error
}
