package interfaces

import "debatehall/pkg/types"

// Connection is a live real-time connection joined to one session group.
// Implementations must be safe for concurrent use; writes are serialized
// by a single writer.
type Connection interface {
	// ID returns the unique identifier assigned when the connection was accepted
	ID() string

	// User returns the authenticated identity behind the connection
	User() *types.User

	// SessionID returns the session group the connection belongs to
	SessionID() int64

	// Send enqueues an already encoded frame without blocking.
	// A full buffer or closed connection returns an error and the frame is dropped.
	Send(data []byte) error

	// WriteJSON encodes v and enqueues it like Send
	WriteJSON(v interface{}) error

	// Close closes the connection; safe to call more than once
	Close() error
}
