package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrSendBufferFull   = errors.New("send buffer full")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrNotJoined        = errors.New("connection has not joined a session")
)

// Registry-related errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
)
