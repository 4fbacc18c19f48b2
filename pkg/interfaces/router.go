package interfaces

// Exclude names the connection and/or user a broadcast must skip.
// Zero values match nothing.
type Exclude struct {
	ConnectionID string
	UserID       int64
}

// Broadcaster fans events out to a session's broadcast group
type Broadcaster interface {
	// Send delivers event to every connection in the group and returns the delivery count
	Send(sessionID int64, event interface{}) int

	// SendExcept delivers event to every connection not matched by exclude
	SendExcept(sessionID int64, event interface{}, exclude Exclude) int
}
