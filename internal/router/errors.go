package router

import "errors"

// ErrUnencodableEvent is logged when an event cannot be marshaled for broadcast
var ErrUnencodableEvent = errors.New("event cannot be encoded")
