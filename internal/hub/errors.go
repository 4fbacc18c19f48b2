package hub

import "errors"

// Hub-specific error types
var (
	ErrHubAlreadyRunning = errors.New("hub is already running")
	ErrHubNotRunning     = errors.New("hub is not running")
	ErrMalformedEvent    = errors.New("invalid message format")
	ErrUnknownEvent      = errors.New("unknown message type")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNotifyChannelFull = errors.New("notification channel is full")
)
