package moderation

import "errors"

var (
	ErrNotSessionCreator = errors.New("only the session creator can moderate it")
	ErrSelfModeration    = errors.New("moderators cannot moderate themselves")
)
