package messagelog

import "errors"

var (
	ErrEmptyContent    = errors.New("message cannot be empty")
	ErrMessageTooLong  = errors.New("message exceeds maximum length")
	ErrMessageNotFound = errors.New("message not found")
)
