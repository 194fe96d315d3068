package chat

import "errors"

// Service-level errors, mapped onto HTTP status codes by the API layer.
var (
	ErrNotFound    = errors.New("not found")
	ErrForbidden   = errors.New("forbidden")
	ErrEmptyText   = errors.New("message text cannot be empty")
	ErrSelfRequest = errors.New("cannot send a chat request to yourself")
	ErrNotPending  = errors.New("request is no longer pending")
)
