package chat

import "errors"

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrMessageNotFound = errors.New("message not found")
	ErrNotMember       = errors.New("user is not a member of the room")
	ErrRateLimited     = errors.New("rate limit exceeded")
	// ErrDuplicateClientID is reported by repositories; PostMessage resolves
	// it to the message stored first.
	ErrDuplicateClientID = errors.New("client id already used")
)
