package app

import "errors"

var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnknownActor    = errors.New("authenticated user does not exist")
	ErrForbidden       = errors.New("operation not permitted for this user")
	ErrUserNotFound    = errors.New("user not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrRoomNotFound    = errors.New("room not found")
	ErrNotParticipant  = errors.New("user is not a participant")
	ErrNotMember       = errors.New("user is not a member of the room")
	ErrInvalidTarget   = errors.New("invalid chat target")
	ErrInvalidNurse    = errors.New("target user is not an assignable nurse")
	ErrMessageEmpty    = errors.New("message content is empty")
	ErrMessageTooLong  = errors.New("message content is too long")
	ErrRateLimited     = errors.New("sending too fast, slow down")
)
