package game

import "errors"

var (
	ErrDecode             = errors.New("decode-error")
	ErrForbiddenEvent     = errors.New("forbidden-event")
	ErrIllegalTransition  = errors.New("illegal-transition")
	ErrUnknownParticipant = errors.New("unknown-participant")
	ErrResourceExhausted  = errors.New("resource-exhausted")
	ErrInvalidWord        = errors.New("invalid-word")
)

var (
	ErrRoomNotFound = errors.New("room-not-found")
	ErrRoomFull     = errors.New("room-full")
	ErrRoomClosed   = errors.New("room-closed")
)
