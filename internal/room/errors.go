package room

import (
	"errors"

	"liveclass-backend/internal/protocol"
)

var (
	ErrClassNotLive        = errors.New("class is not live")
	ErrNotAParticipant     = errors.New("not a participant in this class")
	ErrForbidden           = errors.New("action not permitted for this role")
	ErrEmptyMessage        = errors.New("message text is empty")
	ErrUpstreamUnavailable = errors.New("persistence unavailable")

	// ErrRoomClosed marks a room the directory has already evicted. A
	// join that lost this race re-fetches from the directory; the error
	// never reaches a client.
	ErrRoomClosed = errors.New("room has been released")
)

// CodeFor maps an operation error to its protocol error code.
func CodeFor(err error) string {
	switch {
	case errors.Is(err, ErrClassNotLive):
		return protocol.CodeClassNotLive
	case errors.Is(err, ErrNotAParticipant):
		return protocol.CodeNotAParticipant
	case errors.Is(err, ErrForbidden):
		return protocol.CodeForbidden
	case errors.Is(err, ErrEmptyMessage):
		return protocol.CodeEmptyMessage
	case errors.Is(err, ErrUpstreamUnavailable):
		return protocol.CodeUpstreamUnavailable
	}
	return protocol.CodeBadRequest
}
