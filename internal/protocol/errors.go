package protocol

// Error codes unicast to a connection when an event fails. Every failure
// is recoverable at the event level: the room's state is left unchanged.
const (
	CodeUnauthenticated     = "UNAUTHENTICATED"
	CodeClassNotLive        = "CLASS_NOT_LIVE"
	CodeNotAParticipant     = "NOT_A_PARTICIPANT"
	CodeForbidden           = "FORBIDDEN"
	CodeEmptyMessage        = "EMPTY_MESSAGE"
	CodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	CodeBadRequest          = "BAD_REQUEST"
)
