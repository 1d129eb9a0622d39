package protocol

import (
	"encoding/json"
	"time"

	"liveclass-backend/internal/model"
)

// Inbound event types (client → coordinator)
const (
	EventJoin              = "join"
	EventLeave             = "leave"
	EventChat              = "chat"
	EventHandRaise         = "handRaise"
	EventMute              = "mute"
	EventKick              = "kick"
	EventScreenShare       = "screenShare"
	EventParticipantStatus = "participantStatus"
)

// Outbound event types (coordinator → client)
const (
	EventJoinConfirmed            = "joinConfirmed"
	EventUserJoined               = "userJoined"
	EventParticipantsUpdated      = "participantsUpdated"
	EventChatMessage              = "chatMessage"
	EventHandRaiseUpdated         = "handRaiseUpdated"
	EventHandRaiseConfirmed       = "handRaiseConfirmed"
	EventParticipantMuted         = "participantMuted"
	EventStudentKicked            = "studentKicked"
	EventUserLeft                 = "userLeft"
	EventScreenShareStatus        = "screenShareStatus"
	EventParticipantStatusUpdated = "participantStatusUpdated"
	EventError                    = "error"
)

// Envelope wraps every protocol message.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// OutEnvelope is the outbound counterpart; the payload is marshalled as-is.
type OutEnvelope struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload,omitempty"`
}

// Encode marshals an outbound event.
func Encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(OutEnvelope{Type: eventType, Payload: payload})
}

// Inbound payloads

type JoinPayload struct {
	LiveClassID int64 `json:"liveClassId"`
}

type LeavePayload struct {
	LiveClassID int64 `json:"liveClassId"`
}

type ChatPayload struct {
	LiveClassID int64  `json:"liveClassId"`
	Text        string `json:"text"`
}

type HandRaisePayload struct {
	LiveClassID int64 `json:"liveClassId"`
	Raised      bool  `json:"raised"`
}

type MutePayload struct {
	LiveClassID  int64 `json:"liveClassId"`
	TargetUserID int64 `json:"targetUserId"`
	Muted        bool  `json:"muted"`
}

type KickPayload struct {
	LiveClassID  int64 `json:"liveClassId"`
	TargetUserID int64 `json:"targetUserId"`
}

type ScreenSharePayload struct {
	LiveClassID int64 `json:"liveClassId"`
	IsSharing   bool  `json:"isSharing"`
}

type ParticipantStatusPayload struct {
	LiveClassID    int64 `json:"liveClassId"`
	IsMuted        *bool `json:"isMuted,omitempty"`
	IsVideoEnabled *bool `json:"isVideoEnabled,omitempty"`
}

// Outbound payloads

type JoinConfirmedPayload struct {
	LiveClassID int64  `json:"liveClassId"`
	RoomSize    int    `json:"roomSize"`
	RTCToken    string `json:"rtcToken,omitempty"`
}

type UserJoinedPayload struct {
	LiveClassID int64      `json:"liveClassId"`
	UserID      int64      `json:"userId"`
	Role        model.Role `json:"role"`
	DisplayName string     `json:"displayName"`
}

// ParticipantView is the canonical per-participant view broadcast after
// every membership-affecting event.
type ParticipantView struct {
	UserID         int64      `json:"userId"`
	Role           model.Role `json:"role"`
	DisplayName    string     `json:"displayName"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LeftAt         *time.Time `json:"leftAt,omitempty"`
	IsMuted        bool       `json:"isMuted"`
	IsVideoEnabled bool       `json:"isVideoEnabled"`
	HasRaisedHand  bool       `json:"hasRaisedHand"`
}

type ParticipantsUpdatedPayload struct {
	LiveClassID  int64             `json:"liveClassId"`
	Participants []ParticipantView `json:"participants"`
}

type ChatMessagePayload struct {
	LiveClassID int64     `json:"liveClassId"`
	ID          string    `json:"id"`
	AuthorID    int64     `json:"authorId"`
	AuthorName  string    `json:"authorDisplayName"`
	Text        string    `json:"text"`
	Seq         int64     `json:"seq"`
	CreatedAt   time.Time `json:"createdAt"`
}

type HandRaiseUpdatedPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	UserID      int64 `json:"userId"`
	Raised      bool  `json:"raised"`
}

type HandRaiseConfirmedPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	Raised      bool  `json:"raised"`
}

type ParticipantMutedPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	UserID      int64 `json:"userId"`
	Muted       bool  `json:"muted"`
	ByUserID    int64 `json:"byUserId"`
}

type StudentKickedPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	UserID      int64 `json:"userId"`
	ByUserID    int64 `json:"byUserId"`
}

type UserLeftPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	UserID      int64 `json:"userId"`
}

type ScreenShareStatusPayload struct {
	LiveClassID int64 `json:"liveClassId"`
	UserID      int64 `json:"userId"`
	IsSharing   bool  `json:"isSharing"`
}

type ParticipantStatusUpdatedPayload struct {
	LiveClassID    int64 `json:"liveClassId"`
	UserID         int64 `json:"userId"`
	IsMuted        *bool `json:"isMuted,omitempty"`
	IsVideoEnabled *bool `json:"isVideoEnabled,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
