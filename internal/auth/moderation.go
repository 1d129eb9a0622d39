package auth

import "liveclass-backend/internal/model"

// RoomAction a protocol action subject to the moderation policy
type RoomAction string

const (
	ActionChat              RoomAction = "chat"
	ActionHandRaise         RoomAction = "handRaise"
	ActionMute              RoomAction = "mute"
	ActionKick              RoomAction = "kick"
	ActionScreenShare       RoomAction = "screenShare"
	ActionParticipantStatus RoomAction = "participantStatus"
)

// Permit is the moderation policy: given an actor role and an action,
// allow or deny. Mute and kick are teacher-only; everything else only
// requires being a participant, which the room checks separately.
func Permit(actorRole model.Role, action RoomAction) bool {
	switch action {
	case ActionMute, ActionKick:
		return actorRole == model.RoleTeacher
	case ActionChat, ActionHandRaise, ActionScreenShare, ActionParticipantStatus:
		return true
	}
	return false
}
