package auth

import (
	"testing"

	"liveclass-backend/internal/model"
)

func TestPermit(t *testing.T) {
	tests := []struct {
		name   string
		role   model.Role
		action RoomAction
		want   bool
	}{
		{"teacher can mute", model.RoleTeacher, ActionMute, true},
		{"teacher can kick", model.RoleTeacher, ActionKick, true},
		{"student cannot mute", model.RoleStudent, ActionMute, false},
		{"student cannot kick", model.RoleStudent, ActionKick, false},
		{"admin cannot mute", model.RoleAdmin, ActionMute, false},
		{"student can chat", model.RoleStudent, ActionChat, true},
		{"teacher can chat", model.RoleTeacher, ActionChat, true},
		{"student can raise hand", model.RoleStudent, ActionHandRaise, true},
		{"student can screen share", model.RoleStudent, ActionScreenShare, true},
		{"student can update status", model.RoleStudent, ActionParticipantStatus, true},
		{"unknown action denied", model.RoleTeacher, RoomAction("reboot"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Permit(tt.role, tt.action); got != tt.want {
				t.Errorf("Permit(%s, %s) = %v, want %v", tt.role, tt.action, got, tt.want)
			}
		})
	}
}
