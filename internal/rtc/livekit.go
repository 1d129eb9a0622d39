package rtc

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/livekit/protocol/auth"
	"github.com/livekit/protocol/livekit"
	lksdk "github.com/livekit/server-sdk-go/v2"

	"liveclass-backend/internal/config"
)

// Service integrates with the external RTC provider. Media transport
// itself is LiveKit's problem; the coordinator only mints join tokens
// and force-removes kicked participants.
type Service struct {
	cfg        config.LiveKitConfig
	roomClient *lksdk.RoomServiceClient
}

// New creates the RTC service. Returns nil when LiveKit is not
// configured; callers treat a nil service as "RTC disabled".
func New(cfg config.LiveKitConfig) *Service {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		log.Println("ℹ️ LiveKit not configured (RTC integration disabled)")
		return nil
	}
	return &Service{
		cfg:        cfg,
		roomClient: lksdk.NewRoomServiceClient(cfg.Host, cfg.APIKey, cfg.APISecret),
	}
}

// RoomName returns the RTC room name for a live class.
func RoomName(liveClassID int64) string {
	return fmt.Sprintf("live-class-%d", liveClassID)
}

// JoinToken mints an access token granting entry to the class's RTC room.
func (s *Service) JoinToken(liveClassID int64, identity, displayName string) (string, error) {
	at := auth.NewAccessToken(s.cfg.APIKey, s.cfg.APISecret)

	grant := &auth.VideoGrant{
		RoomJoin: true,
		Room:     RoomName(liveClassID),
	}

	at.AddGrant(grant).
		SetIdentity(identity).
		SetName(displayName).
		SetValidFor(24 * time.Hour)

	token, err := at.ToJWT()
	if err != nil {
		return "", fmt.Errorf("mint rtc token class=%d: %w", liveClassID, err)
	}
	return token, nil
}

// RemoveParticipant ejects a kicked user from the RTC room so their
// media drops along with their coordinator membership. Best-effort.
func (s *Service) RemoveParticipant(ctx context.Context, liveClassID int64, identity string) error {
	_, err := s.roomClient.RemoveParticipant(ctx, &livekit.RoomParticipantIdentity{
		Room:     RoomName(liveClassID),
		Identity: identity,
	})
	if err != nil {
		return fmt.Errorf("rtc remove participant class=%d identity=%s: %w", liveClassID, identity, err)
	}
	return nil
}
