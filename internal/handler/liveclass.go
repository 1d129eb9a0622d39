package handler

import (
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"liveclass-backend/internal/cache"
	"liveclass-backend/internal/model"
	"liveclass-backend/internal/protocol"
	"liveclass-backend/internal/rtc"
	"liveclass-backend/internal/store"
)

// LiveClassHandler serves REST reads over live-class state: chat
// history for late joiners, the canonical participant list, and RTC
// join tokens.
type LiveClassHandler struct {
	gateway store.Gateway
	cache   *cache.RedisClient // nil disables the cache path
	rtcSvc  *rtc.Service       // nil disables token issuance
	limit   int64
}

// NewLiveClassHandler creates the handler.
func NewLiveClassHandler(gateway store.Gateway, cacheClient *cache.RedisClient, rtcSvc *rtc.Service, historyLimit int64) *LiveClassHandler {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	return &LiveClassHandler{gateway: gateway, cache: cacheClient, rtcSvc: rtcSvc, limit: historyLimit}
}

// GetChatHistory returns recent chat for a class, Redis-first with a
// database fallback.
func (h *LiveClassHandler) GetChatHistory(c *fiber.Ctx) error {
	liveClassID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid class id"})
	}

	if h.cache != nil {
		entries, err := h.cache.GetRecentChatMessages(c.Context(), int64(liveClassID), h.limit)
		if err == nil && len(entries) > 0 {
			return c.JSON(fiber.Map{"messages": entries, "source": "cache"})
		}
		if err != nil {
			log.Printf("[LiveClass] Chat cache read failed for class %d: %v", liveClassID, err)
		}
	}

	rows, err := h.gateway.ListChatMessages(c.Context(), int64(liveClassID), int(h.limit))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "chat history unavailable"})
	}

	messages := make([]protocol.ChatMessagePayload, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, protocol.ChatMessagePayload{
			LiveClassID: row.LiveClassID,
			ID:          row.ID,
			AuthorID:    row.AuthorID,
			AuthorName:  row.AuthorName,
			Text:        row.Text,
			Seq:         row.Seq,
			CreatedAt:   row.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"messages": messages, "source": "database"})
}

// GetParticipants returns the durable participant records for a class,
// deduplicated by the gateway on read.
func (h *LiveClassHandler) GetParticipants(c *fiber.Ctx) error {
	liveClassID, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid class id"})
	}

	rows, err := h.gateway.ListParticipants(c.Context(), int64(liveClassID))
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "participants unavailable"})
	}

	views := make([]protocol.ParticipantView, 0, len(rows))
	for _, p := range rows {
		views = append(views, protocol.ParticipantView{
			UserID:         p.UserID,
			Role:           p.UserRole,
			DisplayName:    p.DisplayName,
			JoinedAt:       p.JoinedAt,
			LeftAt:         p.LeftAt,
			IsMuted:        p.IsMuted,
			IsVideoEnabled: p.IsVideoEnabled,
			HasRaisedHand:  p.HasRaisedHand,
		})
	}
	return c.JSON(fiber.Map{"participants": views})
}

// RTCTokenRequest is the body of POST /api/rtc/token.
type RTCTokenRequest struct {
	LiveClassID int64 `json:"liveClassId"`
}

// RTCTokenResponse carries the minted token.
type RTCTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expiresIn"`
}

// GenerateRTCToken mints a LiveKit access token for a live class.
func (h *LiveClassHandler) GenerateRTCToken(c *fiber.Ctx) error {
	if h.rtcSvc == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "RTC integration not configured"})
	}

	var req RTCTokenRequest
	if err := c.BodyParser(&req); err != nil || req.LiveClassID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	class, err := h.gateway.GetLiveClass(c.Context(), req.LiveClassID)
	if err != nil {
		if err == store.ErrClassNotFound {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "live class not found"})
		}
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "live class unavailable"})
	}
	if class.Status != model.ClassLive {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "class is not live"})
	}

	userID, _ := c.Locals("userID").(int64)
	displayName, _ := c.Locals("displayName").(string)

	token, err := h.rtcSvc.JoinToken(req.LiveClassID, strconv.FormatInt(userID, 10), displayName)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to generate token"})
	}

	return c.JSON(RTCTokenResponse{
		Token:     token,
		ExpiresIn: int64(24 * time.Hour / time.Second),
	})
}
