package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"

	"github.com/gofiber/contrib/websocket"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/protocol"
	"liveclass-backend/internal/registry"
	"liveclass-backend/internal/room"
)

// LiveWSHandler drives the coordinator protocol over one WebSocket
// connection: verified identity in, room operations out.
type LiveWSHandler struct {
	reg       *registry.Registry
	directory *room.Directory
	cfg       *config.Config
}

// NewLiveWSHandler creates the handler.
func NewLiveWSHandler(reg *registry.Registry, directory *room.Directory, cfg *config.Config) *LiveWSHandler {
	return &LiveWSHandler{reg: reg, directory: directory, cfg: cfg}
}

// session tracks which rooms a connection has joined. The read loop is
// the only writer; the broken-connection callback reads concurrently.
type session struct {
	mu    sync.Mutex
	rooms map[int64]*room.Room
}

func (s *session) add(r *room.Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[r.LiveClassID()] = r
}

func (s *session) remove(liveClassID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, liveClassID)
}

func (s *session) snapshot() []*room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*room.Room, 0, len(s.rooms))
	for _, r := range s.rooms {
		out = append(out, r)
	}
	return out
}

// HandleWebSocket runs the connection's read loop. The identity was
// verified by the upgrade middleware; an unverified connection never
// reaches this point.
func (h *LiveWSHandler) HandleWebSocket(c *websocket.Conn) {
	identity, ok := c.Locals("identity").(*auth.Identity)
	if !ok {
		c.WriteMessage(websocket.TextMessage, mustEncodeError(protocol.CodeUnauthenticated, "identity not resolved"))
		c.Close()
		return
	}

	sess := &session{rooms: make(map[int64]*room.Room)}

	conn := registry.NewConn(
		identity.UserID, identity.Role, identity.DisplayName,
		c, h.cfg.WebSocket.SendQueueSize,
		func(broken *registry.Conn) { h.teardown(broken, sess) },
	)
	h.reg.Register(conn)
	go conn.WritePump()

	log.Printf("[LiveWS] Connected: user=%d role=%s conn=%s", identity.UserID, identity.Role, conn.ID)

	defer func() {
		conn.Close()
		h.teardown(conn, sess)
		log.Printf("[LiveWS] Disconnected: user=%d conn=%s", identity.UserID, conn.ID)
	}()

	for {
		_, msgBytes, err := c.ReadMessage()
		if err != nil {
			break
		}

		var env protocol.Envelope
		if err := json.Unmarshal(msgBytes, &env); err != nil {
			continue
		}

		h.dispatch(context.Background(), conn, sess, &env)
	}
}

// teardown symmetrically unwinds a connection: registry first, so the
// rooms' presence checks no longer count it, then each joined room.
func (h *LiveWSHandler) teardown(conn *registry.Conn, sess *session) {
	h.reg.Unregister(conn)

	for _, r := range sess.snapshot() {
		if err := r.Disconnect(context.Background(), conn); err != nil {
			log.Printf("[LiveWS] Disconnect from class %d failed: %v", r.LiveClassID(), err)
		}
		sess.remove(r.LiveClassID())
		h.directory.ReleaseIfEmpty(r.LiveClassID())
	}
}

func (h *LiveWSHandler) dispatch(ctx context.Context, conn *registry.Conn, sess *session, env *protocol.Envelope) {
	switch env.Type {
	case protocol.EventJoin:
		var p protocol.JoinPayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		for {
			r := h.directory.GetOrCreate(p.LiveClassID)
			err := r.Join(ctx, conn)
			if errors.Is(err, room.ErrRoomClosed) {
				// Lost the race against eviction; the directory no
				// longer serves this instance.
				continue
			}
			if err != nil {
				h.sendError(conn, err)
				h.directory.ReleaseIfEmpty(p.LiveClassID)
				return
			}
			sess.add(r)
			break
		}

	case protocol.EventLeave:
		var p protocol.LeavePayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		r, ok := h.directory.Get(p.LiveClassID)
		if !ok {
			return
		}
		if err := r.Leave(ctx, conn); err != nil {
			h.sendError(conn, err)
			return
		}
		sess.remove(p.LiveClassID)
		h.directory.ReleaseIfEmpty(p.LiveClassID)

	case protocol.EventChat:
		var p protocol.ChatPayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			return r.Chat(ctx, conn, p.Text)
		})

	case protocol.EventHandRaise:
		var p protocol.HandRaisePayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			return r.HandRaise(ctx, conn, p.Raised)
		})

	case protocol.EventMute:
		var p protocol.MutePayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			return r.Mute(ctx, conn, p.TargetUserID, p.Muted)
		})

	case protocol.EventKick:
		var p protocol.KickPayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			if err := r.Kick(ctx, conn, p.TargetUserID); err != nil {
				return err
			}
			h.directory.ReleaseIfEmpty(p.LiveClassID)
			return nil
		})

	case protocol.EventScreenShare:
		var p protocol.ScreenSharePayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			return r.ScreenShare(ctx, conn, p.IsSharing)
		})

	case protocol.EventParticipantStatus:
		var p protocol.ParticipantStatusPayload
		if !decode(conn, env.Payload, &p) {
			return
		}
		h.withRoom(conn, p.LiveClassID, func(r *room.Room) error {
			return r.ParticipantStatus(ctx, conn, p.IsMuted, p.IsVideoEnabled)
		})

	default:
		log.Printf("[LiveWS] Unknown event type %q from user %d", env.Type, conn.UserID)
	}
}

// withRoom runs an operation against an existing room, reporting
// NOT_A_PARTICIPANT when no room is live for the class.
func (h *LiveWSHandler) withRoom(conn *registry.Conn, liveClassID int64, op func(*room.Room) error) {
	r, ok := h.directory.Get(liveClassID)
	if !ok {
		h.sendError(conn, room.ErrNotAParticipant)
		return
	}
	if err := op(r); err != nil {
		h.sendError(conn, err)
	}
}

func (h *LiveWSHandler) sendError(conn *registry.Conn, err error) {
	data, encErr := protocol.Encode(protocol.EventError, protocol.ErrorPayload{
		Code:    room.CodeFor(err),
		Message: err.Error(),
	})
	if encErr != nil {
		return
	}
	conn.Send(data)
}

func decode(conn *registry.Conn, raw json.RawMessage, dst interface{}) bool {
	if len(raw) == 0 || json.Unmarshal(raw, dst) != nil {
		data, err := protocol.Encode(protocol.EventError, protocol.ErrorPayload{
			Code:    protocol.CodeBadRequest,
			Message: "malformed payload",
		})
		if err == nil {
			conn.Send(data)
		}
		return false
	}
	return true
}

func mustEncodeError(code, message string) []byte {
	data, _ := protocol.Encode(protocol.EventError, protocol.ErrorPayload{Code: code, Message: message})
	return data
}
