package room

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"liveclass-backend/internal/auth"
	"liveclass-backend/internal/cache"
	"liveclass-backend/internal/config"
	"liveclass-backend/internal/model"
	"liveclass-backend/internal/protocol"
	"liveclass-backend/internal/registry"
	"liveclass-backend/internal/rtc"
	"liveclass-backend/internal/store"
)

// Room is the in-memory authority for one live class. It owns the
// canonical participant map and the chat sequence, and serializes every
// mutating operation behind one mutex. The mutex is deliberately held
// across persistence calls: read-then-write decisions ("does a
// participant already exist for this user") must be atomic, or two
// concurrent joins for the same user can both observe "absent" and
// create duplicates. Persistence calls are bounded by StoreTimeout, so
// the lock is never held across an unbounded wait.
type Room struct {
	liveClassID int64

	gateway store.Gateway
	reg     *registry.Registry
	router  Router
	cache   *cache.RedisClient // nil disables caching
	rtcSvc  *rtc.Service       // nil disables RTC integration
	cfg     config.RoomConfig

	mu           sync.Mutex
	loaded       bool
	closed       bool
	status       model.ClassStatus
	participants map[int64]*model.LiveClassParticipant // userID -> record
	joined       map[string]*registry.Conn             // connID -> conn
	kicked       map[int64]bool                        // userID -> excluded from broadcasts
	chatSeq      int64
}

func newRoom(liveClassID int64, gateway store.Gateway, reg *registry.Registry, cacheClient *cache.RedisClient, rtcSvc *rtc.Service, cfg config.RoomConfig) *Room {
	return &Room{
		liveClassID:  liveClassID,
		gateway:      gateway,
		reg:          reg,
		cache:        cacheClient,
		rtcSvc:       rtcSvc,
		cfg:          cfg,
		participants: make(map[int64]*model.LiveClassParticipant),
		joined:       make(map[string]*registry.Conn),
		kicked:       make(map[int64]bool),
	}
}

// LiveClassID returns the class this room coordinates.
func (r *Room) LiveClassID() int64 {
	return r.liveClassID
}

// Empty reports whether no connections are joined.
func (r *Room) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.joined) == 0
}

// closeIfEmpty atomically checks for emptiness and, if empty, marks the
// room closed so no later Join can succeed on this instance. Eviction
// and admission race otherwise: a join landing on a room the directory
// has already dropped would split the class across two rooms.
func (r *Room) closeIfEmpty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.joined) > 0 {
		return false
	}
	r.closed = true
	return true
}

// storeCtx bounds a persistence call made under the room lock.
func (r *Room) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := r.cfg.StoreTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return context.WithTimeout(ctx, timeout)
}

// loadLocked lazily hydrates the room from the persistence gateway:
// class status, prior participant history, and the latest chat sequence.
// Runs inside the critical section so concurrent first joins hydrate once.
func (r *Room) loadLocked(ctx context.Context) error {
	if r.loaded {
		return nil
	}

	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	class, err := r.gateway.GetLiveClass(sctx, r.liveClassID)
	if err != nil {
		if err == store.ErrClassNotFound {
			return ErrClassNotLive
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	rows, err := r.gateway.ListParticipants(sctx, r.liveClassID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	seq, err := r.gateway.LatestChatSeq(sctx, r.liveClassID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	r.status = class.Status
	for i := range rows {
		row := rows[i]
		r.participants[row.UserID] = &row
	}
	r.chatSeq = seq
	r.loaded = true

	log.Printf("[Room %d] Hydrated: status=%s participants=%d chatSeq=%d",
		r.liveClassID, r.status, len(r.participants), r.chatSeq)
	return nil
}

// refreshStatusLocked re-reads class status when the cached value is not
// live, so a class that has since started can be joined without waiting
// for room eviction.
func (r *Room) refreshStatusLocked(ctx context.Context) error {
	sctx, cancel := r.storeCtx(ctx)
	defer cancel()

	class, err := r.gateway.GetLiveClass(sctx, r.liveClassID)
	if err != nil {
		if err == store.ErrClassNotFound {
			return ErrClassNotLive
		}
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	r.status = class.Status
	return nil
}

// Join admits a connection into the room. Dedup is by construction: the
// participant map is keyed by userID, and an existing record is reused
// with joinedAt refreshed and leftAt cleared.
func (r *Room) Join(ctx context.Context, conn *registry.Conn) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrRoomClosed
	}
	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if r.status != model.ClassLive {
		if err := r.refreshStatusLocked(ctx); err != nil {
			return err
		}
	}
	if r.status != model.ClassLive {
		return ErrClassNotLive
	}

	// Reuse the existing record rather than duplicating it; the upsert
	// is built on a copy so a failed persist leaves no partial mutation.
	now := time.Now().UTC()
	var upsert model.LiveClassParticipant
	if existing, ok := r.participants[conn.UserID]; ok {
		upsert = *existing
		upsert.JoinedAt = now
		upsert.LeftAt = nil
		upsert.UserRole = conn.Role
		upsert.DisplayName = conn.DisplayName
	} else {
		upsert = model.LiveClassParticipant{
			LiveClassID:    r.liveClassID,
			UserID:         conn.UserID,
			UserRole:       conn.Role,
			DisplayName:    conn.DisplayName,
			JoinedAt:       now,
			IsVideoEnabled: true,
		}
	}

	// Persist before any broadcast; on failure nothing has changed.
	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.UpsertParticipant(sctx, &upsert)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	p := upsert
	r.participants[conn.UserID] = &p
	delete(r.kicked, conn.UserID)
	r.joined[conn.ID] = conn

	r.mirrorOnline(conn.UserID, true)

	// Broadcast order: user-joined to the other members, then the
	// canonical participant list to everyone, then the unicast
	// confirmation. "Other members" excludes all of the joiner's
	// devices, not just the joining connection.
	r.router.ToRoom(r.snapshotOthersLocked(conn.UserID), protocol.EventUserJoined, protocol.UserJoinedPayload{
		LiveClassID: r.liveClassID,
		UserID:      conn.UserID,
		Role:        conn.Role,
		DisplayName: conn.DisplayName,
	})
	r.broadcastParticipantsLocked()

	confirm := protocol.JoinConfirmedPayload{
		LiveClassID: r.liveClassID,
		RoomSize:    r.activeCountLocked(),
	}
	if r.rtcSvc != nil {
		token, err := r.rtcSvc.JoinToken(r.liveClassID, strconv.FormatInt(conn.UserID, 10), conn.DisplayName)
		if err != nil {
			log.Printf("[Room %d] RTC token failed for user %d: %v", r.liveClassID, conn.UserID, err)
		} else {
			confirm.RTCToken = token
		}
	}
	r.router.ToConn(conn, protocol.EventJoinConfirmed, confirm)

	log.Printf("[Room %d] User %d joined (conn=%s), joined conns=%d",
		r.liveClassID, conn.UserID, conn.ID, len(r.joined))
	return nil
}

// Leave handles an explicit leave request for one connection.
func (r *Room) Leave(ctx context.Context, conn *registry.Conn) error {
	return r.removeConn(ctx, conn, true)
}

// Disconnect handles a dropped transport. The caller unregisters the
// connection from the Connection Registry first, so the presence check
// below does not count the dying connection.
func (r *Room) Disconnect(ctx context.Context, conn *registry.Conn) error {
	return r.removeConn(ctx, conn, false)
}

func (r *Room) removeConn(ctx context.Context, conn *registry.Conn, explicit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[conn.ID]; !ok {
		return nil
	}
	delete(r.joined, conn.ID)

	// Multi-device: the participant leaves only when the user's last
	// known connection is gone. Checked against the Connection
	// Registry, not just this room's joined set.
	if r.userStillPresentLocked(conn.UserID) {
		log.Printf("[Room %d] User %d dropped conn %s, other device still present",
			r.liveClassID, conn.UserID, conn.ID)
		return nil
	}

	p, ok := r.participants[conn.UserID]
	if !ok || p.LeftAt != nil {
		r.mirrorOnline(conn.UserID, false)
		return nil
	}

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.MarkLeft(sctx, r.liveClassID, conn.UserID)
	cancel()
	if err != nil {
		if explicit {
			// The client is still connected and can retry; put the
			// connection back so no partial mutation survives.
			r.joined[conn.ID] = conn
			return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		// The transport is already gone: there is no client to report
		// to, and re-inserting a dead connection would pin the user as
		// present forever. Record the departure in memory; the durable
		// row keeps its stale left_at until the class is closed out.
		log.Printf("[Room %d] MarkLeft failed for disconnected user %d: %v",
			r.liveClassID, conn.UserID, err)
	}

	now := time.Now().UTC()
	p.LeftAt = &now
	r.mirrorOnline(conn.UserID, false)

	r.router.ToRoom(r.snapshotLocked(), protocol.EventUserLeft, protocol.UserLeftPayload{
		LiveClassID: r.liveClassID,
		UserID:      conn.UserID,
	})
	r.broadcastParticipantsLocked()

	log.Printf("[Room %d] User %d left, joined conns=%d", r.liveClassID, conn.UserID, len(r.joined))
	return nil
}

// userStillPresentLocked reports whether any of the user's registered
// connections is still joined to this room.
func (r *Room) userStillPresentLocked(userID int64) bool {
	for _, rc := range r.reg.ConnectionsFor(userID) {
		if _, ok := r.joined[rc.ID]; ok {
			return true
		}
	}
	return false
}

// Chat appends a message. The sequence number is assigned inside the
// critical section and only committed after a successful persist, so
// per-room sequences are gap-free and strictly increasing.
func (r *Room) Chat(ctx context.Context, conn *registry.Conn, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if r.cfg.MaxChatLength > 0 && len(text) > r.cfg.MaxChatLength {
		// Truncate on a rune boundary; a byte-boundary cut can split a
		// multi-byte character and emit invalid UTF-8.
		cut := r.cfg.MaxChatLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut]
		if text == "" {
			return ErrEmptyMessage
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.loadLocked(ctx); err != nil {
		return err
	}
	if r.status != model.ClassLive {
		return ErrClassNotLive
	}
	p, ok := r.participants[conn.UserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}

	msg := &model.LiveClassChatMessage{
		ID:          uuid.New().String(),
		LiveClassID: r.liveClassID,
		Seq:         r.chatSeq + 1,
		AuthorID:    conn.UserID,
		AuthorRole:  conn.Role,
		AuthorName:  conn.DisplayName,
		Text:        text,
		CreatedAt:   time.Now().UTC(),
	}

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.AppendChatMessage(sctx, msg)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	r.chatSeq = msg.Seq

	r.cacheChat(msg)

	// The sender gets the message through the same broadcast as
	// everyone else; ordering is server-authoritative.
	r.router.ToRoom(r.snapshotLocked(), protocol.EventChatMessage, protocol.ChatMessagePayload{
		LiveClassID: r.liveClassID,
		ID:          msg.ID,
		AuthorID:    msg.AuthorID,
		AuthorName:  msg.AuthorName,
		Text:        msg.Text,
		Seq:         msg.Seq,
		CreatedAt:   msg.CreatedAt,
	})
	return nil
}

// HandRaise toggles the hand-raise flag for the requesting participant.
func (r *Room) HandRaise(ctx context.Context, conn *registry.Conn, raised bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[conn.UserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}

	prev := p.HasRaisedHand
	p.HasRaisedHand = raised

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.UpsertParticipant(sctx, p)
	cancel()
	if err != nil {
		p.HasRaisedHand = prev
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	r.router.ToRoom(r.snapshotLocked(), protocol.EventHandRaiseUpdated, protocol.HandRaiseUpdatedPayload{
		LiveClassID: r.liveClassID,
		UserID:      conn.UserID,
		Raised:      raised,
	})
	r.broadcastParticipantsLocked()
	r.router.ToConn(conn, protocol.EventHandRaiseConfirmed, protocol.HandRaiseConfirmedPayload{
		LiveClassID: r.liveClassID,
		Raised:      raised,
	})
	return nil
}

// Mute is a moderation action: teacher-only, authoritative over the
// best-effort participantStatus signals.
func (r *Room) Mute(ctx context.Context, actor *registry.Conn, targetUserID int64, muted bool) error {
	if !auth.Permit(actor.Role, auth.ActionMute) {
		return ErrForbidden
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[targetUserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}

	prev := p.IsMuted
	p.IsMuted = muted

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.UpsertParticipant(sctx, p)
	cancel()
	if err != nil {
		p.IsMuted = prev
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	r.router.ToRoom(r.snapshotLocked(), protocol.EventParticipantMuted, protocol.ParticipantMutedPayload{
		LiveClassID: r.liveClassID,
		UserID:      targetUserID,
		Muted:       muted,
		ByUserID:    actor.UserID,
	})

	log.Printf("[Room %d] User %d muted=%v by %d", r.liveClassID, targetUserID, muted, actor.UserID)
	return nil
}

// Kick forcibly removes a student from the room. The state transition
// does not wait for the target's sockets to close: the participant is
// marked left, broadcasts stop reaching the target, and the target's
// connections are closed afterwards.
func (r *Room) Kick(ctx context.Context, actor *registry.Conn, targetUserID int64) error {
	if !auth.Permit(actor.Role, auth.ActionKick) {
		return ErrForbidden
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[targetUserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}
	if p.UserRole != model.RoleStudent {
		return ErrForbidden
	}

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.MarkLeft(sctx, r.liveClassID, targetUserID)
	cancel()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	now := time.Now().UTC()
	p.LeftAt = &now
	r.kicked[targetUserID] = true

	// Pull the target's connections out of the room before broadcasting
	// so no further room events can reach them.
	targetConns := make([]*registry.Conn, 0, 2)
	for id, c := range r.joined {
		if c.UserID == targetUserID {
			targetConns = append(targetConns, c)
			delete(r.joined, id)
		}
	}
	r.mirrorOnline(targetUserID, false)

	kickedPayload := protocol.StudentKickedPayload{
		LiveClassID: r.liveClassID,
		UserID:      targetUserID,
		ByUserID:    actor.UserID,
	}
	for _, c := range targetConns {
		r.router.ToConn(c, protocol.EventStudentKicked, kickedPayload)
	}
	r.router.ToRoom(r.snapshotLocked(), protocol.EventStudentKicked, kickedPayload)
	r.router.ToRoom(r.snapshotLocked(), protocol.EventUserLeft, protocol.UserLeftPayload{
		LiveClassID: r.liveClassID,
		UserID:      targetUserID,
	})
	r.broadcastParticipantsLocked()

	// Force-close the kicked user's transports and eject them from the
	// RTC room. Leaving the sockets open would leak resources for a
	// user who can no longer receive anything.
	go r.evictTransports(targetUserID, targetConns)

	log.Printf("[Room %d] User %d kicked by %d", r.liveClassID, targetUserID, actor.UserID)
	return nil
}

// evictTransports runs outside the room lock; the sends queued above
// drain before the writer observes the close.
func (r *Room) evictTransports(targetUserID int64, conns []*registry.Conn) {
	time.Sleep(100 * time.Millisecond)
	for _, c := range conns {
		c.Close()
	}
	if r.rtcSvc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.rtcSvc.RemoveParticipant(ctx, r.liveClassID, strconv.FormatInt(targetUserID, 10)); err != nil {
			log.Printf("[Room %d] RTC eviction failed for user %d: %v", r.liveClassID, targetUserID, err)
		}
	}
}

// ScreenShare relays a best-effort sharing signal.
func (r *Room) ScreenShare(ctx context.Context, conn *registry.Conn, isSharing bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[conn.UserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}

	r.router.ToRoom(r.snapshotLocked(), protocol.EventScreenShareStatus, protocol.ScreenShareStatusPayload{
		LiveClassID: r.liveClassID,
		UserID:      conn.UserID,
		IsSharing:   isSharing,
	})
	return nil
}

// ParticipantStatus applies best-effort self-reported status. Signals
// may arrive slightly out of order; the room accepts and overwrites.
// Moderation runs through the same serialized path and is therefore
// always the last writer when it conflicts.
func (r *Room) ParticipantStatus(ctx context.Context, conn *registry.Conn, isMuted, isVideoEnabled *bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.participants[conn.UserID]
	if !ok || p.LeftAt != nil {
		return ErrNotAParticipant
	}

	prevMuted, prevVideo := p.IsMuted, p.IsVideoEnabled
	if isMuted != nil {
		p.IsMuted = *isMuted
	}
	if isVideoEnabled != nil {
		p.IsVideoEnabled = *isVideoEnabled
	}

	sctx, cancel := r.storeCtx(ctx)
	err := r.gateway.UpsertParticipant(sctx, p)
	cancel()
	if err != nil {
		p.IsMuted, p.IsVideoEnabled = prevMuted, prevVideo
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	r.router.ToRoom(r.snapshotLocked(), protocol.EventParticipantStatusUpdated, protocol.ParticipantStatusUpdatedPayload{
		LiveClassID:    r.liveClassID,
		UserID:         conn.UserID,
		IsMuted:        isMuted,
		IsVideoEnabled: isVideoEnabled,
	})
	return nil
}

// snapshotLocked returns the connections currently eligible for room
// broadcasts, excluding kicked users.
func (r *Room) snapshotLocked() []*registry.Conn {
	out := make([]*registry.Conn, 0, len(r.joined))
	for _, c := range r.joined {
		if r.kicked[c.UserID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// snapshotOthersLocked returns the broadcast-eligible connections
// belonging to anyone but the given user.
func (r *Room) snapshotOthersLocked(excludeUserID int64) []*registry.Conn {
	out := make([]*registry.Conn, 0, len(r.joined))
	for _, c := range r.joined {
		if c.UserID == excludeUserID || r.kicked[c.UserID] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// activeCountLocked counts participants who have not left.
func (r *Room) activeCountLocked() int {
	n := 0
	for _, p := range r.participants {
		if p.LeftAt == nil {
			n++
		}
	}
	return n
}

// participantViewsLocked builds the canonical, deduplicated participant
// list (active members only).
func (r *Room) participantViewsLocked() []protocol.ParticipantView {
	views := make([]protocol.ParticipantView, 0, len(r.participants))
	for _, p := range r.participants {
		if p.LeftAt != nil {
			continue
		}
		views = append(views, protocol.ParticipantView{
			UserID:         p.UserID,
			Role:           p.UserRole,
			DisplayName:    p.DisplayName,
			JoinedAt:       p.JoinedAt,
			IsMuted:        p.IsMuted,
			IsVideoEnabled: p.IsVideoEnabled,
			HasRaisedHand:  p.HasRaisedHand,
		})
	}
	return views
}

func (r *Room) broadcastParticipantsLocked() {
	r.router.ToRoom(r.snapshotLocked(), protocol.EventParticipantsUpdated, protocol.ParticipantsUpdatedPayload{
		LiveClassID:  r.liveClassID,
		Participants: r.participantViewsLocked(),
	})
}

// cacheChat mirrors an appended message into Redis, best-effort.
func (r *Room) cacheChat(msg *model.LiveClassChatMessage) {
	if r.cache == nil {
		return
	}
	entry := &cache.ChatEntry{
		ID:          msg.ID,
		LiveClassID: msg.LiveClassID,
		AuthorID:    msg.AuthorID,
		AuthorRole:  msg.AuthorRole,
		AuthorName:  msg.AuthorName,
		Text:        msg.Text,
		Seq:         msg.Seq,
		CreatedAt:   msg.CreatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := r.cache.AddChatMessage(ctx, entry); err != nil {
			log.Printf("[Room %d] Failed to cache chat message: %v", r.liveClassID, err)
		}
	}()
}

// mirrorOnline updates the Redis presence mirror, best-effort.
func (r *Room) mirrorOnline(userID int64, online bool) {
	if r.cache == nil {
		return
	}
	classID := r.liveClassID
	c := r.cache
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		var err error
		if online {
			err = c.AddOnline(ctx, classID, userID)
		} else {
			err = c.RemoveOnline(ctx, classID, userID)
		}
		if err != nil {
			log.Printf("[Room %d] Presence mirror update failed for user %d: %v", classID, userID, err)
		}
	}()
}
