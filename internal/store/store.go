package store

import (
	"context"
	"errors"

	"liveclass-backend/internal/model"
)

var (
	ErrClassNotFound = errors.New("live class not found")
)

// Gateway is the durable side of the coordinator. The room treats it as
// slower and fallible: every call is bounded by the caller's context and
// acknowledged state changes never bypass it.
type Gateway interface {
	GetLiveClass(ctx context.Context, id int64) (*model.LiveClass, error)
	UpsertParticipant(ctx context.Context, p *model.LiveClassParticipant) error
	MarkLeft(ctx context.Context, liveClassID, userID int64) error
	AppendChatMessage(ctx context.Context, msg *model.LiveClassChatMessage) error
	ListParticipants(ctx context.Context, liveClassID int64) ([]model.LiveClassParticipant, error)
	LatestChatSeq(ctx context.Context, liveClassID int64) (int64, error)
	ListChatMessages(ctx context.Context, liveClassID int64, limit int) ([]model.LiveClassChatMessage, error)
}

// DedupeParticipants collapses duplicate rows per user, keeping the row
// with the newest JoinedAt. The store is allowed to be stale relative to
// a room, so reads are defensively deduplicated even though the schema
// carries a unique index.
func DedupeParticipants(rows []model.LiveClassParticipant) []model.LiveClassParticipant {
	byUser := make(map[int64]model.LiveClassParticipant, len(rows))
	order := make([]int64, 0, len(rows))

	for _, row := range rows {
		existing, seen := byUser[row.UserID]
		if !seen {
			byUser[row.UserID] = row
			order = append(order, row.UserID)
			continue
		}
		if row.JoinedAt.After(existing.JoinedAt) {
			byUser[row.UserID] = row
		}
	}

	out := make([]model.LiveClassParticipant, 0, len(byUser))
	for _, userID := range order {
		out = append(out, byUser[userID])
	}
	return out
}
