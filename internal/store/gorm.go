package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"liveclass-backend/internal/model"
)

// GormGateway implements Gateway over PostgreSQL.
type GormGateway struct {
	db *gorm.DB
}

// NewGormGateway creates a GormGateway.
func NewGormGateway(db *gorm.DB) *GormGateway {
	return &GormGateway{db: db}
}

// GetLiveClass fetches a live class by ID.
func (g *GormGateway) GetLiveClass(ctx context.Context, id int64) (*model.LiveClass, error) {
	var class model.LiveClass
	err := g.db.WithContext(ctx).First(&class, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrClassNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get live class %d: %w", id, err)
	}
	return &class, nil
}

// UpsertParticipant writes the participant record, keyed by
// (live_class_id, user_id). The unique index makes the upsert atomic, so
// concurrent writers cannot create a second row for the same user.
func (g *GormGateway) UpsertParticipant(ctx context.Context, p *model.LiveClassParticipant) error {
	err := g.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "live_class_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_role", "display_name", "joined_at", "left_at",
			"is_muted", "is_video_enabled", "has_raised_hand",
		}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("upsert participant class=%d user=%d: %w", p.LiveClassID, p.UserID, err)
	}
	return nil
}

// MarkLeft stamps left_at on the participant record.
func (g *GormGateway) MarkLeft(ctx context.Context, liveClassID, userID int64) error {
	err := g.db.WithContext(ctx).
		Model(&model.LiveClassParticipant{}).
		Where("live_class_id = ? AND user_id = ?", liveClassID, userID).
		Update("left_at", gorm.Expr("now()")).Error
	if err != nil {
		return fmt.Errorf("mark left class=%d user=%d: %w", liveClassID, userID, err)
	}
	return nil
}

// AppendChatMessage appends one chat message.
func (g *GormGateway) AppendChatMessage(ctx context.Context, msg *model.LiveClassChatMessage) error {
	if err := g.db.WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("append chat class=%d seq=%d: %w", msg.LiveClassID, msg.Seq, err)
	}
	return nil
}

// ListParticipants returns the participant records for a class,
// defensively deduplicated by user.
func (g *GormGateway) ListParticipants(ctx context.Context, liveClassID int64) ([]model.LiveClassParticipant, error) {
	var rows []model.LiveClassParticipant
	err := g.db.WithContext(ctx).
		Where("live_class_id = ?", liveClassID).
		Order("joined_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list participants class=%d: %w", liveClassID, err)
	}
	return DedupeParticipants(rows), nil
}

// LatestChatSeq returns the highest chat sequence number for a class, or
// zero when the class has no chat history.
func (g *GormGateway) LatestChatSeq(ctx context.Context, liveClassID int64) (int64, error) {
	var seq int64
	err := g.db.WithContext(ctx).
		Model(&model.LiveClassChatMessage{}).
		Where("live_class_id = ?", liveClassID).
		Select("COALESCE(MAX(seq), 0)").
		Scan(&seq).Error
	if err != nil {
		return 0, fmt.Errorf("latest chat seq class=%d: %w", liveClassID, err)
	}
	return seq, nil
}

// ListChatMessages returns the most recent messages in seq order.
func (g *GormGateway) ListChatMessages(ctx context.Context, liveClassID int64, limit int) ([]model.LiveClassChatMessage, error) {
	var rows []model.LiveClassChatMessage
	query := g.db.WithContext(ctx).
		Where("live_class_id = ?", liveClassID).
		Order("seq DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list chat class=%d: %w", liveClassID, err)
	}

	// reverse into ascending seq order
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}
