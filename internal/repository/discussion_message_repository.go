package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"glucoheart/internal/model"
)

type DiscussionMessageRepository struct {
	db *gorm.DB
}

func NewDiscussionMessageRepository(db *gorm.DB) *DiscussionMessageRepository {
	return &DiscussionMessageRepository{db: db}
}

func (r *DiscussionMessageRepository) Create(ctx context.Context, message *model.DiscussionMessage) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create discussion message failed: %w", err)
	}
	return nil
}

func (r *DiscussionMessageRepository) ListByRoomID(ctx context.Context, roomID uint, limit int, beforeID uint) ([]model.DiscussionMessage, error) {
	limit = clampLimit(limit, 50)

	q := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if beforeID != 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []model.DiscussionMessage
	if err := q.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list discussion messages failed: %w", err)
	}
	reverse(messages)
	return messages, nil
}
