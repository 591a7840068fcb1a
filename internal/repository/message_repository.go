package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"glucoheart/internal/model"
)

type MessageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Create(ctx context.Context, message *model.Message) error {
	if err := r.db.WithContext(ctx).Create(message).Error; err != nil {
		return fmt.Errorf("create message failed: %w", err)
	}
	return nil
}

// ListBySessionID returns up to limit messages older than beforeID (0 means
// newest), oldest first. Order is by id only: created_at comes from each
// instance's clock and is not a safe cursor.
func (r *MessageRepository) ListBySessionID(ctx context.Context, sessionID uint, limit int, beforeID uint) ([]model.Message, error) {
	limit = clampLimit(limit, 50)

	q := r.db.WithContext(ctx).Where("session_id = ?", sessionID)
	if beforeID != 0 {
		q = q.Where("id < ?", beforeID)
	}
	var messages []model.Message
	if err := q.Order("id DESC").Limit(limit).Find(&messages).Error; err != nil {
		return nil, fmt.Errorf("list messages failed: %w", err)
	}
	reverse(messages)
	return messages, nil
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
