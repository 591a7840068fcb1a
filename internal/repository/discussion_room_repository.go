package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"glucoheart/internal/model"
)

type DiscussionRoomRepository struct {
	db *gorm.DB
}

func NewDiscussionRoomRepository(db *gorm.DB) *DiscussionRoomRepository {
	return &DiscussionRoomRepository{db: db}
}

func (r *DiscussionRoomRepository) Create(ctx context.Context, room *model.DiscussionRoom) error {
	if err := r.db.WithContext(ctx).Create(room).Error; err != nil {
		return fmt.Errorf("create discussion room failed: %w", err)
	}
	return nil
}

func (r *DiscussionRoomRepository) GetByID(ctx context.Context, id uint) (*model.DiscussionRoom, error) {
	var room model.DiscussionRoom
	if err := r.db.WithContext(ctx).Preload("LastMessage").First(&room, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discussion room failed: %w", err)
	}
	return &room, nil
}

func (r *DiscussionRoomRepository) ListAll(ctx context.Context) ([]model.DiscussionRoom, error) {
	var rooms []model.DiscussionRoom
	if err := r.db.WithContext(ctx).Preload("LastMessage").Order("updated_at DESC").Order("id DESC").Find(&rooms).Error; err != nil {
		return nil, fmt.Errorf("list discussion rooms failed: %w", err)
	}
	return rooms, nil
}

// ListVisibleTo returns public rooms plus private rooms the user belongs to.
func (r *DiscussionRoomRepository) ListVisibleTo(ctx context.Context, userID uint) ([]model.DiscussionRoom, error) {
	var rooms []model.DiscussionRoom
	member := r.db.Model(&model.DiscussionParticipant{}).Select("room_id").Where("user_id = ?", userID)
	err := r.db.WithContext(ctx).
		Preload("LastMessage").
		Where("is_public = ?", true).
		Or("id IN (?)", member).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&rooms).Error
	if err != nil {
		return nil, fmt.Errorf("list visible discussion rooms failed: %w", err)
	}
	return rooms, nil
}

func (r *DiscussionRoomRepository) UpdateLastMessage(ctx context.Context, roomID, messageID uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.DiscussionRoom{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"last_message_id": messageID, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("update discussion room last message failed: %w", err)
	}
	return nil
}
