package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"glucoheart/internal/model"
)

type DiscussionParticipantRepository struct {
	db *gorm.DB
}

func NewDiscussionParticipantRepository(db *gorm.DB) *DiscussionParticipantRepository {
	return &DiscussionParticipantRepository{db: db}
}

// Ensure inserts the membership row if it does not exist yet. An existing
// row keeps its role.
func (r *DiscussionParticipantRepository) Ensure(ctx context.Context, p *model.DiscussionParticipant) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "room_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("ensure discussion participant failed: %w", err)
	}
	return nil
}

func (r *DiscussionParticipantRepository) Get(ctx context.Context, roomID, userID uint) (*model.DiscussionParticipant, error) {
	var p model.DiscussionParticipant
	if err := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get discussion participant failed: %w", err)
	}
	return &p, nil
}

func (r *DiscussionParticipantRepository) ListByRoomID(ctx context.Context, roomID uint) ([]model.DiscussionParticipant, error) {
	var list []model.DiscussionParticipant
	if err := r.db.WithContext(ctx).Where("room_id = ?", roomID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list discussion participants failed: %w", err)
	}
	return list, nil
}

func (r *DiscussionParticipantRepository) Delete(ctx context.Context, roomID, userID uint) (bool, error) {
	res := r.db.WithContext(ctx).Where("room_id = ? AND user_id = ?", roomID, userID).Delete(&model.DiscussionParticipant{})
	if res.Error != nil {
		return false, fmt.Errorf("delete discussion participant failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}
