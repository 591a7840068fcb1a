package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"glucoheart/internal/model"
)

type ChatParticipantRepository struct {
	db *gorm.DB
}

func NewChatParticipantRepository(db *gorm.DB) *ChatParticipantRepository {
	return &ChatParticipantRepository{db: db}
}

func (r *ChatParticipantRepository) CreateBatch(ctx context.Context, participants []model.ChatSessionParticipant) error {
	if len(participants) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(&participants).Error; err != nil {
		return fmt.Errorf("create chat participants failed: %w", err)
	}
	return nil
}

func (r *ChatParticipantRepository) Get(ctx context.Context, sessionID, userID uint) (*model.ChatSessionParticipant, error) {
	var p model.ChatSessionParticipant
	if err := r.db.WithContext(ctx).Where("session_id = ? AND user_id = ?", sessionID, userID).First(&p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat participant failed: %w", err)
	}
	return &p, nil
}

func (r *ChatParticipantRepository) ListBySessionID(ctx context.Context, sessionID uint) ([]model.ChatSessionParticipant, error) {
	var list []model.ChatSessionParticipant
	if err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("id ASC").Find(&list).Error; err != nil {
		return nil, fmt.Errorf("list chat participants failed: %w", err)
	}
	return list, nil
}

func (r *ChatParticipantRepository) SessionIDsByUserID(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&model.ChatSessionParticipant{}).Where("user_id = ?", userID).Pluck("session_id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list chat session ids by user failed: %w", err)
	}
	return ids, nil
}

func (r *ChatParticipantRepository) DeleteBySessionIDAndRole(ctx context.Context, sessionID uint, role string) error {
	if err := r.db.WithContext(ctx).Where("session_id = ? AND role = ?", sessionID, role).Delete(&model.ChatSessionParticipant{}).Error; err != nil {
		return fmt.Errorf("delete chat participants by role failed: %w", err)
	}
	return nil
}

// Upsert inserts the participant or, when the user is already in the
// session, overwrites the role.
func (r *ChatParticipantRepository) Upsert(ctx context.Context, p *model.ChatSessionParticipant) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "session_id"}, {Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"role"}),
	}).Create(p).Error
	if err != nil {
		return fmt.Errorf("upsert chat participant failed: %w", err)
	}
	return nil
}
