package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"glucoheart/internal/model"
)

type ChatSessionRepository struct {
	db *gorm.DB
}

func NewChatSessionRepository(db *gorm.DB) *ChatSessionRepository {
	return &ChatSessionRepository{db: db}
}

func (r *ChatSessionRepository) Create(ctx context.Context, session *model.ChatSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		return fmt.Errorf("create chat session failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) GetByID(ctx context.Context, id uint) (*model.ChatSession, error) {
	var session model.ChatSession
	if err := r.db.WithContext(ctx).Preload("LastMessage").First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session failed: %w", err)
	}
	return &session, nil
}

// GetByPair expects user1ID and user2ID already normalized.
func (r *ChatSessionRepository) GetByPair(ctx context.Context, sessionType string, user1ID, user2ID uint) (*model.ChatSession, error) {
	var session model.ChatSession
	err := r.db.WithContext(ctx).
		Preload("LastMessage").
		Where("type = ? AND user1_id = ? AND user2_id = ?", sessionType, user1ID, user2ID).
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get chat session by pair failed: %w", err)
	}
	return &session, nil
}

func (r *ChatSessionRepository) ListByParticipant(ctx context.Context, userID uint) ([]model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.WithContext(ctx).
		Preload("LastMessage").
		Where("id IN (?)", r.db.Model(&model.ChatSessionParticipant{}).Select("session_id").Where("user_id = ?", userID)).
		Order("updated_at DESC").
		Order("id DESC").
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("list chat sessions failed: %w", err)
	}
	return sessions, nil
}

func (r *ChatSessionRepository) UpdateLastMessage(ctx context.Context, sessionID, messageID uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"last_message_id": messageID, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("update chat session last message failed: %w", err)
	}
	return nil
}

func (r *ChatSessionRepository) SetNurse(ctx context.Context, sessionID, nurseID uint, at time.Time) error {
	err := r.db.WithContext(ctx).
		Model(&model.ChatSession{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{"nurse_id": nurseID, "updated_at": at}).Error
	if err != nil {
		return fmt.Errorf("update chat session nurse failed: %w", err)
	}
	return nil
}

// FindWithCounterpartRole returns the most recently active one-to-one session
// in which userID talks to someone holding role.
func (r *ChatSessionRepository) FindWithCounterpartRole(ctx context.Context, userID uint, role string) (*model.ChatSession, error) {
	var sessions []model.ChatSession
	err := r.db.WithContext(ctx).
		Preload("LastMessage").
		Joins("JOIN users ON users.id = CASE WHEN chat_sessions.user1_id = ? THEN chat_sessions.user2_id ELSE chat_sessions.user1_id END", userID).
		Where("chat_sessions.type = ?", model.SessionTypeOneToOne).
		Where("chat_sessions.user1_id = ? OR chat_sessions.user2_id = ?", userID, userID).
		Where("users.role = ?", role).
		Order("chat_sessions.updated_at DESC").
		Limit(1).
		Find(&sessions).Error
	if err != nil {
		return nil, fmt.Errorf("find chat session by counterpart role failed: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}
