package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"glucoheart/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

// LeastLoadedByRole picks the user with the given role who currently holds
// the fewest one-to-one sessions. Ties go to the lowest id.
func (r *UserRepository) LeastLoadedByRole(ctx context.Context, role string, excludeID uint) (*model.User, error) {
	var users []model.User
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Select("users.*").
		Joins("LEFT JOIN chat_sessions ON (chat_sessions.user1_id = users.id OR chat_sessions.user2_id = users.id) AND chat_sessions.type = ?", model.SessionTypeOneToOne).
		Where("users.role = ? AND users.id <> ?", role, excludeID).
		Group("users.id").
		Order("COUNT(chat_sessions.id) ASC, users.id ASC").
		Limit(1).
		Find(&users).Error
	if err != nil {
		return nil, fmt.Errorf("query least loaded %s failed: %w", role, err)
	}
	if len(users) == 0 {
		return nil, nil
	}
	return &users[0], nil
}
