package model

import (
	"time"

	"gorm.io/datatypes"
)

type DiscussionRoom struct {
	ID            uint                        `gorm:"primaryKey" json:"id"`
	Topic         string                      `gorm:"size:128;not null" json:"topic"`
	Description   string                      `gorm:"type:text" json:"description"`
	IsPublic      bool                        `gorm:"not null;index" json:"is_public"`
	CreatedBy     uint                        `gorm:"not null;index" json:"created_by"`
	Tags          datatypes.JSONSlice[string] `json:"tags"`
	LastMessageID *uint                       `json:"last_message_id,omitempty"`
	LastMessage   *DiscussionMessage          `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
	CreatedAt     time.Time                   `json:"created_at"`
	UpdatedAt     time.Time                   `gorm:"index" json:"updated_at"`
}

type DiscussionParticipant struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	RoomID   uint      `gorm:"not null;uniqueIndex:uniq_discussion_participant,priority:1" json:"room_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:uniq_discussion_participant,priority:2;index" json:"user_id"`
	Role     string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

type DiscussionMessage struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RoomID    uint      `gorm:"not null;index:idx_discussion_message_room_created,priority:1" json:"room_id"`
	SenderID  uint      `gorm:"not null;index" json:"sender_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"index:idx_discussion_message_room_created,priority:2" json:"created_at"`
}

// AllModels lists every table this service migrates.
func AllModels() []any {
	return []any{
		&User{},
		&ChatSession{},
		&ChatSessionParticipant{},
		&Message{},
		&DiscussionRoom{},
		&DiscussionParticipant{},
		&DiscussionMessage{},
	}
}
