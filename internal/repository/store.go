package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories over one handle so a service can run several
// writes inside a single transaction.
type Store struct {
	db *gorm.DB

	Users            *UserRepository
	Sessions         *ChatSessionRepository
	Participants     *ChatParticipantRepository
	Messages         *MessageRepository
	Rooms            *DiscussionRoomRepository
	RoomParticipants *DiscussionParticipantRepository
	RoomMessages     *DiscussionMessageRepository
}

func NewStore(db *gorm.DB) *Store {
	return &Store{
		db:               db,
		Users:            NewUserRepository(db),
		Sessions:         NewChatSessionRepository(db),
		Participants:     NewChatParticipantRepository(db),
		Messages:         NewMessageRepository(db),
		Rooms:            NewDiscussionRoomRepository(db),
		RoomParticipants: NewDiscussionParticipantRepository(db),
		RoomMessages:     NewDiscussionMessageRepository(db),
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(tx))
	})
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 200 {
		return 200
	}
	return limit
}
