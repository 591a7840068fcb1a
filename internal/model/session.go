package model

import "time"

const (
	SessionTypeOneToOne = "one_to_one"
	SessionTypeGroup    = "group"
)

// ChatSession is a conversation between two users. User1ID is always the
// smaller id so the pair is unique regardless of who opened the session.
type ChatSession struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Type          string    `gorm:"size:16;not null;default:one_to_one;uniqueIndex:uniq_chat_session_pair,priority:1" json:"type"`
	User1ID       uint      `gorm:"not null;uniqueIndex:uniq_chat_session_pair,priority:2" json:"user1_id"`
	User2ID       uint      `gorm:"not null;uniqueIndex:uniq_chat_session_pair,priority:3;index" json:"user2_id"`
	NurseID       *uint     `gorm:"index" json:"nurse_id,omitempty"`
	LastMessageID *uint     `json:"last_message_id,omitempty"`
	LastMessage   *Message  `gorm:"foreignKey:LastMessageID" json:"last_message,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `gorm:"index" json:"updated_at"`
}

// NormalizePair orders two user ids so (a, b) and (b, a) map to the same row.
func NormalizePair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

const (
	ParticipantRoleMember    = "member"
	ParticipantRoleNurse     = "nurse"
	ParticipantRoleModerator = "moderator"
)

type ChatSessionParticipant struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;uniqueIndex:uniq_chat_participant,priority:1" json:"session_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:uniq_chat_participant,priority:2;index" json:"user_id"`
	Role      string    `gorm:"size:16;not null;default:member" json:"role"`
	JoinedAt  time.Time `gorm:"autoCreateTime" json:"joined_at"`
}
