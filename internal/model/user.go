package model

import "time"

const (
	RoleUser    = "USER"
	RoleNurse   = "NURSE"
	RoleAdmin   = "ADMIN"
	RoleSupport = "SUPPORT"
)

// User mirrors the platform's user table. Accounts are managed by the
// platform; this service only reads them.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email     string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	Role      string    `gorm:"size:16;not null;default:USER;index" json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsStaff reports whether the user may manage sessions and rooms.
func (u *User) IsStaff() bool {
	return u.Role == RoleAdmin || u.Role == RoleSupport
}

func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleSupport
}
