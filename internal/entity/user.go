package entity

import "time"

// User carries the profile fields used to enrich outbound payloads. Accounts
// and credentials are issued elsewhere.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:50;uniqueIndex;not null" json:"username"`
	AvatarURL  *string   `gorm:"type:text" json:"avatar_url,omitempty"`
	Reputation int       `gorm:"not null;default:0" json:"reputation"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (u *User) TableName() string {
	return "users"
}
