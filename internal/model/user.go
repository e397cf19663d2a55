package model

import (
	"time"
)

// User account row. Sessions reference users by id inside the session
// document; there is no relational link back from sessions.
type User struct {
	ID         int64   `gorm:"primaryKey;autoIncrement" json:"id"`
	Email      string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Nickname   string  `gorm:"type:varchar(100);not null" json:"nickname"`
	ProfileImg *string `gorm:"type:text" json:"profile_img,omitempty"`
	Provider   *string `gorm:"type:varchar(50)" json:"provider,omitempty"`
	ProviderID *string `gorm:"type:varchar(255)" json:"provider_id,omitempty"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (User) TableName() string {
	return "users"
}
