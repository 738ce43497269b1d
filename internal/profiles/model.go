package profiles

import (
	"strings"
	"time"
)

// Profile mirrors the identity-provider claims for a single user.
// The row is keyed by the provider-assigned uid and overwritten on every sync.
type Profile struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null" json:"id"`
	Email     string    `gorm:"column:email;size:320" json:"email"`
	FullName  string    `gorm:"column:full_name;size:320" json:"full_name"`
	AvatarURL string    `gorm:"column:avatar_url;size:512" json:"avatar_url"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime" json:"-"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime" json:"-"`
}

// TableName exposes the table backing mirrored profiles.
func (Profile) TableName() string {
	return "profiles"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
