package models

import (
	"time"
)

// VerifiedUser is the quota record of a user bound to an external id.
// DailyUsage only counts for LastUsageDate; an older date means nothing was used today.
type VerifiedUser struct {
	UserID        int64     `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	ExternalID    string    `gorm:"uniqueIndex;not null" json:"external_id"`
	CreatedAt     time.Time `json:"created_at"`
	DailyUsage    int       `gorm:"not null;default:0" json:"daily_usage"`
	LastUsageDate time.Time `gorm:"type:date;not null;default:CURRENT_DATE" json:"last_usage_date"`
}

func (VerifiedUser) TableName() string {
	return "verified_users"
}
