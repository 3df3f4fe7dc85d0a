package models

import (
	"time"
)

type CacheEntry struct {
	ExternalID string `gorm:"primaryKey"`
	CreatedAt  time.Time
}

func (CacheEntry) TableName() string {
	return "cache_ids"
}
