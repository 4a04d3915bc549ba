package model

import "time"

// ProcessedEvent records a processor webhook event that has been applied.
type ProcessedEvent struct {
	ID          uint      `gorm:"primaryKey"`
	EventID     string    `gorm:"uniqueIndex;not null"`
	Type        string    `gorm:"not null"`
	ProcessedAt time.Time `gorm:"not null;index"`
}
