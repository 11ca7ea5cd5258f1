package models

import (
	"time"

	"gorm.io/datatypes"
)

// Setting is a JSON-valued runtime setting keyed by name. Security-sensitive
// lists (break-glass admins, allowed email domains) live here so they can be
// rotated without a deploy.
type Setting struct {
	ID uint64 `gorm:"primaryKey;autoIncrement"` // Primary key.

	Key   string         `gorm:"type:text;not null;uniqueIndex"` // Setting name.
	Value datatypes.JSON `gorm:"type:jsonb"`                     // JSON-encoded value.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
