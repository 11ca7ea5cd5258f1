package models

import "time"

// TOTPSecret is the per-user shared secret for time-based one-time codes.
// At most one row exists per subject; re-running setup overwrites it in place.
type TOTPSecret struct {
	ID string `gorm:"type:text;primaryKey"` // Surrogate UUID.

	SubjectID string `gorm:"type:text;not null;uniqueIndex"` // Identity provider subject id.
	Secret    string `gorm:"type:text;not null"`             // Base32 encoded shared secret.

	Active     bool       `gorm:"not null;default:true"` // Deactivation flips this off, the row is never deleted.
	VerifiedAt *time.Time // Set once, on first successful confirmation.

	CreatedAt time.Time `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime"` // Last update timestamp.
}
