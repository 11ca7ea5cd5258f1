package models

import "time"

// Role values permitted for a user record.
const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

// ValidRole reports whether role is one of the enumerated values.
func ValidRole(role string) bool {
	return role == RoleAdmin || role == RoleUser
}

// User represents a principal synced from the identity provider.
type User struct {
	ID string `gorm:"type:text;primaryKey"` // Surrogate UUID.

	SubjectID string `gorm:"type:text;not null;uniqueIndex"` // Identity provider subject id, the only stable join key.
	Email     string `gorm:"type:text;not null;uniqueIndex"` // Email address, may change upstream.
	Name      string `gorm:"type:text"`                      // Display name.
	Picture   string `gorm:"type:text"`                      // Profile picture URL.

	Role   string `gorm:"type:text;not null;default:user"` // admin or user.
	Active bool   `gorm:"not null;default:false"`          // New users start inactive.

	CreatedAt time.Time  `gorm:"not null;autoCreateTime"` // Creation timestamp.
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime"` // Last update timestamp.
	LastLogin *time.Time // Last observed sync after authentication.
}
