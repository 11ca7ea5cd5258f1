// Package settings reads JSON-valued runtime settings from the database.
// Non-empty database values override the file/environment configuration so
// sensitive lists can be rotated without a deploy.
package settings

import (
	"encoding/json"
	"errors"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"azkaban/internal/models"
)

// DB setting keys.
const (
	// KeyBreakGlassAdmins is a JSON array of emails eligible for the
	// email-based admin fallback.
	KeyBreakGlassAdmins = "BREAK_GLASS_ADMINS"
	// KeyAllowedEmailDomains is a JSON array of organizational email domains.
	KeyAllowedEmailDomains = "ALLOWED_EMAIL_DOMAINS"
)

// StringList loads a JSON string-array setting. A missing row, a decode
// failure, or a storage error all yield the fallback; settings reads never
// block startup.
func StringList(conn *gorm.DB, key string, fallback []string) []string {
	if conn == nil {
		return fallback
	}
	var row models.Setting
	if errFind := conn.Where("key = ?", key).First(&row).Error; errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			log.WithError(errFind).Warnf("settings: load %s failed, using fallback", key)
		}
		return fallback
	}
	var values []string
	if errUnmarshal := json.Unmarshal(row.Value, &values); errUnmarshal != nil {
		log.WithError(errUnmarshal).Warnf("settings: decode %s failed, using fallback", key)
		return fallback
	}
	if len(values) == 0 {
		return fallback
	}
	return values
}
