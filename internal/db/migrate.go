package db

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"azkaban/internal/models"
	internalsettings "azkaban/internal/settings"
)

// Migrate runs schema migrations and seeds default settings rows.
func Migrate(conn *gorm.DB) error {
	if conn == nil {
		return fmt.Errorf("db: nil connection")
	}
	if errAutoMigrate := conn.AutoMigrate(
		&models.User{},
		&models.TOTPSecret{},
		&models.Setting{},
	); errAutoMigrate != nil {
		return fmt.Errorf("db: migrate: %w", errAutoMigrate)
	}
	if errSeed := ensureSettingRow(conn, internalsettings.KeyBreakGlassAdmins, []byte(`[]`)); errSeed != nil {
		return errSeed
	}
	if errSeed := ensureSettingRow(conn, internalsettings.KeyAllowedEmailDomains, []byte(`[]`)); errSeed != nil {
		return errSeed
	}
	return nil
}

// ensureSettingRow inserts a default setting when the key is absent.
func ensureSettingRow(conn *gorm.DB, key string, value []byte) error {
	var existing models.Setting
	errFind := conn.Where("key = ?", key).First(&existing).Error
	if errFind == nil {
		return nil
	}
	if !errors.Is(errFind, gorm.ErrRecordNotFound) {
		return fmt.Errorf("db: check setting %s: %w", key, errFind)
	}
	record := models.Setting{Key: key, Value: value}
	if errCreate := conn.Create(&record).Error; errCreate != nil {
		return fmt.Errorf("db: seed setting %s: %w", key, errCreate)
	}
	return nil
}
