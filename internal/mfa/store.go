package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"azkaban/internal/models"
)

// SecretStore persists per-subject TOTP secrets. Reads degrade to "not
// enrolled" on storage failure, writes propagate their errors.
type SecretStore struct {
	db *gorm.DB
}

// NewSecretStore constructs a SecretStore.
func NewSecretStore(db *gorm.DB) *SecretStore {
	return &SecretStore{db: db}
}

// Store upserts the secret for a subject. Re-enrollment replaces the secret
// in place, reactivates the row, and clears the verification mark so the new
// secret must be confirmed before it counts as verified.
func (s *SecretStore) Store(ctx context.Context, subjectID, secret string) error {
	now := time.Now().UTC()
	row := models.TOTPSecret{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Secret:    secret,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"secret":      secret,
			"active":      true,
			"verified_at": nil,
			"updated_at":  now,
		}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("mfa: store secret for %s: %w", subjectID, err)
	}
	return nil
}

// GetSecret returns the active secret for a subject. Inactive rows, absent
// rows, and storage failures all report not enrolled.
func (s *SecretStore) GetSecret(ctx context.Context, subjectID string) (string, bool) {
	var row models.TOTPSecret
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND active = ?", subjectID, true).
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Error("mfa: load secret failed, treating as not enrolled")
		}
		return "", false
	}
	return row.Secret, true
}

// IsVerified reports whether the subject has confirmed their enrollment.
func (s *SecretStore) IsVerified(ctx context.Context, subjectID string) bool {
	var row models.TOTPSecret
	err := s.db.WithContext(ctx).
		Where("subject_id = ? AND active = ?", subjectID, true).
		First(&row).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			log.WithError(err).Error("mfa: load verification state failed, treating as unverified")
		}
		return false
	}
	return row.VerifiedAt != nil
}

// MarkVerified records the first successful confirmation. Later calls and
// calls for absent rows are no-ops.
func (s *SecretStore) MarkVerified(ctx context.Context, subjectID string) error {
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Model(&models.TOTPSecret{}).
		Where("subject_id = ? AND active = ? AND verified_at IS NULL", subjectID, true).
		Updates(map[string]any{"verified_at": now, "updated_at": now}).Error
	if err != nil {
		return fmt.Errorf("mfa: mark verified for %s: %w", subjectID, err)
	}
	return nil
}

// Deactivate disables the enrollment without deleting the row.
func (s *SecretStore) Deactivate(ctx context.Context, subjectID string) error {
	err := s.db.WithContext(ctx).Model(&models.TOTPSecret{}).
		Where("subject_id = ?", subjectID).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()}).Error
	if err != nil {
		return fmt.Errorf("mfa: deactivate for %s: %w", subjectID, err)
	}
	return nil
}
