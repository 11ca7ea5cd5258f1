// Package directory maps external identities to internal user records and
// gates role-based access.
//
// Reads and writes deliberately fail differently: lookup-style operations
// map storage errors to "absent" (fail open) so a degraded database never
// blocks authentication decisions that default to deny anyway, while
// mutations roll back and propagate the error (fail loud). The mapping
// happens in exactly one place, readAbsent, so call sites cannot drift.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"azkaban/internal/apierr"
	"azkaban/internal/db"
	"azkaban/internal/models"
)

// Directory provides user record lookups and mutations.
type Directory struct {
	db              *gorm.DB
	bootstrapAdmins []string
}

// New constructs a Directory. bootstrapAdmins lists emails provisioned as
// active admins on first creation (the break-glass identities).
func New(db *gorm.DB, bootstrapAdmins []string) *Directory {
	return &Directory{db: db, bootstrapAdmins: bootstrapAdmins}
}

// readAbsent is the single read-path boundary: storage failures on lookups
// degrade to "absent" after logging. Mutations never pass through here.
func readAbsent(op string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	log.WithError(err).Errorf("directory: %s failed, treating as absent", op)
	return true
}

// GetBySubject returns the user for an identity provider subject id.
func (d *Directory) GetBySubject(ctx context.Context, subjectID string) (*models.User, bool) {
	var user models.User
	err := d.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&user).Error
	if readAbsent("get by subject", err) {
		return nil, false
	}
	return &user, true
}

// GetByEmail returns the user for an email address.
func (d *Directory) GetByEmail(ctx context.Context, email string) (*models.User, bool) {
	var user models.User
	err := d.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error
	if readAbsent("get by email", err) {
		return nil, false
	}
	return &user, true
}

// GetByID returns the user for an internal id.
func (d *Directory) GetByID(ctx context.Context, id string) (*models.User, bool) {
	var user models.User
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if readAbsent("get by id", err) {
		return nil, false
	}
	return &user, true
}

// IsAdmin reports whether the subject maps to an admin record. Absent users
// and storage failures both report false.
func (d *Directory) IsAdmin(ctx context.Context, subjectID string) bool {
	user, found := d.GetBySubject(ctx, subjectID)
	return found && user.Role == models.RoleAdmin
}

// List returns users ordered by creation time, newest first. An optional
// search term filters on email and name. Storage failures degrade to an
// empty list.
func (d *Directory) List(ctx context.Context, offset, limit int, search string) []models.User {
	if limit <= 0 {
		limit = 100
	}
	q := d.db.WithContext(ctx).Model(&models.User{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := db.NormalizeLikePattern(d.db, "%"+search+"%")
		q = q.Where(
			d.db.Where(db.CaseInsensitiveLikeExpr(d.db, "email"), pattern).
				Or(db.CaseInsensitiveLikeExpr(d.db, "name"), pattern),
		)
	}
	var rows []models.User
	err := q.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rows).Error
	if err != nil {
		log.WithError(err).Error("directory: list failed, returning empty")
		return nil
	}
	return rows
}

// Sync upserts the user record for an authenticated identity. New users get
// role=user and start inactive unless their email is a bootstrap admin;
// existing rows refresh email, name, picture, and last login in place, so a
// name cleared upstream clears here too. Role and active are never touched.
// The insert-or-update is a single atomic statement guarded by the subject id
// uniqueness constraint, so concurrent syncs cannot produce duplicate rows.
func (d *Directory) Sync(ctx context.Context, subjectID, email, name, picture string) (*models.User, error) {
	subjectID = strings.TrimSpace(subjectID)
	email = strings.ToLower(strings.TrimSpace(email))
	if subjectID == "" || email == "" {
		return nil, apierr.New(apierr.KindValidation, "subject id and email are required")
	}

	now := time.Now().UTC()
	bootstrap := d.isBootstrapAdmin(email)
	role := models.RoleUser
	if bootstrap {
		role = models.RoleAdmin
	}
	user := models.User{
		ID:        uuid.NewString(),
		SubjectID: subjectID,
		Email:     email,
		Name:      name,
		Picture:   picture,
		Role:      role,
		Active:    bootstrap,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: &now,
	}

	assignments := map[string]any{
		"email":      email,
		"name":       name,
		"picture":    picture,
		"updated_at": now,
		"last_login": now,
	}

	errUpsert := d.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "subject_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&user).Error
	if errUpsert != nil {
		return nil, fmt.Errorf("directory: sync %s: %w", subjectID, errUpsert)
	}

	var synced models.User
	if errFind := d.db.WithContext(ctx).Where("subject_id = ?", subjectID).First(&synced).Error; errFind != nil {
		return nil, fmt.Errorf("directory: reload after sync %s: %w", subjectID, errFind)
	}
	return &synced, nil
}

// SetActive updates the active flag. Returns nil without error when the user
// is absent; storage failures propagate.
func (d *Directory) SetActive(ctx context.Context, id string, active bool) (*models.User, error) {
	return d.update(ctx, id, map[string]any{"active": active})
}

// SetRole updates the role, rejecting values outside the enumeration.
func (d *Directory) SetRole(ctx context.Context, id, role string) (*models.User, error) {
	if !models.ValidRole(role) {
		return nil, apierr.New(apierr.KindValidation, fmt.Sprintf("invalid role %q", role))
	}
	return d.update(ctx, id, map[string]any{"role": role})
}

// update applies a mutation inside its own transaction and reloads the row.
func (d *Directory) update(ctx context.Context, id string, fields map[string]any) (*models.User, error) {
	fields["updated_at"] = time.Now().UTC()

	var updated *models.User
	errTx := d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).Where("id = ?", id).Updates(fields)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		var row models.User
		if errFind := tx.Where("id = ?", id).First(&row).Error; errFind != nil {
			return errFind
		}
		updated = &row
		return nil
	})
	if errTx != nil {
		return nil, fmt.Errorf("directory: update %s: %w", id, errTx)
	}
	return updated, nil
}

// isBootstrapAdmin checks the configured break-glass list.
func (d *Directory) isBootstrapAdmin(email string) bool {
	for _, admin := range d.bootstrapAdmins {
		if email == admin {
			return true
		}
	}
	return false
}
