// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Form
// aggregate (the form row plus its ordered fields and conditions).
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations. They
// follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition. Invariant checks (field references,
// ownership, publish rules) live in services.FormService.
//
// Error semantics:
//   - When a form is not found, functions return ErrNotFound
//     (an alias of gorm.ErrRecordNotFound).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
package repo

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// CreateForm inserts a new form aggregate, including any fields and
// conditions already attached to it. Child rows keep the Position values
// assigned by the caller.
func CreateForm(ctx context.Context, db *gorm.DB, form *domain.Form) error {
	return db.WithContext(ctx).Create(form).Error
}

// GetForm fetches a form by ID with fields and conditions preloaded in
// declaration order. It returns ErrNotFound when no such form exists.
// Ownership is deliberately not filtered here: callers need the owner id to
// tell "missing" apart from "not yours".
func GetForm(ctx context.Context, db *gorm.DB, id string) (*domain.Form, error) {
	var f domain.Form
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Preload("Conditions", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		First(&f, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// GetFormByPublicURL fetches a published form by its public token, with
// children preloaded in order. Unpublished forms are invisible through this
// path; ErrNotFound covers both "no such token" and "not published".
func GetFormByPublicURL(ctx context.Context, db *gorm.DB, url string) (*domain.Form, error) {
	var f domain.Form
	err := db.WithContext(ctx).
		Preload("Fields", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		Preload("Conditions", func(tx *gorm.DB) *gorm.DB { return tx.Order("position asc") }).
		First(&f, "public_url = ? AND is_published = ?", url, true).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListForms returns all forms belonging to ownerID, most recently updated
// first, without preloading children (list views only need metadata).
func ListForms(ctx context.Context, db *gorm.DB, ownerID string) ([]domain.Form, error) {
	var out []domain.Form
	err := db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("updated_at desc").
		Find(&out).Error
	return out, err
}

// SaveForm persists a mutated form aggregate inside one transaction: the form
// row is updated and the field/condition child sets are replaced wholesale
// with the provided ones. Replacing (rather than diffing) keeps declaration
// order authoritative and guarantees no orphaned condition can survive the
// write. A concurrent reader sees either the old aggregate or the new one.
func SaveForm(ctx context.Context, db *gorm.DB, form *domain.Form) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("form_id = ?", form.ID).Delete(&domain.FormField{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", form.ID).Delete(&domain.Condition{}).Error; err != nil {
			return err
		}
		// Children are re-inserted explicitly; letting Save walk the
		// associations would upsert stale rows instead of replacing them.
		if err := tx.Omit("Fields", "Conditions").Save(form).Error; err != nil {
			return err
		}
		if len(form.Fields) > 0 {
			if err := tx.Create(&form.Fields).Error; err != nil {
				return err
			}
		}
		if len(form.Conditions) > 0 {
			if err := tx.Create(&form.Conditions).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateFormMeta applies a column-level update to the form row (no children
// touched). Used for publish state changes where the field list is untouched.
// Returns ErrNotFound if no row was affected.
func UpdateFormMeta(ctx context.Context, db *gorm.DB, id string, cols map[string]any) error {
	res := db.WithContext(ctx).Model(&domain.Form{}).Where("id = ?", id).Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteFormCascade removes the form and every response referencing it in
// one transaction: a reader can never observe the form gone while its
// responses linger, or the reverse. Fields and conditions fall with the form
// via their FK constraints. Returns ErrNotFound when the form does not exist.
func DeleteFormCascade(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&domain.Form{}, "id = ?", id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("form_id = ?", id).Delete(&domain.FormField{}).Error; err != nil {
			return err
		}
		if err := tx.Where("form_id = ?", id).Delete(&domain.Condition{}).Error; err != nil {
			return err
		}
		return tx.Where("form_id = ?", id).Delete(&domain.Response{}).Error
	})
}

// PublicURLTaken reports whether any form already uses the given public
// token. Used to re-roll freshly generated tokens on the (unlikely) collision.
func PublicURLTaken(ctx context.Context, db *gorm.DB, url string) (bool, error) {
	var n int64
	err := db.WithContext(ctx).Model(&domain.Form{}).
		Where("public_url = ?", url).
		Count(&n).Error
	return n > 0, err
}

// IsUniqueViolation detects unique-constraint failures across drivers that
// may not map to gorm.ErrDuplicatedKey (glebarez/sqlite reports plain text).
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}
