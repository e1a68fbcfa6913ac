// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Response
// model. Responses are independent rows: concurrent submissions against the
// same form need no coordination beyond the insert itself.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// CreateResponse inserts a new response row for the given form. UserID may be
// nil for anonymous submissions. SubmittedAt is stamped in UTC.
func CreateResponse(ctx context.Context, db *gorm.DB, formID string, userID *string, answers domain.AnswerMap) (*domain.Response, error) {
	r := &domain.Response{
		ID:          uuid.NewString(),
		FormID:      formID,
		UserID:      userID,
		Answers:     answers,
		SubmittedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(r).Error; err != nil {
		return nil, err
	}
	return r, nil
}

// GetResponse fetches a single response by ID, or ErrNotFound.
func GetResponse(ctx context.Context, db *gorm.DB, id string) (*domain.Response, error) {
	var r domain.Response
	if err := db.WithContext(ctx).First(&r, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountResponses returns the number of responses recorded for formID.
func CountResponses(ctx context.Context, db *gorm.DB, formID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("form_id = ?", formID).
		Count(&total).Error
	return total, err
}

// ListResponsesPage returns a page of responses for formID, newest first.
// Use CountResponses to obtain the total for pagination metadata.
func ListResponsesPage(ctx context.Context, db *gorm.DB, formID string, offset, limit int) ([]domain.Response, error) {
	var out []domain.Response
	err := db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("submitted_at desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// ListAllResponses returns every response for formID in submission order
// (oldest first). Used by the CSV export, which wants chronological rows.
func ListAllResponses(ctx context.Context, db *gorm.DB, formID string) ([]domain.Response, error) {
	var out []domain.Response
	err := db.WithContext(ctx).
		Where("form_id = ?", formID).
		Order("submitted_at asc").
		Find(&out).Error
	return out, err
}

// UpdateResponseAnswers replaces the answer map of a response. Returns
// ErrNotFound if no row was affected.
func UpdateResponseAnswers(ctx context.Context, db *gorm.DB, id string, answers domain.AnswerMap) error {
	res := db.WithContext(ctx).
		Model(&domain.Response{}).
		Where("id = ?", id).
		Update("answer", answers)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResponse removes one response row. Returns ErrNotFound if it did not
// exist.
func DeleteResponse(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Delete(&domain.Response{}, "id = ?", id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteResponsesForForm removes every response belonging to formID and
// returns how many rows were deleted. Deleting zero rows is not an error.
func DeleteResponsesForForm(ctx context.Context, db *gorm.DB, formID string) (int64, error) {
	res := db.WithContext(ctx).Where("form_id = ?", formID).Delete(&domain.Response{})
	return res.RowsAffected, res.Error
}
