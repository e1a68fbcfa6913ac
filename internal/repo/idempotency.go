// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository helpers for the Idempotency
// model used to deduplicate retried public form submissions.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// ErrDuplicate indicates that an idempotency record already exists for the
// given (subject, form_id, key) tuple.
var ErrDuplicate = errors.New("duplicate")

// GetIdempotency returns a non-expired record or ErrNotFound. Subject is the
// authenticated user id, or the client IP for anonymous respondents.
func GetIdempotency(ctx context.Context, db *gorm.DB, subject, formID, key string, now time.Time) (*domain.Idempotency, error) {
	if strings.TrimSpace(formID) == "" {
		return nil, ErrNotFound
	}
	var rec domain.Idempotency
	err := db.WithContext(ctx).
		Where("subject = ? AND form_id = ? AND key = ? AND expires_at > ?", subject, formID, key, now).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &rec, err
}

// CreateIdempotency inserts a record pointing at the persisted response and
// returns ErrDuplicate on unique violation.
func CreateIdempotency(ctx context.Context, db *gorm.DB, subject, formID, key, responseID string, status int, ttl time.Duration) (*domain.Idempotency, error) {
	now := time.Now().UTC()
	rec := &domain.Idempotency{
		ID:         uuid.NewString(),
		Subject:    subject,
		FormID:     formID,
		Key:        key,
		ResponseID: responseID,
		Status:     status,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return rec, nil
}
