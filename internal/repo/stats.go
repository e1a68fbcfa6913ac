// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the aggregate queries behind per-form
// statistics. Each function is context-aware and safe to call from services
// or handlers.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// FormStats carries the three response aggregates for one form. The fields
// are computed independently of each other (the weekly count is not derived
// from the total) but inside a single snapshot.
type FormStats struct {
	TotalResponses int64            `json:"totalResponses"`
	LastResponse   *domain.Response `json:"lastResponse"`
	WeeklyData     int64            `json:"weeklyData"`
}

// ResponseStats returns the aggregates for formID as of now: total response
// count, the most recently submitted response record (nil when there are
// none), and the count of submissions within the trailing 7x24 hours.
//
// The three queries run inside one read transaction so a concurrent
// submission cannot make the aggregates disagree with each other.
func ResponseStats(ctx context.Context, db *gorm.DB, formID string, now time.Time) (FormStats, error) {
	var stats FormStats
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&domain.Response{}).Where("form_id = ?", formID)

		if err := q.Count(&stats.TotalResponses).Error; err != nil {
			return err
		}

		// Latest submission, returned whole so callers can surface who
		// answered what, not just when.
		var latest domain.Response
		err := tx.
			Where("form_id = ?", formID).
			Order("submitted_at DESC").
			Limit(1).
			Take(&latest).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			stats.LastResponse = nil
		case err != nil:
			return err
		default:
			stats.LastResponse = &latest
		}

		weekAgo := now.Add(-7 * 24 * time.Hour)
		return tx.Model(&domain.Response{}).
			Where("form_id = ? AND submitted_at >= ?", formID, weekAgo).
			Count(&stats.WeeklyData).Error
	})
	return stats, err
}
