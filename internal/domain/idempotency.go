// Package domain defines the persistence models for forms, fields,
// conditional rules, and responses. This file holds the idempotency record
// used to deduplicate public form submissions.
package domain

import "time"

// Idempotency records a previously processed submission, keyed by
// (subject, form_id, key) where subject is the authenticated user id or the
// client IP for anonymous respondents. It lets retried POSTs return the
// originally persisted response instead of creating a duplicate row.
type Idempotency struct {
	ID         string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	Subject    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_form_key,priority:1"`
	FormID     string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_form_key,priority:2"`
	Key        string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_subject_form_key,priority:3"`
	ResponseID string    `gorm:"type:TEXT NOT NULL"`
	Status     int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt  time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt  time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
