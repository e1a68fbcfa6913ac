// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the minimal user lookups the core
// needs: plan tiers for feature gating. Account registration and payment
// flows live outside this service.
package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/formforge/go-forms-backend/internal/domain"
)

// GetUserPlan returns the plan tier for userID. Accounts without a stored
// row are treated as free tier rather than an error; the gate they feed is
// deny-by-default anyway.
func GetUserPlan(ctx context.Context, db *gorm.DB, userID string) (string, error) {
	var u domain.User
	err := db.WithContext(ctx).First(&u, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.PlanFree, nil
	}
	if err != nil {
		return "", err
	}
	if u.Plan == "" {
		return domain.PlanFree, nil
	}
	return u.Plan, nil
}

// UpsertUser creates or updates the user row with the given plan. Called by
// the (external) payment collaborator when a tier changes; tests use it to
// arrange gating scenarios.
func UpsertUser(ctx context.Context, db *gorm.DB, userID, plan string) error {
	u := domain.User{ID: userID, Plan: plan}
	return db.WithContext(ctx).Save(&u).Error
}
