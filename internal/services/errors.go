// Package services defines the business logic for forms and responses.
// This file centralizes common service-level error values so that they can be
// consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer and
// translation into user-facing messages or HTTP status codes should be
// performed at the handler/controller layer.
package services

import (
	"errors"
	"fmt"
)

// Form-related errors.
var (
	// ErrFormNotFound indicates that the requested form does not exist.
	ErrFormNotFound = errors.New("form not found")

	// ErrForbidden is returned when the requester is not the owner of the
	// resource being read or mutated.
	ErrForbidden = errors.New("you do not have permission to perform this action")

	// ErrFormClosed is returned when a submission arrives for a form that is
	// not currently published.
	ErrFormClosed = errors.New("this form is currently not accepting responses")

	// ErrAnonymousNotAllowed is returned when an unauthenticated visitor
	// submits to a form whose owner requires identified responses.
	ErrAnonymousNotAllowed = errors.New("anonymous responses are not allowed for this form")

	// ErrPublicURLConflict is returned when a fresh public token could not be
	// assigned after several re-rolls. Callers may retry the publish.
	ErrPublicURLConflict = errors.New("could not allocate a unique public url")
)

// Response-related errors.
var (
	// ErrResponseNotFound indicates that the requested response does not
	// exist (or its form has been deleted from under it).
	ErrResponseNotFound = errors.New("response not found")

	// ErrPlanRequired is returned when response editing is requested but the
	// form owner's account is not on the paid tier. This is a gating failure
	// of the owner's plan, distinct from ErrEditingDisabled.
	ErrPlanRequired = errors.New("this feature requires a pro subscription from the form owner")

	// ErrEditingDisabled is returned when the form owner has not enabled
	// response editing, independent of any plan tier.
	ErrEditingDisabled = errors.New("editing has been disabled by the form creator")
)

// ValidationError reports a malformed form patch or submission: a missing
// label, a condition referencing an absent field key, a duplicate field key,
// and so on. The message names the offending field or condition so owners can
// fix the exact rule.
type ValidationError struct {
	Msg string
}

// Error implements the error interface.
func (e *ValidationError) Error() string { return e.Msg }

// validationf builds a *ValidationError from a format string.
func validationf(format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
