// Package services holds the business rules for children, their timeline,
// the message room, notifications, appointments, milestones, insights and
// the permission matrix. This file centralizes the service-level error
// values so handlers can map them to HTTP results consistently.
//
// Translation into user-facing messages or HTTP status codes is performed at
// the handler layer.
package services

import (
	"errors"
	"fmt"
)

var (
	// ErrChildNotFound indicates that the child does not exist.
	ErrChildNotFound = errors.New("child not found")

	// ErrForbidden is returned when the caller is not on the child's care
	// team or lacks the role required for the operation.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidInput is the root of every ValidationError.
	ErrInvalidInput = errors.New("invalid input")

	// ErrProfileNotFound indicates that no profile exists for the user.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrRoleAlreadySet is returned when onboarding is attempted twice.
	ErrRoleAlreadySet = errors.New("role already set")

	// ErrLogNotFound indicates that the log entry does not exist.
	ErrLogNotFound = errors.New("log not found")

	// ErrMessageNotFound indicates that the message does not exist.
	ErrMessageNotFound = errors.New("message not found")

	// ErrNotificationNotFound indicates that the notification does not exist
	// or belongs to someone else.
	ErrNotificationNotFound = errors.New("notification not found")

	// ErrAlreadyRead is returned when marking a notification that is
	// already read. The read flag never goes back to false.
	ErrAlreadyRead = errors.New("notification already read")

	// ErrAppointmentNotFound indicates that the appointment does not exist
	// or the caller is not a participant.
	ErrAppointmentNotFound = errors.New("appointment not found")

	// ErrMilestoneNotFound indicates an unknown catalog entry.
	ErrMilestoneNotFound = errors.New("milestone not found")

	// ErrAIUnavailable is returned by operations that have no local
	// fallback (translation, PDF digests).
	ErrAIUnavailable = errors.New("ai unavailable")

	// ErrTooLarge is returned for uploads above the configured limit.
	ErrTooLarge = errors.New("upload too large")
)

// ValidationError names the offending field. It matches ErrInvalidInput
// with errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// Is reports whether target is ErrInvalidInput.
func (e *ValidationError) Is(target error) bool { return target == ErrInvalidInput }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}
