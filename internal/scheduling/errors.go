// Package scheduling holds the pieces shared by the availability and reservation engines:
// the error taxonomy, half-open intervals and the practice time zone.
package scheduling

import "errors"

// ErrorKind classifies domain failures for callers that translate them (HTTP, metrics).
type ErrorKind string

const (
	KindValidation    ErrorKind = "validation"
	KindConflict      ErrorKind = "conflict"
	KindNotFound      ErrorKind = "not_found"
	KindAuthorization ErrorKind = "authorization"
	KindInternal      ErrorKind = "internal"
)

// ValidationError reports malformed input or a request that breaks a booking rule.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// ConflictError reports a request that collides with existing schedule state.
type ConflictError struct{ Msg string }

func (e *ConflictError) Error() string { return e.Msg }

// NotFoundError covers both a missing record and a record that is not in the
// state the action expects (e.g. confirming an already declined reservation).
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

// AuthorizationError reports a principal without the role or profile the action needs.
type AuthorizationError struct{ Msg string }

func (e *AuthorizationError) Error() string { return e.Msg }

func Validation(msg string) error { return &ValidationError{Msg: msg} }
func Conflict(msg string) error { return &ConflictError{Msg: msg} }
func NotFound(msg string) error { return &NotFoundError{Msg: msg} }
func Unauthorized(msg string) error { return &AuthorizationError{Msg: msg} }

var (
	ErrInvalidDate          = Validation("invalid date")
	ErrInvalidRange         = Validation("start time must be before end time")
	ErrDurationMismatch     = Validation("the duration of slot doesn't match the type of visit")
	ErrOutsideAvailability  = Validation("the reservation must be within an available time slot for the doctor")
	ErrNotFirstVisit        = Validation("this reservation cannot be a first visit")
	ErrUnknownVisitType     = Validation("unknown visit type")
	ErrAvailabilityOverlap  = Conflict("time slot overlaps with an existing availability")
	ErrSlotTaken            = Conflict("this slot has already been booked")
	ErrConfirmConflict      = Conflict("impossible to confirm that reservation, another confirmed reservation already exists")
	ErrAvailabilityNotFound = NotFound("availability doesn't exist")
	ErrReservationNotFound  = NotFound("reservation doesn't exist")
	ErrDoctorNotFound       = NotFound("doctor not found")
	ErrNotDoctor            = Unauthorized("you are not a doctor")
	ErrNotPatient           = Unauthorized("you are not a patient")
)

// Kind returns the classification of err, KindInternal when it is not a domain error.
func Kind(err error) ErrorKind {
	var (
		ve *ValidationError
		ce *ConflictError
		ne *NotFoundError
		ae *AuthorizationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ce):
		return KindConflict
	case errors.As(err, &ne):
		return KindNotFound
	case errors.As(err, &ae):
		return KindAuthorization
	default:
		return KindInternal
	}
}

// Outcome is the metric label for err: "ok" on success, otherwise its kind.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(Kind(err))
}
