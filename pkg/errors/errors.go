package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed domain error with HTTP awareness.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Err     error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for common scenarios.
var (
	ErrInvalidCredentials = New("INVALID_CREDENTIALS", http.StatusUnauthorized, "invalid email or password")
	ErrInactiveAccount    = New("ACCOUNT_INACTIVE", http.StatusForbidden, "account is inactive")
	ErrNotApproved        = New("ACCOUNT_NOT_APPROVED", http.StatusForbidden, "account has not been approved")
	ErrNotFound           = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrForbidden          = New("FORBIDDEN", http.StatusForbidden, "forbidden")
	ErrUnauthorized       = New("UNAUTHORIZED", http.StatusUnauthorized, "unauthorized")
	ErrConflict           = New("CONFLICT", http.StatusConflict, "conflict")
	ErrValidation         = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrInternal           = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss          = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// Slot and enrollment domain errors.
var (
	ErrSlotDailyLimit      = New("SLOT_DAILY_LIMIT", http.StatusBadRequest, "no more than 2 slots per department per day")
	ErrSlotPeriodTaken     = New("SLOT_PERIOD_TAKEN", http.StatusBadRequest, "a slot for this department already exists in this time period")
	ErrGenderNotAllowed    = New("GENDER_NOT_ALLOWED", http.StatusBadRequest, "student gender is not allowed in this slot")
	ErrSlotLocked          = New("SLOT_LOCKED", http.StatusForbidden, "slot is locked or confirmed")
	ErrAlreadyEnrolled     = New("ALREADY_ENROLLED", http.StatusBadRequest, "student is already enrolled in this slot")
	ErrNoCapacity          = New("NO_CAPACITY", http.StatusBadRequest, "no spots available in this slot")
	ErrSchoolCapacity      = New("SCHOOL_CAPACITY", http.StatusBadRequest, "school capacity limit reached for this slot")
	ErrNotEnrollmentOwner  = New("NOT_ENROLLMENT_OWNER", http.StatusForbidden, "not authorized to manage this enrollment")
	ErrSchoolMismatch      = New("SCHOOL_MISMATCH", http.StatusForbidden, "non-admin users can only enroll students from their own school")
	ErrNoConfirmedStudents = New("NO_CONFIRMED_STUDENTS", http.StatusNotFound, "no confirmed enrollments for this slot")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// Is reports whether err carries the same error code as target.
func Is(err error, target *Error) bool {
	if err == nil || target == nil {
		return false
	}
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Code == target.Code
}
