package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error independently of where it was produced. Services
// surface their own kind upward; only the HTTP front end translates kinds
// into statuses and envelope codes.
type Kind string

const (
	KindInvalidInput     Kind = "INVALID_INPUT"
	KindValidation       Kind = "VALIDATION"
	KindAuthFailure      Kind = "AUTH_FAILURE"
	KindForbidden        Kind = "FORBIDDEN"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindPayloadTooLarge  Kind = "PAYLOAD_TOO_LARGE"
	KindUnsupportedMedia Kind = "UNSUPPORTED_MEDIA"
	KindStorage          Kind = "STORAGE"
	KindInternal         Kind = "INTERNAL"
)

// AppError is the error type every service returns.
type AppError struct {
	Kind    Kind           `json:"kind"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Cause   error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// WithDetails attaches structured details for the response envelope.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	e.Details = details
	return e
}

// WithCause wraps an underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Cause = err
	return e
}

// HTTPStatus maps the kind to the wire status.
func (e *AppError) HTTPStatus() int {
	switch e.Kind {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindAuthFailure:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindPayloadTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindUnsupportedMedia:
		return http.StatusUnsupportedMediaType
	default:
		return http.StatusInternalServerError
	}
}

// Code is the envelope error code for the kind.
func (e *AppError) Code() string {
	switch e.Kind {
	case KindInvalidInput:
		return "BAD_REQUEST"
	case KindValidation:
		return "VALIDATION_ERROR"
	case KindAuthFailure:
		return "UNAUTHORIZED"
	case KindForbidden:
		return "FORBIDDEN"
	case KindNotFound:
		return "NOT_FOUND"
	case KindConflict:
		return "CONFLICT"
	case KindPayloadTooLarge:
		return "CONTENT_TOO_LARGE"
	case KindUnsupportedMedia:
		return "UNSUPPORTED_MEDIA_TYPE"
	case KindStorage:
		return "DATABASE_ERROR"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// Constructor helpers.

func NewInvalidInput(message string) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: message}
}

func NewInvalidInputf(format string, args ...any) *AppError {
	return &AppError{Kind: KindInvalidInput, Message: fmt.Sprintf(format, args...)}
}

func NewValidation(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

func NewAuthFailure(message string) *AppError {
	if message == "" {
		message = "unauthorized"
	}
	return &AppError{Kind: KindAuthFailure, Message: message}
}

func NewForbidden(message string) *AppError {
	if message == "" {
		message = "forbidden"
	}
	return &AppError{Kind: KindForbidden, Message: message}
}

func NewNotFound(resource string) *AppError {
	return &AppError{Kind: KindNotFound, Message: fmt.Sprintf("%s not found", resource)}
}

func NewConflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Message: message}
}

func NewPayloadTooLarge(message string) *AppError {
	return &AppError{Kind: KindPayloadTooLarge, Message: message}
}

func NewUnsupportedMedia(message string) *AppError {
	return &AppError{Kind: KindUnsupportedMedia, Message: message}
}

func NewStorage(operation string, err error) *AppError {
	return &AppError{
		Kind:    KindStorage,
		Message: fmt.Sprintf("database operation '%s' failed", operation),
		Cause:   err,
	}
}

func NewInternal(message string) *AppError {
	return &AppError{Kind: KindInternal, Message: message}
}

// GetAppError extracts an AppError from an error chain, or nil.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return nil
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	appErr := GetAppError(err)
	return appErr != nil && appErr.Kind == kind
}

func IsNotFound(err error) bool    { return IsKind(err, KindNotFound) }
func IsConflict(err error) bool    { return IsKind(err, KindConflict) }
func IsAuthFailure(err error) bool { return IsKind(err, KindAuthFailure) }
func IsForbidden(err error) bool   { return IsKind(err, KindForbidden) }
func IsInvalid(err error) bool {
	return IsKind(err, KindInvalidInput) || IsKind(err, KindValidation)
}

// Wrap adds context to an error, preserving its kind when it already is an
// AppError and classifying it as internal otherwise.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	if appErr := GetAppError(err); appErr != nil {
		appErr.Message = fmt.Sprintf("%s: %s", message, appErr.Message)
		return appErr
	}
	return NewInternal(message).WithCause(err)
}
