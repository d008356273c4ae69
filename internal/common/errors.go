package common

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrModel        = errors.New("model unavailable")
)

// Analysis error kinds.
var (
	// ErrExtractionUnavailable: upstream text extraction produced no text.
	ErrExtractionUnavailable = errors.New("text extraction unavailable")
	// ErrFieldAbsent: a required field had no locatable or parseable value.
	ErrFieldAbsent = errors.New("field absent")
	// ErrIncompleteVector: one or more fields absent; the vector cannot be classified.
	ErrIncompleteVector = errors.New("incomplete feature vector")
)

// Error categories reported to callers.
const (
	CategoryExtractionUnavailable = "extraction_unavailable"
	CategoryIncompleteVector      = "incomplete_vector"
	CategoryInvalidInput          = "invalid_input"
	CategoryModelUnavailable      = "model_unavailable"
	CategoryInternal              = "internal"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// ExtractionUnavailable wraps an upstream failure so it matches ErrExtractionUnavailable.
func ExtractionUnavailable(path string, cause error) *AppError {
	if cause == nil {
		cause = ErrExtractionUnavailable
	} else if !errors.Is(cause, ErrExtractionUnavailable) {
		cause = fmt.Errorf("%w: %w", ErrExtractionUnavailable, cause)
	}
	return NewAppError("EXTRACTION_UNAVAILABLE", "no text extracted from "+path, cause)
}

// FieldAbsentError reports one required field without a usable value.
type FieldAbsentError struct {
	Field  string
	Reason string
}

func (e FieldAbsentError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("field %q absent", e.Field)
	}
	return fmt.Sprintf("field %q absent (%s)", e.Field, e.Reason)
}

func (e FieldAbsentError) Is(target error) bool { return target == ErrFieldAbsent }

// IncompleteVectorError aggregates every FieldAbsentError of one document.
type IncompleteVectorError struct {
	Absent []FieldAbsentError
}

func (e *IncompleteVectorError) Error() string {
	return fmt.Sprintf("%v: missing values for: [%s]", ErrIncompleteVector, strings.Join(e.Missing(), ", "))
}

func (e *IncompleteVectorError) Is(target error) bool { return target == ErrIncompleteVector }

// Unwrap exposes the per-field errors to errors.Is / errors.As.
func (e *IncompleteVectorError) Unwrap() []error {
	out := make([]error, len(e.Absent))
	for i, a := range e.Absent {
		out[i] = a
	}
	return out
}

// Missing returns the missing field names verbatim, in request order.
func (e *IncompleteVectorError) Missing() []string {
	out := make([]string, len(e.Absent))
	for i, a := range e.Absent {
		out[i] = a.Field
	}
	return out
}

// Category maps an error to the category string shown to operators.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIncompleteVector):
		return CategoryIncompleteVector
	case errors.Is(err, ErrExtractionUnavailable):
		return CategoryExtractionUnavailable
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return CategoryInvalidInput
	case errors.Is(err, ErrModel):
		return CategoryModelUnavailable
	default:
		return CategoryInternal
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func NotFoundError(message string) error {
	return status.Error(codes.NotFound, message)
}

func InternalError(message string) error {
	return status.Error(codes.Internal, message)
}

func UnavailableError(message string) error {
	return status.Error(codes.Unavailable, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}

func InternalErrorf(format string, args ...interface{}) error {
	return InternalError(fmt.Sprintf(format, args...))
}
