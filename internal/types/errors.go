package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode is a typed string for categorizing application errors.
type ErrorCode string

// Error code constants. Components MUST use these instead of hardcoded strings.
const (
	// Provider errors. Only unreachable and rate_limited are retried.
	ErrCodeProviderUnreachable ErrorCode = "provider_unreachable"
	ErrCodeProviderRateLimited ErrorCode = "provider_rate_limited"
	ErrCodeProviderAuthFailed  ErrorCode = "provider_auth_failed"
	ErrCodeProviderMalformed   ErrorCode = "provider_malformed"
	ErrCodeProviderUnsupported ErrorCode = "provider_unsupported"

	// Pipeline
	ErrCodeValidationRejected  ErrorCode = "validation_rejected"
	ErrCodeCollectionExhausted ErrorCode = "collection_exhausted"
	ErrCodeScheduleExhausted   ErrorCode = "schedule_exhausted"

	// Storage
	ErrCodeStoreUnavailable ErrorCode = "store_unavailable"
	ErrCodeStoreNotFound    ErrorCode = "store_not_found"
	ErrCodeStoreInvalidArg  ErrorCode = "store_invalid_argument"

	// Infrastructure
	ErrCodeNotifyFailed       ErrorCode = "notify_failed"
	ErrCodeArchiveFailed      ErrorCode = "archive_failed"
	ErrCodeInternalUnexpected ErrorCode = "internal_unexpected_error"
)

// Retryable reports whether an operation failing with this code may succeed
// if attempted again against the same provider.
func (c ErrorCode) Retryable() bool {
	return c == ErrCodeProviderUnreachable || c == ErrCodeProviderRateLimited
}

// IsProvider reports whether the code belongs to the provider family.
func (c ErrorCode) IsProvider() bool {
	return strings.HasPrefix(string(c), "provider_")
}

// AppError is the standard error type used throughout the pipeline.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates an AppError carrying structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// ErrScheduleExhausted is returned by a calendar schedule with no instants left.
var ErrScheduleExhausted = NewAppError(ErrCodeScheduleExhausted, "calendar schedule has no remaining instants", nil)

// ValidationError rejects a whole sample because one field is out of range.
type ValidationError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: field %s=%v %s", ErrCodeValidationRejected, e.Field, e.Value, e.Reason)
}

// ProviderFailure is the terminal failure of one provider within a resolution.
type ProviderFailure struct {
	Provider ProviderID
	Code     ErrorCode
	Attempts int
	Err      error
}

// ExhaustedError is returned when every provider failed for one resolution.
type ExhaustedError struct {
	Location string
	Failures []ProviderFailure
}

func (e *ExhaustedError) Error() string {
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s after %d attempt(s)", f.Provider, f.Code, f.Attempts))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s: no providers configured for %s", ErrCodeCollectionExhausted, e.Location)
	}
	return fmt.Sprintf("%s: %s", ErrCodeCollectionExhausted, strings.Join(parts, "; "))
}

// Unwrap exposes the per-provider causes.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errs
}

// CodeOf extracts the most specific ErrorCode from an error chain.
// Errors outside the taxonomy report ErrCodeInternalUnexpected.
func CodeOf(err error) ErrorCode {
	if err == nil {
		return ""
	}
	var exhausted *ExhaustedError
	if errors.As(err, &exhausted) {
		return ErrCodeCollectionExhausted
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return ErrCodeValidationRejected
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalUnexpected
}
