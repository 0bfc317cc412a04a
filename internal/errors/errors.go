// Package errors provides structured error types for the eventstar pipeline.
// All errors include a category, code, message, and retryable flag so callers
// can tell row-level data failures from sink and source failures.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryValidation ErrorCategory = "VALIDATION"
	ErrCategorySource     ErrorCategory = "SOURCE"
	ErrCategorySnapshot   ErrorCategory = "SNAPSHOT"
	ErrCategoryStorage    ErrorCategory = "STORAGE"
	ErrCategorySink       ErrorCategory = "SINK"
	ErrCategoryInternal   ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeUnresolvableCountryCode = "UNRESOLVABLE_COUNTRY_CODE"
	CodeMalformedTimestamp      = "MALFORMED_TIMESTAMP"
	CodeInvalidStage            = "INVALID_STAGE"

	// Source codes
	CodeFetchFailed     = "FETCH_FAILED"
	CodeInvalidResponse = "INVALID_RESPONSE"

	// Snapshot codes
	CodeCorruptSnapshot = "CORRUPT_SNAPSHOT"
	CodeSchemaMismatch  = "SCHEMA_MISMATCH"

	// Storage codes
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeDeleteFailed   = "DELETE_FAILED"
	CodeListFailed     = "LIST_FAILED"

	// Sink codes
	CodeTransactionFailed = "TRANSACTION_FAILED"
	CodeSchemaInitFailed  = "SCHEMA_INIT_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the system.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable reports which failures are worth retrying. Only transport
// failures are; data and sink failures repeat identically.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategorySource && code == CodeFetchFailed:
		return true
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	default:
		return false
	}
}

// Convenience constructors for common errors.

func NewValidationError(code, message string) *PipelineError {
	return New(ErrCategoryValidation, code, message)
}

// UnresolvableCountry reports a country identifier with no canonical mapping.
func UnresolvableCountry(row int, code string) *PipelineError {
	return New(ErrCategoryValidation, CodeUnresolvableCountryCode,
		fmt.Sprintf("row %d: unresolvable country code %q", row, code)).
		WithDetails(map[string]interface{}{"row": row, "country_code": code})
}

// MalformedTimestamp reports an event time that could not be parsed.
func MalformedTimestamp(row int, value string, cause error) *PipelineError {
	return Wrap(ErrCategoryValidation, CodeMalformedTimestamp,
		fmt.Sprintf("row %d: malformed timestamp %q", row, value), cause).
		WithDetails(map[string]interface{}{"row": row, "time": value})
}

func NewSourceError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewSnapshotError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySnapshot, code, message, cause)
}

func NewStorageError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryStorage, code, message, cause)
}

func NewSinkError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySink, code, message, cause)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
