package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestPipelineError_Error(t *testing.T) {
	err := New(ErrCategorySink, CodeTransactionFailed, "commit failed")
	expected := "[SINK:TRANSACTION_FAILED] commit failed"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPipelineError_ErrorWithCause(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := Wrap(ErrCategorySource, CodeFetchFailed, "fetch failed", cause)
	expected := "[SOURCE:FETCH_FAILED] fetch failed: connection refused"
	if err.Error() != expected {
		t.Errorf("got %q, want %q", err.Error(), expected)
	}
}

func TestPipelineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(ErrCategorySnapshot, CodeCorruptSnapshot, "crc mismatch", cause)
	if !errors.Is(err, cause) {
		t.Error("Unwrap should allow errors.Is to find the cause")
	}
}

func TestPipelineError_Is(t *testing.T) {
	err1 := UnresolvableCountry(1, "XX")
	err2 := New(ErrCategoryValidation, CodeUnresolvableCountryCode, "second")
	err3 := New(ErrCategoryValidation, CodeMalformedTimestamp, "different code")

	if !errors.Is(err1, err2) {
		t.Error("errors with same category+code should match via Is")
	}
	if errors.Is(err1, err3) {
		t.Error("errors with different codes should not match via Is")
	}

	wrapped := fmt.Errorf("cleaner: %w", err1)
	if !errors.Is(wrapped, err2) {
		t.Error("Is should see through fmt.Errorf wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		category  ErrorCategory
		code      string
		retryable bool
	}{
		{ErrCategorySource, CodeFetchFailed, true},
		{ErrCategorySource, CodeInvalidResponse, false},
		{ErrCategoryStorage, CodeUploadFailed, true},
		{ErrCategoryStorage, CodeDownloadFailed, true},
		{ErrCategoryStorage, CodeObjectNotFound, false},
		{ErrCategorySink, CodeTransactionFailed, false},
		{ErrCategorySnapshot, CodeCorruptSnapshot, false},
		{ErrCategoryValidation, CodeUnresolvableCountryCode, false},
		{ErrCategoryValidation, CodeMalformedTimestamp, false},
		{ErrCategoryInternal, CodeUnexpected, false},
	}

	for _, tt := range tests {
		err := New(tt.category, tt.code, "test")
		if IsRetryable(err) != tt.retryable {
			t.Errorf("%s:%s retryable=%v, want %v", tt.category, tt.code, IsRetryable(err), tt.retryable)
		}
	}
}

func TestGetCategory(t *testing.T) {
	err := NewSinkError(CodeSchemaInitFailed, "ddl", nil)
	if GetCategory(err) != ErrCategorySink {
		t.Errorf("got %q, want %q", GetCategory(err), ErrCategorySink)
	}
	if GetCategory(fmt.Errorf("plain error")) != "" {
		t.Error("non-PipelineError should return empty category")
	}
}

func TestGetCode(t *testing.T) {
	err := MalformedTimestamp(3, "yesterday", fmt.Errorf("parse"))
	if GetCode(err) != CodeMalformedTimestamp {
		t.Errorf("got %q, want %q", GetCode(err), CodeMalformedTimestamp)
	}
	if GetCode(fmt.Errorf("plain error")) != "" {
		t.Error("non-PipelineError should return empty code")
	}
}

func TestWithDetails(t *testing.T) {
	err := New(ErrCategoryValidation, CodeInvalidStage, "bad stage")
	detailed := err.WithDetails(map[string]interface{}{"stage": "cooked"})

	if detailed.Details["stage"] != "cooked" {
		t.Error("WithDetails should set details")
	}
	// Original should be unmodified
	if err.Details != nil {
		t.Error("WithDetails should not modify original")
	}
}

func TestRowErrorDetails(t *testing.T) {
	err := UnresolvableCountry(7, "ZZ")
	if err.Details["row"] != 7 || err.Details["country_code"] != "ZZ" {
		t.Errorf("unexpected details: %v", err.Details)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	cause := fmt.Errorf("io error")

	v := NewValidationError(CodeInvalidStage, "no such stage")
	if v.Category != ErrCategoryValidation || v.Code != CodeInvalidStage {
		t.Error("NewValidationError mismatch")
	}

	s := NewStorageError(CodeUploadFailed, "s3 down", cause)
	if s.Category != ErrCategoryStorage || !errors.Is(s, cause) {
		t.Error("NewStorageError mismatch")
	}

	src := NewSourceError(CodeFetchFailed, "503", cause)
	if src.Category != ErrCategorySource || !src.Retryable {
		t.Error("NewSourceError mismatch")
	}

	snap := NewSnapshotError(CodeSchemaMismatch, "wrong stage", nil)
	if snap.Category != ErrCategorySnapshot {
		t.Error("NewSnapshotError mismatch")
	}

	i := NewInternalError("unexpected", cause)
	if i.Category != ErrCategoryInternal || i.Code != CodeUnexpected {
		t.Error("NewInternalError mismatch")
	}
}
