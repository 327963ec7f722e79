package types

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeStoreUnavailable,
		Message: "upsert failed",
	}

	expected := "store_unavailable: upsert failed"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorErrorFormat_WithCause(t *testing.T) {
	appErr := NewAppError(ErrCodeProviderUnreachable, "request failed", errors.New("dial tcp: refused"))

	expected := "provider_unreachable: request failed: dial tcp: refused"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorErrorsAs(t *testing.T) {
	wrapped := fmt.Errorf("tick failed: %w", NewAppError(ErrCodeProviderRateLimited, "429", nil))

	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As failed to extract *AppError")
	}
	if target.Code != ErrCodeProviderRateLimited {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeProviderRateLimited)
	}
}

func TestAppErrorWithDetails_DoesNotMutate(t *testing.T) {
	original := NewAppErrorWithDetails(ErrCodeProviderRateLimited, "429", nil, map[string]any{"a": 1})
	copied := original.WithDetails(map[string]any{"retry_after": "30s"})

	if _, ok := original.Details["retry_after"]; ok {
		t.Error("WithDetails mutated the original error")
	}
	if copied.Details["a"] != 1 || copied.Details["retry_after"] != "30s" {
		t.Errorf("unexpected merged details: %v", copied.Details)
	}
}

func TestErrorCodeRetryable(t *testing.T) {
	cases := map[ErrorCode]bool{
		ErrCodeProviderUnreachable: true,
		ErrCodeProviderRateLimited: true,
		ErrCodeProviderAuthFailed:  false,
		ErrCodeProviderMalformed:   false,
		ErrCodeValidationRejected:  false,
		ErrCodeStoreUnavailable:    false,
	}
	for code, want := range cases {
		if got := code.Retryable(); got != want {
			t.Errorf("%s.Retryable() = %v, want %v", code, got, want)
		}
	}
}

func TestCodeOf(t *testing.T) {
	exhausted := &ExhaustedError{
		Location: "montreal",
		Failures: []ProviderFailure{
			{Provider: ProviderOpenMeteo, Code: ErrCodeProviderUnreachable, Attempts: 3, Err: NewAppError(ErrCodeProviderUnreachable, "down", nil)},
		},
	}

	tests := []struct {
		name string
		err  error
		want ErrorCode
	}{
		{"nil", nil, ""},
		{"app error", NewAppError(ErrCodeStoreUnavailable, "x", nil), ErrCodeStoreUnavailable},
		{"wrapped validation", fmt.Errorf("normalize: %w", &ValidationError{Field: "humidity_pct", Value: 101}), ErrCodeValidationRejected},
		{"exhausted wins over inner provider code", fmt.Errorf("tick: %w", exhausted), ErrCodeCollectionExhausted},
		{"plain error", errors.New("boom"), ErrCodeInternalUnexpected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExhaustedError_MessageAndUnwrap(t *testing.T) {
	authErr := NewAppError(ErrCodeProviderAuthFailed, "401", nil)
	downErr := NewAppError(ErrCodeProviderUnreachable, "503", nil)
	err := &ExhaustedError{
		Location: "montreal",
		Failures: []ProviderFailure{
			{Provider: ProviderOpenWeatherMap, Code: ErrCodeProviderAuthFailed, Attempts: 1, Err: authErr},
			{Provider: ProviderAeris, Code: ErrCodeProviderUnreachable, Attempts: 3, Err: downErr},
		},
	}

	msg := err.Error()
	if !strings.Contains(msg, "openweathermap: provider_auth_failed after 1 attempt(s)") {
		t.Errorf("message missing first failure: %s", msg)
	}
	if !strings.Contains(msg, "aeris: provider_unreachable after 3 attempt(s)") {
		t.Errorf("message missing second failure: %s", msg)
	}
	if !errors.Is(err, downErr) {
		t.Error("errors.Is should reach per-provider causes")
	}
}

func TestExhaustedError_NoProviders(t *testing.T) {
	err := &ExhaustedError{Location: "montreal"}
	if !strings.Contains(err.Error(), "no providers configured") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
