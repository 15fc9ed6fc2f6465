package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestNewError(t *testing.T) {
	t.Parallel()

	t.Run("creates error with all defaults", func(t *testing.T) {
		err := NewError(ErrCodeInvalidConfig, "configuration is invalid")
		if err == nil {
			t.Fatal("NewError returned nil")
		}
		if err.Code != ErrCodeInvalidConfig {
			t.Errorf("Code = %v, want %v", err.Code, ErrCodeInvalidConfig)
		}
		if err.Message != "configuration is invalid" {
			t.Errorf("Message = %q, want %q", err.Message, "configuration is invalid")
		}
		if err.Category != CategoryConfiguration {
			t.Errorf("Category = %v, want %v", err.Category, CategoryConfiguration)
		}
		if err.Details == nil {
			t.Error("Details map is nil")
		}
		if err.Context == nil {
			t.Error("Context map is nil")
		}
		if err.Timestamp.IsZero() {
			t.Error("Timestamp not set")
		}
	})

	t.Run("sets correct retryable defaults", func(t *testing.T) {
		retryableErr := NewError(ErrCodeConnectionTimeout, "connection timed out")
		if !retryableErr.Retryable {
			t.Error("ConnectionTimeout should be retryable by default")
		}

		nonRetryableErr := NewError(ErrCodeSerializationFailed, "cannot serialize value")
		if nonRetryableErr.Retryable {
			t.Error("SerializationFailed should not be retryable by default")
		}

		latchedErr := NewError(ErrCodeEngineLatched, "handle latched")
		if latchedErr.Retryable {
			t.Error("EngineLatched should not be retryable by default")
		}
	})
}

func TestGetCategory(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code     ErrorCode
		expected ErrorCategory
	}{
		{ErrCodeInvalidConfig, CategoryConfiguration},
		{ErrCodeConfigLoad, CategoryConfiguration},
		{ErrCodeSerializationFailed, CategorySerialization},
		{ErrCodeDeserializationFailed, CategorySerialization},
		{ErrCodeConnectionFailed, CategoryConnection},
		{ErrCodeNetworkError, CategoryConnection},
		{ErrCodeBackingStore, CategoryStorage},
		{ErrCodeStorageWrite, CategoryStorage},
		{ErrCodeQuotaExceeded, CategoryStorage},
		{ErrCodeKeyNotFound, CategoryKeyspace},
		{ErrCodeUnknownDriver, CategoryDriver},
		{ErrCodeDriverUnavailable, CategoryDriver},
		{ErrCodeEngineLatched, CategoryState},
		{ErrCodeNotInitialized, CategoryState},
		{ErrCodeOperationCanceled, CategoryOperation},
		{ErrCodeRetryExhausted, CategoryOperation},
		{ErrCodeInternalError, CategoryInternal},
		{ErrCodeUnknownError, CategoryInternal},
		{ErrorCode("SOMETHING_ELSE"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			result := GetCategory(tt.code)
			if result != tt.expected {
				t.Errorf("GetCategory(%v) = %v, want %v", tt.code, result, tt.expected)
			}
		})
	}
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	t.Run("with component and operation", func(t *testing.T) {
		err := NewError(ErrCodeStorageWrite, "put failed").
			WithComponent("s3").
			WithOperation("Set")
		want := "[s3:Set] STORAGE_WRITE: put failed"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("with component only", func(t *testing.T) {
		err := NewError(ErrCodeStorageWrite, "put failed").WithComponent("s3")
		want := "[s3] STORAGE_WRITE: put failed"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("bare", func(t *testing.T) {
		err := NewError(ErrCodeStorageWrite, "put failed")
		want := "STORAGE_WRITE: put failed"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("String includes key and cause", func(t *testing.T) {
		err := NewError(ErrCodeStorageRead, "read failed").
			WithKey("user-7").
			WithCause(errors.New("disk gone"))
		s := err.String()
		if !strings.Contains(s, `Key="user-7"`) {
			t.Errorf("String() missing key: %s", s)
		}
		if !strings.Contains(s, `Cause="disk gone"`) {
			t.Errorf("String() missing cause: %s", s)
		}
	})
}

func TestErrorWrapping(t *testing.T) {
	t.Parallel()

	cause := errors.New("underlying failure")
	err := NewError(ErrCodeBackingStore, "store call failed").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	var dcErr *DriftCacheError
	if !errors.As(wrapped, &dcErr) {
		t.Fatal("errors.As should find the DriftCacheError through a wrapper")
	}
	if dcErr.Code != ErrCodeBackingStore {
		t.Errorf("Code = %v, want %v", dcErr.Code, ErrCodeBackingStore)
	}

	other := NewError(ErrCodeBackingStore, "different message")
	if !errors.Is(err, other) {
		t.Error("errors with the same code should match via errors.Is")
	}
}

func TestPredicates(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		pred func(error) bool
		want bool
	}{
		{"latched matches", NewError(ErrCodeEngineLatched, "latched"), IsLatched, true},
		{"latched through wrap", fmt.Errorf("op: %w", NewError(ErrCodeEngineLatched, "latched")), IsLatched, true},
		{"latched mismatch", NewError(ErrCodeStorageRead, "read"), IsLatched, false},
		{"key not found matches", NewError(ErrCodeKeyNotFound, "index 9 out of range"), IsKeyNotFound, true},
		{"serialization matches", NewError(ErrCodeSerializationFailed, "bad value"), IsSerialization, true},
		{"deserialization matches", NewError(ErrCodeDeserializationFailed, "bad payload"), IsDeserialization, true},
		{"backing store matches storage", NewError(ErrCodeBackingStore, "boom"), IsBackingStore, true},
		{"backing store matches connection", NewError(ErrCodeConnectionFailed, "refused"), IsBackingStore, true},
		{"backing store mismatch", NewError(ErrCodeKeyNotFound, "index"), IsBackingStore, false},
		{"plain error matches nothing", errors.New("plain"), IsLatched, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.pred(tt.err); got != tt.want {
				t.Errorf("predicate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCodeOf(t *testing.T) {
	t.Parallel()

	if got := CodeOf(errors.New("plain")); got != ErrCodeUnknownError {
		t.Errorf("CodeOf(plain) = %v, want %v", got, ErrCodeUnknownError)
	}
	if got := CodeOf(nil); got != ErrCodeUnknownError {
		t.Errorf("CodeOf(nil) = %v, want %v", got, ErrCodeUnknownError)
	}
	err := NewError(ErrCodeQuotaUnsupported, "no quota here")
	if got := CodeOf(fmt.Errorf("wrapped: %w", err)); got != ErrCodeQuotaUnsupported {
		t.Errorf("CodeOf(wrapped) = %v, want %v", got, ErrCodeQuotaUnsupported)
	}
}

func TestJSONSerialization(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeStorageWrite, "put failed").
		WithComponent("rclone").
		WithDetail("path", "driftcache/app/kv/file").
		WithCause(errors.New("hidden cause"))

	var decoded map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(err.JSON()), &decoded); jsonErr != nil {
		t.Fatalf("JSON() produced invalid JSON: %v", jsonErr)
	}

	if decoded["code"] != "STORAGE_WRITE" {
		t.Errorf("code = %v, want STORAGE_WRITE", decoded["code"])
	}
	if decoded["component"] != "rclone" {
		t.Errorf("component = %v, want rclone", decoded["component"])
	}
	if _, hasCause := decoded["Cause"]; hasCause {
		t.Error("cause should not be serialized")
	}
}

func TestWithStack(t *testing.T) {
	t.Parallel()

	err := NewError(ErrCodeInternalError, "boom").WithStack()
	if err.Stack == "" {
		t.Fatal("WithStack should capture a stack trace")
	}
	// Should not include errors.go itself
	if strings.Contains(err.Stack, "errors.go") {
		t.Error("Stack trace should not include errors.go frames")
	}
}

func TestGetRecommendation(t *testing.T) {
	t.Parallel()

	latched := NewError(ErrCodeEngineLatched, "latched")
	if rec := latched.GetRecommendation(); !strings.Contains(rec, "fresh handle") {
		t.Errorf("latched recommendation should mention reopening, got %q", rec)
	}

	unknown := NewError(ErrorCode("WEIRD"), "odd")
	if rec := unknown.GetRecommendation(); rec == "" {
		t.Error("unknown codes should still produce a generic recommendation")
	}
}
