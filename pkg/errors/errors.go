// Package errors provides a structured error system for DriftCache with error codes, categories, and context.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for DriftCache operations.
type ErrorCode string

// Error code constants organized by category.
const (
	// Configuration Errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeMissingConfig    ErrorCode = "MISSING_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"

	// Serialization Errors
	ErrCodeSerializationFailed   ErrorCode = "SERIALIZATION_FAILED"
	ErrCodeDeserializationFailed ErrorCode = "DESERIALIZATION_FAILED"

	// Connection Errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeConnectionRefused ErrorCode = "CONNECTION_REFUSED"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage Backend Errors
	ErrCodeBackingStore     ErrorCode = "BACKING_STORE"
	ErrCodeStorageRead      ErrorCode = "STORAGE_READ"
	ErrCodeStorageWrite     ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageDelete    ErrorCode = "STORAGE_DELETE"
	ErrCodeStorageList      ErrorCode = "STORAGE_LIST"
	ErrCodeBucketNotFound   ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeAccessDenied     ErrorCode = "ACCESS_DENIED"
	ErrCodeQuotaExceeded    ErrorCode = "QUOTA_EXCEEDED"
	ErrCodeQuotaUnsupported ErrorCode = "QUOTA_UNSUPPORTED"

	// Keyspace Errors
	ErrCodeKeyNotFound ErrorCode = "KEY_NOT_FOUND"

	// Driver Registry Errors
	ErrCodeUnknownDriver     ErrorCode = "UNKNOWN_DRIVER"
	ErrCodeDriverUnavailable ErrorCode = "DRIVER_UNAVAILABLE"

	// State Management Errors
	ErrCodeEngineLatched    ErrorCode = "ENGINE_LATCHED"
	ErrCodeAlreadyStarted   ErrorCode = "ALREADY_STARTED"
	ErrCodeNotInitialized   ErrorCode = "NOT_INITIALIZED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeComponentStopped ErrorCode = "COMPONENT_STOPPED"

	// Operation Errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"

	// Internal System Errors
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrCodePanicRecovered ErrorCode = "PANIC_RECOVERED"
	ErrCodeUnknownError   ErrorCode = "UNKNOWN_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategorySerialization ErrorCategory = "serialization"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryKeyspace      ErrorCategory = "keyspace"
	CategoryDriver        ErrorCategory = "driver"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryInternal      ErrorCategory = "internal"
)

// DriftCacheError represents a structured error with context and metadata.
type DriftCacheError struct {
	// Core error information
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	// Contextual information
	Context   map[string]string `json:"context,omitempty"`
	Cause     error             `json:"-"` // Not serialized to avoid circular refs
	Timestamp time.Time         `json:"timestamp"`

	// Operational metadata
	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	Key       string `json:"key,omitempty"`

	// Error handling hints
	Retryable bool `json:"retryable"`

	// Debug information
	Stack string `json:"stack,omitempty"`
}

// Error implements the error interface.
func (e *DriftCacheError) Error() string {
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, e.Message)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *DriftCacheError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target error (for errors.Is compatibility).
func (e *DriftCacheError) Is(target error) bool {
	if dcErr, ok := target.(*DriftCacheError); ok {
		return e.Code == dcErr.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *DriftCacheError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}

	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}

	if e.Key != "" {
		parts = append(parts, fmt.Sprintf("Key=%q", e.Key))
	}

	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}

	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("DriftCacheError{%s}", strings.Join(parts, ", "))
}

// JSON returns the error as a JSON string.
func (e *DriftCacheError) JSON() string {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Sprintf(`{"error":"failed to marshal error: %s"}`, err.Error())
	}
	return string(data)
}

// NewError creates a new DriftCache error with default values.
func NewError(code ErrorCode, message string) *DriftCacheError {
	return &DriftCacheError{
		Code:      code,
		Category:  GetCategory(code),
		Message:   message,
		Timestamp: time.Now(),
		Details:   make(map[string]interface{}),
		Context:   make(map[string]string),
		Retryable: IsRetryableByDefault(code),
	}
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "MISSING_CONFIG") ||
		strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "SERIALIZATION_") || strings.HasPrefix(codeStr, "DESERIALIZATION_"):
		return CategorySerialization
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "BACKING_") || strings.HasPrefix(codeStr, "STORAGE_") ||
		strings.HasPrefix(codeStr, "BUCKET_") || strings.HasPrefix(codeStr, "ACCESS_") ||
		strings.HasPrefix(codeStr, "QUOTA_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "KEY_"):
		return CategoryKeyspace
	case strings.HasPrefix(codeStr, "UNKNOWN_DRIVER") || strings.HasPrefix(codeStr, "DRIVER_"):
		return CategoryDriver
	case strings.HasPrefix(codeStr, "ENGINE_") || strings.HasPrefix(codeStr, "ALREADY_") ||
		strings.HasPrefix(codeStr, "NOT_INITIALIZED") || strings.HasPrefix(codeStr, "INVALID_STATE") ||
		strings.HasPrefix(codeStr, "COMPONENT_"):
		return CategoryState
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "RETRY_") ||
		strings.HasPrefix(codeStr, "VALIDATION_"):
		return CategoryOperation
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	retryableCodes := map[ErrorCode]bool{
		ErrCodeConnectionTimeout: true,
		ErrCodeConnectionFailed:  true,
		ErrCodeConnectionRefused: true,
		ErrCodeNetworkError:      true,
		ErrCodeOperationTimeout:  true,
		ErrCodeInternalError:     true,
	}
	return retryableCodes[code]
}

// CaptureStack captures the current stack trace for debugging.
func CaptureStack(skip int) string {
	const depth = 10
	var pcs [depth]uintptr
	n := runtime.Callers(skip+2, pcs[:]) // +2 to skip this function and the caller
	frames := runtime.CallersFrames(pcs[:n])

	var stack []string
	for {
		frame, more := frames.Next()
		if !strings.Contains(frame.File, "errors.go") { // Skip frames from this file
			stack = append(stack, fmt.Sprintf("%s:%d %s", frame.File, frame.Line, frame.Function))
		}
		if !more {
			break
		}
	}
	return strings.Join(stack, "\n")
}

// WithContext adds contextual information to an error
func (e *DriftCacheError) WithContext(key, value string) *DriftCacheError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithDetail adds detailed information to an error
func (e *DriftCacheError) WithDetail(key string, value interface{}) *DriftCacheError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *DriftCacheError) WithComponent(component string) *DriftCacheError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *DriftCacheError) WithOperation(operation string) *DriftCacheError {
	e.Operation = operation
	return e
}

// WithKey records the cache key the operation was working on
func (e *DriftCacheError) WithKey(key string) *DriftCacheError {
	e.Key = key
	return e
}

// WithCause sets the underlying cause
func (e *DriftCacheError) WithCause(cause error) *DriftCacheError {
	e.Cause = cause
	return e
}

// WithStack captures the current stack trace
func (e *DriftCacheError) WithStack() *DriftCacheError {
	e.Stack = CaptureStack(2)
	return e
}

// GetRecommendation returns a user-friendly recommendation for fixing the error
func (e *DriftCacheError) GetRecommendation() string {
	recommendations := map[ErrorCode]string{
		ErrCodeConnectionTimeout: "Check your network connection and remote endpoint accessibility. " +
			"Consider increasing timeout values in configuration.",
		ErrCodeConnectionFailed: "Verify remote credentials and network connectivity. " +
			"Check if the storage endpoint is accessible from your location.",
		ErrCodeNetworkError: "Network connectivity issue detected. " +
			"Verify your internet connection and firewall settings.",
		ErrCodeBucketNotFound: "The configured bucket does not exist or is not accessible. " +
			"Verify the bucket name and your credentials.",
		ErrCodeAccessDenied: "Credentials lack necessary permissions for the remote store. " +
			"Check that your policy grants read, write, delete, and list access.",
		ErrCodeInvalidConfig: "Configuration validation failed. " +
			"Check your configuration file syntax and required parameters.",
		ErrCodeSerializationFailed: "The value could not be serialized. " +
			"Store JSON-representable values, byte slices, or supported numeric slices.",
		ErrCodeDeserializationFailed: "A stored value could not be decoded. " +
			"The backing file may be corrupt or written by an incompatible version.",
		ErrCodeEngineLatched: "A background store operation failed and the cache handle shut down. " +
			"Inspect the latch cause, fix the backing store, and open a fresh handle.",
		ErrCodeUnknownDriver: "No driver with that name is registered. " +
			"Import the driver package for its side effects, or check the driver name.",
		ErrCodeDriverUnavailable: "The driver is registered but cannot run with this configuration. " +
			"Check that its required paths, DSNs, or credentials are set.",
		ErrCodeQuotaExceeded: "The remote account is out of space. " +
			"Free storage on the remote side or raise its quota.",
		ErrCodeQuotaUnsupported: "This backend cannot report capacity usage. " +
			"Feature-test with a type assertion before requesting quota.",
		ErrCodeKeyNotFound: "The requested key index is past the end of the key list. " +
			"Check the current length before indexing into the keyspace.",
	}

	if rec, exists := recommendations[e.Code]; exists {
		return rec
	}

	return "Please check the error message for details and consult the documentation."
}

// Helper predicates for the error kinds callers branch on.

// CodeOf extracts the structured code from err, walking the unwrap chain.
// It returns ErrCodeUnknownError for plain errors.
func CodeOf(err error) ErrorCode {
	var dcErr *DriftCacheError
	if errors.As(err, &dcErr) {
		return dcErr.Code
	}
	return ErrCodeUnknownError
}

// IsLatched reports whether err means the cache handle has latched shut.
func IsLatched(err error) bool {
	return CodeOf(err) == ErrCodeEngineLatched
}

// IsKeyNotFound reports whether err came from indexing past the end of the
// key list.
func IsKeyNotFound(err error) bool {
	return CodeOf(err) == ErrCodeKeyNotFound
}

// IsSerialization reports whether err is a value serialization failure.
func IsSerialization(err error) bool {
	return CodeOf(err) == ErrCodeSerializationFailed
}

// IsDeserialization reports whether err is a stored-value decode failure.
func IsDeserialization(err error) bool {
	return CodeOf(err) == ErrCodeDeserializationFailed
}

// IsBackingStore reports whether err wraps a failure of an underlying
// store call.
func IsBackingStore(err error) bool {
	switch GetCategory(CodeOf(err)) {
	case CategoryStorage, CategoryConnection:
		return true
	}
	return false
}
