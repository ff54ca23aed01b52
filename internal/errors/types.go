package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRead       ErrorType = "read"
	ErrorTypeRender     ErrorType = "render"
	ErrorTypeWatch      ErrorType = "watch"
	ErrorTypeDelivery   ErrorType = "delivery"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeSecurity   ErrorType = "security"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// Common error codes.
const (
	ErrCodeReadFailed       = "ERR_READ_FAILED"
	ErrCodeRenderFailed     = "ERR_RENDER_FAILED"
	ErrCodeWatchBackend     = "ERR_WATCH_BACKEND"
	ErrCodeSourceClosed     = "ERR_SOURCE_CLOSED"
	ErrCodeFileNotFound     = "ERR_FILE_NOT_FOUND"
	ErrCodeConsumerGone     = "ERR_CONSUMER_GONE"
	ErrCodeSendClosed       = "ERR_SEND_CLOSED"
	ErrCodeInvalidPath      = "ERR_INVALID_PATH"
	ErrCodePathTraversal    = "ERR_PATH_TRAVERSAL"
	ErrCodeUnsafeURL        = "ERR_UNSAFE_URL"
	ErrCodeRateLimited      = "ERR_RATE_LIMITED"
	ErrCodeConfigInvalid    = "ERR_CONFIG_INVALID"
	ErrCodeValidationFailed = "ERR_VALIDATION_FAILED"
	ErrCodeInternalError    = "ERR_INTERNAL"
)

// GlanceError is a structured error type with context.
type GlanceError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *GlanceError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *GlanceError) Unwrap() error {
	return e.Cause
}

// Is reports a match when both type and code are equal.
func (e *GlanceError) Is(target error) bool {
	var t *GlanceError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *GlanceError) WithContext(key string, value interface{}) *GlanceError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithPath records the file the error refers to.
func (e *GlanceError) WithPath(path string) *GlanceError {
	e.FilePath = path

	return e
}

// NewReadError reports that a file could not be read after every retry.
// Read errors are content: the viewer is shown the message.
func NewReadError(path string, cause error) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeRead,
		Code:        ErrCodeReadFailed,
		Message:     "error reading path",
		Cause:       cause,
		FilePath:    path,
		Recoverable: true,
	}
}

// NewRenderError reports markdown the renderer could not convert.
func NewRenderError(cause error) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeRender,
		Code:        ErrCodeRenderFailed,
		Message:     "error rendering markdown",
		Cause:       cause,
		Recoverable: true,
	}
}

// NewWatchError creates a watch backend error. These end the owning session.
func NewWatchError(code, message string, cause error) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeWatch,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewDeliveryError creates a delivery error.
func NewDeliveryError(code, message string) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeDelivery,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewSecurityError creates a security error.
func NewSecurityError(code, message string) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeSecurity,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *GlanceError {
	return &GlanceError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsRecoverable checks if an error is recoverable.
func IsRecoverable(err error) bool {
	var ge *GlanceError
	if errors.As(err, &ge) {
		return ge.Recoverable
	}

	return false
}

// IsType reports whether err is a GlanceError of the given type.
func IsType(err error, errType ErrorType) bool {
	var ge *GlanceError
	if errors.As(err, &ge) {
		return ge.Type == errType
	}

	return false
}

// ErrPathTraversal creates a path traversal security error.
func ErrPathTraversal(path string) *GlanceError {
	return NewSecurityError(ErrCodePathTraversal, "path traversal attempt: "+path)
}

// ErrInvalidPath creates a path validation error.
func ErrInvalidPath(path string) *GlanceError {
	return NewValidationError(ErrCodeInvalidPath, "invalid path: "+path)
}

// ErrFileNotFound creates a watch error for a path that does not exist.
func ErrFileNotFound(path string, cause error) *GlanceError {
	return NewWatchError(ErrCodeFileNotFound, "no such file", cause).WithPath(path)
}
