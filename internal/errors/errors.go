// Package errors defines the error taxonomy of the preview pipeline.
//
// Read and render failures are recoverable: they are turned into content and
// shown to the viewer. Watch and delivery failures are fatal to the session
// that hit them and are only logged.
package errors

import (
	"context"
	"errors"
)

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level chosen by its type. Consumer departure is
// expected and is not logged at all.
func (h *ErrorHandler) Handle(ctx context.Context, err error, fields ...interface{}) {
	if err == nil || h.logger == nil {
		return
	}

	var ge *GlanceError
	if !errors.As(err, &ge) {
		h.logger.Error(ctx, err, "Unhandled error occurred", fields...)
		return
	}

	fields = append(fields, "type", string(ge.Type), "code", ge.Code)
	if ge.FilePath != "" {
		fields = append(fields, "file", ge.FilePath)
	}

	switch ge.Type {
	case ErrorTypeDelivery:
		return
	case ErrorTypeRead, ErrorTypeRender, ErrorTypeValidation:
		h.logger.Warn(ctx, err, "Recoverable error occurred", fields...)
	case ErrorTypeSecurity:
		h.logger.Error(ctx, err, "Security error occurred", fields...)
	case ErrorTypeWatch:
		h.logger.Error(ctx, err, "Watch backend failed", fields...)
	default:
		h.logger.Error(ctx, err, "Error occurred", fields...)
	}
}
