package errors

import (
	"errors"
)

// Wrap wraps an error with additional context, creating a GlanceError if the input is not already one
func Wrap(err error, errType ErrorType, code, message string) *GlanceError {
	if err == nil {
		return nil
	}

	var ge *GlanceError
	if errors.As(err, &ge) {
		return &GlanceError{
			Type:        errType,
			Code:        code,
			Message:     message,
			Cause:       ge,
			Context:     ge.Context,
			FilePath:    ge.FilePath,
			Recoverable: ge.Recoverable,
		}
	}

	return &GlanceError{
		Type:        errType,
		Code:        code,
		Message:     message,
		Cause:       err,
		Recoverable: errType == ErrorTypeRead || errType == ErrorTypeRender || errType == ErrorTypeValidation,
	}
}

// WrapWatch wraps a backend failure as a fatal watch error.
func WrapWatch(err error, message string) *GlanceError {
	ge := Wrap(err, ErrorTypeWatch, ErrCodeWatchBackend, message)
	if ge != nil {
		ge.Recoverable = false
	}
	return ge
}

// WrapConfig wraps a configuration problem.
func WrapConfig(err error, message string) *GlanceError {
	return Wrap(err, ErrorTypeConfig, ErrCodeConfigInvalid, message)
}

// Is, As and New re-export the standard library helpers so callers can import
// a single errors package.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target interface{}) bool { return errors.As(err, target) }

func New(text string) error { return errors.New(text) }
