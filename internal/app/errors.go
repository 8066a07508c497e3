package app

import (
	"fmt"

	"pilot/internal/logging"
)

// ErrorCode represents standardized error codes for the application.
type ErrorCode int

const (
	ErrCodeUnknown ErrorCode = iota
	ErrCodeConfig
	ErrCodeClient
	ErrCodeScenario
	ErrCodeCancelled
	ErrCodeIO
)

func (c ErrorCode) String() string {
	switch c {
	case ErrCodeConfig:
		return "config"
	case ErrCodeClient:
		return "client"
	case ErrCodeScenario:
		return "scenario"
	case ErrCodeCancelled:
		return "cancelled"
	case ErrCodeIO:
		return "io"
	default:
		return "unknown"
	}
}

// AppError is a typed error with code for better error handling.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error with code.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// LogOptional logs an error that occurred during optional feature initialization.
func LogOptional(feature string, err error) {
	if err != nil {
		logging.Warn("optional feature not available", "feature", feature, "error", err)
	}
}
