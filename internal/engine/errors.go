package engine

import (
	"errors"
	"fmt"
)

// EngineError represents errors that occur during queue, backup and restore operations
type EngineError struct {
	Type    ErrorType              `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *EngineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *EngineError) Unwrap() error {
	return e.Cause
}

// ErrorType represents different classes of engine errors
type ErrorType string

const (
	ErrorTypeConfiguration ErrorType = "CONFIGURATION_ERROR"
	ErrorTypeTool          ErrorType = "TOOL_FAILURE"
	ErrorTypeTransport     ErrorType = "TRANSPORT_ERROR"
	ErrorTypeVerification  ErrorType = "VERIFICATION_FAILURE"
	ErrorTypeConcurrency   ErrorType = "CONCURRENCY_DENIED"
	ErrorTypeCorruption    ErrorType = "CORRUPTION_ERROR"
	ErrorTypeNotFound      ErrorType = "NOT_FOUND_ERROR"
	ErrorTypeValidation    ErrorType = "VALIDATION_ERROR"
)

// NewEngineError creates a new EngineError
func NewEngineError(errorType ErrorType, message string, cause error) *EngineError {
	return &EngineError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *EngineError) WithContext(key string, value interface{}) *EngineError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewConfigurationError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeConfiguration, message, cause)
}

func NewToolError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeTool, message, cause)
}

func NewTransportError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeTransport, message, cause)
}

func NewVerificationError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeVerification, message, cause)
}

func NewConcurrencyError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeConcurrency, message, cause)
}

func NewCorruptionError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeCorruption, message, cause)
}

func NewNotFoundError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeNotFound, message, cause)
}

func NewValidationError(message string, cause error) *EngineError {
	return NewEngineError(ErrorTypeValidation, message, cause)
}

// IsErrorType checks whether err is an EngineError of the given type
func IsErrorType(err error, errorType ErrorType) bool {
	var engineErr *EngineError
	if errors.As(err, &engineErr) {
		return engineErr.Type == errorType
	}
	return false
}
