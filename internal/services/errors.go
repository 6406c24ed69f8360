package services

import (
	"errors"
	"fmt"
)

// Error codes surfaced to handlers; the HTTP layer maps these to statuses.
const (
	CodeQuotaExhausted      = "quota_exhausted"
	CodePermissionDenied    = "permission_denied"
	CodeNotFound            = "not_found"
	CodeValidationFailed    = "validation_failed"
	CodeUnsupportedFile     = "unsupported_file"
	CodeFileTooLarge        = "file_too_large"
	CodeNoExtractableText   = "no_extractable_text"
	CodeModelRejected       = "model_rejected"
	CodeUpstreamUnavailable = "upstream_unavailable"
)

// ServiceError carries a stable code alongside the human-readable message.
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

// AsServiceError extracts a ServiceError from an error chain.
func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// CodeOf returns the service error code, or empty for unclassified errors.
func CodeOf(err error) string {
	if se, ok := AsServiceError(err); ok {
		return se.Code
	}
	return ""
}

func NewQuotaExhaustedError(userID string, used int64, limit int) *ServiceError {
	return &ServiceError{
		Code:    CodeQuotaExhausted,
		Message: fmt.Sprintf("user %s used %d of %d papers this month", userID, used, limit),
	}
}

func NewPermissionError(userID string, resource string, id uint, reason string) *ServiceError {
	return &ServiceError{
		Code:    CodePermissionDenied,
		Message: fmt.Sprintf("user %s cannot access %s %d: %s", userID, resource, id, reason),
	}
}

func NewNotFoundError(resource string, id uint) *ServiceError {
	return &ServiceError{
		Code:    CodeNotFound,
		Message: fmt.Sprintf("%s %d not found", resource, id),
	}
}

func NewValidationError(message string, err error) *ServiceError {
	return &ServiceError{
		Code:    CodeValidationFailed,
		Message: message,
		Err:     err,
	}
}

func NewUnsupportedFileError(filename string) *ServiceError {
	return &ServiceError{
		Code:    CodeUnsupportedFile,
		Message: fmt.Sprintf("file type of %s is not supported", filename),
	}
}

func NewFileTooLargeError(size, limit int64) *ServiceError {
	return &ServiceError{
		Code:    CodeFileTooLarge,
		Message: fmt.Sprintf("upload of %d bytes exceeds the %d byte limit", size, limit),
	}
}

func NewNoExtractableTextError(filename string, err error) *ServiceError {
	return &ServiceError{
		Code:    CodeNoExtractableText,
		Message: fmt.Sprintf("no text could be extracted from %s", filename),
		Err:     err,
	}
}

func NewModelRejectedError(reason string) *ServiceError {
	return &ServiceError{
		Code:    CodeModelRejected,
		Message: reason,
	}
}

func NewUpstreamError(component string, err error) *ServiceError {
	return &ServiceError{
		Code:    CodeUpstreamUnavailable,
		Message: fmt.Sprintf("%s is unavailable", component),
		Err:     err,
	}
}
