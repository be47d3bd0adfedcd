package errorutil

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes shared by the portal and rendered to the browser.
const (
	CodeAuthFailed       = "AUTH_FAILED"
	CodeMergeFailed      = "MERGE_FAILED"
	CodeNetwork          = "NETWORK_ERROR"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUpstream         = "UPSTREAM_ERROR"
	CodeRateLimited      = "RATE_LIMITED"
	CodeInternal         = "INTERNAL_ERROR"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

// NewAuthError reports rejected credentials. message is shown to the worker.
func NewAuthError(message string) error {
	return NewDomainError(CodeAuthFailed, message, http.StatusUnauthorized, nil)
}

// NewMergeError reports a login payload missing the user or worker record.
func NewMergeError(missing string) error {
	return NewDomainError(CodeMergeFailed, "Login failed", http.StatusBadGateway, map[string]any{"missing": missing})
}

func NewNetworkError(err error) error {
	return &DomainError{
		Code:       CodeNetwork,
		Message:    "complaint service unreachable",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError(CodeValidationFailed, message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewUnauthorized(message string) error {
	return NewDomainError(CodeUnauthorized, message, http.StatusUnauthorized, nil)
}

// NewUpstreamError wraps an unexpected status from the complaint API.
func NewUpstreamError(status int, message string) error {
	if message == "" {
		message = fmt.Sprintf("complaint service returned %d", status)
	}
	return NewDomainError(CodeUpstream, message, http.StatusBadGateway, map[string]any{"upstream_status": status})
}

func NewRateLimited(message string) error {
	return NewDomainError(CodeRateLimited, message, http.StatusTooManyRequests, nil)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return &DomainError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// HasCode reports whether err carries the given domain error code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	return errors.As(err, &domainErr) && domainErr.Code == code
}

// IsUnauthorized reports whether err stems from a rejected upstream token.
func IsUnauthorized(err error) bool {
	return HasCode(err, CodeUnauthorized)
}
