package models

import (
	"errors"
	"fmt"
	"strings"
)

// Error codes used in scrape results, API responses and internal error handling.
const (
	ErrCodeMissingParameter = "MISSING_PARAMETER"
	ErrCodeBrowserLaunch    = "BROWSER_LAUNCH_FAILED"
	ErrCodeSession          = "SESSION_FAILED"
	ErrCodeNavigation       = "NAVIGATION_FAILED"
	ErrCodeInteraction      = "INTERACTION_FAILED"
	ErrCodeExtraction       = "EXTRACTION_FAILED"
	ErrCodeCapture          = "CAPTURE_FAILED"
	ErrCodeInvalidInput     = "INVALID_INPUT"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeInternal         = "INTERNAL_ERROR"
)

// ErrorDetail is the structured error in API responses.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ScrapeError is the internal error type carrying an error code.
// It implements the error interface and supports error wrapping via Unwrap.
type ScrapeError struct {
	Code    string
	Message string
	Err     error // wrapped original error
}

func (e *ScrapeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ScrapeError) Unwrap() error {
	return e.Err
}

// NewScrapeError creates a new ScrapeError.
func NewScrapeError(code, message string, err error) *ScrapeError {
	return &ScrapeError{Code: code, Message: message, Err: err}
}

// ToDetail converts an internal error to an API-facing ErrorDetail.
func (e *ScrapeError) ToDetail() *ErrorDetail {
	return &ErrorDetail{Code: e.Code, Message: e.Message}
}

// CodeOf returns the code of the first ScrapeError in err's chain.
// A ValidationError is ErrCodeInvalidInput; anything else is ErrCodeInternal.
func CodeOf(err error) string {
	var se *ScrapeError
	if errors.As(err, &se) {
		return se.Code
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ErrCodeInvalidInput
	}
	return ErrCodeInternal
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code string) bool {
	var se *ScrapeError
	return errors.As(err, &se) && se.Code == code
}

// NewMissingParameterError names every absent parameter in one error.
func NewMissingParameterError(names []string) *ScrapeError {
	return NewScrapeError(
		ErrCodeMissingParameter,
		"missing required parameter(s): "+strings.Join(names, ", "),
		nil,
	)
}

// FieldError is one rejected field of a ScrapeConfig.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError collects every problem found while validating a config.
type ValidationError struct {
	Problems []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		parts[i] = p.Field + ": " + p.Reason
	}
	return "invalid scrape config: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, reason string) {
	e.Problems = append(e.Problems, FieldError{Field: field, Reason: reason})
}

func (e *ValidationError) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}
