// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	ErrSymbolNotFound        = errors.New("symbol not found")
	ErrIntervalNotConfigured = errors.New("interval not configured")
	ErrDataNotFound          = errors.New("data not found")
	ErrConfigInvalid         = errors.New("invalid configuration")
	ErrFetchFailed           = errors.New("fetch failed")
	ErrRateLimited           = errors.New("rate limited")
	ErrDatabaseError         = errors.New("database error")
	ErrExportFailed          = errors.New("export failed")
	ErrUnknownLayer          = errors.New("unknown layer")
	ErrUnsupportedFormat     = errors.New("unsupported format")
)

// ValidationError represents a validation error.
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s (%v): %s", e.Field, e.Value, e.Message)
}

// Unwrap lets callers match validation failures against ErrConfigInvalid.
func (e *ValidationError) Unwrap() error {
	return ErrConfigInvalid
}

// NewValidationError creates a new ValidationError.
func NewValidationError(field string, value interface{}, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	}
}

// DataError represents a data-related error.
type DataError struct {
	DataType string
	Symbol   string
	Message  string
	Err      error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s] %s: %s: %v", e.DataType, e.Symbol, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s] %s: %s", e.DataType, e.Symbol, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(dataType, symbol, message string, err error) *DataError {
	return &DataError{
		DataType: dataType,
		Symbol:   symbol,
		Message:  message,
		Err:      err,
	}
}

// FetchError represents a failure to acquire bars from a provider.
type FetchError struct {
	Provider string
	Symbol   string
	Interval string
	Status   int
	Err      error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch error [%s] %s %s: status %d: %v", e.Provider, e.Symbol, e.Interval, e.Status, e.Err)
	}
	return fmt.Sprintf("fetch error [%s] %s %s: %v", e.Provider, e.Symbol, e.Interval, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is makes every FetchError match ErrFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}

// NewFetchError creates a new FetchError.
func NewFetchError(provider, symbol, interval string, status int, err error) *FetchError {
	return &FetchError{
		Provider: provider,
		Symbol:   symbol,
		Interval: interval,
		Status:   status,
		Err:      err,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
