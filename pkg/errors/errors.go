package errors

import (
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents transport failures and timeouts
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeStatus represents non-success HTTP responses
	ErrorTypeStatus ErrorType = "status"
	// ErrorTypeExtraction represents faults raised while extracting a page
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeStore represents seen-listing file errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypeNotify represents notification side-effect failures
	ErrorTypeNotify ErrorType = "notify"
	// ErrorTypeValidation represents invalid user input
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// MonitorError represents an error raised by one of the monitor stages
type MonitorError struct {
	Type    ErrorType
	Site    string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *MonitorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Site, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Site, e.Message)
}

// Unwrap returns the underlying error
func (e *MonitorError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the next cycle may succeed without intervention
func (e *MonitorError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeStatus, ErrorTypeExtraction, ErrorTypeNotify:
		return true
	default:
		return false
	}
}

// New creates a new MonitorError
func New(errType ErrorType, site, message string, err error) *MonitorError {
	return &MonitorError{
		Type:    errType,
		Site:    site,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(site, message string, err error) *MonitorError {
	return New(ErrorTypeNetwork, site, message, err)
}

// NewStatus creates an error for an unexpected HTTP status code
func NewStatus(site string, code int) *MonitorError {
	return New(ErrorTypeStatus, site, fmt.Sprintf("unexpected status code: %d", code), nil)
}

// NewExtraction creates a new extraction error
func NewExtraction(site, message string, err error) *MonitorError {
	return New(ErrorTypeExtraction, site, message, err)
}

// NewStore creates a new store error
func NewStore(message string, err error) *MonitorError {
	return New(ErrorTypeStore, "", message, err)
}

// NewNotify creates a new notification error
func NewNotify(site, message string, err error) *MonitorError {
	return New(ErrorTypeNotify, site, message, err)
}

// NewValidation creates a new validation error
func NewValidation(message string, err error) *MonitorError {
	return New(ErrorTypeValidation, "", message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *MonitorError {
	return New(ErrorTypeConfiguration, "", message, err)
}
