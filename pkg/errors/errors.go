package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeConfiguration represents a missing or invalid operator setting
	ErrorTypeConfiguration ErrorType = "configuration"
	// ErrorTypeExtraction represents a per-card extraction failure
	ErrorTypeExtraction ErrorType = "extraction"
	// ErrorTypeClassification represents a remote image classifier failure
	ErrorTypeClassification ErrorType = "classification"
	// ErrorTypeCsvParse represents a malformed input feed
	ErrorTypeCsvParse ErrorType = "csv_parse"
	// ErrorTypeTraversalTimeout represents a traversal that hit its safety guard
	ErrorTypeTraversalTimeout ErrorType = "traversal_timeout"
	// ErrorTypeNetwork represents network-related errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeStore represents persistent store errors
	ErrorTypeStore ErrorType = "store"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
)

// AuditError represents an error raised while auditing a dealer page
type AuditError struct {
	Type    ErrorType
	Domain  string
	Message string
	Err     error
	Time    time.Time
}

// Error implements the error interface
func (e *AuditError) Error() string {
	if e.Domain == "" {
		if e.Err != nil {
			return fmt.Sprintf("[%s] %s - %v", e.Type, e.Message, e.Err)
		}
		return fmt.Sprintf("[%s] %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Domain, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Domain, e.Message)
}

// Unwrap returns the underlying error
func (e *AuditError) Unwrap() error {
	return e.Err
}

// New creates a new AuditError
func New(errType ErrorType, domain, message string, err error) *AuditError {
	return &AuditError{
		Type:    errType,
		Domain:  domain,
		Message: message,
		Err:     err,
		Time:    time.Now(),
	}
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *AuditError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// NewMissingSelector creates a configuration error naming the missing selector key
func NewMissingSelector(domain, key string) *AuditError {
	return New(ErrorTypeConfiguration, domain, fmt.Sprintf("missing mandatory selector %q", key), nil)
}

// NewExtraction creates a new extraction error
func NewExtraction(domain, message string, err error) *AuditError {
	return New(ErrorTypeExtraction, domain, message, err)
}

// NewClassification creates a new classification error
func NewClassification(provider, message string, err error) *AuditError {
	return New(ErrorTypeClassification, provider, message, err)
}

// NewCsvParse creates a new CSV parse error
func NewCsvParse(message string, err error) *AuditError {
	return New(ErrorTypeCsvParse, "", message, err)
}

// NewTraversalTimeout creates a new traversal timeout error
func NewTraversalTimeout(domain string, iterations int, elapsed time.Duration) *AuditError {
	message := fmt.Sprintf("traversal stopped after %d iterations (%v)", iterations, elapsed.Round(time.Millisecond))
	return New(ErrorTypeTraversalTimeout, domain, message, nil)
}

// NewNetwork creates a new network error
func NewNetwork(domain, message string, err error) *AuditError {
	return New(ErrorTypeNetwork, domain, message, err)
}

// NewStore creates a new store error
func NewStore(message string, err error) *AuditError {
	return New(ErrorTypeStore, "", message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(message string, err error) *AuditError {
	return New(ErrorTypePublisher, "", message, err)
}

// TypeOf returns the ErrorType of the first AuditError in err's chain
func TypeOf(err error) (ErrorType, bool) {
	var ae *AuditError
	if stderrors.As(err, &ae) {
		return ae.Type, true
	}
	return "", false
}

// Is reports whether err carries an AuditError of the given type
func Is(err error, errType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errType
}

// IsConfiguration reports whether err is a configuration error
func IsConfiguration(err error) bool {
	return Is(err, ErrorTypeConfiguration)
}

// IsClassification reports whether err is a classification error
func IsClassification(err error) bool {
	return Is(err, ErrorTypeClassification)
}

// IsTraversalTimeout reports whether err is a traversal timeout
func IsTraversalTimeout(err error) bool {
	return Is(err, ErrorTypeTraversalTimeout)
}
