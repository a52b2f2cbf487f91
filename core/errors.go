package core

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for comparison using errors.Is().
// Every error that crosses a package boundary wraps exactly one of the
// taxonomy sentinels so callers can branch on its category.
var (
	// ErrValidation marks input that was rejected before any side effect:
	// non-positive quantity, malformed email, empty cart at checkout.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks a referenced product, cart or cart item that does not exist
	// (or does not belong to the caller).
	ErrNotFound = errors.New("not found")

	// ErrUpstream marks a CMS failure: network error, non-success status,
	// or a payload that does not match the expected schema.
	ErrUpstream = errors.New("upstream failure")

	// Configuration errors
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrMissingConfiguration = errors.New("missing required configuration")

	// Connection errors
	ErrConnectionFailed = errors.New("connection failed")
)

// Error kinds used in Error.Kind.
const (
	KindValidation = "validation"
	KindNotFound   = "not_found"
	KindUpstream   = "upstream"
	KindConfig     = "config"
)

// Error provides structured error information with context.
// It implements the error interface and supports error wrapping.
type Error struct {
	Op      string // Operation that failed (e.g., "cart.AddProduct")
	Kind    string // Error kind (see Kind* constants)
	ID      string // Optional ID of the entity involved
	Message string // Human-readable message, safe to show to a user
	Err     error  // Underlying error for wrapping
}

// Error returns the string representation of the error
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = fmt.Sprintf("%s error", e.Kind)
	}
	switch {
	case e.Op != "" && e.ID != "":
		return fmt.Sprintf("%s [%s]: %s", e.Op, e.ID, msg)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, msg)
	default:
		return msg
	}
}

// Unwrap returns the underlying error for use with errors.Is/As
func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports rejected input.
func NewValidationError(op, message string) *Error {
	return &Error{Op: op, Kind: KindValidation, Message: message, Err: ErrValidation}
}

// NewNotFoundError reports a missing entity identified by id.
func NewNotFoundError(op, id, message string) *Error {
	return &Error{Op: op, Kind: KindNotFound, ID: id, Message: message, Err: ErrNotFound}
}

// NewUpstreamError wraps a CMS or transport failure. The cause is kept in the
// chain next to ErrUpstream.
func NewUpstreamError(op string, cause error) *Error {
	if cause == nil {
		return &Error{Op: op, Kind: KindUpstream, Err: ErrUpstream}
	}
	return &Error{
		Op:      op,
		Kind:    KindUpstream,
		Message: cause.Error(),
		Err:     fmt.Errorf("%w: %w", ErrUpstream, cause),
	}
}

// IsValidation checks if an error is a validation error
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound checks if an error indicates a missing entity
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUpstream checks if an error came from the CMS or the network
func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}

// IsConfigurationError checks if an error is configuration-related
func IsConfigurationError(err error) bool {
	return errors.Is(err, ErrInvalidConfiguration) ||
		errors.Is(err, ErrMissingConfiguration)
}

// UserMessage extracts the human-readable message of the first *Error in the chain.
// It returns fallback when none is found.
func UserMessage(err error, fallback string) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return fallback
}
