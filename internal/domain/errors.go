package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures reported by the engines.
type ErrorKind string

const (
	KindInvalidOffer         ErrorKind = "invalid_offer"
	KindInvalidState         ErrorKind = "invalid_state"
	KindSessionNotFound      ErrorKind = "session_not_found"
	KindProductNotFound      ErrorKind = "product_not_found"
	KindConfigurationMissing ErrorKind = "configuration_missing"
	KindInvalidProduct       ErrorKind = "invalid_product"
)

// Sentinels for errors.Is. Every *Error matches the sentinel of its kind.
var (
	ErrInvalidOffer         = errors.New("invalid offer")
	ErrInvalidState         = errors.New("invalid state")
	ErrSessionNotFound      = errors.New("session not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrInvalidProduct       = errors.New("invalid product")
)

var sentinels = map[ErrorKind]error{
	KindInvalidOffer:         ErrInvalidOffer,
	KindInvalidState:         ErrInvalidState,
	KindSessionNotFound:      ErrSessionNotFound,
	KindProductNotFound:      ErrProductNotFound,
	KindConfigurationMissing: ErrConfigurationMissing,
	KindInvalidProduct:       ErrInvalidProduct,
}

// Error represents a domain-specific error with context
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// NewError creates a new domain error
func NewError(kind ErrorKind, message string, err error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Common error constructors
func InvalidOffer(message string) *Error {
	return NewError(KindInvalidOffer, message, nil)
}

func InvalidState(message string) *Error {
	return NewError(KindInvalidState, message, nil)
}

func SessionNotFound(id string) *Error {
	return NewError(KindSessionNotFound, fmt.Sprintf("session %q not found", id), nil)
}

func ProductNotFound(id string) *Error {
	return NewError(KindProductNotFound, fmt.Sprintf("product %q not found", id), nil)
}

func ConfigurationMissing(message string) *Error {
	return NewError(KindConfigurationMissing, message, nil)
}

func InvalidProduct(message string, err error) *Error {
	return NewError(KindInvalidProduct, message, err)
}

// KindOf returns the kind of a domain error anywhere in err's chain, or "".
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}
