// Package apperr holds the error taxonomy shared by the command, query and
// handler layers.
package apperr

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ValidationError is bad or missing input, surfaced to the caller as-is.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError means the referenced resource does not exist.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// AuthorizationError is returned when a caller lacks the capability required.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "forbidden"
	}
	return "forbidden: " + e.Reason
}

// InsufficientFundsError carries the shortfall the caller must top up.
type InsufficientFundsError struct {
	Required decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return "insufficient funds: " + e.Required.StringFixed(2) + " more required"
}

// InternalError wraps persistence or unexpected failures.
type InternalError struct {
	Op  string
	Err error
}

func (e *InternalError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *InternalError) Unwrap() error { return e.Err }

func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

func Forbidden(reason string) error {
	return &AuthorizationError{Reason: reason}
}

// Internal wraps err unless it already belongs to the taxonomy.
func Internal(op string, err error) error {
	if err == nil || IsTyped(err) {
		return err
	}
	return &InternalError{Op: op, Err: err}
}

// IsTyped reports whether err (or anything it wraps) is one of the taxonomy types.
func IsTyped(err error) bool {
	var (
		v *ValidationError
		n *NotFoundError
		a *AuthorizationError
		f *InsufficientFundsError
		i *InternalError
	)
	return errors.As(err, &v) || errors.As(err, &n) || errors.As(err, &a) ||
		errors.As(err, &f) || errors.As(err, &i)
}

func IsNotFound(err error) bool {
	var n *NotFoundError
	return errors.As(err, &n)
}
