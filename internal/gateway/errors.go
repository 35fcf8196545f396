package gateway

import (
	"errors"
	"fmt"
)

// Kind classifies a gateway failure. Only KindUnavailable and KindTimeout
// are transient; everything else propagates to the caller without retry.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindAuthentication    Kind = "authentication"
	KindUnavailable       Kind = "unavailable"
	KindTimeout           Kind = "timeout"
	KindUserCancelled     Kind = "user_cancelled"
	KindInsufficientFunds Kind = "insufficient_funds"
	KindDuplicate         Kind = "duplicate"
	KindSignature         Kind = "signature"
)

// Error is a classified gateway failure.
type Error struct {
	Kind    Kind
	Gateway string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %s: %v", e.Gateway, e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s: %s", e.Gateway, e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError builds a classified gateway error.
func NewError(gw string, kind Kind, msg string) *Error {
	return &Error{Kind: kind, Gateway: gw, Message: msg}
}

// WrapError builds a classified gateway error wrapping a cause.
func WrapError(gw string, kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Gateway: gw, Message: msg, Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// (raw network failures, context deadlines) count as unavailable so the
// fallback loop treats them as a provider outage.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnavailable
}

// IsTransient reports whether an error should advance the fallback chain.
// Bad input and credential failures never do.
func IsTransient(err error) bool {
	switch KindOf(err) {
	case KindUnavailable, KindTimeout:
		return true
	}
	return false
}
