// Package apperr defines the user-facing failure kinds of the account lifecycle.
// Callers switch on KindOf(err) instead of matching messages.
package apperr

import (
	"errors"
	"sort"
	"strings"
)

type Kind int

const (
	// KindInternal marks failures that are not the caller's fault.
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindAuth
	KindUnverified
	KindInvalidToken
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindAuth:
		return "auth"
	case KindUnverified:
		return "unverified"
	case KindInvalidToken:
		return "invalid_token"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "internal"
	}
}

// Error is a failure the UI layer renders to the user. Details maps field
// names to messages for validation failures.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]string
}

func (e *Error) Error() string {
	if len(e.Details) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Details))
	for k := range e.Details {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+" "+e.Details[k])
	}
	return e.Message + ": " + strings.Join(parts, ", ")
}

// Is matches another *Error of the same kind, so errors.Is(err, ErrAuth) works.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind && (t.Message == "" || t.Message == e.Message)
}

// Kind-only targets for errors.Is.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrUnverified      = &Error{Kind: KindUnverified}
	ErrInvalidToken    = &Error{Kind: KindInvalidToken}
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
)

func Validation(message string, details map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: message, Details: details}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

func Auth(message string) *Error {
	return &Error{Kind: KindAuth, Message: message}
}

func Unverified(message string) *Error {
	return &Error{Kind: KindUnverified, Message: message}
}

func InvalidToken(message string) *Error {
	return &Error{Kind: KindInvalidToken, Message: message}
}

func Unauthenticated(message string) *Error {
	return &Error{Kind: KindUnauthenticated, Message: message}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
