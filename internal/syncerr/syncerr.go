// Package syncerr defines the error kinds surfaced by the sync engine so
// callers can tell a broken store apart from an empty queue, a dropped
// network from an expired session, and so on.
package syncerr

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind classifies a sync engine error.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindStore           Kind = "store"
	KindTransport       Kind = "transport"
	KindAuth            Kind = "auth"
	KindServerRejection Kind = "server_rejection"
)

// Error carries the kind plus enough context (local id, message) for the UI to act on.
type Error struct {
	Kind    Kind
	LocalID string
	Msg     string
	Fields  map[string]string // validation messages keyed by json field name
	Err     error
}

// Sentinels for errors.Is matching by kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrStore           = &Error{Kind: KindStore}
	ErrTransport       = &Error{Kind: KindTransport}
	ErrAuth            = &Error{Kind: KindAuth}
	ErrServerRejection = &Error{Kind: KindServerRejection}
)

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.LocalID != "" {
		msg += " [" + e.LocalID + "]"
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind, so errors.Is(err, ErrStore) works
// regardless of context fields.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New creates an error of the given kind.
func New(kind Kind, localID, msg string, err error) *Error {
	return &Error{Kind: kind, LocalID: localID, Msg: msg, Err: err}
}

// Store wraps a persistence failure.
func Store(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) && se.Kind == KindStore {
		return err
	}
	return &Error{Kind: KindStore, Msg: op, Err: err}
}

// Transport wraps a network, timeout or non-2xx failure.
func Transport(err error) error {
	return &Error{Kind: KindTransport, Err: err}
}

// Auth wraps an unauthenticated or forbidden response.
func Auth(err error) error {
	return &Error{Kind: KindAuth, Msg: "session expired or not authorized", Err: err}
}

// Rejection builds a per-record server rejection.
func Rejection(localID, reason string) error {
	return &Error{Kind: KindServerRejection, LocalID: localID, Msg: reason}
}

// Validation builds a validation error with per-field messages.
func Validation(fields map[string]string) error {
	msg := "invalid attendance event"
	if len(fields) > 0 {
		msgs := make([]string, 0, len(fields))
		for _, name := range slices.Sorted(maps.Keys(fields)) {
			msgs = append(msgs, fields[name])
		}
		msg += " (" + strings.Join(msgs, "; ") + ")"
	}
	return &Error{Kind: KindValidation, Msg: msg, Fields: fields}
}

// KindOf returns the kind of err, or "" if err is not a sync engine error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// Transient reports whether err is retried internally rather than surfaced.
func Transient(err error) bool {
	return KindOf(err) == KindTransport
}

// Describe renders a one-line, user-facing description.
func Describe(err error) string {
	var se *Error
	if !errors.As(err, &se) {
		return err.Error()
	}
	switch se.Kind {
	case KindValidation:
		return fmt.Sprintf("attendance mark rejected: %s", se.Msg)
	case KindStore:
		return "local storage is unavailable; marks cannot be saved until it is repaired"
	case KindAuth:
		return "session expired; log in again to resume syncing"
	case KindServerRejection:
		return fmt.Sprintf("server rejected %s: %s", se.LocalID, se.Msg)
	default:
		return se.Error()
	}
}
