// ABOUTME: Error taxonomy shared by the store, pipeline and tool facade
// ABOUTME: Distinguishes not-found, invalid-argument, upstream and conflict failures
package models

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failure
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidArgument ErrorKind = "invalid_argument"
	KindUpstream        ErrorKind = "upstream_failure"
	KindConflict        ErrorKind = "state_conflict"
	KindInternal        ErrorKind = "internal"
)

// Error is a classified failure naming the offending table, column or argument
type Error struct {
	Kind    ErrorKind
	Subject string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NotFound reports a missing table, view, column or index
func NotFound(subject, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Subject: subject, Message: fmt.Sprintf(format, args...)}
}

// InvalidArgument reports a malformed or unknown argument
func InvalidArgument(subject, message string) *Error {
	return &Error{Kind: KindInvalidArgument, Subject: subject, Message: message}
}

// Upstream wraps a failed external model call
func Upstream(subject string, err error) *Error {
	return &Error{Kind: KindUpstream, Subject: subject, Message: fmt.Sprintf("%s failed", subject), Err: err}
}

// Conflict reports a racing or contradictory state change
func Conflict(subject, message string) *Error {
	return &Error{Kind: KindConflict, Subject: subject, Message: message}
}

// KindOf returns the kind of a classified error, or KindInternal
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err is a not-found error
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
