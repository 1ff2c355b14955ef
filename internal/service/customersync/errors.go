package customersync

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies sync failures.
type Kind string

const (
	// KindValidation rejects a request before any remote call.
	KindValidation Kind = "validation"
	// KindMalformedInput marks a value that had to parse but did not.
	KindMalformedInput Kind = "malformed_input"
	// KindRemoteRead is a failed customer or metafield read. Reads abort the sync.
	KindRemoteRead Kind = "remote_read"
	// KindRemoteWrite is one failed tag or metafield write.
	KindRemoteWrite Kind = "remote_write"
	// KindAggregate reports that at least one write of a fan-out failed.
	KindAggregate Kind = "aggregate"
)

// ErrDocumentNotFound is returned when a customer has no eligibility document.
var ErrDocumentNotFound = errors.New("eligibility document not found")

// Error is the typed failure returned by Coordinator operations.
type Error struct {
	Kind Kind
	// Field is the input field or metafield slot involved, if any.
	Field string
	// Op is the remote operation that failed, if any.
	Op  string
	Err error

	// Failures holds every write failure of an aggregate error, in slot order.
	Failures []*Error
	// Attempted is the number of writes an aggregate error was collected from.
	Attempted int
}

func (e *Error) Error() string {
	if e == nil {
		return "customer sync error"
	}
	if e.Kind == KindAggregate {
		return fmt.Sprintf("%d of %d writes failed", len(e.Failures), e.Attempted)
	}
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(" " + e.Op)
	}
	if e.Field != "" {
		b.WriteString(" " + e.Field)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause. For aggregate errors that is the first
// failure.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Details returns the message of the first underlying failure.
func (e *Error) Details() string {
	if e == nil {
		return ""
	}
	if len(e.Failures) > 0 {
		return e.Failures[0].Error()
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// KindOf returns the Kind of the first *Error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var syncErr *Error
	if errors.As(err, &syncErr) {
		return syncErr.Kind
	}
	return ""
}

func validationError(field, msg string) *Error {
	return &Error{Kind: KindValidation, Field: field, Err: errors.New(msg)}
}

// newAggregate wraps a non-empty failure list.
func newAggregate(failures []*Error, attempted int) *Error {
	return &Error{
		Kind:      KindAggregate,
		Err:       failures[0],
		Failures:  failures,
		Attempted: attempted,
	}
}
