package fault

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a payment or subscription operation was rejected.
type Kind int

const (
	// Unknown covers unclassified internal failures.
	Unknown Kind = iota
	// Authentication: missing or invalid caller identity.
	Authentication
	// Authorization: caller is not the required party for the operation.
	Authorization
	// Precondition: missing/invalid input or referenced entity not found.
	Precondition
	// StateConflict: record is not in the expected source state for the
	// requested transition. Also the outcome the loser of a concurrent
	// transition race observes.
	StateConflict
	// Dependency: a downstream write failed after the primary state
	// transition committed.
	Dependency
)

// Error carries a Kind alongside the message returned to the caller.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Errorf formats a message into an Error of the given kind.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with a kind and message. Returns nil if err is nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the Kind from err, or Unknown for plain errors.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return Unknown
}

// HTTPStatus maps an error's kind to the response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case Authentication:
		return http.StatusUnauthorized
	case Authorization:
		return http.StatusForbidden
	case Precondition:
		return http.StatusBadRequest
	case StateConflict:
		return http.StatusConflict
	case Dependency:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
