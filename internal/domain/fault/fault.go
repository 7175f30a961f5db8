// Package fault defines the error kinds shared by the cart, coupon and
// checkout components. Concrete errors keep their own types and report
// their kind through errors.Is.
package fault

import (
	"github.com/go-faster/errors"
)

// Error kinds. Match with errors.Is.
var (
	// ErrValidation marks caller-supplied input that is invalid. No backend
	// call is attempted.
	ErrValidation = errors.New("validation failed")
	// ErrTransient marks a failed collaborator call (network, 5xx).
	ErrTransient = errors.New("backend unavailable")
	// ErrTimeout marks a collaborator call that exceeded its deadline.
	// Every timeout is also transient.
	ErrTimeout = errors.New("backend timeout")
	// ErrNotFound marks a missing catalog item, address, coupon or order.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks a state conflict that needs user confirmation.
	ErrConflict = errors.New("conflict")
)

// Error is a kinded error carrying the failing operation.
type Error struct {
	Kind error
	Op   string
	Msg  string
	Err  error
}

// New returns an *Error of the given kind.
func New(kind error, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Wrap returns an *Error of the given kind wrapping err.
func Wrap(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" && e.Kind != nil {
		msg = e.Kind.Error()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the kind of e. A timeout is transient too.
func (e *Error) Is(target error) bool {
	if target == e.Kind {
		return true
	}
	return e.Kind == ErrTimeout && target == ErrTransient
}

// Message returns the user-facing text of err: the Msg of the outermost
// *Error if any, otherwise err.Error().
func Message(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	return err.Error()
}

// Validation returns a validation error for op.
func Validation(op, msg string) *Error {
	return New(ErrValidation, op, msg)
}

// NotFound returns a not-found error for op.
func NotFound(op, msg string) *Error {
	return New(ErrNotFound, op, msg)
}

// IsTransient reports whether err is a transient collaborator failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
