package services

import (
	"errors"
	"strings"
)

// Kind classifies a failure for callers deciding how to react: Conflict is
// retryable with the same input (the race may resolve), Validation never is,
// NotFound means the referenced entity does not exist, Unavailable means a
// dependency broke.
type Kind int

const (
	KindUnavailable Kind = iota
	KindNotFound
	KindValidation
	KindConflict
)

// Error is a typed, expected failure. All sentinels below compare with
// errors.Is by identity; engines return them instead of throwing expected
// outcomes (a lost availability race is normal, not exceptional).
type Error struct {
	Kind Kind
	msg  string
}

func (e *Error) Error() string {
	return e.msg
}

var (
	// ErrReaderNotFound is returned when the referenced reader does not exist.
	ErrReaderNotFound = &Error{Kind: KindNotFound, msg: "reader not found"}

	// ErrTitleNotFound is returned when the referenced title does not exist.
	ErrTitleNotFound = &Error{Kind: KindNotFound, msg: "title not found"}

	// ErrCopyNotFound is returned when the referenced copy does not exist.
	ErrCopyNotFound = &Error{Kind: KindNotFound, msg: "copy not found"}

	// ErrLoanNotFound is returned when the referenced loan record does not exist.
	ErrLoanNotFound = &Error{Kind: KindNotFound, msg: "loan record not found"}

	// ErrRequestNotFound is returned when the referenced reservation request
	// does not exist.
	ErrRequestNotFound = &Error{Kind: KindNotFound, msg: "reservation request not found"}

	// ErrDueDateNotInFuture is returned when a borrow is attempted with a due
	// date at or before the current instant.
	ErrDueDateNotInFuture = &Error{Kind: KindValidation, msg: "due date must be in the future"}

	// ErrCopyAlreadyAvailable is returned when a reservation is requested for
	// a copy that can simply be borrowed.
	ErrCopyAlreadyAvailable = &Error{Kind: KindValidation, msg: "copy is already available"}

	// ErrCopyUnavailable is returned when the availability race is lost: the
	// copy was not AVAILABLE at the instant of the conditional write. A
	// concurrent borrower winning is the common cause.
	ErrCopyUnavailable = &Error{Kind: KindConflict, msg: "copy is not available"}

	// ErrCopyNotLoaned is returned when a release or loss is attempted on a
	// copy that is not currently LOANED.
	ErrCopyNotLoaned = &Error{Kind: KindConflict, msg: "copy is not on loan"}

	// ErrNotOnLoan is returned when a return or loss is attempted on a loan
	// record that is not ACTIVE or OVERDUE.
	ErrNotOnLoan = &Error{Kind: KindConflict, msg: "loan is not active or overdue"}

	// ErrDuplicateRequest is returned when the reader already holds a PENDING
	// or NOTIFIED request for the same copy.
	ErrDuplicateRequest = &Error{Kind: KindConflict, msg: "reader already has an open request for this copy"}

	// ErrRequestExpired is returned when a fulfillment arrives after the grace
	// window expired the request.
	ErrRequestExpired = &Error{Kind: KindConflict, msg: "reservation request has expired"}

	// ErrRequestNotNotified is returned when a fulfillment is attempted on a
	// request that was never promoted to NOTIFIED.
	ErrRequestNotNotified = &Error{Kind: KindConflict, msg: "reservation request is not notified"}

	// ErrRequestNotPending is returned when a rejection is attempted on a
	// request that already left PENDING.
	ErrRequestNotPending = &Error{Kind: KindConflict, msg: "reservation request is not pending"}
)

// KindOf reports the Kind for a service error; anything untyped (driver or
// network failure) maps to KindUnavailable.
func KindOf(err error) Kind {
	var typed *Error
	if !errors.As(err, &typed) {
		return KindUnavailable
	}
	return typed.Kind
}

// isUniqueViolation checks for a unique-constraint violation from the store.
// PostgreSQL reports code 23505; SQLite reports "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") || strings.Contains(msg, "UNIQUE constraint failed")
}
