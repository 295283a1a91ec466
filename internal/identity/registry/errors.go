package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrAbsent means the ledger answered and the owner has no identity. It is
	// benign: resolution turns it into the NotFound state.
	ErrAbsent = errors.New("registry: identity absent")

	// ErrRejected means a submission was finalized as failed.
	ErrRejected = errors.New("registry: submission rejected")

	// ErrNotConnected means the backend cannot sign for the requested wallet.
	ErrNotConnected = errors.New("registry: wallet not connected")

	// ErrMisconfigured means the backend has no usable registry location.
	ErrMisconfigured = errors.New("registry: misconfigured")
)

// TransportError wraps a failure to reach or query the ledger.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("registry %s: transport: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ValidationError reports input refused before any ledger contact.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("registry: invalid %s: %s", e.Field, e.Reason)
}

// RejectedError carries the reason a submission was rejected. It matches ErrRejected.
type RejectedError struct {
	SubmissionID string
	Reason       string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("registry: submission %s rejected: %s", e.SubmissionID, e.Reason)
}

func (e *RejectedError) Is(target error) bool {
	return target == ErrRejected
}

// IsTransport reports whether err is a ledger transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsValidation reports whether err is a synchronous input validation failure.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Transport wraps err as a *TransportError unless it already is one or is a
// benign absence.
func Transport(op string, err error) error {
	if err == nil || errors.Is(err, ErrAbsent) || IsTransport(err) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}
