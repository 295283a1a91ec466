package contentstore

import (
	"errors"
	"fmt"
)

// Kind classifies content store failures for callers.
type Kind string

const (
	// KindUnavailable means the pinning endpoint could not be reached or no
	// write credential is configured.
	KindUnavailable Kind = "storage_unavailable"

	// KindRejected means the pinning endpoint answered with a non-success status
	// or an unusable body.
	KindRejected Kind = "storage_rejected"

	// KindContentUnavailable means every configured gateway failed to serve the content.
	KindContentUnavailable Kind = "content_unavailable"

	// KindMisconfigured means the store cannot accept writes as configured
	// (missing or expired credential).
	KindMisconfigured Kind = "misconfigured_storage"
)

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrStorageUnavailable = &Error{Kind: KindUnavailable}
	ErrStorageRejected    = &Error{Kind: KindRejected}
	ErrContentUnavailable = &Error{Kind: KindContentUnavailable}
	ErrMisconfigured      = &Error{Kind: KindMisconfigured}
)

// Error is a categorized content store failure.
type Error struct {
	Kind Kind
	Op   string
	// Status is the HTTP status of a rejected upload.
	Status int
	// Attempts is the number of gateways tried before giving up.
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Attempts != 0 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Status == 0 && t.Attempts == 0 && t.Err == nil && t.Kind == e.Kind
}

// KindOf extracts the failure kind, or "" when err is not a content store error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// FailureCategory classifies a single gateway attempt.
type FailureCategory string

const (
	FailureNetwork FailureCategory = "network"
	FailureTimeout FailureCategory = "timeout"
	FailureStatus  FailureCategory = "status"
	FailureParse   FailureCategory = "parse"
)

// GatewayError records why one gateway attempt failed.
type GatewayError struct {
	Gateway  string
	Category FailureCategory
	Status   int
	Err      error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("gateway %s [%s]: status %d", e.Gateway, e.Category, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("gateway %s [%s]: %v", e.Gateway, e.Category, e.Err)
	default:
		return fmt.Sprintf("gateway %s [%s]", e.Gateway, e.Category)
	}
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
