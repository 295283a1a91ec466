// Package registry defines the ledger-side port of the identity pipelines:
// reading an owner's identity pointer and record, and submitting pointer
// writes that finalize asynchronously.
package registry

import (
	"context"
	"time"

	"didgate/internal/identity/models"
	"didgate/pkg/domain"
)

//go:generate mockgen -source=registry.go -destination=mocks/mocks.go -package=mocks Reader,Writer,Connector

// Reader answers existence and record queries for any owner.
type Reader interface {
	// ReadPointer returns the owner's current pointer. A missing identity is
	// reported as ErrAbsent; failure to reach the ledger as *TransportError.
	ReadPointer(ctx context.Context, owner domain.Address) (models.Pointer, error)

	// ReadRecord returns the richer record. It fails independently of
	// ReadPointer and reports a missing identity as ErrAbsent.
	ReadRecord(ctx context.Context, owner domain.Address) (*models.Record, error)
}

// Writer submits changes on behalf of one connected wallet.
type Writer interface {
	// Owner is the wallet the writer signs for.
	Owner() domain.Address

	// WritePointer submits a pointer replacement. An empty pointer fails with
	// *ValidationError before the ledger is contacted.
	WritePointer(ctx context.Context, ptr models.Pointer) (Submission, error)

	// ClearPointer submits removal of the owner's identity.
	ClearPointer(ctx context.Context) (Submission, error)

	// AwaitConfirmation blocks until the submission is finalized or rejected
	// (ErrRejected).
	AwaitConfirmation(ctx context.Context, sub Submission) (Confirmation, error)
}

// Connector binds a Writer to a wallet. It fails with ErrNotConnected when
// the backend cannot sign for owner.
type Connector interface {
	Connect(ctx context.Context, owner domain.Address) (Writer, error)
}

// Client is a complete registry backend.
type Client interface {
	Reader
	Connector
	// Ping reports whether the ledger is reachable.
	Ping(ctx context.Context) error
	Close() error
}

// SubmissionKind distinguishes pointer writes from clears.
type SubmissionKind string

const (
	SubmissionWrite SubmissionKind = "write"
	SubmissionClear SubmissionKind = "clear"
)

// Submission identifies an accepted but not yet finalized ledger change.
type Submission struct {
	ID          string
	Kind        SubmissionKind
	Owner       domain.Address
	Pointer     models.Pointer
	SubmittedAt time.Time
}

// Confirmation describes a finalized submission. Block and Version are zero
// when the backend does not know them.
type Confirmation struct {
	SubmissionID string
	Block        uint64
	Version      uint64
	ConfirmedAt  time.Time
}
