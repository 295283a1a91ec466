// Package ledger provides development registry backends that honor the same
// contract as the on-chain registry: pointer writes are submitted first and
// take effect when the submission is awaited.
package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

// Error Contract:
// - ReadPointer / ReadRecord return registry.ErrAbsent when the owner has no identity
// - Infrastructure failures are wrapped as *registry.TransportError
// - WritePointer returns *registry.ValidationError for an empty pointer without touching storage
// - AwaitConfirmation on an unknown submission returns *registry.RejectedError

func validatePointer(ptr models.Pointer) error {
	if strings.TrimSpace(ptr.String()) == "" {
		return &registry.ValidationError{Field: "pointer", Reason: "document string required"}
	}
	return nil
}

func newSubmission(kind registry.SubmissionKind, owner domain.Address, ptr models.Pointer, now time.Time) registry.Submission {
	return registry.Submission{
		ID:          uuid.NewString(),
		Kind:        kind,
		Owner:       owner,
		Pointer:     ptr,
		SubmittedAt: now,
	}
}

func unknownSubmission(id string) error {
	return &registry.RejectedError{SubmissionID: id, Reason: "unknown submission"}
}
