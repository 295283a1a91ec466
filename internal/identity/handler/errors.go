package handler

import (
	"errors"

	"didgate/internal/identity/contentstore"
	"didgate/internal/identity/publication"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/resolution"
	dErrors "didgate/pkg/domain-errors"
)

// toDomainError maps pipeline errors onto domain error codes for the
// HTTP layer.
func toDomainError(err error) error {
	var validation *publication.ValidationError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &validation):
		return dErrors.WithDetail(dErrors.Wrap(err, dErrors.CodeValidation, validation.Message), "field", validation.Field)
	case errors.Is(err, publication.ErrNotConnected), errors.Is(err, registry.ErrNotConnected):
		return dErrors.Wrap(err, dErrors.CodeUnauthorized, "wallet not connected")
	case errors.Is(err, publication.ErrMisconfiguredStorage), errors.Is(err, contentstore.ErrMisconfigured):
		return dErrors.Wrap(err, dErrors.CodeMisconfigured, "content storage is not configured")
	case errors.Is(err, registry.ErrMisconfigured):
		return dErrors.Wrap(err, dErrors.CodeMisconfigured, "registry is not configured")
	case errors.Is(err, publication.ErrPublicationFailed):
		return dErrors.WithDetail(dErrors.Wrap(err, dErrors.CodeUpstream, err.Error()), "stage", string(publication.StageOf(err)))
	case errors.Is(err, contentstore.ErrContentUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "content unavailable")
	case errors.Is(err, resolution.ErrRegistryUnreachable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, "registry unreachable")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "internal error")
	}
}
