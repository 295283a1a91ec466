package publication

import (
	"errors"
	"fmt"
)

// Stage names the publication step that failed.
type Stage string

const (
	StageAssetUpload    Stage = "asset-upload"
	StageMetadataUpload Stage = "metadata-upload"
	StageRegistryWrite  Stage = "registry-write"
	StageConfirmation   Stage = "confirmation"
)

var (
	// ErrNotConnected means no wallet was supplied or the registry cannot sign for it.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrMisconfiguredStorage means the content store cannot accept writes.
	ErrMisconfiguredStorage = errors.New("content storage not configured")

	// ErrPublicationFailed matches every *Error.
	ErrPublicationFailed = errors.New("publication failed")
)

// ValidationError reports rejected input. No external call has been made.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// Error is a stage-tagged publication failure. Stages before Stage completed;
// content already uploaded stays uploaded.
type Error struct {
	Stage Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("publication failed at %s: %v", e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrPublicationFailed
}

// StageOf returns the failing stage, or "" when err is not a publication failure.
func StageOf(err error) Stage {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Stage
	}
	return ""
}

func failed(stage Stage, err error) error {
	return &Error{Stage: stage, Err: err}
}
