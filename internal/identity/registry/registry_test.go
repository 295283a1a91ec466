package registry

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorClassification(t *testing.T) {
	t.Run("transport errors unwrap to their cause", func(t *testing.T) {
		cause := errors.New("dial tcp: connection refused")
		err := Transport("read pointer", cause)
		assert.True(t, IsTransport(err))
		assert.ErrorIs(t, err, cause)
		assert.Contains(t, err.Error(), "read pointer")
	})

	t.Run("absence is never wrapped as transport", func(t *testing.T) {
		err := Transport("read pointer", fmt.Errorf("revert: %w", ErrAbsent))
		assert.False(t, IsTransport(err))
		assert.ErrorIs(t, err, ErrAbsent)
	})

	t.Run("transport is not double wrapped", func(t *testing.T) {
		inner := &TransportError{Op: "read record", Err: errors.New("eof")}
		assert.Same(t, inner, Transport("outer", inner))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Transport("x", nil))
	})

	t.Run("rejected error matches sentinel", func(t *testing.T) {
		err := fmt.Errorf("await: %w", &RejectedError{SubmissionID: "0xabc", Reason: "status 0"})
		assert.ErrorIs(t, err, ErrRejected)
		var re *RejectedError
		assert.True(t, errors.As(err, &re))
		assert.Equal(t, "0xabc", re.SubmissionID)
	})

	t.Run("validation", func(t *testing.T) {
		err := &ValidationError{Field: "pointer", Reason: "required"}
		assert.True(t, IsValidation(err))
		assert.False(t, IsTransport(err))
	})
}
