package testutil

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRunConcurrent(t *testing.T) {
	res := RunConcurrent(context.Background(), 10, func(_ context.Context, idx int) error {
		if idx%2 == 0 {
			return errors.New("even")
		}
		return nil
	})

	assert.Equal(t, 10, res.Total())
	assert.Equal(t, 5, res.Successes)
	assert.Len(t, res.Errors, 5)
}
