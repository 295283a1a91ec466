package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
)

func TestMemoryLedgerContract(t *testing.T) {
	suite.Run(t, &LedgerContractSuite{
		reset: func() registry.Client { return NewMemory() },
	})
}

func TestMemorySeed(t *testing.T) {
	at := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	m := NewMemory(WithMemoryClock(func() time.Time { return at }))

	rec := m.Seed(alice, models.Pointer(cidA))
	assert.Equal(t, uint64(1), rec.Version)

	got, err := m.ReadRecord(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, at, got.UpdatedAt)
	assert.Equal(t, alice, got.LastUpdater)
}

func TestMemoryCancelledContextIsTransport(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.ReadPointer(ctx, alice)
	assert.True(t, registry.IsTransport(err))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryRecordIsCopied(t *testing.T) {
	m := NewMemory()
	m.Seed(alice, models.Pointer(cidA))

	rec, err := m.ReadRecord(context.Background(), alice)
	require.NoError(t, err)
	rec.Pointer = "tampered"

	ptr, err := m.ReadPointer(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, models.Pointer(cidA), ptr)
}
