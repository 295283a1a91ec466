package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

// Memory is an in-process ledger for tests and local development.
type Memory struct {
	mu        sync.RWMutex
	records   map[domain.Address]models.Record
	pending   map[string]registry.Submission
	confirmed map[string]registry.Confirmation
	height    uint64
	now       func() time.Time
}

// MemoryOption configures a Memory ledger.
type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.now = now
	}
}

// NewMemory constructs an empty in-memory ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		records:   make(map[domain.Address]models.Record),
		pending:   make(map[string]registry.Submission),
		confirmed: make(map[string]registry.Confirmation),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) ReadPointer(ctx context.Context, owner domain.Address) (models.Pointer, error) {
	if err := ctx.Err(); err != nil {
		return "", registry.Transport("read pointer", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[owner]
	if !ok || rec.Pointer.IsAbsent() {
		return "", registry.ErrAbsent
	}
	return rec.Pointer, nil
}

func (m *Memory) ReadRecord(ctx context.Context, owner domain.Address) (*models.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, registry.Transport("read record", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[owner]
	if !ok {
		return nil, registry.ErrAbsent
	}
	out := rec
	return &out, nil
}

// Connect binds a writer to owner. The development ledger trusts any wallet.
func (m *Memory) Connect(_ context.Context, owner domain.Address) (registry.Writer, error) {
	if owner.IsNil() {
		return nil, registry.ErrNotConnected
	}
	return &memoryWriter{ledger: m, owner: owner}, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Seed installs a confirmed record directly, bypassing submission.
func (m *Memory) Seed(owner domain.Address, ptr models.Pointer) models.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applyLocked(registry.Submission{Kind: registry.SubmissionWrite, Owner: owner, Pointer: ptr})
}

func (m *Memory) submit(ctx context.Context, sub registry.Submission) (registry.Submission, error) {
	if err := ctx.Err(); err != nil {
		return registry.Submission{}, registry.Transport("submit", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[sub.ID] = sub
	return sub, nil
}

func (m *Memory) await(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	if err := ctx.Err(); err != nil {
		return registry.Confirmation{}, fmt.Errorf("await %s: %w", sub.ID, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if c, ok := m.confirmed[sub.ID]; ok {
		return c, nil
	}
	pending, ok := m.pending[sub.ID]
	if !ok {
		return registry.Confirmation{}, unknownSubmission(sub.ID)
	}
	delete(m.pending, sub.ID)

	rec := m.applyLocked(pending)
	c := registry.Confirmation{
		SubmissionID: sub.ID,
		Block:        m.height,
		Version:      rec.Version,
		ConfirmedAt:  m.now(),
	}
	m.confirmed[sub.ID] = c
	return c, nil
}

func (m *Memory) applyLocked(sub registry.Submission) models.Record {
	m.height++
	// A clear leaves a tombstone with an absent pointer so the version keeps
	// counting across clear and re-publish.
	rec := m.records[sub.Owner]
	rec.Pointer = sub.Pointer
	if sub.Kind == registry.SubmissionClear {
		rec.Pointer = ""
	}
	rec.Version++
	rec.UpdatedAt = m.now().UTC()
	rec.LastUpdater = sub.Owner
	m.records[sub.Owner] = rec
	return rec
}

type memoryWriter struct {
	ledger *Memory
	owner  domain.Address
}

func (w *memoryWriter) Owner() domain.Address { return w.owner }

func (w *memoryWriter) WritePointer(ctx context.Context, ptr models.Pointer) (registry.Submission, error) {
	if err := validatePointer(ptr); err != nil {
		return registry.Submission{}, err
	}
	return w.ledger.submit(ctx, newSubmission(registry.SubmissionWrite, w.owner, ptr, w.ledger.now()))
}

func (w *memoryWriter) ClearPointer(ctx context.Context) (registry.Submission, error) {
	return w.ledger.submit(ctx, newSubmission(registry.SubmissionClear, w.owner, "", w.ledger.now()))
}

func (w *memoryWriter) AwaitConfirmation(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	return w.ledger.await(ctx, sub)
}
