package resolution

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"didgate/internal/identity/metrics"
	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/tracer"
	"didgate/pkg/domain"
)

// ErrSessionRunning is returned by Run when the session loop is already active.
var ErrSessionRunning = errors.New("resolution session already running")

// MetadataFetcher is the read half of the content store.
type MetadataFetcher interface {
	FetchJSON(ctx context.Context, ref models.ContentRef) (*models.Metadata, error)
}

// Transition is one replacement of the view state.
type Transition struct {
	From       models.ViewState
	To         models.ViewState
	Generation uint64
	// Settled is true when no in-flight read can change To any more.
	Settled bool
	At      time.Time
}

const defaultRecordGrace = 250 * time.Millisecond

type options struct {
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  tracer.Tracer
	now     func() time.Time
	// recordGrace bounds how long a one-shot resolution holds a Loaded
	// state waiting for the registry record.
	recordGrace time.Duration
}

// Option configures a Session or Resolver.
type Option func(*options)

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) {
		o.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(o *options) {
		o.tracer = t
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// WithRecordGrace sets how long Resolve waits for the registry record once
// metadata has loaded. Past it, Loaded is returned with an unknown record.
func WithRecordGrace(d time.Duration) Option {
	return func(o *options) {
		o.recordGrace = d
	}
}

func newOptions(opts []Option) options {
	o := options{
		logger:      slog.Default(),
		tracer:      tracer.NewNoop(),
		now:         time.Now,
		recordGrace: defaultRecordGrace,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Session owns the view state for one caller. The state lives on the Run
// goroutine; reads and fetches run on their own goroutines and report back
// through the event channel tagged with the generation that issued them.
type Session struct {
	reader  registry.Reader
	fetcher MetadataFetcher
	options

	events  chan Event
	running atomic.Bool
	current atomic.Pointer[Transition]

	mu          sync.Mutex
	subscribers []chan Transition
}

// NewSession creates a session in the Disconnected state. Call Run to start it.
func NewSession(reader registry.Reader, fetcher MetadataFetcher, opts ...Option) *Session {
	s := &Session{
		reader:  reader,
		fetcher: fetcher,
		options: newOptions(opts),
		events:  make(chan Event, 16),
	}
	s.current.Store(&Transition{To: models.Disconnected{}, Settled: true})
	return s
}

// State returns the latest view state. Safe to call from any goroutine.
func (s *Session) State() models.ViewState {
	return s.current.Load().To
}

// Subscribe returns a channel receiving every transition in order. The
// channel is closed when Run returns. Subscribers must keep draining: the
// loop waits for each delivery.
func (s *Session) Subscribe(buffer int) <-chan Transition {
	ch := make(chan Transition, buffer)
	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()
	return ch
}

// SetAddress switches the session to addr. Results still in flight for the
// previous address are cancelled and ignored.
func (s *Session) SetAddress(ctx context.Context, addr domain.Address) error {
	select {
	case s.events <- AddressChanged{Address: addr}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run processes events until ctx ends.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrSessionRunning
	}

	m := NewMachine()
	genCtx, cancelGen := context.WithCancel(ctx)
	defer func() {
		cancelGen()
		s.closeSubscribers()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-s.events:
			if Stale(m, ev) {
				s.metrics.IncrementStaleDropped()
				s.logger.DebugContext(ctx, "dropped stale resolution result",
					"generation", m.Generation(),
				)
				continue
			}

			next, cmds := Reduce(m, ev)
			if next.Generation() != m.Generation() {
				cancelGen()
				genCtx, cancelGen = context.WithCancel(ctx)
			}
			if next.Revision() != m.Revision() {
				s.publish(ctx, Transition{
					From:       m.State(),
					To:         next.State(),
					Generation: next.Generation(),
					Settled:    next.Settled(),
					At:         s.now(),
				})
			} else if next.Settled() && !m.Settled() {
				// A late record read can settle Loaded without changing it.
				s.publish(ctx, Transition{
					From:       next.State(),
					To:         next.State(),
					Generation: next.Generation(),
					Settled:    true,
					At:         s.now(),
				})
			}
			m = next

			for _, cmd := range cmds {
				s.dispatch(genCtx, ctx, cmd)
			}
		}
	}
}

// dispatch runs cmd in the background. The command observes genCtx so an
// address change cancels it; the result is posted for as long as the loop runs.
func (s *Session) dispatch(genCtx, loopCtx context.Context, cmd Command) {
	go func() {
		var ev Event
		switch c := cmd.(type) {
		case ReadPointer:
			ptr, err := s.reader.ReadPointer(genCtx, c.Address)
			ev = PointerRead{Generation: c.Generation, Pointer: ptr, Err: err}
		case ReadRecord:
			rec, err := s.reader.ReadRecord(genCtx, c.Address)
			ev = RecordRead{Generation: c.Generation, Record: rec, Err: err}
		case FetchMetadata:
			md, err := s.fetcher.FetchJSON(genCtx, c.Ref)
			ev = MetadataFetched{Generation: c.Generation, Metadata: md, Err: err}
		default:
			return
		}
		select {
		case s.events <- ev:
		case <-loopCtx.Done():
		}
	}()
}

func (s *Session) publish(ctx context.Context, tr Transition) {
	s.current.Store(&tr)
	s.logger.DebugContext(ctx, "resolution transition",
		"address", models.AddressOf(tr.To).String(),
		"from", tr.From.Phase(),
		"to", tr.To.Phase(),
		"generation", tr.Generation,
	)

	s.mu.Lock()
	subs := append([]chan Transition(nil), s.subscribers...)
	s.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- tr:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Session) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subscribers {
		close(ch)
	}
	s.subscribers = nil
}
