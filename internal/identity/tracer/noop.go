package tracer

import (
	"context"
	"sync"
)

// NoopTracer is a tracer that does nothing.
type NoopTracer struct{}

// NewNoop creates a new no-op tracer.
func NewNoop() *NoopTracer {
	return &NoopTracer{}
}

// Start returns the context unchanged and a no-op span.
func (t *NoopTracer) Start(ctx context.Context, _ string, _ ...Attribute) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(_ error)                       {}
func (noopSpan) SetAttributes(_ ...Attribute)      {}
func (noopSpan) AddEvent(_ string, _ ...Attribute) {}

// RecordedSpan is a finished span captured by a Recorder.
type RecordedSpan struct {
	Name   string
	Attrs  []Attribute
	Events []string
	Err    error
}

// Recorder is an in-memory tracer for tests that need to assert on spans.
type Recorder struct {
	mu    sync.Mutex
	spans []RecordedSpan
}

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start begins a span that is captured when it ends.
func (r *Recorder) Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span) {
	return ctx, &recordedSpan{rec: r, span: RecordedSpan{Name: name, Attrs: attrs}}
}

// Spans returns the finished spans in completion order.
func (r *Recorder) Spans() []RecordedSpan {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedSpan, len(r.spans))
	copy(out, r.spans)
	return out
}

// Events returns every event name recorded on spans called name.
func (r *Recorder) Events(name string) []string {
	var events []string
	for _, s := range r.Spans() {
		if s.Name == name {
			events = append(events, s.Events...)
		}
	}
	return events
}

type recordedSpan struct {
	rec  *Recorder
	mu   sync.Mutex
	span RecordedSpan
}

func (s *recordedSpan) End(err error) {
	s.mu.Lock()
	s.span.Err = err
	finished := s.span
	s.mu.Unlock()

	s.rec.mu.Lock()
	s.rec.spans = append(s.rec.spans, finished)
	s.rec.mu.Unlock()
}

func (s *recordedSpan) SetAttributes(attrs ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.Attrs = append(s.span.Attrs, attrs...)
}

func (s *recordedSpan) AddEvent(name string, _ ...Attribute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.span.Events = append(s.span.Events, name)
}

var (
	_ Tracer = (*NoopTracer)(nil)
	_ Tracer = (*Recorder)(nil)
	_ Span   = noopSpan{}
	_ Span   = (*recordedSpan)(nil)
)
