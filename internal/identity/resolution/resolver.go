package resolution

import (
	"context"
	"fmt"
	"time"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/tracer"
	"didgate/pkg/domain"
)

// Result is the settled view state of a one-shot resolution and the
// transitions that led to it.
type Result struct {
	State       models.ViewState
	Transitions []Transition
}

// Resolver runs one throwaway Session per call.
type Resolver struct {
	reader  registry.Reader
	fetcher MetadataFetcher
	opts    []Option
	options
}

// NewResolver creates a Resolver.
func NewResolver(reader registry.Reader, fetcher MetadataFetcher, opts ...Option) *Resolver {
	return &Resolver{
		reader:  reader,
		fetcher: fetcher,
		opts:    opts,
		options: newOptions(opts),
	}
}

// Resolve drives a session for addr until its state settles, or until the
// record grace has passed after metadata loaded. NotFound and
// Failed are results, not errors; an error means ctx ended first.
func (r *Resolver) Resolve(ctx context.Context, addr domain.Address) (res *Result, err error) {
	ctx, span := r.tracer.Start(ctx, tracer.SpanResolve, tracer.String(tracer.AttrAddress, addr.String()))
	defer func() { span.End(err) }()

	if addr.IsNil() {
		r.metrics.RecordResolution(string(models.PhaseDisconnected))
		return &Result{State: models.Disconnected{}}, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	session := NewSession(r.reader, r.fetcher, r.opts...)
	updates := session.Subscribe(4)
	done := make(chan error, 1)
	go func() { done <- session.Run(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	if err := session.SetAddress(ctx, addr); err != nil {
		return nil, fmt.Errorf("resolve %s: %w", addr, err)
	}

	res = &Result{}
	var grace <-chan time.Time
	for {
		select {
		case tr, ok := <-updates:
			if !ok {
				return nil, fmt.Errorf("resolve %s: %w", addr, context.Cause(ctx))
			}
			res.Transitions = append(res.Transitions, tr)
			span.AddEvent(tracer.EventTransition, tracer.String(tracer.AttrPhase, string(tr.To.Phase())))
			if tr.Settled {
				return r.finish(ctx, span, addr, res, tr.To), nil
			}
			// Metadata is in but the record read is still pending.
			if _, loaded := tr.To.(models.Loaded); loaded && grace == nil {
				timer := time.NewTimer(r.recordGrace)
				defer timer.Stop()
				grace = timer.C
			}
		case <-grace:
			last := res.Transitions[len(res.Transitions)-1].To
			r.logger.DebugContext(ctx, "record read still pending, returning metadata",
				"address", addr.String(),
				"grace", r.recordGrace,
			)
			return r.finish(ctx, span, addr, res, last), nil
		case <-ctx.Done():
			return nil, fmt.Errorf("resolve %s: %w", addr, context.Cause(ctx))
		}
	}
}

func (r *Resolver) finish(ctx context.Context, span tracer.Span, addr domain.Address, res *Result, state models.ViewState) *Result {
	res.State = state
	span.SetAttributes(tracer.String(tracer.AttrPhase, string(state.Phase())))
	r.metrics.RecordResolution(string(state.Phase()))
	r.logger.InfoContext(ctx, "identity resolved",
		"address", addr.String(),
		"phase", state.Phase(),
		"transitions", len(res.Transitions),
	)
	return res
}
