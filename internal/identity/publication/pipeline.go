// Package publication mints identities: it uploads the optional asset and the
// metadata document to content storage, then commits the metadata pointer to
// the registry and waits for the ledger to finalize it.
package publication

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"didgate/internal/identity/events"
	"didgate/internal/identity/metrics"
	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/tracer"
	"didgate/pkg/domain"
	dErrors "didgate/pkg/domain-errors"
	psync "didgate/pkg/platform/sync"
	"didgate/pkg/validation"
)

//go:generate mockgen -source=pipeline.go -destination=mocks/mocks.go -package=mocks ContentWriter,EventPublisher

// ContentWriter is the write half of the content store.
type ContentWriter interface {
	// WriteReady reports whether uploads can be attempted at all.
	WriteReady() error
	StoreBytes(ctx context.Context, name string, payload []byte) (models.ContentRef, error)
	StoreJSON(ctx context.Context, document any) (models.ContentRef, error)
}

// EventPublisher receives lifecycle events after confirmation.
type EventPublisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Input is a publication request.
type Input struct {
	// Caller is the connected wallet. The zero address means not connected.
	Caller      domain.Address `validate:"-"`
	Name        string         `validate:"required,notblank,max=256"`
	Email       string         `validate:"required,email,max=320"`
	Description string         `validate:"max=2048"`
	Asset       *models.Asset  `validate:"-"`
}

// Outcome describes a confirmed publication.
type Outcome struct {
	Owner        domain.Address
	MetadataRef  models.ContentRef
	ImageRef     models.ContentRef
	Metadata     models.Metadata
	Submission   registry.Submission
	Confirmation registry.Confirmation
	InputDigest  string
}

// ClearOutcome describes a confirmed identity removal.
type ClearOutcome struct {
	Owner        domain.Address
	Submission   registry.Submission
	Confirmation registry.Confirmation
}

// Pipeline runs publications. It holds no per-request state and is safe for
// concurrent use.
type Pipeline struct {
	store    ContentWriter
	registry registry.Connector
	events   EventPublisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   tracer.Tracer
	now      func() time.Time
	owners   *psync.ShardedMutex
}

// Option configures a Pipeline.
type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(p *Pipeline) {
		p.tracer = t
	}
}

func WithEvents(pub EventPublisher) Option {
	return func(p *Pipeline) {
		p.events = pub
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		p.now = now
	}
}

// New creates a publication pipeline. A nil store makes every publication
// fail with ErrMisconfiguredStorage.
func New(store ContentWriter, reg registry.Connector, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:    store,
		registry: reg,
		logger:   slog.Default(),
		tracer:   tracer.NewNoop(),
		now:      time.Now,
		owners:   psync.NewShardedMutex(0),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish runs the publication steps strictly in order and stops at the
// first failure. Nothing is retried: calling Publish again uploads again and
// yields new content identifiers.
func (p *Pipeline) Publish(ctx context.Context, in Input) (out *Outcome, err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanPublish, tracer.String(tracer.AttrAddress, in.Caller.String()))
	defer func() {
		span.End(err)
		p.recordOutcome(err)
	}()

	writer, err := p.preflight(ctx, in)
	if err != nil {
		return nil, err
	}

	out = &Outcome{Owner: in.Caller, InputDigest: InputDigest(in)}
	logger := p.logger.With("address", in.Caller.String(), "input_digest", out.InputDigest)

	if in.Asset != nil {
		err = p.stage(ctx, StageAssetUpload, func(ctx context.Context) error {
			ref, err := p.store.StoreBytes(ctx, assetName(in.Asset), in.Asset.Data)
			out.ImageRef = ref
			return err
		})
		if err != nil {
			logger.WarnContext(ctx, "asset upload failed", "stage", StageAssetUpload, "error", err)
			return nil, failed(StageAssetUpload, err)
		}
	}

	out.Metadata = models.Metadata{
		Name:        strings.TrimSpace(in.Name),
		Email:       strings.TrimSpace(in.Email),
		Description: strings.TrimSpace(in.Description),
		CreatedAt:   models.NewTimestamp(p.now()),
	}
	if out.Metadata.Description == "" {
		out.Metadata.Description = models.DefaultDescription
	}
	if !out.ImageRef.IsEmpty() {
		out.Metadata.Image = models.ContentRef(out.ImageRef.URI())
	}

	err = p.stage(ctx, StageMetadataUpload, func(ctx context.Context) error {
		ref, err := p.store.StoreJSON(ctx, out.Metadata)
		out.MetadataRef = ref
		return err
	})
	if err != nil {
		logger.WarnContext(ctx, "metadata upload failed", "stage", StageMetadataUpload, "error", err)
		return nil, failed(StageMetadataUpload, err)
	}

	sub, conf, err := p.commit(ctx, in.Caller, writer, func(ctx context.Context) (registry.Submission, error) {
		return writer.WritePointer(ctx, models.Pointer(out.MetadataRef.Bare()))
	})
	if err != nil {
		logger.WarnContext(ctx, "registry commit failed",
			"stage", StageOf(err),
			"metadata_ref", out.MetadataRef.Bare(),
			"error", err,
		)
		return nil, err
	}
	out.Submission = sub
	out.Confirmation = conf

	span.AddEvent(tracer.EventPublished, tracer.String(tracer.AttrSubmission, sub.ID))
	logger.InfoContext(ctx, "identity published",
		"metadata_ref", out.MetadataRef.Bare(),
		"image_ref", out.ImageRef.Bare(),
		"submission_id", sub.ID,
		"block", conf.Block,
	)

	ev := events.NewEvent(events.TypePublished, in.Caller, p.now())
	ev.Pointer = out.MetadataRef.Bare()
	ev.Image = out.Metadata.Image.URI()
	ev.SubmissionID = sub.ID
	ev.Version = conf.Version
	p.emit(ctx, ev)

	return out, nil
}

// Clear revokes the caller's identity.
func (p *Pipeline) Clear(ctx context.Context, caller domain.Address) (out *ClearOutcome, err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanClear, tracer.String(tracer.AttrAddress, caller.String()))
	defer func() { span.End(err) }()

	writer, err := p.connect(ctx, caller)
	if err != nil {
		return nil, err
	}

	sub, conf, err := p.commit(ctx, caller, writer, writer.ClearPointer)
	if err != nil {
		p.logger.WarnContext(ctx, "identity clear failed",
			"address", caller.String(),
			"stage", StageOf(err),
			"error", err,
		)
		return nil, err
	}

	p.logger.InfoContext(ctx, "identity cleared", "address", caller.String(), "submission_id", sub.ID)
	ev := events.NewEvent(events.TypeCleared, caller, p.now())
	ev.SubmissionID = sub.ID
	p.emit(ctx, ev)

	return &ClearOutcome{Owner: caller, Submission: sub, Confirmation: conf}, nil
}

// preflight checks every precondition before any upload happens.
func (p *Pipeline) preflight(ctx context.Context, in Input) (registry.Writer, error) {
	if in.Caller.IsNil() {
		return nil, ErrNotConnected
	}
	if p.store == nil {
		return nil, ErrMisconfiguredStorage
	}
	if err := p.store.WriteReady(); err != nil {
		return nil, errors.Join(ErrMisconfiguredStorage, err)
	}
	if err := validation.Validate(in); err != nil {
		return nil, &ValidationError{Field: fieldOf(err), Message: err.Error(), Err: err}
	}
	if in.Asset != nil && len(in.Asset.Data) == 0 {
		return nil, &ValidationError{Field: "image", Message: "image must not be empty"}
	}
	return p.connect(ctx, in.Caller)
}

func (p *Pipeline) connect(ctx context.Context, caller domain.Address) (registry.Writer, error) {
	if caller.IsNil() || p.registry == nil {
		return nil, ErrNotConnected
	}
	w, err := p.registry.Connect(ctx, caller)
	if errors.Is(err, registry.ErrNotConnected) {
		return nil, errors.Join(ErrNotConnected, err)
	}
	if err != nil {
		return nil, failed(StageRegistryWrite, err)
	}
	return w, nil
}

// commit submits a registry change and waits for it to finalize. A
// synchronous validation failure is returned as is; anything else is tagged
// with the stage it happened in.
//
// Changes for one owner are committed one at a time, so confirmation order
// matches submission order.
func (p *Pipeline) commit(ctx context.Context, caller domain.Address, w registry.Writer, submit func(context.Context) (registry.Submission, error)) (registry.Submission, registry.Confirmation, error) {
	owner := caller.String()
	if err := p.owners.Lock(ctx, owner); err != nil {
		return registry.Submission{}, registry.Confirmation{}, failed(StageRegistryWrite, err)
	}
	defer p.owners.Unlock(owner)

	var sub registry.Submission
	err := p.stage(ctx, StageRegistryWrite, func(ctx context.Context) error {
		var err error
		sub, err = submit(ctx)
		return err
	})
	if err != nil {
		var ve *registry.ValidationError
		if errors.As(err, &ve) {
			return sub, registry.Confirmation{}, &ValidationError{Field: ve.Field, Message: ve.Error(), Err: err}
		}
		return sub, registry.Confirmation{}, failed(StageRegistryWrite, err)
	}

	var conf registry.Confirmation
	start := time.Now()
	err = p.stage(ctx, StageConfirmation, func(ctx context.Context) error {
		var err error
		conf, err = w.AwaitConfirmation(ctx, sub)
		return err
	})
	p.metrics.ObserveConfirmation(time.Since(start).Seconds())
	if err != nil {
		return sub, registry.Confirmation{}, failed(StageConfirmation, err)
	}
	return sub, conf, nil
}

func (p *Pipeline) stage(ctx context.Context, stage Stage, fn func(context.Context) error) (err error) {
	ctx, span := p.tracer.Start(ctx, tracer.SpanPublishStage, tracer.String(tracer.AttrStage, string(stage)))
	defer func() { span.End(err) }()
	return fn(ctx)
}

// emit publishes best effort: the ledger write is already final.
func (p *Pipeline) emit(ctx context.Context, ev events.Event) {
	if p.events == nil {
		return
	}
	if err := p.events.Publish(ctx, ev); err != nil {
		p.logger.ErrorContext(ctx, "failed to publish identity event",
			"event_type", ev.Type,
			"address", ev.Address,
			"error", err,
		)
	}
}

func (p *Pipeline) recordOutcome(err error) {
	switch {
	case err == nil:
		p.metrics.RecordPublication("published", "")
	case StageOf(err) != "":
		p.metrics.RecordPublication("failed", string(StageOf(err)))
	default:
		p.metrics.RecordPublication("refused", "")
	}
}

func assetName(a *models.Asset) string {
	if name := strings.TrimSpace(a.Filename); name != "" {
		return name
	}
	return "asset"
}

func fieldOf(err error) string {
	var de *dErrors.Error
	if errors.As(err, &de) {
		return de.Details["field"]
	}
	return ""
}
