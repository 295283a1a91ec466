package publication

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"didgate/internal/identity/contentstore"
	"didgate/internal/identity/events"
	"didgate/internal/identity/metrics"
	"didgate/internal/identity/models"
	"didgate/internal/identity/publication/mocks"
	"didgate/internal/identity/registry"
	"didgate/internal/identity/registry/ledger"
	registrymocks "didgate/internal/identity/registry/mocks"
	"didgate/pkg/domain"
	fixtures "didgate/pkg/testutil"
)

const (
	metadataCID = fixtures.MetadataCID
	imageCID    = fixtures.ImageCID
)

var ada = fixtures.Ada

type PipelineSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	store    *mocks.MockContentWriter
	events   *mocks.MockEventPublisher
	ledger   *ledger.Memory
	metrics  *metrics.Metrics
	clock    time.Time
	pipeline *Pipeline
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockContentWriter(s.ctrl)
	s.events = mocks.NewMockEventPublisher(s.ctrl)
	s.ledger = ledger.NewMemory()
	s.metrics = metrics.NewWithRegisterer(prometheus.NewRegistry())
	s.clock = time.Date(2025, 5, 4, 12, 0, 0, 0, time.UTC)
	s.pipeline = s.newPipeline(s.ledger)
}

func (s *PipelineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *PipelineSuite) newPipeline(reg registry.Connector) *Pipeline {
	return New(s.store, reg,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithMetrics(s.metrics),
		WithEvents(s.events),
		WithClock(func() time.Time {
			s.clock = s.clock.Add(time.Millisecond)
			return s.clock
		}),
	)
}

func adaInput() Input {
	return Input{Caller: ada, Name: "Ada", Email: "ada@x.io"}
}

// Mint without an image: one metadata upload, one registry write carrying the
// returned identifier, then a published outcome.
func (s *PipelineSuite) TestPublish_MetadataOnly() {
	var stored models.Metadata
	s.store.EXPECT().WriteReady().Return(nil)
	s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, doc any) (models.ContentRef, error) {
			stored = doc.(models.Metadata)
			return models.ContentRef(metadataCID), nil
		})
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev events.Event) error {
			s.Equal(events.TypePublished, ev.Type)
			s.Equal(metadataCID, ev.Pointer)
			s.Empty(ev.Image)
			return nil
		})

	out, err := s.pipeline.Publish(context.Background(), adaInput())
	s.Require().NoError(err)

	s.Equal(models.ContentRef(metadataCID), out.MetadataRef)
	s.True(out.ImageRef.IsEmpty())
	s.Equal(ada, out.Owner)
	s.NotEmpty(out.Submission.ID)
	s.Equal(uint64(1), out.Confirmation.Version)
	s.NotEmpty(out.InputDigest)

	s.Equal("Ada", stored.Name)
	s.Equal("ada@x.io", stored.Email)
	s.Equal(models.DefaultDescription, stored.Description)
	s.True(stored.Image.IsEmpty())
	s.False(stored.CreatedAt.IsZero())

	ptr, err := s.ledger.ReadPointer(context.Background(), ada)
	s.Require().NoError(err)
	s.Equal(models.Pointer(metadataCID), ptr)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.PublicationsTotal.WithLabelValues("published", "")))
}

func (s *PipelineSuite) TestPublish_WithImage() {
	gomock.InOrder(
		s.store.EXPECT().WriteReady().Return(nil),
		s.store.EXPECT().StoreBytes(gomock.Any(), "ada.png", []byte("png-bytes")).
			Return(models.ContentRef(imageCID), nil),
		s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, doc any) (models.ContentRef, error) {
				s.Equal(models.ContentRef("ipfs://"+imageCID), doc.(models.Metadata).Image)
				return models.ContentRef(metadataCID), nil
			}),
	)
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil)

	in := adaInput()
	in.Description = "Analytical engine enthusiast"
	in.Asset = &models.Asset{Filename: "ada.png", Data: []byte("png-bytes")}

	out, err := s.pipeline.Publish(context.Background(), in)
	s.Require().NoError(err)
	s.Equal(models.ContentRef(imageCID), out.ImageRef)
	s.Equal("Analytical engine enthusiast", out.Metadata.Description)
}

// Identical requests are not deduplicated: both upload, both write, and
// each metadata document differs by its creation time.
func (s *PipelineSuite) TestPublish_IdenticalRequestsYieldDistinctContent() {
	var docs []models.Metadata
	refs := []models.ContentRef{metadataCID, imageCID}
	s.store.EXPECT().WriteReady().Return(nil).Times(2)
	s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Times(2).
		DoAndReturn(func(_ context.Context, doc any) (models.ContentRef, error) {
			docs = append(docs, doc.(models.Metadata))
			return refs[len(docs)-1], nil
		})
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(2)

	first, err := s.pipeline.Publish(context.Background(), adaInput())
	s.Require().NoError(err)
	second, err := s.pipeline.Publish(context.Background(), adaInput())
	s.Require().NoError(err)

	s.Require().Len(docs, 2)
	s.NotEqual(docs[0].CreatedAt, docs[1].CreatedAt)
	s.NotEqual(first.MetadataRef, second.MetadataRef)
	s.NotEqual(first.Submission.ID, second.Submission.ID)
	s.Equal(first.InputDigest, second.InputDigest)
	s.Equal(uint64(2), second.Confirmation.Version)
}

func (s *PipelineSuite) TestPublish_Preconditions() {
	s.Run("no wallet", func() {
		in := adaInput()
		in.Caller = domain.Address{}
		_, err := s.pipeline.Publish(context.Background(), in)
		s.ErrorIs(err, ErrNotConnected)
	})

	s.Run("no content store", func() {
		p := New(nil, s.ledger)
		_, err := p.Publish(context.Background(), adaInput())
		s.ErrorIs(err, ErrMisconfiguredStorage)
	})

	s.Run("store not write ready", func() {
		s.store.EXPECT().WriteReady().Return(contentstore.ErrMisconfigured)
		_, err := s.pipeline.Publish(context.Background(), adaInput())
		s.ErrorIs(err, ErrMisconfiguredStorage)
		s.ErrorIs(err, contentstore.ErrMisconfigured)
	})

	s.Run("registry cannot sign for wallet", func() {
		conn := registrymocks.NewMockConnector(s.ctrl)
		conn.EXPECT().Connect(gomock.Any(), ada).Return(nil, registry.ErrNotConnected)
		s.store.EXPECT().WriteReady().Return(nil)

		_, err := s.newPipeline(conn).Publish(context.Background(), adaInput())
		s.ErrorIs(err, ErrNotConnected)
	})
}

func (s *PipelineSuite) TestPublish_ValidationErrors() {
	tests := []struct {
		name      string
		mutate    func(*Input)
		wantField string
	}{
		{name: "missing name", mutate: func(in *Input) { in.Name = "" }, wantField: "name"},
		{name: "blank name", mutate: func(in *Input) { in.Name = "  " }, wantField: "name"},
		{name: "missing email", mutate: func(in *Input) { in.Email = "" }, wantField: "email"},
		{name: "malformed email", mutate: func(in *Input) { in.Email = "ada-at-x" }, wantField: "email"},
		{name: "empty image", mutate: func(in *Input) { in.Asset = &models.Asset{Filename: "a.png"} }, wantField: "image"},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.store.EXPECT().WriteReady().Return(nil)
			in := adaInput()
			tt.mutate(&in)

			_, err := s.pipeline.Publish(context.Background(), in)
			var ve *ValidationError
			s.Require().True(errors.As(err, &ve), "got %v", err)
			s.Equal(tt.wantField, ve.Field)
			s.NotErrorIs(err, ErrPublicationFailed)
		})
	}
}

func (s *PipelineSuite) TestPublish_StageFailures() {
	boom := errors.New("boom")

	s.Run("asset upload", func() {
		s.store.EXPECT().WriteReady().Return(nil)
		s.store.EXPECT().StoreBytes(gomock.Any(), gomock.Any(), gomock.Any()).Return(models.ContentRef(""), boom)

		in := adaInput()
		in.Asset = &models.Asset{Filename: "a.png", Data: []byte{1}}
		_, err := s.pipeline.Publish(context.Background(), in)
		s.ErrorIs(err, ErrPublicationFailed)
		s.ErrorIs(err, boom)
		s.Equal(StageAssetUpload, StageOf(err))
	})

	s.Run("metadata upload leaves ledger untouched", func() {
		s.store.EXPECT().WriteReady().Return(nil)
		s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(""), contentstore.ErrStorageUnavailable)

		_, err := s.pipeline.Publish(context.Background(), adaInput())
		s.Equal(StageMetadataUpload, StageOf(err))
		s.ErrorIs(err, contentstore.ErrStorageUnavailable)

		_, err = s.ledger.ReadPointer(context.Background(), ada)
		s.ErrorIs(err, registry.ErrAbsent)
	})

	s.Run("registry transport", func() {
		conn, writer := s.mockRegistry()
		s.store.EXPECT().WriteReady().Return(nil)
		s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil)
		writer.EXPECT().WritePointer(gomock.Any(), models.Pointer(metadataCID)).
			Return(registry.Submission{}, &registry.TransportError{Op: "write pointer", Err: boom})

		_, err := s.newPipeline(conn).Publish(context.Background(), adaInput())
		s.Equal(StageRegistryWrite, StageOf(err))
		s.True(registry.IsTransport(err))
	})

	s.Run("registry synchronous validation propagates", func() {
		conn, writer := s.mockRegistry()
		s.store.EXPECT().WriteReady().Return(nil)
		s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil)
		writer.EXPECT().WritePointer(gomock.Any(), gomock.Any()).
			Return(registry.Submission{}, &registry.ValidationError{Field: "pointer", Reason: "document string required"})

		_, err := s.newPipeline(conn).Publish(context.Background(), adaInput())
		var ve *ValidationError
		s.Require().True(errors.As(err, &ve))
		s.Equal("pointer", ve.Field)
		s.Equal(Stage(""), StageOf(err))
	})

	s.Run("confirmation rejected", func() {
		conn, writer := s.mockRegistry()
		sub := registry.Submission{ID: "0xfeed", Kind: registry.SubmissionWrite}
		s.store.EXPECT().WriteReady().Return(nil)
		s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil)
		writer.EXPECT().WritePointer(gomock.Any(), gomock.Any()).Return(sub, nil)
		writer.EXPECT().AwaitConfirmation(gomock.Any(), sub).
			Return(registry.Confirmation{}, &registry.RejectedError{SubmissionID: sub.ID, Reason: "transaction reverted"})

		_, err := s.newPipeline(conn).Publish(context.Background(), adaInput())
		s.Equal(StageConfirmation, StageOf(err))
		s.ErrorIs(err, registry.ErrRejected)
	})

	s.Equal(1.0, testutil.ToFloat64(s.metrics.PublicationsTotal.WithLabelValues("failed", string(StageConfirmation))))
}

func (s *PipelineSuite) TestPublish_EventFailureDoesNotFailMint() {
	s.store.EXPECT().WriteReady().Return(nil)
	s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil)
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

	out, err := s.pipeline.Publish(context.Background(), adaInput())
	s.Require().NoError(err)
	s.Equal(models.ContentRef(metadataCID), out.MetadataRef)
}

func (s *PipelineSuite) TestClear() {
	s.ledger.Seed(ada, models.Pointer(metadataCID))
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, ev events.Event) error {
			s.Equal(events.TypeCleared, ev.Type)
			return nil
		})

	out, err := s.pipeline.Clear(context.Background(), ada)
	s.Require().NoError(err)
	s.Equal(registry.SubmissionClear, out.Submission.Kind)

	_, err = s.ledger.ReadPointer(context.Background(), ada)
	s.ErrorIs(err, registry.ErrAbsent)

	s.Run("requires wallet", func() {
		_, err := s.pipeline.Clear(context.Background(), domain.Address{})
		s.ErrorIs(err, ErrNotConnected)
	})
}

func (s *PipelineSuite) mockRegistry() (*registrymocks.MockConnector, *registrymocks.MockWriter) {
	conn := registrymocks.NewMockConnector(s.ctrl)
	writer := registrymocks.NewMockWriter(s.ctrl)
	conn.EXPECT().Connect(gomock.Any(), ada).Return(writer, nil)
	return conn, writer
}

func TestInputDigest(t *testing.T) {
	base := Input{Caller: ada, Name: "Ada", Email: "ada@x.io"}
	withAsset := base
	withAsset.Asset = &models.Asset{}
	otherName := base
	otherName.Name = "Ada L"

	d := InputDigest(base)
	if len(d) != 64 {
		t.Fatalf("digest length = %d, want 64 hex chars", len(d))
	}
	if d != InputDigest(base) {
		t.Fatal("digest is not stable")
	}
	if d == InputDigest(withAsset) {
		t.Fatal("empty asset must differ from no asset")
	}
	if d == InputDigest(otherName) {
		t.Fatal("name must affect digest")
	}
}

// Concurrent publications from one wallet commit one at a time: every
// confirmation carries a distinct ledger version and the last one wins.
func (s *PipelineSuite) TestPublish_ConcurrentSameWalletCommitsInTurn() {
	const n = 8
	s.store.EXPECT().WriteReady().Return(nil).Times(n)
	s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil).Times(n)
	s.events.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).Times(n)

	p := New(s.store, s.ledger,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithEvents(s.events),
	)

	var (
		mu       sync.Mutex
		versions = make(map[uint64]bool)
	)
	res := fixtures.RunConcurrent(context.Background(), n, func(ctx context.Context, _ int) error {
		out, err := p.Publish(ctx, adaInput())
		if err != nil {
			return err
		}
		mu.Lock()
		versions[out.Confirmation.Version] = true
		mu.Unlock()
		return nil
	})

	s.Require().Empty(res.Errors)
	s.Equal(n, res.Successes)
	s.Len(versions, n)

	rec, err := s.ledger.ReadRecord(context.Background(), ada)
	s.Require().NoError(err)
	s.Equal(uint64(n), rec.Version)
}

func (s *PipelineSuite) TestPublish_CommitWaitHonorsContext() {
	s.store.EXPECT().WriteReady().Return(nil)
	s.store.EXPECT().StoreJSON(gomock.Any(), gomock.Any()).Return(models.ContentRef(metadataCID), nil)

	// Hold the wallet's commit slot so the publication cannot reach the registry.
	s.Require().NoError(s.pipeline.owners.Lock(context.Background(), ada.String()))
	defer s.pipeline.owners.Unlock(ada.String())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.pipeline.Publish(ctx, adaInput())

	s.Require().ErrorIs(err, ErrPublicationFailed)
	s.Equal(StageRegistryWrite, StageOf(err))
	s.ErrorIs(err, context.DeadlineExceeded)
}
