package ledger

import (
	"context"
	"errors"

	"github.com/stretchr/testify/suite"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

var (
	alice = domain.MustParseAddress("0x1111111111111111111111111111111111111111")
	bob   = domain.MustParseAddress("0x2222222222222222222222222222222222222222")
)

const (
	cidA = "bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi"
	cidB = "QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG"
)

// LedgerContractSuite checks the behavior every registry backend must share.
type LedgerContractSuite struct {
	suite.Suite
	ledger registry.Client
	// reset returns a backend with no identities.
	reset func() registry.Client
}

func (s *LedgerContractSuite) SetupTest() {
	s.ledger = s.reset()
}

func (s *LedgerContractSuite) connect(owner domain.Address) registry.Writer {
	w, err := s.ledger.Connect(context.Background(), owner)
	s.Require().NoError(err)
	s.Require().Equal(owner, w.Owner())
	return w
}

func (s *LedgerContractSuite) publish(owner domain.Address, ptr models.Pointer) registry.Confirmation {
	ctx := context.Background()
	w := s.connect(owner)
	sub, err := w.WritePointer(ctx, ptr)
	s.Require().NoError(err)
	conf, err := w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)
	return conf
}

func (s *LedgerContractSuite) TestAbsentOwner() {
	ctx := context.Background()

	_, err := s.ledger.ReadPointer(ctx, alice)
	s.ErrorIs(err, registry.ErrAbsent)
	s.False(registry.IsTransport(err))

	_, err = s.ledger.ReadRecord(ctx, alice)
	s.ErrorIs(err, registry.ErrAbsent)
}

func (s *LedgerContractSuite) TestWriteTakesEffectOnConfirmation() {
	ctx := context.Background()
	w := s.connect(alice)

	sub, err := w.WritePointer(ctx, models.Pointer(cidA))
	s.Require().NoError(err)
	s.NotEmpty(sub.ID)
	s.Equal(registry.SubmissionWrite, sub.Kind)

	_, err = s.ledger.ReadPointer(ctx, alice)
	s.ErrorIs(err, registry.ErrAbsent, "pending submission is not visible")

	conf, err := w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)
	s.Equal(sub.ID, conf.SubmissionID)
	s.Equal(uint64(1), conf.Version)

	ptr, err := s.ledger.ReadPointer(ctx, alice)
	s.Require().NoError(err)
	s.Equal(models.Pointer(cidA), ptr)

	rec, err := s.ledger.ReadRecord(ctx, alice)
	s.Require().NoError(err)
	s.Equal(models.Pointer(cidA), rec.Pointer)
	s.Equal(uint64(1), rec.Version)
	s.Equal(alice, rec.LastUpdater)
	s.False(rec.UpdatedAt.IsZero())
}

func (s *LedgerContractSuite) TestVersionIncrementsPerWrite() {
	s.publish(alice, models.Pointer(cidA))
	conf := s.publish(alice, models.Pointer(cidB))
	s.Equal(uint64(2), conf.Version)

	rec, err := s.ledger.ReadRecord(context.Background(), alice)
	s.Require().NoError(err)
	s.Equal(models.Pointer(cidB), rec.Pointer)
	s.Equal(uint64(2), rec.Version)
}

func (s *LedgerContractSuite) TestOwnersAreIsolated() {
	s.publish(alice, models.Pointer(cidA))

	_, err := s.ledger.ReadPointer(context.Background(), bob)
	s.ErrorIs(err, registry.ErrAbsent)
}

func (s *LedgerContractSuite) TestEmptyPointerRejectedSynchronously() {
	w := s.connect(alice)
	for _, ptr := range []models.Pointer{"", "   "} {
		_, err := w.WritePointer(context.Background(), ptr)
		s.True(registry.IsValidation(err))
	}
}

func (s *LedgerContractSuite) TestClear() {
	ctx := context.Background()
	s.publish(alice, models.Pointer(cidA))

	w := s.connect(alice)
	sub, err := w.ClearPointer(ctx)
	s.Require().NoError(err)
	s.Equal(registry.SubmissionClear, sub.Kind)
	_, err = w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)

	_, err = s.ledger.ReadPointer(ctx, alice)
	s.ErrorIs(err, registry.ErrAbsent)

	rec, err := s.ledger.ReadRecord(ctx, alice)
	s.Require().NoError(err)
	s.True(rec.Pointer.IsAbsent())
	s.Equal(uint64(2), rec.Version)
	s.Equal(alice, rec.LastUpdater)
}

func (s *LedgerContractSuite) TestVersionKeepsCountingAcrossClear() {
	ctx := context.Background()
	first := s.publish(alice, models.Pointer(cidA))
	second := s.publish(alice, models.Pointer(cidB))

	w := s.connect(alice)
	sub, err := w.ClearPointer(ctx)
	s.Require().NoError(err)
	cleared, err := w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)

	third := s.publish(alice, models.Pointer(cidA))

	versions := []uint64{first.Version, second.Version, cleared.Version, third.Version}
	for i := 1; i < len(versions); i++ {
		s.Greater(versions[i], versions[i-1], "versions %v", versions)
	}

	rec, err := s.ledger.ReadRecord(ctx, alice)
	s.Require().NoError(err)
	s.Equal(models.Pointer(cidA), rec.Pointer)
	s.Equal(third.Version, rec.Version)
}

func (s *LedgerContractSuite) TestAwaitIsRepeatable() {
	ctx := context.Background()
	w := s.connect(alice)
	sub, err := w.WritePointer(ctx, models.Pointer(cidA))
	s.Require().NoError(err)

	first, err := w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)
	second, err := w.AwaitConfirmation(ctx, sub)
	s.Require().NoError(err)
	s.Equal(first.Version, second.Version)
	s.Equal(first.Block, second.Block)
}

func (s *LedgerContractSuite) TestAwaitUnknownSubmissionIsRejected() {
	w := s.connect(alice)
	_, err := w.AwaitConfirmation(context.Background(), registry.Submission{ID: "never-submitted"})
	s.ErrorIs(err, registry.ErrRejected)
	var re *registry.RejectedError
	s.True(errors.As(err, &re))
}

func (s *LedgerContractSuite) TestConnectRequiresWallet() {
	_, err := s.ledger.Connect(context.Background(), domain.Address{})
	s.ErrorIs(err, registry.ErrNotConnected)
}

func (s *LedgerContractSuite) TestPing() {
	s.NoError(s.ledger.Ping(context.Background()))
}
