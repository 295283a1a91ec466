// Package ethereum is the on-chain registry backend. It reads and writes the
// identity registry contract over JSON-RPC.
package ethereum

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	geth "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"didgate/internal/identity/models"
	"didgate/internal/identity/registry"
	"didgate/pkg/domain"
)

const (
	// DefaultRPCURL is the Rootstock testnet public node.
	DefaultRPCURL = "https://public-node.testnet.rsk.co"
	// DefaultChainID is the Rootstock testnet chain id.
	DefaultChainID = 31
)

// Backend is the JSON-RPC surface the client needs. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// Config configures the on-chain registry client.
type Config struct {
	RPCURL          string
	ContractAddress string
	ChainID         int64
	// SignerKey is a hex private key. Without one the client is read-only.
	SignerKey   string
	DialTimeout time.Duration
}

// Client reads and writes the identity registry contract.
type Client struct {
	backend  Backend
	contract *bind.BoundContract
	address  common.Address
	chainID  *big.Int
	signer   *ecdsa.PrivateKey
	from     domain.Address
	logger   *slog.Logger
	closer   func()

	mu      sync.Mutex
	pending map[common.Hash]*types.Transaction
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// Dial connects to cfg.RPCURL and binds the registry contract.
func Dial(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	url := cfg.RPCURL
	if url == "" {
		url = DefaultRPCURL
	}
	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, registry.Transport("dial", err)
	}
	c, err := New(ec, cfg, opts...)
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closer = ec.Close
	return c, nil
}

// New binds the registry contract on an existing backend.
func New(backend Backend, cfg Config, opts ...Option) (*Client, error) {
	addr := strings.TrimSpace(cfg.ContractAddress)
	if !common.IsHexAddress(addr) || common.HexToAddress(addr) == (common.Address{}) {
		return nil, fmt.Errorf("%w: contract address %q", registry.ErrMisconfigured, cfg.ContractAddress)
	}

	parsed, err := abi.JSON(strings.NewReader(registryABI))
	if err != nil {
		return nil, fmt.Errorf("parse registry abi: %w", err)
	}

	chainID := cfg.ChainID
	if chainID == 0 {
		chainID = DefaultChainID
	}

	c := &Client{
		backend: backend,
		address: common.HexToAddress(addr),
		chainID: big.NewInt(chainID),
		logger:  slog.Default(),
		pending: make(map[common.Hash]*types.Transaction),
	}
	c.contract = bind.NewBoundContract(c.address, parsed, backend, backend, backend)

	if key := strings.TrimPrefix(strings.TrimSpace(cfg.SignerKey), "0x"); key != "" {
		pk, err := crypto.HexToECDSA(key)
		if err != nil {
			return nil, fmt.Errorf("%w: signer key: %v", registry.ErrMisconfigured, err)
		}
		c.signer = pk
		c.from = domain.Address(crypto.PubkeyToAddress(pk.PublicKey))
	}

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) ReadPointer(ctx context.Context, owner domain.Address) (models.Pointer, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetIdentity, owner.Common()); err != nil {
		return "", classifyCallError("read pointer", err)
	}
	if len(out) != 1 {
		return "", registry.Transport("read pointer", fmt.Errorf("unexpected output length %d", len(out)))
	}
	doc, ok := out[0].(string)
	if !ok {
		return "", registry.Transport("read pointer", fmt.Errorf("unexpected output type %T", out[0]))
	}
	ptr := models.Pointer(doc)
	if ptr.IsAbsent() {
		return "", registry.ErrAbsent
	}
	return ptr, nil
}

func (c *Client) ReadRecord(ctx context.Context, owner domain.Address) (*models.Record, error) {
	var out []any
	if err := c.contract.Call(&bind.CallOpts{Context: ctx}, &out, methodGetIdentityMetadata, owner.Common()); err != nil {
		return nil, classifyCallError("read record", err)
	}
	if len(out) != 4 {
		return nil, registry.Transport("read record", fmt.Errorf("unexpected output length %d", len(out)))
	}

	doc, _ := out[0].(string)
	updatedAt, _ := out[1].(*big.Int)
	version, _ := out[2].(*big.Int)
	updater, _ := out[3].(common.Address)

	rec := &models.Record{
		Pointer:     models.Pointer(doc),
		LastUpdater: domain.Address(updater),
	}
	if updatedAt != nil && updatedAt.Sign() > 0 {
		rec.UpdatedAt = time.Unix(updatedAt.Int64(), 0).UTC()
	}
	if version != nil && version.IsUint64() {
		rec.Version = version.Uint64()
	}
	return rec, nil
}

// Connect returns a writer when owner is the configured signer.
func (c *Client) Connect(_ context.Context, owner domain.Address) (registry.Writer, error) {
	if c.signer == nil || owner.IsNil() || owner != c.from {
		return nil, registry.ErrNotConnected
	}
	return &writer{client: c}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return registry.Transport("ping", err)
	}
	if id.Cmp(c.chainID) != 0 {
		return fmt.Errorf("%w: connected to chain %s, want %s", registry.ErrMisconfigured, id, c.chainID)
	}
	return nil
}

func (c *Client) Close() error {
	if c.closer != nil {
		c.closer()
	}
	return nil
}

func (c *Client) transact(ctx context.Context, op string, kind registry.SubmissionKind, ptr models.Pointer, method string, params ...any) (registry.Submission, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(c.signer, c.chainID)
	if err != nil {
		return registry.Submission{}, fmt.Errorf("%w: %v", registry.ErrMisconfigured, err)
	}
	opts.Context = ctx

	tx, err := c.contract.Transact(opts, method, params...)
	if err != nil {
		return registry.Submission{}, classifyCallError(op, err)
	}

	c.mu.Lock()
	c.pending[tx.Hash()] = tx
	c.mu.Unlock()

	c.logger.InfoContext(ctx, "registry transaction submitted",
		"tx_hash", tx.Hash().Hex(),
		"method", method,
		"owner", c.from.String(),
	)
	return registry.Submission{
		ID:          tx.Hash().Hex(),
		Kind:        kind,
		Owner:       c.from,
		Pointer:     ptr,
		SubmittedAt: time.Now(),
	}, nil
}

func (c *Client) await(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	hash := common.HexToHash(sub.ID)

	c.mu.Lock()
	tx, ok := c.pending[hash]
	c.mu.Unlock()
	if !ok {
		found, _, err := c.backend.TransactionByHash(ctx, hash)
		if err != nil {
			return registry.Confirmation{}, classifyLookupError(sub.ID, err)
		}
		tx = found
	}

	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return registry.Confirmation{}, registry.Transport("await", err)
	}

	c.mu.Lock()
	delete(c.pending, hash)
	c.mu.Unlock()

	if receipt.Status != types.ReceiptStatusSuccessful {
		return registry.Confirmation{}, &registry.RejectedError{SubmissionID: sub.ID, Reason: "transaction reverted"}
	}

	conf := registry.Confirmation{
		SubmissionID: sub.ID,
		ConfirmedAt:  time.Now().UTC(),
	}
	if receipt.BlockNumber != nil && receipt.BlockNumber.IsUint64() {
		conf.Block = receipt.BlockNumber.Uint64()
	}
	return conf, nil
}

// classifyCallError separates contract reverts, which mean the ledger
// answered, from failures to reach the ledger.
func classifyCallError(op string, err error) error {
	if errors.Is(err, bind.ErrNoCode) {
		return fmt.Errorf("%w: no contract code at registry address", registry.ErrMisconfigured)
	}
	if isRevert(err) {
		return fmt.Errorf("%s: %w", op, registry.ErrAbsent)
	}
	return registry.Transport(op, err)
}

func classifyLookupError(id string, err error) error {
	if errors.Is(err, geth.NotFound) {
		return &registry.RejectedError{SubmissionID: id, Reason: "unknown transaction"}
	}
	return registry.Transport("await", err)
}

func isRevert(err error) bool {
	var de rpc.DataError
	if errors.As(err, &de) && strings.Contains(strings.ToLower(de.Error()), "revert") {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

type writer struct {
	client *Client
}

func (w *writer) Owner() domain.Address { return w.client.from }

func (w *writer) WritePointer(ctx context.Context, ptr models.Pointer) (registry.Submission, error) {
	if strings.TrimSpace(ptr.String()) == "" {
		return registry.Submission{}, &registry.ValidationError{Field: "pointer", Reason: "document string required"}
	}
	return w.client.transact(ctx, "write pointer", registry.SubmissionWrite, ptr, methodSetIdentity, ptr.String())
}

func (w *writer) ClearPointer(ctx context.Context) (registry.Submission, error) {
	return w.client.transact(ctx, "clear pointer", registry.SubmissionClear, "", methodClearIdentity)
}

func (w *writer) AwaitConfirmation(ctx context.Context, sub registry.Submission) (registry.Confirmation, error) {
	return w.client.await(ctx, sub)
}
