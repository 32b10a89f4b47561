package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/eth2030/sealbid/log"
	"github.com/eth2030/sealbid/metrics"
)

// Backend is the subset of ethclient.Client the Client needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// Config holds the connection and fee parameters of a Client.
type Config struct {
	Registrar common.Address
	Token     common.Address

	// GasPrice is used for every transaction; nil asks the node.
	GasPrice *big.Int
	// GasLimit is used for every transaction; 0 estimates per call.
	GasLimit uint64
	// ChainID signs transactions; nil asks the node.
	ChainID *big.Int

	// ReceiptTimeout bounds the wait for a transaction to be mined.
	ReceiptTimeout time.Duration
	// PollInterval is the delay between receipt queries.
	PollInterval time.Duration
}

const (
	defaultReceiptTimeout = 5 * time.Minute
	defaultPollInterval   = 2 * time.Second

	// gasHeadroomPercent pads estimated gas limits.
	gasHeadroomPercent = 120
)

// Client implements Ledger over an EVM JSON-RPC endpoint.
type Client struct {
	backend  Backend
	identity *Identity
	cfg      Config
	chainID  *big.Int
	log      *log.Logger
}

// Dial connects to the node at url and returns a Client signing with id.
func Dial(ctx context.Context, url string, id *Identity, cfg Config) (*Client, func(), error) {
	ec, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, nil, fmt.Errorf("ledger: dial %s: %w", url, err)
	}
	c, err := NewClient(ctx, ec, id, cfg)
	if err != nil {
		ec.Close()
		return nil, nil, err
	}
	return c, ec.Close, nil
}

// NewClient creates a Client on an existing backend. The chain id is
// resolved once here.
func NewClient(ctx context.Context, backend Backend, id *Identity, cfg Config) (*Client, error) {
	if id == nil {
		return nil, errors.New("ledger: nil identity")
	}
	if cfg.ReceiptTimeout <= 0 {
		cfg.ReceiptTimeout = defaultReceiptTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	chainID := cfg.ChainID
	if chainID == nil {
		var err error
		if chainID, err = backend.ChainID(ctx); err != nil {
			return nil, fmt.Errorf("ledger: chain id: %w", err)
		}
	}
	return &Client{
		backend:  backend,
		identity: id,
		cfg:      cfg,
		chainID:  chainID,
		log:      log.Default().Module("ledger"),
	}, nil
}

func (c *Client) Account() common.Address   { return c.identity.Address() }
func (c *Client) Registrar() common.Address { return c.cfg.Registrar }

func (c *Client) QueryPhase(ctx context.Context, id common.Hash) (uint8, error) {
	out, err := c.call(ctx, c.cfg.Registrar, registrarABI, "state", id)
	if err != nil {
		return 0, err
	}
	code, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("ledger: state: unexpected result type %T", out[0])
	}
	return code, nil
}

func (c *Client) ComputeSealedBid(ctx context.Context, id common.Hash, bidder common.Address, value *big.Int, salt common.Hash) (common.Hash, error) {
	out, err := c.call(ctx, c.cfg.Registrar, registrarABI, "shaBid", id, bidder, value, salt)
	if err != nil {
		return common.Hash{}, err
	}
	sealed, ok := out[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("ledger: shaBid: unexpected result type %T", out[0])
	}
	return common.Hash(sealed), nil
}

func (c *Client) TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	out, err := c.call(ctx, c.cfg.Token, tokenABI, "balanceOf", owner)
	if err != nil {
		return nil, err
	}
	bal, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("ledger: balanceOf: unexpected result type %T", out[0])
	}
	return bal, nil
}

func (c *Client) StartAuctions(ctx context.Context, ids []common.Hash) (*types.Receipt, error) {
	hashes := make([][32]byte, len(ids))
	for i, id := range ids {
		hashes[i] = id
	}
	return c.transact(ctx, c.cfg.Registrar, registrarABI, "startAuctions", hashes)
}

func (c *Client) TransferAndCall(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	return c.transact(ctx, c.cfg.Token, tokenABI, "transferAndCall", to, value, data)
}

func (c *Client) UnsealBid(ctx context.Context, id common.Hash, value *big.Int, salt common.Hash) (*types.Receipt, error) {
	return c.transact(ctx, c.cfg.Registrar, registrarABI, "unsealBid", id, value, salt)
}

func (c *Client) FinalizeAuction(ctx context.Context, id common.Hash) (*types.Receipt, error) {
	return c.transact(ctx, c.cfg.Registrar, registrarABI, "finalizeAuction", id)
}

// call performs a read-only contract call and unpacks its outputs.
func (c *Client) call(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) ([]any, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	metrics.LedgerQueries.Inc()
	timer := metrics.NewTimer(metrics.LedgerLatency)
	raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{From: c.Account(), To: &to, Data: input}, nil)
	timer.Stop()
	if err != nil {
		return nil, fmt.Errorf("ledger: call %s: %w", method, err)
	}
	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("ledger: %s returned no values", method)
	}
	return out, nil
}

// transact signs and sends a contract call, then waits for it to be mined.
// Once the transaction is sent the wait is detached from ctx cancellation:
// the outcome of a submitted transaction is always observed.
func (c *Client) transact(ctx context.Context, to common.Address, contract abi.ABI, method string, args ...any) (*types.Receipt, error) {
	input, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("ledger: pack %s: %w", method, err)
	}
	from := c.Account()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("ledger: nonce: %w", err)
	}
	gasPrice := c.cfg.GasPrice
	if gasPrice == nil {
		if gasPrice, err = c.backend.SuggestGasPrice(ctx); err != nil {
			return nil, fmt.Errorf("ledger: gas price: %w", err)
		}
	}
	gasLimit := c.cfg.GasLimit
	if gasLimit == 0 {
		est, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, GasPrice: gasPrice, Data: input})
		if err != nil {
			return nil, fmt.Errorf("ledger: estimate gas for %s: %w", method, err)
		}
		gasLimit = est * gasHeadroomPercent / 100
	}
	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		GasPrice: gasPrice,
		Gas:      gasLimit,
		To:       &to,
		Value:    new(big.Int),
		Data:     input,
	})
	signed, err := c.identity.SignTx(tx, c.chainID)
	if err != nil {
		return nil, fmt.Errorf("ledger: sign %s: %w", method, err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("ledger: send %s: %w", method, err)
	}
	c.log.Debug("Transaction sent", "method", method, "tx", signed.Hash(), "nonce", nonce, "gas", gasLimit)

	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ReceiptTimeout)
	defer cancel()
	receipt, err := c.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return nil, &PendingTxError{Method: method, Hash: signed.Hash(), Err: err}
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("%w: %s %s", ErrReverted, method, signed.Hash().Hex())
	}
	return receipt, nil
}

// waitMined polls for the receipt of hash until it appears or ctx ends.
func (c *Client) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()
	for {
		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			c.log.Debug("Receipt query failed", "tx", hash, "err", err)
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrReceiptTimeout
			}
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

var _ Ledger = (*Client)(nil)
