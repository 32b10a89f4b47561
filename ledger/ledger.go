// Package ledger talks to the auction registrar and its bidding token on
// an EVM chain. The Ledger interface is the narrow surface the auction
// state machine needs; Client implements it over JSON-RPC with go-ethereum
// and MockLedger implements it in memory for tests.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReverted is returned alongside the receipt of a mined transaction
	// whose execution failed.
	ErrReverted = errors.New("ledger: transaction reverted")

	// ErrReceiptTimeout is returned when a sent transaction is not mined
	// within the configured timeout.
	ErrReceiptTimeout = errors.New("ledger: timed out waiting for receipt")
)

// PendingTxError reports a transaction that was sent but whose receipt
// could not be obtained. Hash identifies it on chain.
type PendingTxError struct {
	Method string
	Hash   common.Hash
	Err    error
}

func (e *PendingTxError) Error() string {
	return fmt.Sprintf("ledger: %s %s not confirmed: %v", e.Method, e.Hash.Hex(), e.Err)
}

func (e *PendingTxError) Unwrap() error { return e.Err }

// Ledger is the registrar/token surface used by the auction state machine.
// Mutating methods block until the transaction is mined and return its
// receipt.
type Ledger interface {
	// Account is the bidder identity used to sign transactions.
	Account() common.Address
	// Registrar is the registrar contract address; bids are sent to it.
	Registrar() common.Address

	// QueryPhase returns the raw auction state code for id.
	QueryPhase(ctx context.Context, id common.Hash) (uint8, error)
	// ComputeSealedBid asks the registrar for the commitment of a bid.
	ComputeSealedBid(ctx context.Context, id common.Hash, bidder common.Address, value *big.Int, salt common.Hash) (common.Hash, error)
	// TokenBalance returns the token balance of owner in base units.
	TokenBalance(ctx context.Context, owner common.Address) (*big.Int, error)

	// StartAuctions opens the auctions for every id in one transaction.
	StartAuctions(ctx context.Context, ids []common.Hash) (*types.Receipt, error)
	// TransferAndCall transfers value tokens to `to` and hands it data.
	TransferAndCall(ctx context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error)
	// UnsealBid reveals a sealed bid.
	UnsealBid(ctx context.Context, id common.Hash, value *big.Int, salt common.Hash) (*types.Receipt, error)
	// FinalizeAuction concludes the auction for id.
	FinalizeAuction(ctx context.Context, id common.Hash) (*types.Receipt, error)
}
