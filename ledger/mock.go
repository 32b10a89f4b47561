package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/sealbid/crypto"
)

// Method names recorded by MockLedger.
const (
	MethodQueryPhase       = "state"
	MethodComputeSealedBid = "shaBid"
	MethodTokenBalance     = "balanceOf"
	MethodStartAuctions    = "startAuctions"
	MethodTransferAndCall  = "transferAndCall"
	MethodUnsealBid        = "unsealBid"
	MethodFinalizeAuction  = "finalizeAuction"
)

// MockCall is one recorded invocation of a MockLedger method.
type MockCall struct {
	Method string
	Args   []any
}

// MockLedger is an in-memory Ledger with scripted phases and balances and
// canned receipts. It records every call for inspection.
type MockLedger struct {
	mu sync.Mutex

	Bidder        common.Address
	RegistrarAddr common.Address
	Phases        map[common.Hash]uint8
	Balance       *big.Int

	// Hook, when set, runs before every method with its arguments; a
	// non-nil error is returned from the method without side effects.
	Hook func(method string, args []any) error
	// Revert makes the named mutating methods return a failed receipt.
	Revert map[string]bool
	// Pending makes the named mutating methods send but never confirm,
	// returning a *PendingTxError that wraps ErrReceiptTimeout.
	Pending map[string]bool

	calls []MockCall
	block int64
}

// NewMockLedger returns a MockLedger with a fixed bidder and registrar.
func NewMockLedger() *MockLedger {
	return &MockLedger{
		Bidder:        common.HexToAddress("0x00000000000000000000000000000000000b1dde"),
		RegistrarAddr: common.HexToAddress("0x0000000000000000000000000000000000000e65"),
		Phases:        make(map[common.Hash]uint8),
		Balance:       new(big.Int),
		Revert:        make(map[string]bool),
		Pending:       make(map[string]bool),
	}
}

// MockSealedBid is the commitment MockLedger computes for a bid.
func MockSealedBid(id common.Hash, bidder common.Address, value *big.Int, salt common.Hash) common.Hash {
	return crypto.Keccak256Hash(id[:], bidder[:], math.U256Bytes(new(big.Int).Set(value)), salt[:])
}

// Calls returns a copy of the recorded calls.
func (m *MockLedger) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsTo returns the recorded calls of one method.
func (m *MockLedger) CallsTo(method string) []MockCall {
	var out []MockCall
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Mutations returns the recorded calls that would send a transaction.
func (m *MockLedger) Mutations() []MockCall {
	var out []MockCall
	for _, c := range m.Calls() {
		switch c.Method {
		case MethodStartAuctions, MethodTransferAndCall, MethodUnsealBid, MethodFinalizeAuction:
			out = append(out, c)
		}
	}
	return out
}

// enter records the call and runs the hook.
func (m *MockLedger) enter(method string, args ...any) error {
	m.mu.Lock()
	m.calls = append(m.calls, MockCall{Method: method, Args: args})
	hook := m.Hook
	m.mu.Unlock()
	if hook != nil {
		return hook(method, args)
	}
	return nil
}

// receipt mints a receipt for a mutating call.
func (m *MockLedger) receipt(method string) (*types.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.block++
	r := &types.Receipt{
		Type:        types.LegacyTxType,
		Status:      types.ReceiptStatusSuccessful,
		TxHash:      crypto.Keccak256Hash([]byte(method), big.NewInt(m.block).Bytes()),
		BlockNumber: big.NewInt(m.block),
		GasUsed:     21000,
		Logs:        []*types.Log{},
	}
	if m.Pending[method] {
		return nil, &PendingTxError{Method: method, Hash: r.TxHash, Err: ErrReceiptTimeout}
	}
	if m.Revert[method] {
		r.Status = types.ReceiptStatusFailed
		return r, fmt.Errorf("%w: %s %s", ErrReverted, method, r.TxHash.Hex())
	}
	return r, nil
}

func (m *MockLedger) Account() common.Address   { return m.Bidder }
func (m *MockLedger) Registrar() common.Address { return m.RegistrarAddr }

func (m *MockLedger) QueryPhase(_ context.Context, id common.Hash) (uint8, error) {
	if err := m.enter(MethodQueryPhase, id); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Phases[id], nil
}

func (m *MockLedger) ComputeSealedBid(_ context.Context, id common.Hash, bidder common.Address, value *big.Int, salt common.Hash) (common.Hash, error) {
	if err := m.enter(MethodComputeSealedBid, id, bidder, value, salt); err != nil {
		return common.Hash{}, err
	}
	return MockSealedBid(id, bidder, value, salt), nil
}

func (m *MockLedger) TokenBalance(_ context.Context, owner common.Address) (*big.Int, error) {
	if err := m.enter(MethodTokenBalance, owner); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(big.Int).Set(m.Balance), nil
}

func (m *MockLedger) StartAuctions(_ context.Context, ids []common.Hash) (*types.Receipt, error) {
	if err := m.enter(MethodStartAuctions, append([]common.Hash(nil), ids...)); err != nil {
		return nil, err
	}
	return m.receipt(MethodStartAuctions)
}

func (m *MockLedger) TransferAndCall(_ context.Context, to common.Address, value *big.Int, data []byte) (*types.Receipt, error) {
	if err := m.enter(MethodTransferAndCall, to, value, append([]byte(nil), data...)); err != nil {
		return nil, err
	}
	return m.receipt(MethodTransferAndCall)
}

func (m *MockLedger) UnsealBid(_ context.Context, id common.Hash, value *big.Int, salt common.Hash) (*types.Receipt, error) {
	if err := m.enter(MethodUnsealBid, id, value, salt); err != nil {
		return nil, err
	}
	return m.receipt(MethodUnsealBid)
}

func (m *MockLedger) FinalizeAuction(_ context.Context, id common.Hash) (*types.Receipt, error) {
	if err := m.enter(MethodFinalizeAuction, id); err != nil {
		return nil, err
	}
	return m.receipt(MethodFinalizeAuction)
}

var _ Ledger = (*MockLedger)(nil)
