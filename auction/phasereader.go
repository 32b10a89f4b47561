package auction

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/sealbid/ledger"
)

// PhaseReader reads the current phase of each identifier from the ledger.
type PhaseReader struct {
	ledger ledger.Ledger
}

// NewPhaseReader creates a PhaseReader over l.
func NewPhaseReader(l ledger.Ledger) *PhaseReader {
	return &PhaseReader{ledger: l}
}

// ReadPhases queries the phase of every identifier, one at a time and in order.
// The first failure aborts the read: no decision can be taken on a partial
// picture.
func (p *PhaseReader) ReadPhases(ctx context.Context, ids []common.Hash) ([]Phase, error) {
	phases := make([]Phase, len(ids))
	for i, id := range ids {
		code, err := p.ledger.QueryPhase(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("auction: phase of %s: %w", id.Hex(), err)
		}
		phase, err := ParsePhase(code)
		if err != nil {
			return nil, fmt.Errorf("auction: phase of %s: %w", id.Hex(), err)
		}
		phases[i] = phase
	}
	return phases, nil
}

// CheckConsistency returns the phase shared by every element, failing with
// ErrEmptyBatch or an *InconsistentBatchError.
func CheckConsistency(phases []Phase) (Phase, error) {
	if len(phases) == 0 {
		return 0, ErrEmptyBatch
	}
	for i, p := range phases[1:] {
		if p != phases[0] {
			return 0, &InconsistentBatchError{Index: i + 1, Want: phases[0], Got: p}
		}
	}
	return phases[0], nil
}
