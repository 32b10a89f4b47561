// Package auction drives a batch of labels through the registrar's
// commit-reveal auction. A run derives each label's identifier, reads its
// phase, insists the whole batch shares one phase and then performs that
// phase's single action: open, bid, reveal or finalize.
package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/eth2030/sealbid/ledger"
	"github.com/eth2030/sealbid/log"
	"github.com/eth2030/sealbid/metrics"
)

// Confirmer asks the operator whether to go ahead with a mutating action.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Config holds the bidding parameters of a run.
type Config struct {
	// Amount is the bid per label in whole tokens.
	Amount uint64
	// Decimals is the token's number of decimals.
	Decimals uint8
	// Symbol is the token symbol used in prompts.
	Symbol string
}

// DefaultConfig bids one 18-decimal RIF token per label.
func DefaultConfig() Config {
	return Config{Amount: 1, Decimals: 18, Symbol: "RIF"}
}

// maxDecimals keeps 10^Decimals below 2^256.
const maxDecimals = 77

// BidValue returns Amount scaled to token base units.
func (c Config) BidValue() (*uint256.Int, error) {
	if c.Amount == 0 {
		return nil, errors.New("auction: bid amount must be positive")
	}
	if c.Decimals > maxDecimals {
		return nil, fmt.Errorf("auction: token decimals %d out of range", c.Decimals)
	}
	unit := new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(uint64(c.Decimals)))
	value, overflow := new(uint256.Int).MulOverflow(unit, uint256.NewInt(c.Amount))
	if overflow {
		return nil, fmt.Errorf("auction: bid amount %d overflows", c.Amount)
	}
	return value, nil
}

// Runner executes one batch run. It holds no state between runs; the
// ledger is the authority on phases and the BidStore on secrets.
type Runner struct {
	cfg      Config
	ledger   ledger.Ledger
	phases   *PhaseReader
	sealer   *Sealer
	bids     BidStore
	recorder Recorder
	confirm  Confirmer
	log      *log.Logger

	now   func() time.Time
	runID func() string
}

// NewRunner wires a Runner from its collaborators.
func NewRunner(cfg Config, l ledger.Ledger, bids BidStore, recorder Recorder, confirm Confirmer) *Runner {
	return &Runner{
		cfg:      cfg,
		ledger:   l,
		phases:   NewPhaseReader(l),
		sealer:   NewSealer(l),
		bids:     bids,
		recorder: recorder,
		confirm:  confirm,
		log:      log.Default().Module("auction"),
		now:      time.Now,
		runID:    uuid.NewString,
	}
}

// batch is the derived view of the labels of one run.
type batch struct {
	labels []string
	ids    []common.Hash
}

// Run performs the phase action for labels. Errors that invalidate the
// whole run (empty or malformed input, phase query failures, mixed phases,
// insufficient funds) are returned before any transaction is sent.
// Per-identifier failures do not stop the loop; they are returned together
// as a *BatchError alongside the full report.
func (r *Runner) Run(ctx context.Context, labels []string) (*Report, error) {
	if len(labels) == 0 {
		return nil, ErrEmptyBatch
	}
	ids, err := DeriveIdentifiers(labels)
	if err != nil {
		return nil, err
	}
	metrics.BatchSize.Set(int64(len(ids)))

	phases, err := r.phases.ReadPhases(ctx, ids)
	if err != nil {
		return nil, err
	}
	phase, err := CheckConsistency(phases)
	if err != nil {
		return nil, err
	}
	report := &Report{RunID: r.runID(), Phase: phase}
	r.log.Info("Batch phase resolved", "run", report.RunID, "labels", len(labels), "phase", phase)

	b := &batch{labels: labels, ids: ids}
	switch phase {
	case PhaseOpen:
		err = r.openAuctions(ctx, b, report)
	case PhaseBidding:
		err = r.placeBids(ctx, b, report)
	case PhaseRevealing:
		err = r.revealBids(ctx, b, report)
	case PhaseOwned:
		err = r.finalizeAuctions(ctx, b, report)
	case PhaseForbidden:
		err = fmt.Errorf("%w: %s", ErrNoAction, phase)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownPhase, phase)
	}
	if err != nil {
		return report, err
	}
	return report, report.err()
}

// confirmed asks prompt and marks the report declined on a no.
func (r *Runner) confirmed(ctx context.Context, prompt string, report *Report) (bool, error) {
	ok, err := r.confirm.Confirm(ctx, prompt)
	if err != nil {
		return false, fmt.Errorf("auction: confirm: %w", err)
	}
	if !ok {
		r.log.Info("Action declined", "phase", report.Phase)
		report.Declined = true
	}
	return ok, nil
}

// stepFunc performs one identifier's action. submitted reports whether a
// transaction was sent, which decides whether an artifact is recorded.
type stepFunc func(ctx context.Context, i int) (receipt *types.Receipt, submitted bool, err error)

// forEach runs step for every identifier in order. A cancelled ctx stops
// the loop before the next identifier; a step already started runs to
// completion on a detached context.
func (r *Runner) forEach(ctx context.Context, b *batch, report *Report, action Action, step stepFunc) {
	for i, id := range b.ids {
		out := Outcome{Label: b.labels[i], Identifier: id, Action: action}
		if ctx.Err() != nil {
			out.Err = fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
			report.Outcomes = append(report.Outcomes, out)
			continue
		}
		receipt, submitted, err := step(context.WithoutCancel(ctx), i)
		if submitted {
			art := r.record(report.RunID, action, id.Hex(), b.ids[i:i+1], b.labels[i:i+1], receipt, err)
			out.TxHash = art.TxHash
			if recErr := r.persist(art); recErr != nil {
				err = errors.Join(err, recErr)
			}
		}
		out.Err = err
		if err != nil {
			r.log.Warn("Action failed", "action", action, "label", out.Label, "id", id, "err", err)
		} else {
			r.log.Info("Action done", "action", action, "label", out.Label, "tx", out.TxHash)
		}
		report.Outcomes = append(report.Outcomes, out)
	}
}

// persist writes an artifact, logging a failure so it is never silent.
func (r *Runner) persist(a *TxArtifact) error {
	if err := r.recorder.Record(a); err != nil {
		r.log.Error("Artifact not recorded", "action", a.Action, "key", a.Key, "tx", a.TxHash, "err", err)
		return err
	}
	return nil
}
