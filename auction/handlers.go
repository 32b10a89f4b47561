package auction

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"

	"github.com/eth2030/sealbid/crypto"
	"github.com/eth2030/sealbid/ledger"
	"github.com/eth2030/sealbid/metrics"
)

// BatchKey is the artifact key of an action covering the whole batch.
func BatchKey(ids []common.Hash) string {
	parts := make([][]byte, len(ids))
	for i := range ids {
		parts[i] = ids[i][:]
	}
	return "batch-" + crypto.Keccak256Hash(parts...).Hex()
}

// openAuctions starts the auctions of the whole batch in one transaction.
func (r *Runner) openAuctions(ctx context.Context, b *batch, report *Report) error {
	ok, err := r.confirmed(ctx, "Start auctions?", report)
	if err != nil || !ok {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInterrupted, err)
	}
	receipt, err := r.ledger.StartAuctions(context.WithoutCancel(ctx), b.ids)
	art := r.record(report.RunID, ActionStartAuctions, BatchKey(b.ids), b.ids, b.labels, receipt, err)
	if recErr := r.persist(art); recErr != nil {
		err = errors.Join(err, recErr)
	}
	if err != nil {
		r.log.Warn("Start auctions failed", "labels", len(b.ids), "err", err)
	} else {
		r.log.Info("Auctions started", "labels", len(b.ids), "tx", art.TxHash)
	}
	for i, id := range b.ids {
		report.Outcomes = append(report.Outcomes, Outcome{
			Label:      b.labels[i],
			Identifier: id,
			Action:     ActionStartAuctions,
			TxHash:     art.TxHash,
			Err:        err,
		})
	}
	return nil
}

// placeBids seals, persists and submits one bid per identifier. Funding is
// checked for the whole batch up front so that no bid goes out when the
// balance cannot cover all of them.
func (r *Runner) placeBids(ctx context.Context, b *batch, report *Report) error {
	value, err := r.cfg.BidValue()
	if err != nil {
		return err
	}
	ok, err := r.confirmed(ctx, fmt.Sprintf("Bid in the auctions for %d %s?", r.cfg.Amount, r.cfg.Symbol), report)
	if err != nil || !ok {
		return err
	}
	bidder := r.ledger.Account()
	if err := r.checkFunds(ctx, bidder, value, len(b.ids)); err != nil {
		return err
	}

	var placed []*BidRecord
	r.forEach(ctx, b, report, ActionBid, func(ctx context.Context, i int) (*types.Receipt, bool, error) {
		id := b.ids[i]
		rec, err := r.bids.GetBid(id)
		switch {
		case err == nil:
			if err := r.resumable(rec, bidder, value.ToBig()); err != nil {
				return nil, false, err
			}
			r.log.Info("Resubmitting stored bid", "label", b.labels[i], "id", id)
		case errors.Is(err, ErrSecretNotFound):
			if rec, err = r.sealer.Generate(ctx, id, bidder, value.ToBig()); err != nil {
				return nil, false, err
			}
			rec.Label = b.labels[i]
			rec.RunID = report.RunID
			rec.CreatedAt = r.now().UTC()

			// The secret must be durable before the commitment is on chain.
			if err := r.bids.PutBid(rec); err != nil {
				return nil, false, err
			}
		default:
			return nil, false, err
		}
		placed = append(placed, rec)
		receipt, err := r.ledger.TransferAndCall(ctx, r.ledger.Registrar(), rec.BidValue(), BidPayload(rec.Commitment))
		return receipt, true, err
	})

	if len(placed) > 0 {
		if err := r.bids.PutBidIndex(report.RunID, placed); err != nil {
			r.log.Error("Bid index not written", "run", report.RunID, "bids", len(placed), "err", err)
			return errors.Join(report.err(), fmt.Errorf("auction: bid index: %w", err))
		}
	}
	return nil
}

// resumable reports whether a stored bid may be submitted again: it must
// belong to the bidding account, carry the configured value and have no
// successful submission on record. The registrar refuses a commitment it
// already holds, so resending after an unconfirmed attempt is harmless.
func (r *Runner) resumable(rec *BidRecord, bidder common.Address, value *big.Int) error {
	id := rec.Identifier.Hex()
	if rec.Bidder != bidder {
		return fmt.Errorf("%w: %s sealed by %s", ErrBidExists, id, rec.Bidder.Hex())
	}
	if rec.BidValue().Cmp(value) != 0 {
		return fmt.Errorf("%w: %s sealed for %s, configured %s", ErrBidExists, id, rec.BidValue(), value)
	}
	arts, err := r.recorder.Artifacts(ActionBid, id)
	if err != nil {
		return err
	}
	for _, a := range arts {
		if !a.Failed() {
			return fmt.Errorf("%w: %s already submitted in %s", ErrBidExists, id, a.TxHash.Hex())
		}
	}
	return nil
}

// checkFunds fails with *InsufficientFundsError unless the token balance
// covers n bids of value.
func (r *Runner) checkFunds(ctx context.Context, bidder common.Address, value *uint256.Int, n int) error {
	cost, overflow := new(uint256.Int).MulOverflow(value, uint256.NewInt(uint64(n)))
	costBig := new(big.Int).Mul(value.ToBig(), big.NewInt(int64(n)))
	balance, err := r.ledger.TokenBalance(ctx, bidder)
	if err != nil {
		return fmt.Errorf("auction: token balance: %w", err)
	}
	if overflow {
		return &InsufficientFundsError{Cost: costBig, Balance: balance}
	}
	bal, balOverflow := uint256.FromBig(balance)
	if !balOverflow && bal.Lt(cost) {
		return &InsufficientFundsError{Cost: costBig, Balance: balance}
	}
	r.log.Debug("Funds checked", "cost", cost, "balance", balance)
	return nil
}

// revealBids unseals each identifier's stored bid.
func (r *Runner) revealBids(ctx context.Context, b *batch, report *Report) error {
	ok, err := r.confirmed(ctx, "Unseal bids?", report)
	if err != nil || !ok {
		return err
	}
	account := r.ledger.Account()
	r.forEach(ctx, b, report, ActionUnseal, func(ctx context.Context, i int) (*types.Receipt, bool, error) {
		rec, err := r.bids.GetBid(b.ids[i])
		if err != nil {
			return nil, false, err
		}
		if rec.Bidder != account {
			return nil, false, fmt.Errorf("%w: sealed by %s, revealing as %s", ErrBidderMismatch, rec.Bidder.Hex(), account.Hex())
		}
		receipt, err := r.ledger.UnsealBid(ctx, rec.Identifier, rec.BidValue(), rec.Salt)
		return receipt, true, err
	})
	return nil
}

// finalizeAuctions settles each identifier's won auction.
func (r *Runner) finalizeAuctions(ctx context.Context, b *batch, report *Report) error {
	ok, err := r.confirmed(ctx, "Finalize bids?", report)
	if err != nil || !ok {
		return err
	}
	r.forEach(ctx, b, report, ActionFinalize, func(ctx context.Context, i int) (*types.Receipt, bool, error) {
		receipt, err := r.ledger.FinalizeAuction(ctx, b.ids[i])
		return receipt, true, err
	})
	return nil
}

// record builds the artifact of a submitted call and counts it.
func (r *Runner) record(runID string, action Action, key string, ids []common.Hash, labels []string, receipt *types.Receipt, callErr error) *TxArtifact {
	a := &TxArtifact{
		RunID:       runID,
		Action:      action,
		Key:         key,
		Identifiers: append([]common.Hash(nil), ids...),
		Labels:      append([]string(nil), labels...),
		RecordedAt:  r.now().UTC(),
	}
	var pending *ledger.PendingTxError
	if receipt == nil && errors.As(callErr, &pending) {
		a.TxHash = pending.Hash
	}
	if receipt != nil {
		a.TxHash = receipt.TxHash
		status := receipt.Status
		a.Status = &status
		if receipt.BlockNumber != nil {
			a.BlockNumber = (*hexutil.Big)(new(big.Int).Set(receipt.BlockNumber))
		}
		if raw, err := json.Marshal(receipt); err == nil {
			a.Receipt = raw
		} else {
			r.log.Warn("Receipt not encodable", "tx", receipt.TxHash, "err", err)
		}
	}
	if callErr != nil {
		a.Error = callErr.Error()
		metrics.TxFailed.Inc()
	} else {
		metrics.TxSubmitted.Inc()
	}
	return a
}
