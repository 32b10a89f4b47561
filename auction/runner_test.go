package auction

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/eth2030/sealbid/core/rawdb"
	"github.com/eth2030/sealbid/ledger"
)

var oneToken = big.NewInt(1e18)

type confirmStub struct {
	answer  bool
	err     error
	prompts []string
}

func (c *confirmStub) Confirm(_ context.Context, prompt string) (bool, error) {
	c.prompts = append(c.prompts, prompt)
	return c.answer, c.err
}

type harness struct {
	ledger  *ledger.MockLedger
	db      rawdb.Database
	store   *DBStore
	confirm *confirmStub
	runner  *Runner
}

func newHarness(t *testing.T, db rawdb.Database) *harness {
	t.Helper()
	if db == nil {
		db = rawdb.NewMemoryDB()
	}
	h := &harness{
		ledger:  ledger.NewMockLedger(),
		db:      db,
		store:   NewDBStore(db),
		confirm: &confirmStub{answer: true},
	}
	h.runner = NewRunner(DefaultConfig(), h.ledger, h.store, h.store, h.confirm)
	h.runner.runID = func() string { return "run-1" }
	return h
}

func (h *harness) setPhase(code uint8, labels ...string) {
	for _, l := range labels {
		id, _ := DeriveIdentifier(l)
		h.ledger.Phases[id] = code
	}
}

func mustID(t *testing.T, label string) common.Hash {
	t.Helper()
	id, err := DeriveIdentifier(label)
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestConfig_BidValue(t *testing.T) {
	v, err := DefaultConfig().BidValue()
	if err != nil || v.ToBig().Cmp(oneToken) != 0 {
		t.Fatalf("default = %v, %v", v, err)
	}
	v, err = Config{Amount: 3, Decimals: 2}.BidValue()
	if err != nil || v.Uint64() != 300 {
		t.Fatalf("3 @ 2 decimals = %v, %v", v, err)
	}
	if _, err := (Config{Amount: 0, Decimals: 18}).BidValue(); err == nil {
		t.Fatal("zero amount accepted")
	}
	if _, err := (Config{Amount: 1, Decimals: 78}).BidValue(); err == nil {
		t.Fatal("78 decimals accepted")
	}
	if _, err := (Config{Amount: ^uint64(0), Decimals: 77}).BidValue(); err == nil {
		t.Fatal("overflowing amount accepted")
	}
}

func TestRun_InputErrors(t *testing.T) {
	h := newHarness(t, nil)
	if _, err := h.runner.Run(context.Background(), nil); !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("empty: err = %v", err)
	}
	if _, err := h.runner.Run(context.Background(), []string{"ok", ""}); !errors.Is(err, ErrMalformedLabel) {
		t.Fatalf("malformed: err = %v", err)
	}
	if n := len(h.ledger.Calls()); n != 0 {
		t.Fatalf("ledger called %d times on bad input", n)
	}
}

func TestRun_OpenStartsBatchInOneTransaction(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	h.setPhase(0, labels...)

	report, err := h.runner.Run(context.Background(), labels)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Phase != PhaseOpen || report.Succeeded() != 2 {
		t.Fatalf("report = %+v", report)
	}
	if len(h.confirm.prompts) != 1 || h.confirm.prompts[0] != "Start auctions?" {
		t.Fatalf("prompts = %q", h.confirm.prompts)
	}
	calls := h.ledger.Mutations()
	if len(calls) != 1 || calls[0].Method != ledger.MethodStartAuctions {
		t.Fatalf("mutations = %+v", calls)
	}
	ids := calls[0].Args[0].([]common.Hash)
	if len(ids) != 2 || ids[0] != mustID(t, "alpha") || ids[1] != mustID(t, "beta") {
		t.Fatalf("startAuctions ids = %v", ids)
	}
	arts, _ := h.store.Artifacts(ActionStartAuctions, BatchKey(ids))
	if len(arts) != 1 || arts[0].Failed() || arts[0].TxHash != report.Outcomes[0].TxHash {
		t.Fatalf("artifacts = %+v", arts)
	}
	if len(arts[0].Receipt) == 0 || arts[0].Status == nil || *arts[0].Status != types.ReceiptStatusSuccessful {
		t.Fatal("artifact lacks receipt")
	}
}

func TestRun_BiddingPersistsBeforeSubmit(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	h.setPhase(1, labels...)
	h.ledger.Balance = new(big.Int).Mul(oneToken, big.NewInt(2))

	h.ledger.Hook = func(method string, args []any) error {
		if method != ledger.MethodTransferAndCall {
			return nil
		}
		data := args[2].([]byte)
		for _, l := range labels {
			rec, err := h.store.GetBid(mustID(t, l))
			if err == nil && bytes.Equal(data[4:], rec.Commitment[:]) {
				return nil
			}
		}
		t.Errorf("transferAndCall with no persisted record for %x", data)
		return nil
	}

	report, err := h.runner.Run(context.Background(), labels)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if h.confirm.prompts[0] != "Bid in the auctions for 1 RIF?" {
		t.Fatalf("prompt = %q", h.confirm.prompts[0])
	}
	transfers := h.ledger.CallsTo(ledger.MethodTransferAndCall)
	if len(transfers) != 2 || report.Succeeded() != 2 {
		t.Fatalf("transfers = %d, succeeded = %d", len(transfers), report.Succeeded())
	}
	for i, l := range labels {
		id := mustID(t, l)
		rec, err := h.store.GetBid(id)
		if err != nil {
			t.Fatalf("GetBid(%s): %v", l, err)
		}
		if rec.Label != l || rec.RunID != "run-1" || rec.Bidder != h.ledger.Account() {
			t.Fatalf("record = %+v", rec)
		}
		if rec.Commitment != ledger.MockSealedBid(id, rec.Bidder, rec.BidValue(), rec.Salt) {
			t.Fatal("stored secret does not reproduce the commitment")
		}
		c := transfers[i]
		if c.Args[0] != h.ledger.Registrar() || c.Args[1].(*big.Int).Cmp(oneToken) != 0 {
			t.Fatalf("transfer args = %v", c.Args)
		}
		if !bytes.Equal(c.Args[2].([]byte), BidPayload(rec.Commitment)) {
			t.Fatal("payload does not carry the commitment")
		}
		if arts, _ := h.store.Artifacts(ActionBid, id.Hex()); len(arts) != 1 {
			t.Fatalf("bid artifacts for %s = %d", l, len(arts))
		}
	}
	idx, err := h.store.BidIndex("run-1")
	if err != nil || len(idx) != 2 {
		t.Fatalf("bid index = %v, %v", idx, err)
	}
}

func TestRun_BiddingInsufficientFunds(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	h.setPhase(1, labels...)
	h.ledger.Balance = new(big.Int).Set(oneToken)

	_, err := h.runner.Run(context.Background(), labels)
	var fe *InsufficientFundsError
	if !errors.As(err, &fe) || !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("err = %v, want InsufficientFundsError", err)
	}
	if fe.Cost.Cmp(new(big.Int).Mul(oneToken, big.NewInt(2))) != 0 {
		t.Fatalf("cost = %s", fe.Cost)
	}
	if n := len(h.ledger.Mutations()); n != 0 {
		t.Fatalf("%d transactions sent", n)
	}
	if bids, _ := h.store.ListBids(); len(bids) != 0 {
		t.Fatalf("%d bids stored", len(bids))
	}
}

func TestRun_BiddingRejectsExistingRecord(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	h.setPhase(1, labels...)
	h.ledger.Balance = new(big.Int).Mul(oneToken, big.NewInt(10))

	old := testRecord(0)
	old.Identifier = mustID(t, "alpha")
	if err := h.store.PutBid(old); err != nil {
		t.Fatal(err)
	}
	report, err := h.runner.Run(context.Background(), labels)
	var be *BatchError
	if !errors.As(err, &be) || len(be.Failures) != 1 || !errors.Is(err, ErrBidExists) {
		t.Fatalf("err = %v, want one ErrBidExists failure", err)
	}
	if report.Outcomes[0].Err == nil || report.Outcomes[1].Err != nil {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	if n := len(h.ledger.CallsTo(ledger.MethodTransferAndCall)); n != 1 {
		t.Fatalf("transfers = %d, want 1", n)
	}
	rec, _ := h.store.GetBid(old.Identifier)
	if rec.Salt != old.Salt {
		t.Fatal("existing secret replaced")
	}
}

func TestRun_BiddingRejectsValueChange(t *testing.T) {
	h := newHarness(t, nil)
	h.setPhase(1, "alpha")
	h.ledger.Balance = new(big.Int).Mul(oneToken, big.NewInt(10))

	old := testRecord(0)
	old.Identifier = mustID(t, "alpha")
	old.Bidder = h.ledger.Bidder
	old.Value = (*hexutil.Big)(big.NewInt(5))
	if err := h.store.PutBid(old); err != nil {
		t.Fatal(err)
	}
	if _, err := h.runner.Run(context.Background(), []string{"alpha"}); !errors.Is(err, ErrBidExists) {
		t.Fatalf("err = %v, want ErrBidExists", err)
	}
	if n := len(h.ledger.CallsTo(ledger.MethodTransferAndCall)); n != 0 {
		t.Fatalf("transfers = %d, want 0", n)
	}
}

func TestRun_PendingReceiptKeepsHash(t *testing.T) {
	h := newHarness(t, nil)
	h.setPhase(2, "alpha")
	h.ledger.Pending[ledger.MethodFinalizeAuction] = true

	report, err := h.runner.Run(context.Background(), []string{"alpha"})
	if !errors.Is(err, ledger.ErrReceiptTimeout) {
		t.Fatalf("err = %v, want ErrReceiptTimeout", err)
	}
	out := report.Outcomes[0]
	if out.TxHash == (common.Hash{}) {
		t.Fatal("outcome lost the transaction hash")
	}
	arts, _ := h.store.Artifacts(ActionFinalize, mustID(t, "alpha").Hex())
	if len(arts) != 1 || arts[0].TxHash != out.TxHash || !arts[0].Failed() {
		t.Fatalf("artifacts = %+v", arts)
	}
}

func TestRun_RevealUsesStoredSecret(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	h.setPhase(1, labels...)
	h.ledger.Balance = new(big.Int).Mul(oneToken, big.NewInt(2))
	if _, err := h.runner.Run(context.Background(), labels); err != nil {
		t.Fatalf("bid run: %v", err)
	}

	h.setPhase(4, labels...)
	report, err := h.runner.Run(context.Background(), labels)
	if err != nil {
		t.Fatalf("reveal run: %v", err)
	}
	if h.confirm.prompts[1] != "Unseal bids?" || report.Phase != PhaseRevealing {
		t.Fatalf("prompts = %q, phase = %v", h.confirm.prompts, report.Phase)
	}
	unseals := h.ledger.CallsTo(ledger.MethodUnsealBid)
	if len(unseals) != 2 {
		t.Fatalf("unseals = %d", len(unseals))
	}
	for i, l := range labels {
		rec, _ := h.store.GetBid(mustID(t, l))
		c := unseals[i]
		if c.Args[0] != rec.Identifier || c.Args[1].(*big.Int).Cmp(rec.BidValue()) != 0 || c.Args[2] != rec.Salt {
			t.Fatalf("unseal args = %v, record = %+v", c.Args, rec)
		}
	}
}

func TestRun_RevealMissingSecret(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"alpha", "beta"}
	rec := testRecord(0)
	rec.Identifier = mustID(t, "beta")
	rec.Bidder = h.ledger.Account()
	if err := h.store.PutBid(rec); err != nil {
		t.Fatal(err)
	}
	h.setPhase(4, labels...)

	report, err := h.runner.Run(context.Background(), labels)
	if !errors.Is(err, ErrSecretNotFound) {
		t.Fatalf("err = %v, want ErrSecretNotFound", err)
	}
	if !errors.Is(report.Outcomes[0].Err, ErrSecretNotFound) || report.Outcomes[1].Err != nil {
		t.Fatalf("outcomes = %+v", report.Outcomes)
	}
	unseals := h.ledger.CallsTo(ledger.MethodUnsealBid)
	if len(unseals) != 1 || unseals[0].Args[0] != rec.Identifier {
		t.Fatalf("unseals = %+v", unseals)
	}
	if arts, _ := h.store.Artifacts(ActionUnseal, mustID(t, "alpha").Hex()); len(arts) != 0 {
		t.Fatal("artifact recorded without a transaction")
	}
}

func TestRun_RevealBidderMismatch(t *testing.T) {
	h := newHarness(t, nil)
	rec := testRecord(0)
	rec.Identifier = mustID(t, "alpha")
	rec.Bidder = common.Address{0xee}
	if err := h.store.PutBid(rec); err != nil {
		t.Fatal(err)
	}
	h.setPhase(4, "alpha")
	if _, err := h.runner.Run(context.Background(), []string{"alpha"}); !errors.Is(err, ErrBidderMismatch) {
		t.Fatalf("err = %v, want ErrBidderMismatch", err)
	}
	if n := len(h.ledger.Mutations()); n != 0 {
		t.Fatalf("%d transactions sent", n)
	}
}

func TestRun_FinalizeContinuesPastFailures(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"a", "b", "c"}
	h.setPhase(2, labels...)
	boom := errors.New("nonce too low")
	h.ledger.Hook = func(method string, args []any) error {
		if method == ledger.MethodFinalizeAuction && args[0] == mustID(t, "b") {
			return boom
		}
		return nil
	}

	report, err := h.runner.Run(context.Background(), labels)
	var be *BatchError
	if !errors.As(err, &be) || be.Total != 3 || len(be.Failures) != 1 || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if be.Failures[0].Label != "b" || report.Succeeded() != 2 {
		t.Fatalf("report = %+v", report)
	}
	if n := len(h.ledger.CallsTo(ledger.MethodFinalizeAuction)); n != 3 {
		t.Fatalf("finalize calls = %d, want 3", n)
	}
	for _, l := range labels {
		arts, _ := h.store.Artifacts(ActionFinalize, mustID(t, l).Hex())
		if len(arts) != 1 {
			t.Fatalf("%s: %d artifacts", l, len(arts))
		}
		if arts[0].Failed() != (l == "b") {
			t.Fatalf("%s: failed = %v", l, arts[0].Failed())
		}
	}
}

func TestRun_RevertedReceiptIsFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.setPhase(2, "a")
	h.ledger.Revert[ledger.MethodFinalizeAuction] = true

	report, err := h.runner.Run(context.Background(), []string{"a"})
	if !errors.Is(err, ledger.ErrReverted) {
		t.Fatalf("err = %v, want ErrReverted", err)
	}
	arts, _ := h.store.Artifacts(ActionFinalize, mustID(t, "a").Hex())
	if len(arts) != 1 || !arts[0].Failed() || *arts[0].Status != types.ReceiptStatusFailed {
		t.Fatalf("artifacts = %+v", arts)
	}
	if arts[0].TxHash != report.Outcomes[0].TxHash || arts[0].TxHash == (common.Hash{}) {
		t.Fatal("reverted tx hash not kept")
	}

	// A re-run appends instead of overwriting.
	h.ledger.Revert[ledger.MethodFinalizeAuction] = false
	if _, err := h.runner.Run(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("rerun: %v", err)
	}
	arts, _ = h.store.Artifacts(ActionFinalize, mustID(t, "a").Hex())
	if len(arts) != 2 || !arts[0].Failed() || arts[1].Failed() {
		t.Fatalf("artifacts after rerun = %+v", arts)
	}
}

func TestRun_GateRejectsMixedPhases(t *testing.T) {
	h := newHarness(t, nil)
	h.setPhase(1, "a")
	h.setPhase(4, "b")
	_, err := h.runner.Run(context.Background(), []string{"a", "b"})
	if !errors.Is(err, ErrInconsistentBatch) {
		t.Fatalf("err = %v", err)
	}
	if len(h.confirm.prompts) != 0 || len(h.ledger.Mutations()) != 0 {
		t.Fatal("mixed batch reached a handler")
	}
}

func TestRun_PhasesWithoutHandler(t *testing.T) {
	h := newHarness(t, nil)
	h.setPhase(3, "a")
	if _, err := h.runner.Run(context.Background(), []string{"a"}); !errors.Is(err, ErrNoAction) {
		t.Fatalf("forbidden: err = %v", err)
	}
	h.setPhase(9, "a")
	if _, err := h.runner.Run(context.Background(), []string{"a"}); !errors.Is(err, ErrUnknownPhase) {
		t.Fatalf("unknown: err = %v", err)
	}
	if len(h.ledger.Mutations()) != 0 {
		t.Fatal("transaction sent")
	}
}

func TestRun_DeclineHasNoSideEffects(t *testing.T) {
	for _, phase := range []uint8{0, 1, 2, 4} {
		h := newHarness(t, nil)
		h.confirm.answer = false
		h.ledger.Balance = new(big.Int).Set(oneToken)
		h.setPhase(phase, "a")

		report, err := h.runner.Run(context.Background(), []string{"a"})
		if err != nil || !report.Declined {
			t.Fatalf("phase %d: report = %+v, err = %v", phase, report, err)
		}
		if len(h.ledger.Mutations()) != 0 || len(h.ledger.CallsTo(ledger.MethodComputeSealedBid)) != 0 {
			t.Fatalf("phase %d: ledger touched after decline", phase)
		}
		it := h.db.NewIterator(nil)
		if it.Next() {
			t.Fatalf("phase %d: key %x written", phase, it.Key())
		}
		it.Release()
	}
}

func TestRun_ConfirmError(t *testing.T) {
	h := newHarness(t, nil)
	h.confirm.err = errors.New("no tty")
	h.setPhase(2, "a")
	if _, err := h.runner.Run(context.Background(), []string{"a"}); !errors.Is(err, h.confirm.err) {
		t.Fatalf("err = %v", err)
	}
	if len(h.ledger.Mutations()) != 0 {
		t.Fatal("transaction sent")
	}
}

func TestRun_CancelStopsBeforeNextIdentifier(t *testing.T) {
	h := newHarness(t, nil)
	labels := []string{"a", "b", "c"}
	h.setPhase(2, labels...)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.ledger.Hook = func(method string, _ []any) error {
		if method == ledger.MethodFinalizeAuction {
			cancel()
		}
		return nil
	}

	report, err := h.runner.Run(ctx, labels)
	if !errors.Is(err, ErrInterrupted) {
		t.Fatalf("err = %v, want ErrInterrupted", err)
	}
	if n := len(h.ledger.CallsTo(ledger.MethodFinalizeAuction)); n != 1 {
		t.Fatalf("finalize calls = %d, want 1", n)
	}
	if report.Outcomes[0].Err != nil {
		t.Fatalf("in-flight call failed: %v", report.Outcomes[0].Err)
	}
	for _, o := range report.Outcomes[1:] {
		if !errors.Is(o.Err, ErrInterrupted) || !errors.Is(o.Err, context.Canceled) {
			t.Fatalf("%s: err = %v", o.Label, o.Err)
		}
	}
}

func TestRun_SecretSurvivesCrashAfterPersist(t *testing.T) {
	dir := t.TempDir()
	db, err := rawdb.NewFileDB(dir)
	if err != nil {
		t.Fatal(err)
	}
	h := newHarness(t, db)
	h.setPhase(1, "alpha")
	h.ledger.Balance = new(big.Int).Set(oneToken)
	h.ledger.Hook = func(method string, _ []any) error {
		if method == ledger.MethodTransferAndCall {
			return errors.New("connection reset")
		}
		return nil
	}
	if _, err := h.runner.Run(context.Background(), []string{"alpha"}); err == nil {
		t.Fatal("expected submission failure")
	}
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := rawdb.NewFileDB(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	store := NewDBStore(reopened)
	rec, err := store.GetBid(mustID(t, "alpha"))
	if err != nil {
		t.Fatalf("secret lost: %v", err)
	}
	if rec.Commitment != ledger.MockSealedBid(rec.Identifier, rec.Bidder, rec.BidValue(), rec.Salt) {
		t.Fatal("reloaded secret does not reproduce the commitment")
	}
	arts, _ := store.Artifacts(ActionBid, rec.Identifier.Hex())
	if len(arts) != 1 || !arts[0].Failed() {
		t.Fatalf("artifacts = %+v", arts)
	}

	// A second run resends the stored commitment without a new salt.
	h2 := newHarness(t, reopened)
	h2.ledger = h.ledger
	h2.runner = NewRunner(DefaultConfig(), h.ledger, store, store, h2.confirm)
	h.ledger.Hook = nil
	if _, err := h2.runner.Run(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("resumed bid: %v", err)
	}
	transfers := h.ledger.CallsTo(ledger.MethodTransferAndCall)
	if len(transfers) != 2 || !bytes.Equal(transfers[1].Args[2].([]byte), BidPayload(rec.Commitment)) {
		t.Fatalf("transfers = %+v", transfers)
	}
	if again, _ := store.GetBid(rec.Identifier); again.Salt != rec.Salt {
		t.Fatal("salt replaced on resume")
	}
	arts, _ = store.Artifacts(ActionBid, rec.Identifier.Hex())
	if len(arts) != 2 || arts[1].Failed() {
		t.Fatalf("artifacts after resume = %+v", arts)
	}

	// Once a submission succeeded the bid is not sent again.
	if _, err := h2.runner.Run(context.Background(), []string{"alpha"}); !errors.Is(err, ErrBidExists) {
		t.Fatalf("third bid err = %v, want ErrBidExists", err)
	}
	if n := len(h.ledger.CallsTo(ledger.MethodTransferAndCall)); n != 2 {
		t.Fatalf("transfers = %d, want 2", n)
	}

	h.setPhase(4, "alpha")
	if _, err := h2.runner.Run(context.Background(), []string{"alpha"}); err != nil {
		t.Fatalf("reveal after reopen: %v", err)
	}
	unseals := h.ledger.CallsTo(ledger.MethodUnsealBid)
	if len(unseals) != 1 || unseals[0].Args[2] != rec.Salt {
		t.Fatalf("unseals = %+v", unseals)
	}
}

func TestBatchKey(t *testing.T) {
	a := BatchKey([]common.Hash{{1}, {2}})
	if a != BatchKey([]common.Hash{{1}, {2}}) {
		t.Fatal("not deterministic")
	}
	if a == BatchKey([]common.Hash{{2}, {1}}) {
		t.Fatal("order ignored")
	}
}
