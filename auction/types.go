package auction

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Action names a ledger-mutating call. The names key transaction
// artifacts in the store.
type Action string

const (
	ActionStartAuctions Action = "start-auction"
	ActionBid           Action = "bid"
	ActionUnseal        Action = "unseal"
	ActionFinalize      Action = "finalize"
)

// BidRecord is everything needed to reveal a sealed bid later. Salt and
// Value are secret until the reveal; losing them loses the bid.
type BidRecord struct {
	Identifier common.Hash    `json:"hash"`
	Label      string         `json:"label"`
	Bidder     common.Address `json:"from"`
	Value      *hexutil.Big   `json:"value"`
	Salt       common.Hash    `json:"salt"`
	Commitment common.Hash    `json:"shaBid"`
	RunID      string         `json:"runId,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// BidValue returns the bid amount in token base units.
func (r *BidRecord) BidValue() *big.Int {
	if r.Value == nil {
		return new(big.Int)
	}
	return r.Value.ToInt()
}

// TxArtifact is the durable trace of one ledger-mutating call, successful
// or not.
type TxArtifact struct {
	RunID       string          `json:"runId"`
	Action      Action          `json:"action"`
	Key         string          `json:"key"`
	Identifiers []common.Hash   `json:"identifiers"`
	Labels      []string        `json:"labels"`
	TxHash      common.Hash     `json:"txHash"`
	Status      *uint64         `json:"status,omitempty"`
	BlockNumber *hexutil.Big    `json:"blockNumber,omitempty"`
	Receipt     json.RawMessage `json:"receipt,omitempty"`
	Error       string          `json:"error,omitempty"`
	RecordedAt  time.Time       `json:"recordedAt"`
}

// Failed reports whether the recorded call did not succeed.
func (a *TxArtifact) Failed() bool { return a.Error != "" }
