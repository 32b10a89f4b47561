package auction

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/eth2030/sealbid/crypto"
	"github.com/eth2030/sealbid/ledger"
)

// BidSelector is the method selector the registrar's token callback
// dispatches a new sealed bid on.
var BidSelector = [4]byte{0x14, 0x13, 0x15, 0x1f}

// BidPayload returns the transferAndCall data registering commitment.
func BidPayload(commitment common.Hash) []byte {
	data := make([]byte, 0, len(BidSelector)+common.HashLength)
	data = append(data, BidSelector[:]...)
	return append(data, commitment[:]...)
}

// Sealer produces salted bid commitments. The commitment always comes from
// the registrar's own shaBid so it matches what the reveal will check.
type Sealer struct {
	ledger ledger.Ledger
	rand   io.Reader
}

// NewSealer creates a Sealer drawing salts from crypto/rand.
func NewSealer(l ledger.Ledger) *Sealer {
	return &Sealer{ledger: l, rand: rand.Reader}
}

// Generate draws a salt and seals value for (id, bidder). It does not
// persist anything.
func (s *Sealer) Generate(ctx context.Context, id common.Hash, bidder common.Address, value *big.Int) (*BidRecord, error) {
	salt, err := crypto.NewSaltFrom(s.rand)
	if err != nil {
		return nil, err
	}
	commitment, err := s.ledger.ComputeSealedBid(ctx, id, bidder, value, salt)
	if err != nil {
		return nil, fmt.Errorf("auction: seal %s: %w", id.Hex(), err)
	}
	return &BidRecord{
		Identifier: id,
		Bidder:     bidder,
		Value:      (*hexutil.Big)(new(big.Int).Set(value)),
		Salt:       salt,
		Commitment: commitment,
	}, nil
}
