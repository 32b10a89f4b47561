package auction

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/sealbid/core/rawdb"
	"github.com/eth2030/sealbid/metrics"
)

// BidStore durably keeps bid secrets between the bidding and reveal runs.
type BidStore interface {
	// PutBid stores rec and returns only once it is durable. An existing
	// record for the same identifier is never replaced (ErrBidExists).
	PutBid(rec *BidRecord) error
	// GetBid returns the record for id or ErrSecretNotFound.
	GetBid(id common.Hash) (*BidRecord, error)
	// PutBidIndex stores the listing of every record one run produced.
	PutBidIndex(runID string, recs []*BidRecord) error
}

// Recorder persists transaction artifacts. It is append-only.
type Recorder interface {
	Record(a *TxArtifact) error
	// Artifacts returns every artifact recorded for (action, key) in order.
	Artifacts(action Action, key string) ([]*TxArtifact, error)
}

// DBStore implements BidStore and Recorder on a rawdb.Database.
type DBStore struct {
	db rawdb.Database
}

// NewDBStore wraps db.
func NewDBStore(db rawdb.Database) *DBStore {
	return &DBStore{db: db}
}

// PutBid stores rec under its identifier. It refuses to replace an
// existing record.
func (s *DBStore) PutBid(rec *BidRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("auction: encode bid: %w", err)
	}
	if err := rawdb.WriteBid(s.db, rec.Identifier, data); err != nil {
		if errors.Is(err, rawdb.ErrExists) {
			return fmt.Errorf("%w: %s", ErrBidExists, rec.Identifier.Hex())
		}
		return fmt.Errorf("auction: store bid %s: %w", rec.Identifier.Hex(), err)
	}
	metrics.BidsPersisted.Inc()
	return nil
}

// GetBid loads the record for id or returns ErrSecretNotFound.
func (s *DBStore) GetBid(id common.Hash) (*BidRecord, error) {
	data, err := rawdb.ReadBid(s.db, id)
	if errors.Is(err, rawdb.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrSecretNotFound, id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("auction: read bid %s: %w", id.Hex(), err)
	}
	rec := new(BidRecord)
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("auction: decode bid %s: %w", id.Hex(), err)
	}
	return rec, nil
}

// PutBidIndex stores the records one run produced under its run ID.
func (s *DBStore) PutBidIndex(runID string, recs []*BidRecord) error {
	data, err := json.Marshal(recs)
	if err != nil {
		return fmt.Errorf("auction: encode bid index: %w", err)
	}
	return rawdb.WriteBidIndex(s.db, runID, data)
}

// BidIndex returns the records listed for runID.
func (s *DBStore) BidIndex(runID string) ([]*BidRecord, error) {
	data, err := rawdb.ReadBidIndex(s.db, runID)
	if err != nil {
		return nil, fmt.Errorf("auction: read bid index %s: %w", runID, err)
	}
	var recs []*BidRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("auction: decode bid index %s: %w", runID, err)
	}
	return recs, nil
}

// ListBids returns every stored bid record in identifier order.
func (s *DBStore) ListBids() ([]*BidRecord, error) {
	var recs []*BidRecord
	err := rawdb.IterateBids(s.db, func(id common.Hash, data []byte) error {
		rec := new(BidRecord)
		if err := json.Unmarshal(data, rec); err != nil {
			return fmt.Errorf("auction: decode bid %s: %w", id.Hex(), err)
		}
		recs = append(recs, rec)
		return nil
	})
	return recs, err
}

// Record appends a as the next artifact for its action and key.
func (s *DBStore) Record(a *TxArtifact) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("auction: encode artifact: %w", err)
	}
	if _, err := rawdb.AppendTxArtifact(s.db, string(a.Action), a.Key, data); err != nil {
		return fmt.Errorf("auction: record %s %s: %w", a.Action, a.Key, err)
	}
	metrics.ArtifactsRecorded.Inc()
	return nil
}

// Artifacts returns every artifact recorded for (action, key) in order.
func (s *DBStore) Artifacts(action Action, key string) ([]*TxArtifact, error) {
	var out []*TxArtifact
	for _, data := range rawdb.ReadTxArtifacts(s.db, string(action), key) {
		a := new(TxArtifact)
		if err := json.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("auction: decode artifact: %w", err)
		}
		out = append(out, a)
	}
	return out, nil
}

var (
	_ BidStore = (*DBStore)(nil)
	_ Recorder = (*DBStore)(nil)
)
