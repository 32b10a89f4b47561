package rawdb

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrExists is returned by write-once accessors when the key is taken.
var ErrExists = errors.New("already exists")

// --- Bid records ---

// WriteBid stores the encoded bid record for id. Bid records are write
// once: an existing record is never replaced and ErrExists is returned.
func WriteBid(db Database, id common.Hash, data []byte) error {
	key := bidKey(id)
	ok, err := db.Has(key)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("bid %s: %w", id.Hex(), ErrExists)
	}
	return db.Put(key, data)
}

// ReadBid returns the encoded bid record for id, or ErrNotFound.
func ReadBid(db KeyValueReader, id common.Hash) ([]byte, error) {
	return db.Get(bidKey(id))
}

// IterateBids calls fn for every stored bid record in identifier order.
// Iteration stops at the first error returned by fn.
func IterateBids(db Iteratee, fn func(id common.Hash, data []byte) error) error {
	it := db.NewIterator(bidPrefix)
	defer it.Release()
	for it.Next() {
		key := it.Key()
		if len(key) != len(bidPrefix)+common.HashLength {
			continue
		}
		if err := fn(common.BytesToHash(key[len(bidPrefix):]), it.Value()); err != nil {
			return err
		}
	}
	return nil
}

// --- Bid index ---

// WriteBidIndex stores the consolidated listing of one bidding run.
func WriteBidIndex(db KeyValueWriter, runID string, data []byte) error {
	return db.Put(bidIndexKey(runID), data)
}

// ReadBidIndex returns the consolidated listing of one bidding run.
func ReadBidIndex(db KeyValueReader, runID string) ([]byte, error) {
	return db.Get(bidIndexKey(runID))
}

// --- Transaction artifacts ---

// AppendTxArtifact stores data as the next artifact for (action, key) and
// returns its sequence number. Earlier artifacts are never overwritten.
func AppendTxArtifact(db Database, action, key string, data []byte) (uint64, error) {
	seq := uint64(countPrefix(db, txArtifactKeyPrefix(action, key)))
	if err := db.Put(txArtifactKey(action, key, seq), data); err != nil {
		return 0, err
	}
	return seq, nil
}

// ReadTxArtifacts returns every artifact recorded for (action, key) in
// the order they were appended.
func ReadTxArtifacts(db Iteratee, action, key string) [][]byte {
	it := db.NewIterator(txArtifactKeyPrefix(action, key))
	defer it.Release()
	var out [][]byte
	for it.Next() {
		out = append(out, it.Value())
	}
	return out
}

// countPrefix returns the number of keys under prefix.
func countPrefix(db Iteratee, prefix []byte) int {
	it := db.NewIterator(prefix)
	defer it.Release()
	n := 0
	for it.Next() {
		n++
	}
	return n
}
