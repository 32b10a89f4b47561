package rawdb

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
)

// Key prefixes. Each record kind lives under its own prefix so iteration
// over one kind never sees another.
var (
	bidPrefix        = []byte("b") // b + identifier -> bid record JSON
	bidIndexPrefix   = []byte("i") // i + run id -> JSON list of the run's bid records
	txArtifactPrefix = []byte("t") // t + action + ":" + key + ":" + seq (8 BE) -> artifact JSON
)

// bidKey = bidPrefix + identifier
func bidKey(id common.Hash) []byte {
	return append(append([]byte{}, bidPrefix...), id[:]...)
}

// bidIndexKey = bidIndexPrefix + runID
func bidIndexKey(runID string) []byte {
	return append(append([]byte{}, bidIndexPrefix...), runID...)
}

// txArtifactKeyPrefix = txArtifactPrefix + action + ":" + key + ":"
func txArtifactKeyPrefix(action, key string) []byte {
	k := append([]byte{}, txArtifactPrefix...)
	k = append(k, action...)
	k = append(k, ':')
	k = append(k, key...)
	return append(k, ':')
}

// txArtifactKey = txArtifactKeyPrefix + seq
func txArtifactKey(action, key string, seq uint64) []byte {
	var enc [8]byte
	binary.BigEndian.PutUint64(enc[:], seq)
	return append(txArtifactKeyPrefix(action, key), enc[:]...)
}
