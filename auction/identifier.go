package auction

import (
	"fmt"
	"unicode/utf8"

	"github.com/ethereum/go-ethereum/common"

	"github.com/eth2030/sealbid/crypto"
)

// DeriveIdentifier returns the registrar key of a label: the Keccak-256
// hash of its UTF-8 bytes.
func DeriveIdentifier(label string) (common.Hash, error) {
	if label == "" {
		return common.Hash{}, fmt.Errorf("%w: empty label", ErrMalformedLabel)
	}
	if !utf8.ValidString(label) {
		return common.Hash{}, fmt.Errorf("%w: %q is not valid UTF-8", ErrMalformedLabel, label)
	}
	return crypto.Keccak256Hash([]byte(label)), nil
}

// DeriveIdentifiers maps labels to identifiers, preserving order.
func DeriveIdentifiers(labels []string) ([]common.Hash, error) {
	ids := make([]common.Hash, len(labels))
	for i, label := range labels {
		id, err := DeriveIdentifier(label)
		if err != nil {
			return nil, fmt.Errorf("label %d: %w", i, err)
		}
		ids[i] = id
	}
	return ids, nil
}
