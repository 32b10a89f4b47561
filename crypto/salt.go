package crypto

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
)

// SaltLength is the width of a bid salt in bytes.
const SaltLength = common.HashLength

// NewSalt returns a fresh 32-byte salt read from crypto/rand.
func NewSalt() (common.Hash, error) {
	return NewSaltFrom(rand.Reader)
}

// NewSaltFrom reads a salt from r. A short read is an error; a partially
// random salt would weaken the sealed bid it protects.
func NewSaltFrom(r io.Reader) (common.Hash, error) {
	var salt common.Hash
	if _, err := io.ReadFull(r, salt[:]); err != nil {
		return common.Hash{}, fmt.Errorf("crypto: read salt: %w", err)
	}
	return salt, nil
}
