package ledger

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/tyler-smith/go-bip39"
)

// ErrInvalidMnemonic is returned for a secret phrase that fails BIP-39
// word list or checksum validation.
var ErrInvalidMnemonic = errors.New("ledger: invalid mnemonic")

// Identity is the signing identity of the bidder.
type Identity struct {
	address common.Address
	key     *ecdsa.PrivateKey
}

// NewIdentity wraps an in-memory private key.
func NewIdentity(key *ecdsa.PrivateKey) *Identity {
	return &Identity{address: crypto.PubkeyToAddress(key.PublicKey), key: key}
}

// LoadIdentity reads the signing key from path. The file may hold a V3
// keystore JSON document decrypted with passphrase, a BIP-39 mnemonic or a
// hex private key.
func LoadIdentity(path, passphrase string) (*Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("ledger: read secret: %w", err)
	}
	return ParseIdentity(raw, passphrase)
}

// ParseIdentity decodes the contents of a secret file.
func ParseIdentity(raw []byte, passphrase string) (*Identity, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, errors.New("ledger: empty secret")
	}
	if raw[0] == '{' {
		key, err := keystore.DecryptKey(raw, passphrase)
		if err != nil {
			return nil, fmt.Errorf("ledger: decrypt keystore: %w", err)
		}
		return NewIdentity(key.PrivateKey), nil
	}
	s := string(raw)
	if words := strings.Fields(s); len(words) > 1 {
		return DeriveIdentity(strings.Join(words, " "), accounts.DefaultBaseDerivationPath)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse hex key: %w", err)
	}
	return NewIdentity(key), nil
}

// DeriveIdentity derives the key at path from a BIP-39 mnemonic with an
// empty seed password, the way HD wallet providers do. The first account
// of accounts.DefaultBaseDerivationPath is m/44'/60'/0'/0/0.
func DeriveIdentity(mnemonic string, path accounts.DerivationPath) (*Identity, error) {
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	ext, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("ledger: master key: %w", err)
	}
	for _, n := range path {
		if ext, err = ext.Derive(n); err != nil {
			return nil, fmt.Errorf("ledger: derive %s: %w", path, err)
		}
	}
	priv, err := ext.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("ledger: derive %s: %w", path, err)
	}
	key, err := crypto.ToECDSA(priv.Serialize())
	if err != nil {
		return nil, fmt.Errorf("ledger: derive %s: %w", path, err)
	}
	return NewIdentity(key), nil
}

// Address returns the account address of the identity.
func (id *Identity) Address() common.Address { return id.address }

// SignTx signs tx for the given chain.
func (id *Identity) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), id.key)
}
