// Package config holds the sealbid configuration: where the node and the
// contracts are, what to bid and where to keep secrets.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/eth2030/sealbid/auction"
	"github.com/eth2030/sealbid/ledger"
)

// DefaultFiles are tried in order when no config path is given.
var DefaultFiles = []string{"config.json", "config.yaml", "config.yml"}

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `yaml:"level"`
	// Format is terminal or json.
	Format string `yaml:"format"`
}

// Config holds all configuration for a sealbid run.
type Config struct {
	// Node is the JSON-RPC endpoint of the ledger.
	Node string `yaml:"node"`

	// RegistrarAddress is the auction registrar contract.
	RegistrarAddress string `yaml:"registrarAddress"`

	// RIFAddress is the ERC-677 token the bids are paid in.
	RIFAddress string `yaml:"rifAddress"`

	// Amount is the bid per label in whole tokens.
	Amount uint64 `yaml:"amount"`

	TokenDecimals uint8  `yaml:"tokenDecimals"`
	TokenSymbol   string `yaml:"tokenSymbol"`

	// GasPrice in wei; zero asks the node.
	GasPrice uint64 `yaml:"gasPrice"`
	// GasLimit per transaction; zero estimates.
	GasLimit uint64 `yaml:"gasLimit"`
	// ChainID for signing; zero asks the node.
	ChainID uint64 `yaml:"chainId"`

	// DataDir holds bid secrets and transaction artifacts.
	DataDir string `yaml:"dataDir"`

	// SecretPath is a keystore file or hex private key.
	SecretPath string `yaml:"secretPath"`
	Passphrase string `yaml:"passphrase"`

	// ReceiptTimeout bounds the wait for each transaction to be mined.
	ReceiptTimeout time.Duration `yaml:"receiptTimeout"`

	Log LogConfig `yaml:"log"`

	// File is the path the config was loaded from, if any.
	File string `yaml:"-"`
}

// DefaultConfig returns a Config with the tool's defaults. Node and the
// contract addresses have no default.
func DefaultConfig() Config {
	return Config{
		Amount:         1,
		TokenDecimals:  18,
		TokenSymbol:    "RIF",
		GasPrice:       60_000_000,
		DataDir:        "sealbid-data",
		SecretPath:     ".secret",
		ReceiptTimeout: 5 * time.Minute,
		Log:            LogConfig{Level: "info", Format: "terminal"},
	}
}

// Load reads path over the defaults. An empty path tries DefaultFiles and
// falls back to the defaults when none exists. JSON files are accepted as
// YAML.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		for _, name := range DefaultFiles {
			if _, err := os.Stat(name); err == nil {
				path = name
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.File = path
	return cfg, nil
}

// Validate checks configuration values for correctness.
func (c *Config) Validate() error {
	if c.Node == "" {
		return errors.New("config: node must not be empty")
	}
	if !common.IsHexAddress(c.RegistrarAddress) {
		return fmt.Errorf("config: invalid registrar address %q", c.RegistrarAddress)
	}
	if !common.IsHexAddress(c.RIFAddress) {
		return fmt.Errorf("config: invalid token address %q", c.RIFAddress)
	}
	if c.Amount == 0 {
		return errors.New("config: amount must be positive")
	}
	if _, err := c.Auction().BidValue(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.DataDir == "" {
		return errors.New("config: dataDir must not be empty")
	}
	if c.SecretPath == "" {
		return errors.New("config: secretPath must not be empty")
	}
	if c.ReceiptTimeout <= 0 {
		return fmt.Errorf("config: invalid receipt timeout %s", c.ReceiptTimeout)
	}
	switch c.Log.Level {
	case "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "terminal", "json":
	default:
		return fmt.Errorf("config: unknown log format %q", c.Log.Format)
	}
	return nil
}

// Auction returns the bidding parameters.
func (c *Config) Auction() auction.Config {
	return auction.Config{Amount: c.Amount, Decimals: c.TokenDecimals, Symbol: c.TokenSymbol}
}

// Ledger returns the ledger client settings.
func (c *Config) Ledger() ledger.Config {
	lc := ledger.Config{
		Registrar:      common.HexToAddress(c.RegistrarAddress),
		Token:          common.HexToAddress(c.RIFAddress),
		GasLimit:       c.GasLimit,
		ReceiptTimeout: c.ReceiptTimeout,
	}
	if c.GasPrice != 0 {
		lc.GasPrice = new(big.Int).SetUint64(c.GasPrice)
	}
	if c.ChainID != 0 {
		lc.ChainID = new(big.Int).SetUint64(c.ChainID)
	}
	return lc
}
