package main

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// options holds the parsed command line.
type options struct {
	command     string
	configPath  string
	input       string
	dataDir     string
	node        string
	amount      uint64
	verbosity   int
	yes         bool
	showVersion bool
}

// flagSet wraps flag.FlagSet to add support for uint64 flags.
type flagSet struct {
	*flag.FlagSet
}

// newCustomFlagSet creates a flagSet with ContinueOnError behavior.
func newCustomFlagSet(name string, output io.Writer) *flagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(output)
	return &flagSet{FlagSet: fs}
}

// Uint64Var defines a uint64 flag that rejects negative and non-decimal
// input with a clear message.
func (fs *flagSet) Uint64Var(p *uint64, name string, value uint64, usage string) {
	*p = value
	fs.FlagSet.Var(&uint64Value{p: p}, name, usage)
}

// uint64Value implements flag.Value for uint64 flags.
type uint64Value struct {
	p *uint64
}

func (v *uint64Value) String() string {
	if v.p == nil {
		return "0"
	}
	return strconv.FormatUint(*v.p, 10)
}

func (v *uint64Value) Set(s string) error {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid uint64 value %q", s)
	}
	*v.p = n
	return nil
}

// newFlagSet binds every CLI flag to opts.
func newFlagSet(opts *options, output io.Writer) *flagSet {
	fs := newCustomFlagSet("sealbid", output)
	fs.StringVar(&opts.configPath, "config", "", "config file (default: config.json or config.yaml if present)")
	fs.StringVar(&opts.input, "input", "", "JSON file with the labels to process (prompted when empty)")
	fs.StringVar(&opts.dataDir, "datadir", "", "directory for bid secrets and transaction records")
	fs.StringVar(&opts.node, "node", "", "ledger JSON-RPC endpoint")
	fs.Uint64Var(&opts.amount, "amount", 0, "bid per label in whole tokens")
	fs.IntVar(&opts.verbosity, "verbosity", -1, "log level 0-5 (0=silent, 5=trace); overrides log.level")
	fs.BoolVar(&opts.yes, "yes", false, "answer yes to every confirmation")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	return fs
}
