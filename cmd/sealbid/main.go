// Command sealbid drives a batch of RNS labels through the registrar's
// commit-reveal auction: it starts auctions, places sealed bids, reveals
// them and finalizes won names, one phase per invocation.
//
// Usage:
//
//	sealbid [flags]        run the action for the batch's current phase
//	sealbid bids [flags]   list the bid secrets kept in the data directory
//
// Flags:
//
//	--config     Config file (default: config.json or config.yaml)
//	--input      JSON array of labels (prompted, default input.json)
//	--datadir    Data directory for secrets and records (default: sealbid-data)
//	--node       Ledger JSON-RPC endpoint
//	--amount     Bid per label in whole tokens (default: 1)
//	--verbosity  Log level 0-5
//	--yes        Do not ask for confirmation
//	--version    Print version and exit
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/eth2030/sealbid/auction"
	"github.com/eth2030/sealbid/config"
	"github.com/eth2030/sealbid/core/rawdb"
	"github.com/eth2030/sealbid/ledger"
	"github.com/eth2030/sealbid/log"
	"github.com/eth2030/sealbid/metrics"
	"github.com/eth2030/sealbid/prompt"
)

// Build-time version info, overridable with ldflags:
//
//	go build -ldflags "-X main.version=v0.2.0 -X main.commit=abc1234"
var (
	version = "v0.1.0-dev"
	commit  = "unknown"
)

// Exit codes.
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const defaultInput = "input.json"

// dialLedger connects the ledger client. Tests replace it.
var dialLedger = func(ctx context.Context, cfg *config.Config) (ledger.Ledger, func(), error) {
	pass := cfg.Passphrase
	if pass == "" {
		pass = os.Getenv("SEALBID_PASSPHRASE")
	}
	id, err := ledger.LoadIdentity(cfg.SecretPath, pass)
	if err != nil {
		return nil, nil, err
	}
	c, closeFn, err := ledger.Dial(ctx, cfg.Node, id, cfg.Ledger())
	if err != nil {
		return nil, nil, err
	}
	return c, closeFn, nil
}

func main() {
	os.Exit(newCLI(os.Stdin, os.Stdout, os.Stderr).run(os.Args[1:]))
}

// cli carries the process streams so runs can be tested in isolation.
type cli struct {
	in      io.Reader
	out     io.Writer
	errOut  io.Writer
	console *prompt.Console
}

func newCLI(in io.Reader, out, errOut io.Writer) *cli {
	return &cli{in: in, out: out, errOut: errOut, console: prompt.NewConsole(out)}
}

// run is the actual entry point, returning an exit code.
func (c *cli) run(args []string) int {
	opts, exit, code := c.parseFlags(args)
	if exit {
		return code
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		c.console.Error("%v", err)
		return exitUsage
	}
	applyOverrides(&cfg, opts)
	c.setupLogging(&cfg, opts.verbosity)
	if cfg.File != "" {
		log.Debug("Configuration loaded", "file", cfg.File)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if opts.command == "bids" {
		return c.listBids(&cfg)
	}
	return c.runBatch(ctx, &cfg, opts)
}

// parseFlags parses CLI arguments. Returns the options, whether the caller
// should exit immediately, and the exit code.
func (c *cli) parseFlags(args []string) (options, bool, int) {
	var opts options
	if len(args) > 0 && args[0] == "bids" {
		opts.command, args = "bids", args[1:]
	}
	fs := newFlagSet(&opts, c.errOut)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return opts, true, exitOK
		}
		return opts, true, exitUsage
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(c.errOut, "Error: unexpected argument %q\n", fs.Arg(0))
		return opts, true, exitUsage
	}
	if opts.showVersion {
		fmt.Fprintf(c.out, "sealbid %s (commit %s)\n", version, commit)
		return opts, true, exitOK
	}
	return opts, false, exitOK
}

// applyOverrides lets flags win over file values.
func applyOverrides(cfg *config.Config, opts options) {
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.node != "" {
		cfg.Node = opts.node
	}
	if opts.amount != 0 {
		cfg.Amount = opts.amount
	}
}

func (c *cli) setupLogging(cfg *config.Config, verbosity int) {
	lvl := log.ParseLevel(cfg.Log.Level)
	if verbosity >= 0 {
		lvl = log.VerbosityToLevel(verbosity)
	}
	if cfg.Log.Format == "json" {
		log.SetDefault(log.NewWithHandler(slog.NewJSONHandler(c.errOut, &slog.HandlerOptions{Level: lvl})))
		return
	}
	useColor := false
	if f, ok := c.errOut.(*os.File); ok {
		useColor = isatty.IsTerminal(f.Fd())
	}
	log.SetDefault(log.NewTerminal(c.errOut, lvl, useColor))
}

func (c *cli) runBatch(ctx context.Context, cfg *config.Config, opts options) int {
	c.console.Banner("RNS registration tool")
	if err := cfg.Validate(); err != nil {
		c.console.Error("Invalid configuration: %v", err)
		return exitUsage
	}

	var confirmer auction.Confirmer
	term := prompt.NewTerminal(c.in, c.out)
	if opts.yes {
		confirmer = prompt.Always(true)
	} else {
		confirmer = term
	}
	input := opts.input
	if input == "" && !opts.yes {
		var err error
		if input, err = term.Input(ctx, "Where are the names to register?", defaultInput); err != nil {
			c.console.Error("%v", err)
			return exitUsage
		}
	}
	if input == "" {
		input = defaultInput
	}
	labels, err := loadLabels(input)
	if err != nil {
		c.console.Error("%v", err)
		return exitUsage
	}

	db, err := rawdb.NewFileDB(cfg.DataDir)
	if err != nil {
		c.console.Error("Failed to open data directory: %v", err)
		return exitFailure
	}
	defer db.Close()
	log.Debug("Data directory opened", "dir", db.Dir())
	store := auction.NewDBStore(db)

	l, closeLedger, err := dialLedger(ctx, cfg)
	if err != nil {
		c.console.Error("Failed to connect to the ledger: %v", err)
		return exitFailure
	}
	defer closeLedger()
	log.Info("Ledger ready", "node", cfg.Node, "account", l.Account(), "registrar", l.Registrar())

	runner := auction.NewRunner(cfg.Auction(), l, store, store, confirmer)
	report, err := runner.Run(ctx, labels)
	c.printReport(report, err)
	log.Debug("Run metrics", "metrics", metrics.DefaultRegistry.Snapshot())
	if err != nil {
		return exitFailure
	}
	return exitOK
}

func (c *cli) printReport(report *auction.Report, err error) {
	if report == nil {
		c.console.Error("%v", err)
		return
	}
	if report.Declined {
		c.console.Alert("Nothing done: %s action declined", report.Phase)
		return
	}
	for _, o := range report.Outcomes {
		if o.Err != nil {
			c.console.Error("%s %s: %v", o.Action, o.Label, o.Err)
		} else {
			c.console.Success("%s %s: %s", o.Action, o.Label, o.TxHash.Hex())
		}
	}
	var be *auction.BatchError
	switch {
	case err == nil:
		c.console.Success("Done: %d %s", report.Succeeded(), report.Phase)
	case errors.As(err, &be):
		c.console.Alert("%d of %d failed; re-run to retry", len(be.Failures), be.Total)
	default:
		c.console.Error("%v", err)
	}
}

func (c *cli) listBids(cfg *config.Config) int {
	db, err := rawdb.NewFileDB(cfg.DataDir)
	if err != nil {
		c.console.Error("Failed to open data directory: %v", err)
		return exitFailure
	}
	defer db.Close()
	bids, err := auction.NewDBStore(db).ListBids()
	if err != nil {
		c.console.Error("%v", err)
		return exitFailure
	}
	if len(bids) == 0 {
		c.console.Alert("No bids in %s", db.Dir())
		return exitOK
	}
	for _, b := range bids {
		fmt.Fprintf(c.out, "%s\t%s\t%s\t%s\t%s\n", b.Label, b.Identifier.Hex(), b.Bidder.Hex(), b.BidValue(), b.CreatedAt.Format(time.RFC3339))
	}
	return exitOK
}
