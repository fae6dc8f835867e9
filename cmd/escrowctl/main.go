package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"escrowledger/config"
	"escrowledger/core/events"
	"escrowledger/host"
	"escrowledger/observability/logging"
	telemetry "escrowledger/observability/otel"
	"escrowledger/storage"
)

const (
	defaultConfig  = "./escrow.toml"
	defaultPassEnv = "ESCROW_KEY_PASS"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("escrowctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { fmt.Fprintln(stderr, usage()) }
	configPath := fs.String("config", defaultConfig, "path to the escrow config file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	rest := fs.Args()
	if len(rest) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	if rest[0] == "keygen" {
		return runKeygen(rest[1:], stdout, stderr)
	}
	if _, ok := commands[rest[0]]; !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n", rest[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	logger, err := logging.SetupWithOptions(cfg.ServiceName, cfg.Env, cfg.LoggingOptions())
	if err != nil {
		return printError(stderr, err.Error())
	}
	shutdown, err := telemetry.Init(ctx, cfg.TelemetryConfig())
	if err != nil {
		return printError(stderr, err.Error())
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	db, err := storage.NewLevelDB(cfg.Storage.DataDir)
	if err != nil {
		return printError(stderr, fmt.Sprintf("open storage: %v", err))
	}
	defer db.Close()

	x, err := newExecutor(cfg, db, logger, stderr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return dispatch(ctx, &env{x: x, cfg: cfg, stdout: stdout, stderr: stderr}, rest)
}

func newExecutor(cfg *config.Config, db storage.Database, logger *slog.Logger, eventOut io.Writer) (*host.Executor, error) {
	params, err := cfg.EscrowParams()
	if err != nil {
		return nil, err
	}
	opts := host.Options{
		Params:  &params,
		Pauses:  cfg.PauseView(),
		Quota:   cfg.EscrowQuota(),
		Emitter: eventPrinter{w: eventOut},
		Logger:  logger.With("component", "host"),
	}
	custody, ok, err := cfg.CustodyAddress()
	if err != nil {
		return nil, err
	}
	if ok {
		opts.Custody = &custody
	}
	return host.New(db, opts)
}

// eventPrinter writes committed events to w as JSON lines.
type eventPrinter struct {
	w io.Writer
}

func (p eventPrinter) Emit(evt events.Event) {
	payload, ok := evt.(events.Payload)
	if !ok || payload.Event() == nil {
		fmt.Fprintf(p.w, "event: %s\n", evt.EventType())
		return
	}
	data, err := json.Marshal(payload.Event())
	if err != nil {
		return
	}
	fmt.Fprintf(p.w, "event: %s\n", data)
}

func printError(w io.Writer, msg string) int {
	fmt.Fprintf(w, "Error: %s\n", msg)
	return 1
}

func usage() string {
	return strings.TrimSpace(`Usage:
  escrowctl [--config path] <command> [flags]

Setup:
  keygen           Generate a key into an encrypted keystore file
  init             Initialise owner and fee collector (defaults from [Admin])
  credit           Mint development balance into an account
  advance          Advance the block clock

Escrow:
  create           Create an escrow
  deposit          Fund an escrow from the buyer
  confirm          Confirm completion as buyer or seller
  dispute          Raise a dispute on a funded escrow
  settle           Settle a dispute as the arbiter
  refund           Refund an expired escrow or cancel an unfunded one

Arbiters:
  join             Register as an arbiter
  update           Update the caller's arbiter profile
  toggle           Flip the caller's arbiter availability

Admin:
  pause            Pause the ledger
  unpause          Lift a pause
  emergency        Enter emergency mode
  clear-emergency  Leave emergency mode
  set-fee          Set the protocol fee in basis points
  set-collector    Change the fee collector
  transfer-owner   Hand administration to a new owner

Queries:
  get              Escrow details
  arbiter          Arbiter profile
  deposit-info     Deposit record of an escrow
  role             Participant role of an address
  history          Audit trail of an escrow
  verify           Verify the audit trail hash chain
  custody          Amount held in custody for an escrow
  balance          Account balance
  info             Administrative configuration
  stats            System-wide counters
  fee              Current protocol fee
  height           Current block height
`)
}
