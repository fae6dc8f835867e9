package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/holiman/uint256"

	"escrowledger/config"
	"escrowledger/host"
	"escrowledger/native/escrow"
)

type env struct {
	x      *host.Executor
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

type command func(ctx context.Context, e *env, args []string) int

var commands map[string]command

func init() {
	commands = map[string]command{
		"init":            runInit,
		"credit":          runCredit,
		"advance":         runAdvance,
		"create":          runCreate,
		"deposit":         runDeposit,
		"confirm":         runConfirm,
		"dispute":         runDispute,
		"settle":          runSettle,
		"refund":          runRefund,
		"join":            runJoin,
		"update":          runUpdate,
		"toggle":          runToggle,
		"pause":           adminCommand("pause", (*host.Executor).SetPaused),
		"unpause":         adminCommand("unpause", (*host.Executor).ClearPaused),
		"emergency":       adminCommand("emergency", (*host.Executor).TriggerEmergency),
		"clear-emergency": adminCommand("clear-emergency", (*host.Executor).ClearEmergency),
		"set-fee":         runSetFee,
		"set-collector":   runSetCollector,
		"transfer-owner":  runTransferOwner,
		"get":             runGet,
		"arbiter":         runArbiter,
		"deposit-info":    runDepositInfo,
		"role":            runRole,
		"history":         runHistory,
		"verify":          runVerify,
		"custody":         runCustody,
		"balance":         runBalance,
		"info":            runInfo,
		"stats":           runStats,
		"fee":             runFee,
		"height":          runHeight,
	}
}

func dispatch(ctx context.Context, e *env, args []string) int {
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(e.stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(e.stderr, usage())
		return 1
	}
	return cmd(ctx, e, args[1:])
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("escrowctl "+name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

// parseFlags parses args and rejects positional leftovers.
func parseFlags(fs *flag.FlagSet, args []string, stderr io.Writer) bool {
	if err := fs.Parse(args); err != nil {
		return false
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(stderr, "Error: unexpected positional arguments")
		return false
	}
	return true
}

func requireAddress(name, value string) ([20]byte, error) {
	if strings.TrimSpace(value) == "" {
		return [20]byte{}, fmt.Errorf("--%s is required", name)
	}
	addr, err := config.ParseAddress(value)
	if err != nil {
		return [20]byte{}, fmt.Errorf("--%s: %v", name, err)
	}
	return addr, nil
}

func requireID(value string) (uint64, error) {
	if strings.TrimSpace(value) == "" {
		return 0, fmt.Errorf("--id is required")
	}
	id, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("--id must be a positive integer")
	}
	return id, nil
}

func requireAmount(value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return nil, fmt.Errorf("--amount is required")
	}
	amount, err := uint256.FromDecimal(strings.TrimSpace(value))
	if err != nil {
		return nil, fmt.Errorf("--amount must be a decimal integer")
	}
	return amount, nil
}

func parseBps(name, value string) (uint32, error) {
	bps, err := strconv.ParseUint(strings.TrimSpace(value), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("--%s must be a non-negative integer", name)
	}
	if bps > escrow.PrecisionScale {
		return 0, fmt.Errorf("--%s must be <= %d", name, escrow.PrecisionScale)
	}
	return uint32(bps), nil
}

// failure prints err with its stable escrow error code when it has one.
func failure(w io.Writer, err error) int {
	if kind := escrow.KindOf(err); kind != escrow.KindUnknown {
		fmt.Fprintf(w, "Error: [%d %s] %v\n", kind.Code(), kind, err)
		return 1
	}
	return printError(w, err.Error())
}

func runInit(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("init", e.stderr)
	owner := fs.String("owner", e.cfg.Admin.Owner, "owner address")
	collector := fs.String("fee-collector", e.cfg.Admin.FeeCollector, "fee collector address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	ownerAddr, err := requireAddress("owner", *owner)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	collectorAddr, err := requireAddress("fee-collector", *collector)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := e.x.Initialize(ctx, ownerAddr, collectorAddr); err != nil {
		return failure(e.stderr, err)
	}
	return runInfo(ctx, e, nil)
}

func runCredit(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("credit", e.stderr)
	to := fs.String("to", "", "account to credit")
	amount := fs.String("amount", "", "amount to mint")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	addr, err := requireAddress("to", *to)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	value, err := requireAmount(*amount)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := e.x.Credit(ctx, addr, value); err != nil {
		return failure(e.stderr, err)
	}
	return showBalance(ctx, e, addr)
}

func runAdvance(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("advance", e.stderr)
	blocks := fs.Uint64("blocks", 1, "blocks to advance")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	if err := e.x.Advance(ctx, *blocks); err != nil {
		return failure(e.stderr, err)
	}
	return runHeight(ctx, e, nil)
}

func runCreate(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("create", e.stderr)
	from := fs.String("from", "", "caller address; must be the buyer or the seller")
	buyer := fs.String("buyer", "", "buyer address")
	seller := fs.String("seller", "", "seller address")
	arbiter := fs.String("arbiter", "", "active arbiter address")
	amount := fs.String("amount", "", "escrow amount")
	duration := fs.Uint64("duration", 0, "optional lifetime in blocks")
	metadata := fs.String("metadata", "", "optional free-form metadata")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	var addrs [4][20]byte
	for i, f := range []struct{ name, value string }{
		{"from", *from}, {"buyer", *buyer}, {"seller", *seller}, {"arbiter", *arbiter},
	} {
		addr, err := requireAddress(f.name, f.value)
		if err != nil {
			return printError(e.stderr, err.Error())
		}
		addrs[i] = addr
	}
	value, err := requireAmount(*amount)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	var durationPtr *uint64
	if *duration > 0 {
		durationPtr = duration
	}
	var metadataPtr *string
	if *metadata != "" {
		metadataPtr = metadata
	}
	id, err := e.x.NewEscrow(ctx, addrs[0], addrs[1], addrs[2], addrs[3], value, durationPtr, metadataPtr)
	if err != nil {
		return failure(e.stderr, err)
	}
	return showEscrow(ctx, e, id)
}

// escrowTransition handles the commands that take a caller and an escrow id.
func escrowTransition(ctx context.Context, name string, e *env, args []string, fn func(caller [20]byte, id uint64) error) int {
	fs := newFlagSet(name, e.stderr)
	from := fs.String("from", "", "caller address")
	id := fs.String("id", "", "escrow identifier")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	escrowID, err := requireID(*id)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := fn(caller, escrowID); err != nil {
		return failure(e.stderr, err)
	}
	return showEscrow(ctx, e, escrowID)
}

func runDeposit(ctx context.Context, e *env, args []string) int {
	return escrowTransition(ctx, "deposit", e, args, func(caller [20]byte, id uint64) error {
		return e.x.DepositFunds(ctx, caller, id)
	})
}

func runConfirm(ctx context.Context, e *env, args []string) int {
	return escrowTransition(ctx, "confirm", e, args, func(caller [20]byte, id uint64) error {
		_, err := e.x.MarkComplete(ctx, caller, id)
		return err
	})
}

func runRefund(ctx context.Context, e *env, args []string) int {
	return escrowTransition(ctx, "refund", e, args, func(caller [20]byte, id uint64) error {
		return e.x.ProcessRefund(ctx, caller, id)
	})
}

func runDispute(ctx context.Context, e *env, args []string) int {
	var reason string
	rest, err := extractFlag(args, "reason", &reason)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if strings.TrimSpace(reason) == "" {
		return printError(e.stderr, "--reason is required")
	}
	return escrowTransition(ctx, "dispute", e, rest, func(caller [20]byte, id uint64) error {
		return e.x.RaiseDispute(ctx, caller, id, reason)
	})
}

func runSettle(ctx context.Context, e *env, args []string) int {
	var raw string
	rest, err := extractFlag(args, "buyer-bps", &raw)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if raw == "" {
		return printError(e.stderr, "--buyer-bps is required")
	}
	bps, err := parseBps("buyer-bps", raw)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	return escrowTransition(ctx, "settle", e, rest, func(caller [20]byte, id uint64) error {
		return e.x.SettleDispute(ctx, caller, id, bps)
	})
}

// extractFlag removes --name value or --name=value from args and stores the
// value in dst.
func extractFlag(args []string, name string, dst *string) ([]string, error) {
	rest := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		trimmed := strings.TrimLeft(arg, "-")
		if trimmed == arg {
			rest = append(rest, arg)
			continue
		}
		if key, value, ok := strings.Cut(trimmed, "="); ok && key == name {
			*dst = value
			continue
		}
		if trimmed == name {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			*dst = args[i+1]
			i++
			continue
		}
		rest = append(rest, arg)
	}
	return rest, nil
}

func runJoin(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("join", e.stderr)
	from := fs.String("from", "", "arbiter address")
	name := fs.String("name", "", "display name")
	fee := fs.String("fee-bps", "0", "arbiter fee in basis points")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	bps, err := parseBps("fee-bps", *fee)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := e.x.JoinArbiters(ctx, caller, *name, bps); err != nil {
		return failure(e.stderr, err)
	}
	return showArbiter(ctx, e, caller)
}

func runUpdate(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("update", e.stderr)
	from := fs.String("from", "", "arbiter address")
	name := fs.String("name", "", "new display name")
	fee := fs.String("fee-bps", "", "new arbiter fee in basis points")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	var namePtr *string
	var feePtr *uint32
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "name" {
			namePtr = name
		}
	})
	if *fee != "" {
		bps, err := parseBps("fee-bps", *fee)
		if err != nil {
			return printError(e.stderr, err.Error())
		}
		feePtr = &bps
	}
	if err := e.x.UpdateProfile(ctx, caller, namePtr, feePtr); err != nil {
		return failure(e.stderr, err)
	}
	return showArbiter(ctx, e, caller)
}

func runToggle(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("toggle", e.stderr)
	from := fs.String("from", "", "arbiter address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if _, err := e.x.ToggleStatus(ctx, caller); err != nil {
		return failure(e.stderr, err)
	}
	return showArbiter(ctx, e, caller)
}

func adminCommand(name string, fn func(*host.Executor, context.Context, [20]byte) error) command {
	return func(ctx context.Context, e *env, args []string) int {
		fs := newFlagSet(name, e.stderr)
		from := fs.String("from", "", "owner address")
		if !parseFlags(fs, args, e.stderr) {
			return 1
		}
		caller, err := requireAddress("from", *from)
		if err != nil {
			return printError(e.stderr, err.Error())
		}
		if err := fn(e.x, ctx, caller); err != nil {
			return failure(e.stderr, err)
		}
		return runInfo(ctx, e, nil)
	}
}

func runSetFee(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("set-fee", e.stderr)
	from := fs.String("from", "", "owner address")
	fee := fs.String("fee-bps", "", "protocol fee in basis points")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if *fee == "" {
		return printError(e.stderr, "--fee-bps is required")
	}
	bps, err := parseBps("fee-bps", *fee)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := e.x.SetSystemFee(ctx, caller, bps); err != nil {
		return failure(e.stderr, err)
	}
	return runInfo(ctx, e, nil)
}

func runSetCollector(ctx context.Context, e *env, args []string) int {
	return ownerTarget(ctx, "set-collector", "collector", e, args, e.x.SetFeeCollector)
}

func runTransferOwner(ctx context.Context, e *env, args []string) int {
	return ownerTarget(ctx, "transfer-owner", "new-owner", e, args, e.x.TransferOwnership)
}

func ownerTarget(ctx context.Context, name, target string, e *env, args []string, fn func(context.Context, [20]byte, [20]byte) error) int {
	fs := newFlagSet(name, e.stderr)
	from := fs.String("from", "", "owner address")
	to := fs.String(target, "", "target address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	caller, err := requireAddress("from", *from)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	addr, err := requireAddress(target, *to)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	if err := fn(ctx, caller, addr); err != nil {
		return failure(e.stderr, err)
	}
	return runInfo(ctx, e, nil)
}
