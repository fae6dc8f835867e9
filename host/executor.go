package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"escrowledger/core/events"
	"escrowledger/core/state"
	"escrowledger/native/common"
	"escrowledger/native/escrow"
	"escrowledger/observability"
	"escrowledger/observability/metrics"
	telemetry "escrowledger/observability/otel"
	"escrowledger/storage"
)

var heightKey = []byte("host/height")

// Options configures an Executor. Zero values select the engine defaults.
type Options struct {
	Params  *escrow.Params
	Custody *[20]byte
	Pauses  common.PauseView
	Quota   common.Quota
	Emitter events.Emitter
	Logger  *slog.Logger
	Tracer  trace.Tracer
}

// Executor runs every escrow operation as one serialised transaction against
// the database. Writes of a failed operation are discarded and its events are
// never delivered. Each committed operation advances the logical clock by one
// block.
type Executor struct {
	mu      sync.Mutex
	db      storage.Database
	height  uint64
	params  escrow.Params
	custody [20]byte
	pauses  common.PauseView
	limiter *common.Limiter
	emitter events.Emitter
	logger  *slog.Logger
	tracer  trace.Tracer
}

// New opens an executor over db, resuming the clock persisted there.
func New(db storage.Database, opts Options) (*Executor, error) {
	if db == nil {
		return nil, fmt.Errorf("host: database required")
	}
	x := &Executor{
		db:      db,
		params:  escrow.DefaultParams(),
		custody: escrow.DefaultCustodyAddress,
		pauses:  opts.Pauses,
		limiter: common.NewLimiter(opts.Quota),
		emitter: opts.Emitter,
		logger:  opts.Logger,
		tracer:  opts.Tracer,
	}
	if opts.Params != nil {
		if err := opts.Params.Validate(); err != nil {
			return nil, fmt.Errorf("host: %w", err)
		}
		x.params = *opts.Params
	}
	if opts.Custody != nil {
		x.custody = *opts.Custody
	}
	if x.emitter == nil {
		x.emitter = events.NoopEmitter{}
	}
	if x.logger == nil {
		x.logger = slog.Default()
	}
	if x.tracer == nil {
		x.tracer = telemetry.Tracer()
	}
	tx := state.Begin(db)
	defer tx.Discard()
	if _, err := state.NewManager(tx).KVGet(heightKey, &x.height); err != nil {
		return nil, fmt.Errorf("host: load clock: %w", err)
	}
	if x.height == 0 {
		x.height = 1
	}
	return x, nil
}

// Height returns the block the next operation will execute in.
func (x *Executor) Height() uint64 {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.height
}

// bankAdapter reports a short balance with the escrow error kind.
type bankAdapter struct {
	bank *state.Bank
}

func (b bankAdapter) Transfer(from, to [20]byte, amount *uint256.Int) error {
	err := b.bank.Transfer(from, to, amount)
	if errors.Is(err, state.ErrInsufficientFunds) {
		return fmt.Errorf("%w: %w", escrow.ErrInsufficientBalance, err)
	}
	return err
}

func (x *Executor) engine(mgr *state.Manager, emitter events.Emitter, height uint64) *escrow.Engine {
	engine := escrow.NewEngine()
	engine.SetState(mgr)
	engine.SetTransferer(bankAdapter{bank: state.NewBank(mgr)})
	engine.SetParams(x.params)
	engine.SetCustodyAddress(x.custody)
	engine.SetPauses(x.pauses)
	engine.SetEmitter(emitter)
	engine.SetNowFunc(func() uint64 { return height })
	return engine
}

// Execute runs fn as a single atomic operation named op.
func (x *Executor) Execute(ctx context.Context, op string, fn func(*escrow.Engine) error) error {
	return x.run(ctx, op, nil, 1, func(engine *escrow.Engine, _ *state.Manager) error {
		return fn(engine)
	})
}

// run executes fn inside a transaction. When caller is set the operation is
// charged to the caller's quota first and the charge is returned if the
// operation does not commit. advance is the number of blocks the
// clock moves on commit.
func (x *Executor) run(ctx context.Context, op string, caller *[20]byte, advance uint64, fn func(*escrow.Engine, *state.Manager) error) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}
	ctx, span := x.tracer.Start(ctx, "escrow."+op)
	defer span.End()
	start := time.Now()

	x.mu.Lock()
	defer x.mu.Unlock()
	height := x.height
	span.SetAttributes(attribute.String("escrow.op", op), attribute.Int64("escrow.height", int64(height)))

	if caller != nil {
		if err := x.limiter.Allow(*caller, height); err != nil {
			observability.Operations().RecordThrottle(op)
			x.logger.WarnContext(ctx, "escrow operation throttled", "op", op, "height", height)
			span.SetStatus(codes.Error, "throttled")
			return fmt.Errorf("host: %s: %w", op, err)
		}
	}

	tx := state.Begin(x.db)
	mgr := state.NewManager(tx)
	recorder := &events.Recorder{}
	engine := x.engine(mgr, recorder, height)

	err = fn(engine, mgr)
	var stats *escrow.Stats
	if err == nil {
		stats, err = engine.FetchStats()
	}
	if err == nil {
		next := height + advance
		if next < height {
			err = fmt.Errorf("host: clock overflow")
		} else if err = mgr.KVPut(heightKey, next); err == nil {
			err = tx.Commit()
		}
	}
	if err != nil {
		tx.Discard()
		if caller != nil {
			x.limiter.Release(*caller, height)
		}
		kind := escrow.KindOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, kind.String())
		observability.Operations().Observe(op, kind.String(), time.Since(start))
		x.logger.WarnContext(ctx, "escrow operation failed",
			"op", op, "kind", kind.String(), "code", kind.Code(), "height", height, "error", err)
		return err
	}

	x.height = height + advance
	committed := recorder.Events()
	for _, evt := range committed {
		observability.Events().RecordEvent(evt.EventType())
	}
	recorder.Flush(x.emitter)
	observability.Operations().Observe(op, "", time.Since(start))
	observability.Operations().SetHeight(x.height)
	metrics.Ledger().Publish(metrics.Snapshot{
		Total:        stats.TotalEscrows,
		Completed:    stats.Completed,
		Disputed:     stats.Disputed,
		Resolved:     stats.Resolved,
		Refunded:     stats.Refunded,
		Volume:       stats.TotalVolume,
		ProtocolFees: stats.ProtocolFees,
		ArbiterFees:  stats.ArbiterFees,
		Paused:       stats.Paused,
	})
	x.logger.DebugContext(ctx, "escrow operation committed",
		"op", op, "height", height, "events", len(committed),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

// Query runs fn against the committed state. Writes made by fn are dropped.
func (x *Executor) Query(ctx context.Context, fn func(*escrow.Engine) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	tx := state.Begin(x.db)
	defer tx.Discard()
	return fn(x.engine(state.NewManager(tx), events.NoopEmitter{}, x.height))
}
