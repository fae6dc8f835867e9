package host

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"escrowledger/core/events"
	"escrowledger/native/common"
	"escrowledger/native/escrow"
	"escrowledger/storage"
)

func addr(b byte) [20]byte {
	var out [20]byte
	out[19] = b
	return out
}

var (
	owner     = addr(0x01)
	collector = addr(0x02)
	buyer     = addr(0x11)
	seller    = addr(0x12)
	arbiter   = addr(0x13)
)

type harness struct {
	t       *testing.T
	ctx     context.Context
	x       *Executor
	emitter *events.Recorder
}

func newHarness(t *testing.T, db storage.Database, opts Options) *harness {
	t.Helper()
	h := &harness{t: t, ctx: context.Background(), emitter: &events.Recorder{}}
	opts.Emitter = h.emitter
	x, err := New(db, opts)
	require.NoError(t, err)
	h.x = x
	require.NoError(t, x.Initialize(h.ctx, owner, collector))
	require.NoError(t, x.JoinArbiters(h.ctx, arbiter, "Dana Arbiter", 100))
	require.NoError(t, x.Credit(h.ctx, buyer, uint256.NewInt(1_000_000)))
	require.NoError(t, x.Credit(h.ctx, seller, uint256.NewInt(1_000_000)))
	h.emitter.Reset()
	return h
}

func (h *harness) funded(amount uint64) uint64 {
	h.t.Helper()
	id, err := h.x.NewEscrow(h.ctx, buyer, buyer, seller, arbiter, uint256.NewInt(amount), nil, nil)
	require.NoError(h.t, err)
	require.NoError(h.t, h.x.DepositFunds(h.ctx, buyer, id))
	return id
}

func (h *harness) balance(a [20]byte) uint64 {
	h.t.Helper()
	account, err := h.x.Balance(h.ctx, a)
	require.NoError(h.t, err)
	return account.Balance.Uint64()
}

func (h *harness) escrow(id uint64) *escrow.Escrow {
	h.t.Helper()
	var out *escrow.Escrow
	require.NoError(h.t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		var err error
		out, err = e.FetchEscrow(id)
		return err
	}))
	return out
}

func (h *harness) stats() *escrow.Stats {
	h.t.Helper()
	var out *escrow.Stats
	require.NoError(h.t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		var err error
		out, err = e.FetchStats()
		return err
	}))
	return out
}

func TestExecutorReleaseFlow(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	id := h.funded(10_000)
	require.Equal(t, uint64(990_000), h.balance(buyer))

	released, err := h.x.MarkComplete(h.ctx, buyer, id)
	require.NoError(t, err)
	require.False(t, released)
	released, err = h.x.MarkComplete(h.ctx, seller, id)
	require.NoError(t, err)
	require.True(t, released)

	require.Equal(t, escrow.StatusCompleted, h.escrow(id).Status)
	require.Equal(t, uint64(1_009_650), h.balance(seller))
	require.Equal(t, uint64(250), h.balance(collector))
	require.Equal(t, uint64(100), h.balance(arbiter))

	var emitted []string
	for _, evt := range h.emitter.Events() {
		emitted = append(emitted, evt.EventType())
	}
	require.Equal(t, []string{
		escrow.EventTypeEscrowCreated,
		escrow.EventTypeEscrowFunded,
		escrow.EventTypeEscrowConfirmed,
		escrow.EventTypeEscrowConfirmed,
		escrow.EventTypeEscrowCompleted,
	}, emitted)
}

func TestExecutorRollsBackFailedOperation(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	height := h.x.Height()

	err := h.x.Execute(h.ctx, "scripted", func(e *escrow.Engine) error {
		if err := e.JoinArbiters(seller, "Half Written", 50); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.EqualError(t, err, "boom")
	require.Equal(t, height, h.x.Height())
	require.Empty(t, h.emitter.Events())

	require.NoError(t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		_, ok, err := e.FetchArbiter(seller)
		require.False(t, ok)
		return err
	}))
}

func TestExecutorInsufficientBalance(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	poor := addr(0x21)
	id, err := h.x.NewEscrow(h.ctx, poor, poor, seller, arbiter, uint256.NewInt(5_000), nil, nil)
	require.NoError(t, err)

	var before uint64
	require.NoError(t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		before, err = e.FetchCounter(id)
		return err
	}))

	err = h.x.DepositFunds(h.ctx, poor, id)
	require.ErrorIs(t, err, escrow.ErrInsufficientBalance)
	require.Equal(t, escrow.KindInsufficientBalance, escrow.KindOf(err))

	require.NoError(t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		after, err := e.FetchCounter(id)
		require.Equal(t, before, after)
		return err
	}))
	require.Equal(t, escrow.StatusCreated, h.escrow(id).Status)
	require.Equal(t, uint64(0), h.stats().TotalVolume.Uint64())
}

func TestExecutorConcurrentSettlements(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	const disputes = 16
	ids := make([]uint64, 0, disputes)
	for i := 0; i < disputes; i++ {
		id := h.funded(10_000)
		require.NoError(t, h.x.RaiseDispute(h.ctx, seller, id, "goods never arrived"))
		ids = append(ids, id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, disputes)
	for _, id := range ids {
		wg.Add(1)
		go func(id uint64) {
			defer wg.Done()
			errs <- h.x.SettleDispute(h.ctx, arbiter, id, 7_000)
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		profile, ok, err := e.FetchArbiter(arbiter)
		require.True(t, ok)
		require.Equal(t, uint64(disputes), profile.DisputesResolved)
		require.Equal(t, uint64(disputes), profile.BuyerWins)
		return err
	}))
	stats := h.stats()
	require.Equal(t, uint64(disputes), stats.Resolved)
	require.Equal(t, uint64(disputes*100), stats.ArbiterFees.Uint64())
	require.Equal(t, uint64(disputes*100), h.balance(arbiter))
}

func TestExecutorConcurrentConfirmationsKeepHistoryIntact(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	id := h.funded(10_000)

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, party := range [][20]byte{buyer, seller} {
		wg.Add(1)
		go func(party [20]byte) {
			defer wg.Done()
			_, err := h.x.MarkComplete(h.ctx, party, id)
			errs <- err
		}(party)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	require.Equal(t, escrow.StatusCompleted, h.escrow(id).Status)
	require.NoError(t, h.x.Query(h.ctx, func(e *escrow.Engine) error {
		report, err := e.VerifyHistory(id)
		require.NoError(t, err)
		require.True(t, report.Intact)
		trail, err := e.FetchHistoryRange(id)
		require.Len(t, trail, int(report.Length))
		return err
	}))
}

func TestExecutorQuota(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{Quota: common.Quota{MaxOps: 2, WindowBlocks: 1_000}})
	// Rejected operations do not use up the window.
	for i := 0; i < 3; i++ {
		err := h.x.DepositFunds(h.ctx, buyer, 99)
		require.Equal(t, escrow.KindNotFound, escrow.KindOf(err))
	}
	id, err := h.x.NewEscrow(h.ctx, buyer, buyer, seller, arbiter, uint256.NewInt(5_000), nil, nil)
	require.NoError(t, err)
	require.NoError(t, h.x.DepositFunds(h.ctx, buyer, id))

	_, err = h.x.MarkComplete(h.ctx, buyer, id)
	require.ErrorIs(t, err, common.ErrQuotaExceeded)

	released, err := h.x.MarkComplete(h.ctx, seller, id)
	require.NoError(t, err)
	require.False(t, released)

	// Admin controls bypass the caller quota.
	require.NoError(t, h.x.SetPaused(h.ctx, owner))
	require.NoError(t, h.x.ClearPaused(h.ctx, owner))

	require.NoError(t, h.x.Advance(h.ctx, 1_000))
	released, err = h.x.MarkComplete(h.ctx, buyer, id)
	require.NoError(t, err)
	require.True(t, released)
}

func TestExecutorConfigPause(t *testing.T) {
	ctx := context.Background()
	x, err := New(storage.NewMemDB(), Options{Pauses: common.StaticPauses{escrow.ModuleName: true}})
	require.NoError(t, err)
	require.NoError(t, x.Initialize(ctx, owner, collector))

	err = x.JoinArbiters(ctx, arbiter, "Dana Arbiter", 100)
	require.ErrorIs(t, err, escrow.ErrContractPaused)
	_, err = x.NewEscrow(ctx, buyer, buyer, seller, arbiter, uint256.NewInt(5_000), nil, nil)
	require.Equal(t, escrow.KindContractPaused, escrow.KindOf(err))
}

func TestExecutorRefundAfterExpiry(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	duration := uint64(5)
	id, err := h.x.NewEscrow(h.ctx, buyer, buyer, seller, arbiter, uint256.NewInt(5_000), &duration, nil)
	require.NoError(t, err)
	require.NoError(t, h.x.DepositFunds(h.ctx, buyer, id))

	err = h.x.ProcessRefund(h.ctx, buyer, id)
	require.Equal(t, escrow.KindInvalidState, escrow.KindOf(err))

	require.NoError(t, h.x.Advance(h.ctx, duration))
	require.NoError(t, h.x.ProcessRefund(h.ctx, buyer, id))
	require.Equal(t, escrow.StatusRefunded, h.escrow(id).Status)
	require.Equal(t, uint64(1_000_000), h.balance(buyer))
}

func TestExecutorResumesFromLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	h := newHarness(t, db, Options{})
	id := h.funded(10_000)
	height := h.x.Height()
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	x, err := New(db, Options{})
	require.NoError(t, err)
	require.Equal(t, height, x.Height())
	require.NoError(t, x.Query(context.Background(), func(e *escrow.Engine) error {
		record, err := e.FetchEscrow(id)
		require.NoError(t, err)
		require.Equal(t, escrow.StatusFunded, record.Status)
		return nil
	}))
}

func TestExecutorHonoursCancelledContext(t *testing.T) {
	h := newHarness(t, storage.NewMemDB(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.x.NewEscrow(ctx, buyer, buyer, seller, arbiter, uint256.NewInt(5_000), nil, nil)
	require.ErrorIs(t, err, context.Canceled)
}
