package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"

	"github.com/holiman/uint256"

	"escrowledger/native/escrow"
)

func hexAddr(addr [20]byte) string { return "0x" + hex.EncodeToString(addr[:]) }

func dec(v *uint256.Int) string {
	if v == nil {
		return "0"
	}
	return v.Dec()
}

type escrowView struct {
	ID              uint64  `json:"id"`
	Creator         string  `json:"creator"`
	Buyer           string  `json:"buyer"`
	Seller          string  `json:"seller"`
	Arbiter         string  `json:"arbiter"`
	Amount          string  `json:"amount"`
	ArbiterFeeBps   uint32  `json:"arbiterFeeBps"`
	Status          string  `json:"status"`
	CreatedAt       uint64  `json:"createdAt"`
	ExpiresAt       *uint64 `json:"expiresAt,omitempty"`
	BuyerConfirmed  bool    `json:"buyerConfirmed"`
	SellerConfirmed bool    `json:"sellerConfirmed"`
	FundedAmount    string  `json:"fundedAmount"`
	DisputeReason   *string `json:"disputeReason,omitempty"`
	LastActivity    uint64  `json:"lastActivity"`
	Metadata        *string `json:"metadata,omitempty"`
}

func newEscrowView(e *escrow.Escrow) escrowView {
	return escrowView{
		ID:              e.ID,
		Creator:         hexAddr(e.Creator),
		Buyer:           hexAddr(e.Buyer),
		Seller:          hexAddr(e.Seller),
		Arbiter:         hexAddr(e.Arbiter),
		Amount:          dec(e.Amount),
		ArbiterFeeBps:   e.ArbiterFeeBps,
		Status:          e.Status.String(),
		CreatedAt:       e.CreatedAt,
		ExpiresAt:       e.ExpiresAt,
		BuyerConfirmed:  e.BuyerConfirmed,
		SellerConfirmed: e.SellerConfirmed,
		FundedAmount:    dec(e.FundedAmount),
		DisputeReason:   e.DisputeReason,
		LastActivity:    e.LastActivity,
		Metadata:        e.Metadata,
	}
}

type arbiterView struct {
	Address          string `json:"address"`
	Name             string `json:"name"`
	FeeBps           uint32 `json:"feeBps"`
	DisputesResolved uint64 `json:"disputesResolved"`
	BuyerWins        uint64 `json:"buyerWins"`
	SellerWins       uint64 `json:"sellerWins"`
	Active           bool   `json:"active"`
	RegisteredAt     uint64 `json:"registeredAt"`
	LastActivity     uint64 `json:"lastActivity"`
	Reputation       uint64 `json:"reputation"`
}

type historyView struct {
	Sequence  uint64  `json:"sequence"`
	Action    string  `json:"action"`
	Actor     string  `json:"actor"`
	Timestamp uint64  `json:"timestamp"`
	Detail    *string `json:"detail,omitempty"`
	PrevHash  string  `json:"prevHash"`
	Hash      string  `json:"hash"`
}

func writeJSON(w io.Writer, v interface{}) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(w, "Error: %v\n", err)
		return 1
	}
	return 0
}

// query runs fn read-only and prints its result.
func query(ctx context.Context, e *env, fn func(*escrow.Engine) (interface{}, error)) int {
	var out interface{}
	err := e.x.Query(ctx, func(engine *escrow.Engine) error {
		var err error
		out, err = fn(engine)
		return err
	})
	if err != nil {
		return failure(e.stderr, err)
	}
	return writeJSON(e.stdout, out)
}

func showEscrow(ctx context.Context, e *env, id uint64) int {
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		record, err := engine.FetchEscrow(id)
		if err != nil {
			return nil, err
		}
		return newEscrowView(record), nil
	})
}

func showArbiter(ctx context.Context, e *env, addr [20]byte) int {
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		profile, ok, err := engine.FetchArbiter(addr)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, fmt.Errorf("%w: arbiter %s", escrow.ErrNotFound, hexAddr(addr))
		}
		return arbiterView{
			Address:          hexAddr(profile.Address),
			Name:             profile.Name,
			FeeBps:           profile.FeeBps,
			DisputesResolved: profile.DisputesResolved,
			BuyerWins:        profile.BuyerWins,
			SellerWins:       profile.SellerWins,
			Active:           profile.Active,
			RegisteredAt:     profile.RegisteredAt,
			LastActivity:     profile.LastActivity,
			Reputation:       profile.Reputation,
		}, nil
	})
}

func showBalance(ctx context.Context, e *env, addr [20]byte) int {
	account, err := e.x.Balance(ctx, addr)
	if err != nil {
		return failure(e.stderr, err)
	}
	return writeJSON(e.stdout, account)
}

// idQuery parses --id and hands it to fn.
func idQuery(ctx context.Context, name string, e *env, args []string, fn func(*escrow.Engine, uint64) (interface{}, error)) int {
	fs := newFlagSet(name, e.stderr)
	raw := fs.String("id", "", "escrow identifier")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	id, err := requireID(*raw)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) { return fn(engine, id) })
}

func runGet(ctx context.Context, e *env, args []string) int {
	return idQuery(ctx, "get", e, args, func(engine *escrow.Engine, id uint64) (interface{}, error) {
		record, err := engine.FetchEscrow(id)
		if err != nil {
			return nil, err
		}
		return newEscrowView(record), nil
	})
}

func runDepositInfo(ctx context.Context, e *env, args []string) int {
	return idQuery(ctx, "deposit-info", e, args, func(engine *escrow.Engine, id uint64) (interface{}, error) {
		deposit, ok, err := engine.FetchDeposit(id)
		if err != nil || !ok {
			return nil, err
		}
		return map[string]interface{}{
			"depositor": hexAddr(deposit.Depositor),
			"amount":    dec(deposit.Amount),
			"timestamp": deposit.Timestamp,
		}, nil
	})
}

func runHistory(ctx context.Context, e *env, args []string) int {
	return idQuery(ctx, "history", e, args, func(engine *escrow.Engine, id uint64) (interface{}, error) {
		trail, err := engine.FetchHistoryRange(id)
		if err != nil {
			return nil, err
		}
		views := make([]historyView, 0, len(trail))
		for _, evt := range trail {
			views = append(views, historyView{
				Sequence:  evt.Sequence,
				Action:    evt.Action,
				Actor:     hexAddr(evt.Actor),
				Timestamp: evt.Timestamp,
				Detail:    evt.Detail,
				PrevHash:  "0x" + hex.EncodeToString(evt.PrevHash[:]),
				Hash:      "0x" + hex.EncodeToString(evt.Hash[:]),
			})
		}
		return views, nil
	})
}

func runVerify(ctx context.Context, e *env, args []string) int {
	return idQuery(ctx, "verify", e, args, func(engine *escrow.Engine, id uint64) (interface{}, error) {
		report, err := engine.VerifyHistory(id)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"escrowId": report.EscrowID,
			"length":   report.Length,
			"intact":   report.Intact,
			"brokenAt": report.BrokenAt,
		}, nil
	})
}

func runCustody(ctx context.Context, e *env, args []string) int {
	return idQuery(ctx, "custody", e, args, func(engine *escrow.Engine, id uint64) (interface{}, error) {
		amount, err := engine.FetchCustody(id)
		if err != nil {
			return nil, err
		}
		return map[string]string{"custody": hexAddr(engine.CustodyAddress()), "amount": dec(amount)}, nil
	})
}

func runRole(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("role", e.stderr)
	raw := fs.String("id", "", "escrow identifier")
	who := fs.String("address", "", "participant address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	id, err := requireID(*raw)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	addr, err := requireAddress("address", *who)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		role, ok, err := engine.FetchRole(id, addr)
		if err != nil || !ok {
			return nil, err
		}
		return map[string]interface{}{"role": role.Role.String(), "joinedAt": role.JoinedAt}, nil
	})
}

func runArbiter(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("arbiter", e.stderr)
	who := fs.String("address", "", "arbiter address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	addr, err := requireAddress("address", *who)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	return showArbiter(ctx, e, addr)
}

func runBalance(ctx context.Context, e *env, args []string) int {
	fs := newFlagSet("balance", e.stderr)
	who := fs.String("address", "", "account address")
	if !parseFlags(fs, args, e.stderr) {
		return 1
	}
	addr, err := requireAddress("address", *who)
	if err != nil {
		return printError(e.stderr, err.Error())
	}
	return showBalance(ctx, e, addr)
}

func runInfo(ctx context.Context, e *env, args []string) int {
	if !parseFlags(newFlagSet("info", e.stderr), args, e.stderr) {
		return 1
	}
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		info, err := engine.FetchInfo()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"owner":         hexAddr(info.Owner),
			"feeCollector":  hexAddr(info.FeeCollector),
			"custody":       hexAddr(info.Custody),
			"nextEscrowId":  info.NextEscrowID,
			"systemFeeBps":  info.SystemFeeBps,
			"paused":        info.Paused,
			"emergencyMode": info.EmergencyMode,
			"initialized":   info.Initialized,
		}, nil
	})
}

func runStats(ctx context.Context, e *env, args []string) int {
	if !parseFlags(newFlagSet("stats", e.stderr), args, e.stderr) {
		return 1
	}
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		stats, err := engine.FetchStats()
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"totalEscrows":  stats.TotalEscrows,
			"totalVolume":   dec(stats.TotalVolume),
			"completed":     stats.Completed,
			"disputed":      stats.Disputed,
			"resolved":      stats.Resolved,
			"refunded":      stats.Refunded,
			"protocolFees":  dec(stats.ProtocolFees),
			"arbiterFees":   dec(stats.ArbiterFees),
			"feeRateBps":    stats.FeeRateBps,
			"paused":        stats.Paused,
			"emergencyMode": stats.EmergencyMode,
		}, nil
	})
}

func runFee(ctx context.Context, e *env, args []string) int {
	if !parseFlags(newFlagSet("fee", e.stderr), args, e.stderr) {
		return 1
	}
	return query(ctx, e, func(engine *escrow.Engine) (interface{}, error) {
		fee, err := engine.FetchSystemFee()
		if err != nil {
			return nil, err
		}
		return map[string]uint32{"systemFeeBps": fee}, nil
	})
}

func runHeight(ctx context.Context, e *env, args []string) int {
	if !parseFlags(newFlagSet("height", e.stderr), args, e.stderr) {
		return 1
	}
	return writeJSON(e.stdout, map[string]uint64{"height": e.x.Height()})
}
