package escrow

import (
	"strings"
	"testing"
)

func TestJoinArbiters(t *testing.T) {
	f := newFixture(t)
	candidate := newTestAddress(0x51)

	requireKind(t, f.engine.JoinArbiters(candidate, "Expensive", 1_001), KindInvalidParams)
	requireKind(t, f.engine.JoinArbiters(candidate, "   ", 10), KindInvalidParams)
	requireKind(t, f.engine.JoinArbiters(candidate, strings.Repeat("n", 51), 10), KindInvalidParams)
	requireKind(t, f.engine.JoinArbiters(DefaultCustodyAddress, "Engine", 10), KindInvalidParams)
	requireKind(t, f.engine.JoinArbiters(f.arbiter, "Again", 10), KindAlreadyExists)

	f.clock = 222
	if err := f.engine.JoinArbiters(candidate, "Lee", 1_000); err != nil {
		t.Fatalf("join: %v", err)
	}
	profile, ok, err := f.engine.FetchArbiter(candidate)
	if err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if !profile.Active || profile.Name != "Lee" || profile.FeeBps != 1_000 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	if profile.RegisteredAt != 222 || profile.Reputation != 500 || profile.DisputesResolved != 0 {
		t.Fatalf("unexpected profile %+v", profile)
	}
	evts := f.emitter.typesEvents()
	if len(evts) != 1 || evts[0].Type != EventTypeArbiterJoined || evts[0].Attributes["feeBps"] != "1000" {
		t.Fatalf("unexpected events %+v", evts)
	}
}

func TestUpdateProfileIsPartial(t *testing.T) {
	f := newFixture(t)
	name := "Dana R."
	if err := f.engine.UpdateProfile(f.arbiter, &name, nil); err != nil {
		t.Fatalf("update name: %v", err)
	}
	profile, _, _ := f.engine.FetchArbiter(f.arbiter)
	if profile.Name != name || profile.FeeBps != testArbiterFee {
		t.Fatalf("unexpected profile %+v", profile)
	}

	fee := uint32(250)
	if err := f.engine.UpdateProfile(f.arbiter, nil, &fee); err != nil {
		t.Fatalf("update fee: %v", err)
	}
	profile, _, _ = f.engine.FetchArbiter(f.arbiter)
	if profile.Name != name || profile.FeeBps != 250 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	bad := uint32(1_001)
	blank := ""
	requireKind(t, f.engine.UpdateProfile(f.arbiter, nil, &bad), KindInvalidParams)
	requireKind(t, f.engine.UpdateProfile(f.arbiter, &blank, &fee), KindInvalidParams)
	requireKind(t, f.engine.UpdateProfile(f.outsider, &name, nil), KindNotFound)

	// a rejected update leaves the profile untouched
	profile, _, _ = f.engine.FetchArbiter(f.arbiter)
	if profile.FeeBps != 250 || profile.Name != name {
		t.Fatalf("profile changed by rejected update: %+v", profile)
	}
}

func TestToggleStatusGatesNewEscrows(t *testing.T) {
	f := newFixture(t)
	existing := f.create(5_000, nil)

	active, err := f.engine.ToggleStatus(f.arbiter)
	if err != nil || active {
		t.Fatalf("toggle off: active=%v err=%v", active, err)
	}
	_, err = f.engine.NewEscrow(f.buyer, f.buyer, f.seller, f.arbiter, f.escrow(existing).Amount, nil, nil)
	requireKind(t, err, KindNotActive)

	if err := f.engine.DepositFunds(f.buyer, existing); err != nil {
		t.Fatalf("existing escrow unaffected by toggle: %v", err)
	}

	active, err = f.engine.ToggleStatus(f.arbiter)
	if err != nil || !active {
		t.Fatalf("toggle on: active=%v err=%v", active, err)
	}
	f.create(5_000, nil)

	_, err = f.engine.ToggleStatus(f.outsider)
	requireKind(t, err, KindNotFound)
}

func TestReputationIsCapped(t *testing.T) {
	f := newFixture(t)
	params := DefaultParams()
	params.MaxReputation = 20
	params.ReputationStep = 15
	f.engine.SetParams(params)
	// the fixture arbiter joined with the default scale
	for i := 0; i < 2; i++ {
		id := f.createDisputed(5_000)
		if err := f.engine.SettleDispute(f.arbiter, id, 9_000); err != nil {
			t.Fatalf("settle: %v", err)
		}
	}
	profile, _, _ := f.engine.FetchArbiter(f.arbiter)
	if profile.Reputation != 20 {
		t.Fatalf("reputation not capped: %d", profile.Reputation)
	}
	if profile.BuyerWins != 2 || profile.DisputesResolved != 2 {
		t.Fatalf("unexpected counters %+v", profile)
	}
}
