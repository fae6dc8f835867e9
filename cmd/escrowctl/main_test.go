package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"escrowledger/config"
	"escrowledger/host"
	"escrowledger/storage"
)

const (
	ownerHex     = "0x0000000000000000000000000000000000000001"
	collectorHex = "0x0000000000000000000000000000000000000002"
	buyerHex     = "0x0000000000000000000000000000000000000011"
	sellerHex    = "0x0000000000000000000000000000000000000012"
	arbiterHex   = "0x0000000000000000000000000000000000000013"
)

type cli struct {
	t      *testing.T
	env    *env
	stdout *bytes.Buffer
	stderr *bytes.Buffer
}

func newCLI(t *testing.T) *cli {
	t.Helper()
	cfg := config.Default()
	cfg.Admin.Owner = ownerHex
	cfg.Admin.FeeCollector = collectorHex
	x, err := host.New(storage.NewMemDB(), host.Options{})
	if err != nil {
		t.Fatalf("new executor: %v", err)
	}
	c := &cli{t: t, stdout: &bytes.Buffer{}, stderr: &bytes.Buffer{}}
	c.env = &env{x: x, cfg: cfg, stdout: c.stdout, stderr: c.stderr}
	return c
}

func (c *cli) run(args ...string) (int, map[string]interface{}) {
	c.t.Helper()
	c.stdout.Reset()
	c.stderr.Reset()
	code := dispatch(context.Background(), c.env, args)
	if code != 0 {
		return code, nil
	}
	var out map[string]interface{}
	if err := json.Unmarshal(c.stdout.Bytes(), &out); err != nil {
		c.t.Fatalf("decode %q: %v", c.stdout.String(), err)
	}
	return code, out
}

func (c *cli) mustRun(args ...string) map[string]interface{} {
	c.t.Helper()
	code, out := c.run(args...)
	if code != 0 {
		c.t.Fatalf("%v exited %d: %s", args, code, c.stderr.String())
	}
	return out
}

func TestCommandLifecycle(t *testing.T) {
	c := newCLI(t)
	info := c.mustRun("init")
	if info["owner"] != ownerHex || info["initialized"] != true {
		t.Fatalf("unexpected info %v", info)
	}
	c.mustRun("credit", "--to", buyerHex, "--amount", "100000")
	c.mustRun("join", "--from", arbiterHex, "--name", "Dana Arbiter", "--fee-bps", "100")

	created := c.mustRun("create", "--from", buyerHex, "--buyer", buyerHex, "--seller", sellerHex,
		"--arbiter", arbiterHex, "--amount", "10000", "--metadata", "order 7")
	if created["status"] != "created" || created["id"].(float64) != 1 {
		t.Fatalf("unexpected escrow %v", created)
	}
	c.mustRun("deposit", "--from", buyerHex, "--id", "1")
	disputed := c.mustRun("dispute", "--from", sellerHex, "--id", "1", "--reason", "goods never arrived")
	if disputed["status"] != "disputed" {
		t.Fatalf("expected disputed, got %v", disputed["status"])
	}
	resolved := c.mustRun("settle", "--buyer-bps=7000", "--from", arbiterHex, "--id", "1")
	if resolved["status"] != "resolved" {
		t.Fatalf("expected resolved, got %v", resolved["status"])
	}

	verify := c.mustRun("verify", "--id", "1")
	if verify["intact"] != true {
		t.Fatalf("history not intact: %v", verify)
	}
	stats := c.mustRun("stats")
	if stats["resolved"].(float64) != 1 || stats["arbiterFees"] != "100" {
		t.Fatalf("unexpected stats %v", stats)
	}
	balance := c.mustRun("balance", "--address", sellerHex)
	if balance["balance"] != "2895" {
		t.Fatalf("unexpected seller balance %v", balance)
	}
}

func TestCommandErrorsCarryCodes(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	code, _ := c.run("pause", "--from", buyerHex)
	if code != 1 {
		t.Fatalf("expected failure, got %d", code)
	}
	if !strings.Contains(c.stderr.String(), "[101 access-denied]") {
		t.Fatalf("missing error code in %q", c.stderr.String())
	}
}

func TestCommandArgValidation(t *testing.T) {
	c := newCLI(t)
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"unknown", []string{"frobnicate"}, "Unknown command"},
		{"missing id", []string{"get"}, "--id is required"},
		{"bad id", []string{"get", "--id", "0x10"}, "--id must be a positive integer"},
		{"bad amount", []string{"credit", "--to", buyerHex, "--amount", "1e18"}, "--amount must be a decimal integer"},
		{"bad address", []string{"balance", "--address", "nhb1xyz"}, "--address"},
		{"positional", []string{"stats", "extra"}, "unexpected positional arguments"},
		{"missing reason", []string{"dispute", "--from", buyerHex, "--id", "1"}, "--reason is required"},
		{"bps range", []string{"settle", "--buyer-bps", "10001", "--from", arbiterHex, "--id", "1"}, "must be <= 10000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _ := c.run(tc.args...)
			if code != 1 {
				t.Fatalf("expected exit 1, got %d", code)
			}
			if !strings.Contains(c.stderr.String(), tc.want) {
				t.Fatalf("stderr %q does not contain %q", c.stderr.String(), tc.want)
			}
		})
	}
}

func TestExtractFlag(t *testing.T) {
	var value string
	rest, err := extractFlag([]string{"--from", "a", "--reason", "late", "--id", "3"}, "reason", &value)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if value != "late" || strings.Join(rest, " ") != "--from a --id 3" {
		t.Fatalf("unexpected split %q %v", value, rest)
	}
	if _, err := extractFlag([]string{"--reason"}, "reason", &value); err == nil {
		t.Fatalf("expected missing value error")
	}
}

func TestRunPersistsAcrossInvocations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "escrow.toml")
	cfg := config.Default()
	cfg.Storage.DataDir = filepath.Join(dir, "data")
	cfg.Admin.Owner = ownerHex
	cfg.Admin.FeeCollector = collectorHex
	cfg.Logging.Level = "error"
	if err := config.Save(path, cfg); err != nil {
		t.Fatalf("save config: %v", err)
	}

	var stdout, stderr bytes.Buffer
	if code := run(context.Background(), []string{"--config", path, "init"}, &stdout, &stderr); code != 0 {
		t.Fatalf("init exited %d: %s", code, stderr.String())
	}
	stdout.Reset()
	if code := run(context.Background(), []string{"--config", path, "info"}, &stdout, &stderr); code != 0 {
		t.Fatalf("info exited %d: %s", code, stderr.String())
	}
	if !strings.Contains(stdout.String(), `"initialized": true`) {
		t.Fatalf("ledger state not persisted: %s", stdout.String())
	}

	stderr.Reset()
	if code := run(context.Background(), nil, &stdout, &stderr); code != 1 {
		t.Fatalf("expected usage exit 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "Usage:") {
		t.Fatalf("missing usage: %s", stderr.String())
	}
}

func TestKeygenRequiresKeystoreAndPassphrase(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if code := runKeygen(nil, &stdout, &stderr); code != 1 || !strings.Contains(stderr.String(), "--keystore is required") {
		t.Fatalf("unexpected result %d: %s", code, stderr.String())
	}
	stderr.Reset()
	path := filepath.Join(t.TempDir(), "key.json")
	code := runKeygen([]string{"--keystore", path, "--pass-env", "ESCROWCTL_TEST_UNSET_PASS"}, &stdout, &stderr)
	if code != 1 || !strings.Contains(stderr.String(), "ESCROWCTL_TEST_UNSET_PASS is not set") {
		t.Fatalf("unexpected result %d: %s", code, stderr.String())
	}
}
