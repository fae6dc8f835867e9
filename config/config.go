package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/holiman/uint256"

	"escrowledger/crypto"
	"escrowledger/native/common"
	"escrowledger/native/escrow"
	"escrowledger/observability/logging"
	"escrowledger/observability/otel"
)

type Config struct {
	ServiceName string    `toml:"ServiceName"`
	Env         string    `toml:"Env"`
	Escrow      Escrow    `toml:"Escrow"`
	Admin       Admin     `toml:"Admin"`
	Storage     Storage   `toml:"Storage"`
	Logging     Logging   `toml:"Logging"`
	Telemetry   Telemetry `toml:"Telemetry"`
	Pauses      Pauses    `toml:"Pauses"`
	Quotas      Quotas    `toml:"Quotas"`
}

// Load loads the configuration from the given path, writing the defaults
// there first when the file does not exist.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}
	if strings.TrimSpace(cfg.ServiceName) == "" {
		cfg.ServiceName = "escrowledger"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the configuration written for a fresh installation. The
// admin identities are left empty; the CLI init command sets them.
func Default() *Config {
	params := escrow.DefaultParams()
	return &Config{
		ServiceName: "escrowledger",
		Env:         "local",
		Escrow: Escrow{
			MinEscrowAmount:     params.MinEscrowAmount.Dec(),
			MaxDurationBlocks:   params.MaxDuration,
			MaxFeeBps:           params.MaxFeeBps,
			MaxSystemFeeBps:     params.MaxSystemFeeBps,
			DefaultSystemFeeBps: params.DefaultSystemFeeBps,
			MinReasonLength:     params.MinReasonLength,
			MaxReasonLength:     params.MaxReasonLength,
			MaxNameLength:       params.MaxNameLength,
			MaxMetadataLength:   params.MaxMetadataLength,
			MaxReputation:       params.MaxReputation,
			ReputationStep:      params.ReputationStep,
		},
		Storage: Storage{DataDir: "./escrow-data"},
		Logging: Logging{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Quotas: Quotas{
			Escrow: Quota{MaxOpsPerWindow: 0, WindowBlocks: 100},
		},
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

// EscrowParams converts the [Escrow] section into engine limits.
func (c *Config) EscrowParams() (escrow.Params, error) {
	minAmount, err := uint256.FromDecimal(strings.TrimSpace(c.Escrow.MinEscrowAmount))
	if err != nil {
		return escrow.Params{}, fmt.Errorf("escrow: invalid MinEscrowAmount %q: %w", c.Escrow.MinEscrowAmount, err)
	}
	return escrow.Params{
		MinEscrowAmount:     minAmount,
		MaxDuration:         c.Escrow.MaxDurationBlocks,
		MaxFeeBps:           c.Escrow.MaxFeeBps,
		MaxSystemFeeBps:     c.Escrow.MaxSystemFeeBps,
		DefaultSystemFeeBps: c.Escrow.DefaultSystemFeeBps,
		MinReasonLength:     c.Escrow.MinReasonLength,
		MaxReasonLength:     c.Escrow.MaxReasonLength,
		MaxNameLength:       c.Escrow.MaxNameLength,
		MaxMetadataLength:   c.Escrow.MaxMetadataLength,
		MaxReputation:       c.Escrow.MaxReputation,
		ReputationStep:      c.Escrow.ReputationStep,
	}, nil
}

// ParseAddress decodes a hex or bech32 address.
func ParseAddress(raw string) ([20]byte, error) {
	addr, err := crypto.ParseAddress(raw)
	if err != nil {
		return [20]byte{}, err
	}
	return [20]byte(addr), nil
}

// OwnerAddress returns the configured owner, if any.
func (c *Config) OwnerAddress() ([20]byte, bool, error) {
	return optionalAddress(c.Admin.Owner)
}

// FeeCollectorAddress returns the configured fee collector, if any.
func (c *Config) FeeCollectorAddress() ([20]byte, bool, error) {
	return optionalAddress(c.Admin.FeeCollector)
}

// CustodyAddress returns the custody override, if any.
func (c *Config) CustodyAddress() ([20]byte, bool, error) {
	return optionalAddress(c.Admin.Custody)
}

func optionalAddress(raw string) ([20]byte, bool, error) {
	if strings.TrimSpace(raw) == "" {
		return [20]byte{}, false, nil
	}
	addr, err := ParseAddress(raw)
	if err != nil {
		return [20]byte{}, false, err
	}
	return addr, true, nil
}

// PauseView returns the configuration-level pause switches.
func (c *Config) PauseView() common.StaticPauses {
	return common.StaticPauses{escrow.ModuleName: c.Pauses.Escrow}
}

// EscrowQuota returns the per-caller operation quota.
func (c *Config) EscrowQuota() common.Quota {
	return common.Quota{
		MaxOps:       c.Quotas.Escrow.MaxOpsPerWindow,
		WindowBlocks: c.Quotas.Escrow.WindowBlocks,
	}
}

// LoggingOptions converts the [Logging] section.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:      c.Logging.Level,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}

// TelemetryConfig converts the [Telemetry] section.
func (c *Config) TelemetryConfig() otel.Config {
	return otel.Config{
		ServiceName: c.ServiceName,
		Environment: c.Env,
		Endpoint:    c.Telemetry.Endpoint,
		Insecure:    c.Telemetry.Insecure,
		Headers:     otel.ParseHeaders(c.Telemetry.Headers),
		Metrics:     c.Telemetry.Metrics,
		Traces:      c.Telemetry.Traces,
	}
}
