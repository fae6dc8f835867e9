package config

// Escrow bounds the inputs accepted by the escrow engine. Amounts are decimal
// strings so they can exceed 64 bits.
type Escrow struct {
	MinEscrowAmount     string `toml:"MinEscrowAmount"`
	MaxDurationBlocks   uint64 `toml:"MaxDurationBlocks"`
	MaxFeeBps           uint32 `toml:"MaxFeeBps"`
	MaxSystemFeeBps     uint32 `toml:"MaxSystemFeeBps"`
	DefaultSystemFeeBps uint32 `toml:"DefaultSystemFeeBps"`
	MinReasonLength     int    `toml:"MinReasonLength"`
	MaxReasonLength     int    `toml:"MaxReasonLength"`
	MaxNameLength       int    `toml:"MaxNameLength"`
	MaxMetadataLength   int    `toml:"MaxMetadataLength"`
	MaxReputation       uint64 `toml:"MaxReputation"`
	ReputationStep      uint64 `toml:"ReputationStep"`
}

// Admin names the identities used to bootstrap the engine. Addresses are hex.
type Admin struct {
	Owner        string `toml:"Owner"`
	FeeCollector string `toml:"FeeCollector"`
	// Custody overrides the engine's derived custody identity when set.
	Custody string `toml:"Custody,omitempty"`
}

// Storage locates the LevelDB state.
type Storage struct {
	DataDir string `toml:"DataDir"`
}

// Logging configures the structured logger.
type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File,omitempty"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

// Telemetry configures the OTLP exporters.
type Telemetry struct {
	Endpoint string `toml:"Endpoint,omitempty"`
	Insecure bool   `toml:"Insecure"`
	Headers  string `toml:"Headers,omitempty"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

// Pauses halts modules from configuration, in addition to the on-ledger
// pause switch.
type Pauses struct {
	Escrow bool `toml:"Escrow"`
}

// Quota defines rate limits for module interactions on a per-address basis.
type Quota struct {
	MaxOpsPerWindow uint32 `toml:"MaxOpsPerWindow"`
	WindowBlocks    uint64 `toml:"WindowBlocks"`
}

// Quotas groups quotas for each module.
type Quotas struct {
	Escrow Quota `toml:"Escrow"`
}
