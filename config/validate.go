package config

import (
	"fmt"
	"strings"

	"escrowledger/observability/logging"
)

// Validate reports configuration values the engine or host would reject.
func (c *Config) Validate() error {
	params, err := c.EscrowParams()
	if err != nil {
		return err
	}
	if err := params.Validate(); err != nil {
		return fmt.Errorf("escrow: %w", err)
	}
	owner, hasOwner, err := c.OwnerAddress()
	if err != nil {
		return fmt.Errorf("admin: owner: %w", err)
	}
	collector, hasCollector, err := c.FeeCollectorAddress()
	if err != nil {
		return fmt.Errorf("admin: fee collector: %w", err)
	}
	custody, hasCustody, err := c.CustodyAddress()
	if err != nil {
		return fmt.Errorf("admin: custody: %w", err)
	}
	if hasCustody && ((hasOwner && custody == owner) || (hasCollector && custody == collector)) {
		return fmt.Errorf("admin: custody must differ from owner and fee collector")
	}
	if strings.TrimSpace(c.Storage.DataDir) == "" {
		return fmt.Errorf("storage: DataDir required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	if c.Quotas.Escrow.MaxOpsPerWindow > 0 && c.Quotas.Escrow.WindowBlocks == 0 {
		return fmt.Errorf("quotas: escrow WindowBlocks must be positive when MaxOpsPerWindow is set")
	}
	return nil
}
