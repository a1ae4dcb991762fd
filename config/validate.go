package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/Klingon-tech/locker/pkg/types"
)

// Validate checks runtime node config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Network != Mainnet && cfg.Network != Testnet {
		return fmt.Errorf("network must be %q or %q", Mainnet, Testnet)
	}
	if cfg.DataDir == "" && cfg.Storage.Engine != StorageMemory {
		return fmt.Errorf("datadir is required")
	}
	switch cfg.Storage.Engine {
	case StorageBadger, StorageMemory:
	case "":
		cfg.Storage.Engine = StorageBadger
	default:
		return fmt.Errorf("storage.engine must be %q or %q", StorageBadger, StorageMemory)
	}
	if cfg.RPC.Port < 0 || cfg.RPC.Port > 65535 {
		return fmt.Errorf("rpc.port must be in range [0, 65535]")
	}
	for i, entry := range cfg.RPC.AllowedIPs {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				return fmt.Errorf("rpc.allowed[%d]: invalid CIDR %q", i, entry)
			}
			continue
		}
		if net.ParseIP(entry) == nil {
			return fmt.Errorf("rpc.allowed[%d]: invalid IP %q", i, entry)
		}
	}
	if cfg.Staking.SettleInterval < 0 {
		return fmt.Errorf("staking.settle_interval must not be negative")
	}
	if cfg.Staking.Operator != "" {
		if _, err := types.ParseAddress(cfg.Staking.Operator); err != nil {
			return fmt.Errorf("staking.operator: %w", err)
		}
	}
	switch strings.ToLower(cfg.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error", "fatal", "trace":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}

// OperatorAddress returns the parsed operator address, or the zero address
// when none is configured.
func (c *Config) OperatorAddress() types.Address {
	if c.Staking.Operator == "" {
		return types.Address{}
	}
	addr, err := types.ParseAddress(c.Staking.Operator)
	if err != nil {
		return types.Address{}
	}
	return addr
}
