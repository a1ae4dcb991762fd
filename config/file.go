package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a node config value by key.
// Protocol parameters live in the params file, not here.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value
	case "params":
		cfg.ParamsFile = value

	// Storage
	case "storage.engine", "storage":
		cfg.Storage.Engine = strings.ToLower(value)

	// RPC
	case "rpc.enabled", "rpc":
		cfg.RPC.Enabled = parseBool(value)
	case "rpc.addr":
		cfg.RPC.Addr = value
	case "rpc.port":
		port, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RPC.Port = port
	case "rpc.allowed":
		cfg.RPC.AllowedIPs = parseStringList(value)
	case "rpc.cors":
		cfg.RPC.CORSOrigins = parseStringList(value)

	// Metrics
	case "metrics.enabled", "metrics":
		cfg.Metrics.Enabled = parseBool(value)

	// Staking
	case "staking.autosettle":
		cfg.Staking.AutoSettle = parseBool(value)
	case "staking.settle_interval":
		d, err := parseDuration(value)
		if err != nil {
			return err
		}
		cfg.Staking.SettleInterval = d
	case "staking.operator", "operator":
		cfg.Staking.Operator = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseDuration accepts Go durations ("90s", "1h") or bare seconds.
func parseDuration(s string) (time.Duration, error) {
	if n, err := strconv.ParseUint(s, 10, 32); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	return time.ParseDuration(s)
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default node configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Locker Staking Node Configuration
#
# This file contains NODE settings only.
# Protocol parameters (emission rate, reward pool, collection identity)
# live in the params file and cannot change once the ledger exists.

# Network: mainnet or testnet
network = ` + string(network) + `

# Data directory (default: ~/.locker)
# datadir = ~/.locker

# Params file (default: <datadir>/<network>/params.json)
# params = /etc/locker/params.json

# ============================================================================
# Storage
# ============================================================================

# badger (persistent) or memory (lost on exit)
storage.engine = badger

# ============================================================================
# RPC Server
# ============================================================================

rpc.enabled = true
rpc.addr = 127.0.0.1
rpc.port = ` + defaultRPCPort(network) + `

# Allowed IPs (comma-separated, CIDR notation supported)
rpc.allowed = 127.0.0.1

# Allowed CORS origins (comma-separated, * = all)
# rpc.cors = http://localhost:3000

# Serve Prometheus metrics on /metrics
metrics.enabled = true

# ============================================================================
# Staking
# ============================================================================

# Settle pending rewards before every stake
staking.autosettle = true

# Periodic settlement (Go duration or seconds, 0 = off)
staking.settle_interval = ` + Default(network).Staking.SettleInterval.String() + `

# Operator address (may initialize provenance and mint items over RPC)
# staking.operator = 0x...

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file = /var/log/locker.log
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
