// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol parameters: defined in the params file, immutable once the
//     ledger exists (emission rate, pool, collection identity)
//   - Node settings: runtime configuration, can vary per run
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies mainnet or testnet.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
)

// Storage engines.
const (
	StorageBadger = "badger"
	StorageMemory = "memory"
)

// =============================================================================
// Node Configuration (runtime settings)
// =============================================================================

// Config holds node-specific runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Params file path. Empty means the built-in network defaults, written
	// to <datadir>/<network>/params.json on first start.
	ParamsFile string `conf:"params"`

	Storage StorageConfig
	RPC     RPCConfig
	Metrics MetricsConfig
	Staking StakingConfig
	Log     LogConfig
}

// StorageConfig selects the database engine.
type StorageConfig struct {
	Engine string `conf:"storage.engine"` // badger or memory
}

// RPCConfig holds RPC server settings.
type RPCConfig struct {
	Enabled     bool     `conf:"rpc.enabled"`
	Addr        string   `conf:"rpc.addr"`
	Port        int      `conf:"rpc.port"`
	AllowedIPs  []string `conf:"rpc.allowed"`
	CORSOrigins []string `conf:"rpc.cors"` // Allowed CORS origins ("*" = all).
}

// MetricsConfig controls the Prometheus endpoint on the RPC server.
type MetricsConfig struct {
	Enabled bool `conf:"metrics.enabled"`
}

// StakingConfig holds ledger operation settings.
type StakingConfig struct {
	// AutoSettle settles pending rewards before every stake.
	AutoSettle bool `conf:"staking.autosettle"`
	// SettleInterval runs SetPayouts periodically. Zero disables the loop.
	SettleInterval time.Duration `conf:"staking.settle_interval"`
	// Operator is the address allowed to publish the provenance seed and
	// mint items over RPC. Empty disables operator methods.
	Operator string `conf:"staking.operator"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.locker
//	macOS:   ~/Library/Application Support/Locker
//	Windows: %APPDATA%\Locker
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".locker"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Locker")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Locker")
		}
		return filepath.Join(home, "AppData", "Roaming", "Locker")
	default:
		return filepath.Join(home, ".locker")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// DBDir returns the ledger database directory.
func (c *Config) DBDir() string {
	return filepath.Join(c.NetworkDataDir(), "db")
}

// KeystoreDir returns the keystore directory.
func (c *Config) KeystoreDir() string {
	return filepath.Join(c.NetworkDataDir(), "keystore")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ParamsPath returns the params file in use.
func (c *Config) ParamsPath() string {
	if c.ParamsFile != "" {
		return c.ParamsFile
	}
	return filepath.Join(c.NetworkDataDir(), "params.json")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "locker.conf")
}

// RPCEndpoint returns the http URL of the configured RPC listener.
func (c *Config) RPCEndpoint() string {
	return "http://" + c.RPC.Addr + ":" + itoa(c.RPC.Port)
}
