package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings for the node adapter daemon.
type Config struct {
	Coin             string `yaml:"coin"`
	NodeAddress      string `yaml:"node_address"`
	RPCLogin         string `yaml:"rpc_login"`
	RPCPassword      string `yaml:"rpc_password"`
	LongPoll         bool   `yaml:"long_poll"`
	RationalPartSize int64  `yaml:"rational_part_size"` // overrides the coin table when > 0
	DefaultRPCPort   int    `yaml:"default_rpc_port"`   // overrides the coin table when > 0
	SegwitEnabled    *bool  `yaml:"segwit_enabled"`     // overrides the coin table when set

	MetricsListen     string `yaml:"metrics_listen"`
	BalanceCron       string `yaml:"balance_cron"`
	ConfirmationsCron string `yaml:"confirmations_cron"`
	RestartDelaySecs  int    `yaml:"restart_delay_secs"`
	LogLevel          string `yaml:"log_level"`

	BlockMaturity int64          `yaml:"block_maturity"`
	TrackBlocks   []TrackedBlock `yaml:"track_blocks"`
}

// TrackedBlock is a found block whose confirmations the watcher follows.
type TrackedBlock struct {
	Height uint64 `yaml:"height"`
	Hash   string `yaml:"hash"`
}

// Load reads YAML config from disk.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Parse decodes YAML config from memory.
func Parse(raw []byte) (Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Validate enforces required fields and fills defaults.
func (c *Config) Validate() error {
	if c.Coin == "" {
		return fmt.Errorf("coin is required")
	}
	if _, ok := LookupCoin(c.Coin); !ok && (c.RationalPartSize <= 0 || c.DefaultRPCPort <= 0) {
		return fmt.Errorf("unknown coin %q: rational_part_size and default_rpc_port are required", c.Coin)
	}
	if c.NodeAddress == "" {
		return fmt.Errorf("node_address is required")
	}
	if c.RPCLogin == "" || c.RPCPassword == "" {
		return fmt.Errorf("rpc_login and rpc_password are required for node %s", c.NodeAddress)
	}
	if c.RationalPartSize < 0 {
		return fmt.Errorf("rational_part_size must be > 0")
	}
	if c.DefaultRPCPort < 0 || c.DefaultRPCPort > 65535 {
		return fmt.Errorf("default_rpc_port must be between 1 and 65535")
	}
	if c.BalanceCron == "" {
		c.BalanceCron = "@every 1m"
	}
	if c.ConfirmationsCron == "" {
		c.ConfirmationsCron = "@every 30s"
	}
	if c.RestartDelaySecs <= 0 {
		c.RestartDelaySecs = 5
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.BlockMaturity <= 0 {
		c.BlockMaturity = 100
	}
	for _, b := range c.TrackBlocks {
		if len(b.Hash) != 64 {
			return fmt.Errorf("track_blocks: bad hash %q at height %d", b.Hash, b.Height)
		}
	}
	return nil
}

// CoinInfo returns the effective coin parameters: the built-in table entry
// with any explicit overrides from the config file applied.
func (c Config) CoinInfo() Coin {
	coin, ok := LookupCoin(c.Coin)
	if !ok {
		coin = Coin{Name: strings.ToUpper(c.Coin)}
	}
	if c.RationalPartSize > 0 {
		coin.RationalPartSize = c.RationalPartSize
	}
	if c.DefaultRPCPort > 0 {
		coin.DefaultRPCPort = uint16(c.DefaultRPCPort)
	}
	if c.SegwitEnabled != nil {
		coin.SegwitEnabled = *c.SegwitEnabled
	}
	return coin
}
