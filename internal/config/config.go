package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Logging  LoggingConfig  `toml:"logging"`
	Api      ApiConfig      `toml:"api"`
	Cursor   CursorConfig   `toml:"cursor"`
	Follower FollowerConfig `toml:"follower"`
	Database DatabaseConfig `toml:"database"`
	Pools    []PoolConfig   `toml:"pools"`
}

type LoggingConfig struct {
	Level string `toml:"level" envconfig:"LOGGING_LEVEL"`
}

type ApiConfig struct {
	ListenAddress string `toml:"listenAddress" envconfig:"LISTEN_ADDRESS"`
	ListenPort    uint   `toml:"port"          envconfig:"PORT"`
}

type CursorConfig struct {
	Directory string `toml:"dir" envconfig:"CURSOR_DIR"`
}

type FollowerConfig struct {
	Socket string `toml:"socket" envconfig:"FOLLOWER_SOCKET"`
	Start  string `toml:"start"  envconfig:"FOLLOWER_START"`
}

type DatabaseConfig struct {
	Url string `toml:"url" envconfig:"DATABASE_URL"`
}

// PoolConfig describes a single watched DEX deployment. The script hash is
// the pool validator payment credential, the request hash the order
// validator, the vesting hash an auxiliary validator observed on some
// protocols. Whether matching uses the hashes or the full address text is
// protocol-specific (SundaeSwap pools and MinSwap orders match on the
// canonical address).
type PoolConfig struct {
	Enable      bool   `toml:"enable"`
	ScriptHash  string `toml:"script_hash"`
	RequestHash string `toml:"request_hash"`
	VestingHash string `toml:"vesting_hash"`
	Address     string `toml:"address"`
	Type        string `toml:"type"`
}

// Singleton config instance with default values
var globalConfig = &Config{
	Logging: LoggingConfig{
		Level: "info",
	},
	Api: ApiConfig{
		ListenAddress: "0.0.0.0",
		ListenPort:    3000,
	},
	Cursor: CursorConfig{
		Directory: "./.wtp",
	},
}

func Load(configFile string) (*Config, error) {
	// Load config file as TOML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := toml.Unmarshal(buf, globalConfig); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	if err := envconfig.Process("dummy", globalConfig); err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	// Pool entries are enabled unless the file says otherwise. TOML zero
	// values can't distinguish "absent" from "false", so re-parse for the
	// default the same way the file was written
	if err := applyPoolDefaults(configFile, globalConfig); err != nil {
		return nil, err
	}
	// Validate pool credential hashes up front so that the sink never deals
	// with malformed hex
	for i, pool := range globalConfig.Pools {
		for _, h := range []struct {
			name  string
			value string
		}{
			{"script_hash", pool.ScriptHash},
			{"request_hash", pool.RequestHash},
			{"vesting_hash", pool.VestingHash},
		} {
			if _, err := hex.DecodeString(h.value); err != nil {
				return nil, fmt.Errorf(
					"pool %d: invalid %s %q: %w",
					i,
					h.name,
					h.value,
					err,
				)
			}
		}
	}
	return globalConfig, nil
}

// applyPoolDefaults flips Enable to true for pool entries that never
// mentioned the key in the file
func applyPoolDefaults(configFile string, cfg *Config) error {
	type rawPool struct {
		Enable *bool `toml:"enable"`
	}
	type rawConfig struct {
		Pools []rawPool `toml:"pools"`
	}
	if configFile == "" {
		return nil
	}
	buf, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	var raw rawConfig
	if err := toml.Unmarshal(buf, &raw); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	for i := range cfg.Pools {
		if i < len(raw.Pools) && raw.Pools[i].Enable == nil {
			cfg.Pools[i].Enable = true
		}
	}
	return nil
}

// EnabledPools returns the pool entries with Enable set
func (cfg *Config) EnabledPools() []PoolConfig {
	var ret []PoolConfig
	for _, pool := range cfg.Pools {
		if pool.Enable {
			ret = append(ret, pool)
		}
	}
	return ret
}

// Return global config instance
func GetConfig() *Config {
	return globalConfig
}
