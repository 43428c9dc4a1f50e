// Package config loads the loyaltynft configuration from a YAML file, an
// optional .env file and LOYALTYNFT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/wondertwin-ai/loyaltynft/internal/contract"
)

// DefaultConfigFile is read when no --config flag is given.
const DefaultConfigFile = "loyaltynft.yaml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LOYALTYNFT_"

// DefaultContractAddress is the address reported by local backends.
const DefaultContractAddress = "0x00000000000000000000000000000000c0ffee00"

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Contract contract.Config `yaml:"contract"`
	Wallet   WalletConfig    `yaml:"wallet"`
	Auth     AuthConfig      `yaml:"auth"`
	Records  RecordsConfig   `yaml:"records"`
	Webhook  WebhookConfig   `yaml:"webhook"`
	Log      LogConfig       `yaml:"log"`
}

type ServerConfig struct {
	Port    int           `yaml:"port"`
	Latency time.Duration `yaml:"latency"`
}

// WalletConfig holds the server wallet. An empty key generates an
// ephemeral wallet at startup.
type WalletConfig struct {
	PrivateKey string `yaml:"private_key"`
}

type AuthConfig struct {
	DurationDays     int           `yaml:"duration_days"`
	Delay            time.Duration `yaml:"delay"`
	VerifySignatures bool          `yaml:"verify_signatures"`
}

type RecordsConfig struct {
	Reconcile bool `yaml:"reconcile"`
}

type WebhookConfig struct {
	URL         string        `yaml:"url"`
	Secret      string        `yaml:"secret"`
	MaxRetries  int           `yaml:"max_retries"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
	AutoDeliver bool          `yaml:"auto_deliver"`
}

// LogConfig selects the log level and an optional rotating log file.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: 8090},
		Contract: contract.Config{
			Backend: contract.BackendMemory,
			Address: DefaultContractAddress,
			ChainID: 31337,
			Badger:  contract.BadgerConfig{Path: "data/loyaltynft"},
			Redis:   contract.RedisConfig{Addr: "localhost:6379", KeyPrefix: "loyaltynft:"},
			HTTP:    contract.HTTPConfig{URL: "http://localhost:8095", Timeout: 5 * time.Second},
		},
		Auth: AuthConfig{
			DurationDays: 30,
			Delay:        1500 * time.Millisecond,
		},
		Records: RecordsConfig{Reconcile: true},
		Webhook: WebhookConfig{MaxRetries: 3, RetryDelay: time.Second, AutoDeliver: true},
		Log:     LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads KEY=value pairs from path into the process
// environment without overriding variables that are already set. A missing
// file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from LOYALTYNFT_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	var errs []error
	num := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	num("PORT", &c.Server.Port)
	str("BACKEND", &c.Contract.Backend)
	str("CONTRACT_ADDRESS", &c.Contract.Address)
	str("BADGER_PATH", &c.Contract.Badger.Path)
	str("REDIS_ADDR", &c.Contract.Redis.Addr)
	str("REDIS_PASSWORD", &c.Contract.Redis.Password)
	str("TWIN_URL", &c.Contract.HTTP.URL)
	str("PRIVATE_KEY", &c.Wallet.PrivateKey)
	boolean("VERIFY_SIGNATURES", &c.Auth.VerifySignatures)
	str("WEBHOOK_URL", &c.Webhook.URL)
	str("WEBHOOK_SECRET", &c.Webhook.Secret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FILE", &c.Log.File)

	if v, ok := lookup(EnvPrefix + "CHAIN_ID"); ok {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCHAIN_ID: %w", EnvPrefix, err))
		} else {
			c.Contract.ChainID = id
		}
	}
	return errors.Join(errs...)
}

// Validate checks field ranges and the backend name.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	switch c.Contract.Backend {
	case "", contract.BackendMemory, contract.BackendBadger, contract.BackendRedis, contract.BackendHTTP:
	default:
		errs = append(errs, fmt.Errorf("contract.backend %q is not one of memory, badger, redis, http", c.Contract.Backend))
	}
	if c.Auth.DurationDays < 0 {
		errs = append(errs, errors.New("auth.duration_days must not be negative"))
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	return errors.Join(errs...)
}

// Save writes cfg as YAML.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
