// Package contract defines the key/value smart-contract interface records
// are stored through, and its backends: an in-process twin, badger, redis
// and an HTTP client for the contract twin.
package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrUnavailable is returned when the contract does not accept calls.
var ErrUnavailable = errors.New("contract unavailable")

// Tx is the receipt of a write.
type Tx struct {
	Hash string `json:"txHash"`
	Seq  uint64 `json:"seq,omitempty"`
}

// Contract is the minimal key/value contract surface.
type Contract interface {
	IsAvailable(ctx context.Context) (bool, error)
	// GetData returns the value at key. A missing key yields an empty
	// value and no error.
	GetData(ctx context.Context, key string) ([]byte, error)
	SetData(ctx context.Context, key string, value []byte) (Tx, error)
}

// Batcher is implemented by contracts that can write several keys in one
// atomic transaction.
type Batcher interface {
	SetMany(ctx context.Context, entries map[string][]byte) (Tx, error)
}

// KeyLister is implemented by contracts that can enumerate their keys.
type KeyLister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// Addresser is implemented by contracts with an on-chain address.
type Addresser interface {
	Address() string
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
	BackendRedis  = "redis"
	BackendHTTP   = "http"
)

// Config selects and configures a backend.
type Config struct {
	Backend string       `yaml:"backend"`
	Address string       `yaml:"address"`
	ChainID int64        `yaml:"chain_id"`
	Badger  BadgerConfig `yaml:"badger"`
	Redis   RedisConfig  `yaml:"redis"`
	HTTP    HTTPConfig   `yaml:"http"`
}

// BadgerConfig configures the embedded badger backend.
type BadgerConfig struct {
	Path     string `yaml:"path"`
	InMemory bool   `yaml:"in_memory"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// HTTPConfig configures the contract twin client.
type HTTPConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// Open connects to the configured backend. The caller closes the result
// when it implements io.Closer.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Contract, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("backend", cfg.Backend)

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemory(cfg.Address), nil
	case BackendBadger:
		return OpenBadger(cfg.Address, cfg.Badger, logger)
	case BackendRedis:
		return OpenRedis(ctx, cfg.Address, cfg.Redis)
	case BackendHTTP:
		return NewHTTP(cfg.HTTP)
	default:
		return nil, fmt.Errorf("unknown contract backend %q", cfg.Backend)
	}
}

// Close closes c when it holds resources.
func Close(c Contract) error {
	if closer, ok := c.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
