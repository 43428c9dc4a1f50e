package contract

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
)

// seqKey holds the write counter. It lives under the key prefix and is
// hidden from Keys.
const seqKey = "__seq"

// Redis is a contract backed by a redis server. Every key is stored as
// KeyPrefix+key.
type Redis struct {
	client  *redis.Client
	address string
	prefix  string
}

// OpenRedis connects to cfg.Addr and pings it.
func OpenRedis(ctx context.Context, address string, cfg RedisConfig) (*Redis, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis contract: addr is required")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis contract: ping %s: %w", cfg.Addr, err)
	}
	return NewRedisClient(client, address, cfg.KeyPrefix), nil
}

// NewRedisClient wraps an existing client.
func NewRedisClient(client *redis.Client, address, keyPrefix string) *Redis {
	return &Redis{client: client, address: address, prefix: keyPrefix}
}

// Address implements Addresser.
func (r *Redis) Address() string { return r.address }

// IsAvailable pings the server. A failed ping is reported as unavailable,
// not as an error.
func (r *Redis) IsAvailable(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.client.Ping(ctx).Err() == nil, nil
}

// GetData implements Contract.
func (r *Redis) GetData(ctx context.Context, key string) ([]byte, error) {
	b, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, r.wrap("get "+key, err)
	}
	return b, nil
}

// SetData implements Contract.
func (r *Redis) SetData(ctx context.Context, key string, value []byte) (Tx, error) {
	return r.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany writes every entry in one MULTI/EXEC together with the counter
// increment.
func (r *Redis) SetMany(ctx context.Context, entries map[string][]byte) (Tx, error) {
	if len(entries) == 0 {
		return Tx{}, errors.New("redis contract: empty batch")
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, k := range keys {
			pipe.Set(ctx, r.prefix+k, entries[k], 0)
		}
		incr = pipe.Incr(ctx, r.prefix+seqKey)
		return nil
	})
	if err != nil {
		return Tx{}, r.wrap("write", err)
	}

	seq := uint64(incr.Val())
	parts := make([]any, 0, 2*len(keys))
	for _, k := range keys {
		parts = append(parts, k, entries[k])
	}
	return Tx{Hash: store.TxHash(seq, parts...), Seq: seq}, nil
}

// Keys implements KeyLister using SCAN.
func (r *Redis) Keys(ctx context.Context, prefix string) ([]string, error) {
	match := globEscape(r.prefix+prefix) + "*"
	var keys []string
	iter := r.client.Scan(ctx, 0, match, 100).Iterator()
	for iter.Next(ctx) {
		k := strings.TrimPrefix(iter.Val(), r.prefix)
		if k == seqKey {
			continue
		}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, r.wrap("scan", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) wrap(op string, err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return fmt.Errorf("redis contract: %s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("redis contract: %s: %w", op, err)
}

func globEscape(s string) string {
	var b strings.Builder
	for _, c := range s {
		switch c {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(c)
	}
	return b.String()
}
