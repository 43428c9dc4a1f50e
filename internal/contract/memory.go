package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
)

// Memory is an in-process contract over the twin state.
type Memory struct {
	kv *store.KV
}

// NewMemory creates an empty in-process contract.
func NewMemory(address string) *Memory {
	return &Memory{kv: store.New(address)}
}

// NewMemoryFrom wraps existing twin state.
func NewMemoryFrom(kv *store.KV) *Memory {
	return &Memory{kv: kv}
}

// State exposes the underlying twin state.
func (m *Memory) State() *store.KV { return m.kv }

// Address implements Addresser.
func (m *Memory) Address() string { return m.kv.Address() }

// IsAvailable implements Contract.
func (m *Memory) IsAvailable(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return m.kv.Available(), nil
}

// GetData implements Contract.
func (m *Memory) GetData(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.kv.Get(key), nil
}

// SetData implements Contract.
func (m *Memory) SetData(ctx context.Context, key string, value []byte) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return Tx{}, err
	}
	tx, err := m.kv.Set(key, value)
	return fromStoreTx(tx, err)
}

// SetMany implements Batcher.
func (m *Memory) SetMany(ctx context.Context, entries map[string][]byte) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return Tx{}, err
	}
	tx, err := m.kv.SetMany(entries)
	return fromStoreTx(tx, err)
}

// Keys implements KeyLister.
func (m *Memory) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.kv.Keys(prefix), nil
}

func fromStoreTx(tx store.Tx, err error) (Tx, error) {
	if errors.Is(err, store.ErrUnavailable) {
		return Tx{}, ErrUnavailable
	}
	if err != nil {
		return Tx{}, fmt.Errorf("memory contract: %w", err)
	}
	return Tx{Hash: tx.Hash, Seq: tx.Seq}, nil
}
