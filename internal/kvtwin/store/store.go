// Package store holds the state of the simulated key/value contract: the
// data map, the availability flag and the transaction counter.
package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/crypto"

	pstore "github.com/wondertwin-ai/loyaltynft/pkg/store"
)

// ErrUnavailable is returned for writes while the contract is paused.
var ErrUnavailable = errors.New("contract unavailable")

// Tx is the receipt of an applied write.
type Tx struct {
	Hash string `json:"txHash"`
	Seq  uint64 `json:"seq"`
}

// KV is the contract state. It is safe for concurrent use.
type KV struct {
	address string
	data    *pstore.Store[[]byte]
	paused  *pstore.Store[bool]
	clock   *pstore.Clock
}

// New creates an empty, available contract at address.
func New(address string) *KV {
	return &KV{
		address: address,
		data:    pstore.New[[]byte](),
		paused:  pstore.New[bool](),
		clock:   pstore.NewClock(),
	}
}

// Address returns the contract address.
func (k *KV) Address() string { return k.address }

// Clock returns the simulated clock.
func (k *KV) Clock() *pstore.Clock { return k.clock }

// Available reports whether the contract accepts calls.
func (k *KV) Available() bool {
	paused, _ := k.paused.Get("paused")
	return !paused
}

// SetAvailable pauses or resumes the contract.
func (k *KV) SetAvailable(available bool) {
	k.paused.Set("paused", !available)
}

// Get returns a copy of the value at key, or nil when missing.
func (k *KV) Get(key string) []byte {
	v, ok := k.data.Get(key)
	if !ok {
		return nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out
}

// Set writes value at key.
func (k *KV) Set(key string, value []byte) (Tx, error) {
	if !k.Available() {
		return Tx{}, ErrUnavailable
	}
	v := make([]byte, len(value))
	copy(v, value)
	seq := k.data.Set(key, v)
	return Tx{Hash: TxHash(seq, key, value), Seq: seq}, nil
}

// SetMany writes every entry as one transaction.
func (k *KV) SetMany(entries map[string][]byte) (Tx, error) {
	if !k.Available() {
		return Tx{}, ErrUnavailable
	}
	if len(entries) == 0 {
		return Tx{}, errors.New("empty batch")
	}
	copies := make(map[string][]byte, len(entries))
	keys := make([]string, 0, len(entries))
	for key, v := range entries {
		c := make([]byte, len(v))
		copy(c, v)
		copies[key] = c
		keys = append(keys, key)
	}
	sort.Strings(keys)

	seq := k.data.SetMany(copies)
	parts := make([]any, 0, 2*len(keys))
	for _, key := range keys {
		parts = append(parts, key, copies[key])
	}
	return Tx{Hash: TxHash(seq, parts...), Seq: seq}, nil
}

// Keys returns the keys starting with prefix in write order.
func (k *KV) Keys(prefix string) []string {
	return k.data.Keys(prefix)
}

// Count returns the number of stored keys.
func (k *KV) Count() int { return k.data.Count() }

// state is the JSON form used by Snapshot and LoadState. Values are kept as
// strings since the contract stores UTF-8 JSON documents.
type state struct {
	Available bool              `json:"available"`
	Data      map[string]string `json:"data"`
}

// Snapshot implements admin.StateStore.
func (k *KV) Snapshot() any {
	raw := k.data.Snapshot()
	data := make(map[string]string, len(raw))
	for key, v := range raw {
		data[key] = string(v)
	}
	return state{Available: k.Available(), Data: data}
}

// LoadState implements admin.StateStore. A state without "available"
// loads as available.
func (k *KV) LoadState(b []byte) error {
	var s struct {
		Available *bool             `json:"available"`
		Data      map[string]string `json:"data"`
	}
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("decode contract state: %w", err)
	}
	data := make(map[string][]byte, len(s.Data))
	for key, v := range s.Data {
		data[key] = []byte(v)
	}
	k.data.LoadSnapshot(data)
	k.SetAvailable(s.Available == nil || *s.Available)
	return nil
}

// Reset implements admin.StateStore.
func (k *KV) Reset() {
	k.data.Reset()
	k.paused.Reset()
	k.clock.Reset()
}

// TxHash derives a deterministic keccak256 transaction hash from the write
// sequence and its payload.
func TxHash(seq uint64, parts ...any) string {
	var seqBytes [8]byte
	binary.BigEndian.PutUint64(seqBytes[:], seq)
	chunks := [][]byte{seqBytes[:]}
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			chunks = append(chunks, []byte(v))
		case []byte:
			chunks = append(chunks, v)
		}
	}
	return crypto.Keccak256Hash(chunks...).Hex()
}
