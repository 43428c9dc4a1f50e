package records

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wondertwin-ai/loyaltynft/internal/codec"
	"github.com/wondertwin-ai/loyaltynft/internal/contract"
)

// Observer receives store events. The metrics package implements it.
type Observer interface {
	ContractCall(op string, d time.Duration, err error)
	RecordSkipped(reason string)
	RecordCreated(r Record)
}

type nopObserver struct{}

func (nopObserver) ContractCall(string, time.Duration, error) {}
func (nopObserver) RecordSkipped(string)                      {}
func (nopObserver) RecordCreated(Record)                      {}

// Options configure a Store.
type Options struct {
	Codec  codec.Codec
	Logger *slog.Logger
	// Reconcile runs Reconcile before every ListAll.
	Reconcile bool
	Observer  Observer
	Now       func() time.Time
	// Suffix returns the random part of new record ids.
	Suffix func() string
}

// Store reads and writes records through a contract.
type Store struct {
	c         contract.Contract
	codec     codec.Codec
	logger    *slog.Logger
	reconcile bool
	obs       Observer
	now       func() time.Time
	suffix    func() string

	// mu serializes index read-modify-write cycles within this process.
	mu sync.Mutex
}

// New creates a Store over c.
func New(c contract.Contract, opts Options) *Store {
	if opts.Codec == nil {
		opts.Codec = codec.Placeholder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Suffix == nil {
		opts.Suffix = func() string { return uuid.NewString()[:4] }
	}
	return &Store{
		c:         c,
		codec:     opts.Codec,
		logger:    opts.Logger,
		reconcile: opts.Reconcile,
		obs:       opts.Observer,
		now:       opts.Now,
		suffix:    opts.Suffix,
	}
}

// Contract returns the underlying contract.
func (s *Store) Contract() contract.Contract { return s.c }

// Available reports whether the contract accepts calls.
func (s *Store) Available(ctx context.Context) (bool, error) {
	start := time.Now()
	ok, err := s.c.IsAvailable(ctx)
	s.obs.ContractCall("isAvailable", time.Since(start), err)
	return ok, err
}

// ListAll returns every indexed record, newest first. An unavailable or
// unreachable contract yields an empty list. Records that cannot be read or
// parsed are logged and skipped.
func (s *Store) ListAll(ctx context.Context) ([]Record, error) {
	ok, err := s.Available(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.logger.Warn("contract availability check failed, listing nothing", "error", err)
		return []Record{}, nil
	}
	if !ok {
		s.logger.Debug("contract unavailable, listing nothing")
		return []Record{}, nil
	}

	if s.reconcile {
		if _, err := s.Reconcile(ctx); err != nil && ctx.Err() == nil {
			s.logger.Warn("reconcile failed", "error", err)
		}
	}

	ids, err := s.readIndex(ctx)
	if errors.Is(err, ErrMalformedIndex) {
		s.logger.Error("failed to parse record index", "key", IndexKey, "error", err)
		return []Record{}, nil
	}
	if err != nil {
		return nil, err
	}

	out := make([]Record, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true

		r, err := s.get(ctx, id)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("skipping record", "key", KeyPrefix+id, "error", err)
			s.obs.RecordSkipped(skipReason(err))
			continue
		}
		out = append(out, r)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	return out, nil
}

// Get reads one record by id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	return s.get(ctx, id)
}

func (s *Store) get(ctx context.Context, id string) (Record, error) {
	raw, err := s.getData(ctx, KeyPrefix+id)
	if err != nil {
		return Record{}, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	r, err := decodeRecord(id, raw)
	if err != nil {
		return Record{}, fmt.Errorf("parse %s: %w", id, err)
	}
	return r, nil
}

func skipReason(err error) string {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	switch {
	case errors.Is(err, ErrNotFound):
		return "missing"
	case errors.As(err, &syntax), errors.As(err, &typ):
		return "malformed"
	default:
		return "unreadable"
	}
}

// Create mints a record for owner. The record and the extended index are
// written in one transaction when the contract supports batches. Otherwise
// the record is written first and the index is re-read just before it is
// rewritten, so a failed index write leaves an orphan for Reconcile.
func (s *Store) Create(ctx context.Context, owner string, req MintRequest) (Record, error) {
	if strings.TrimSpace(owner) == "" {
		return Record{}, ErrNoOwner
	}
	amount, err := req.Amount()
	if err != nil {
		return Record{}, err
	}
	level, rewards := Tier(amount)
	now := s.now()

	plaintext, err := json.Marshal(Purchase{
		PurchaseAmount:  req.PurchaseAmount,
		ProductCategory: req.ProductCategory,
		LoyaltyLevel:    level,
		Rewards:         rewards,
		Timestamp:       now.UnixMilli(),
	})
	if err != nil {
		return Record{}, fmt.Errorf("encode purchase: %w", err)
	}

	r := Record{
		ID:            "NFT-" + strconv.FormatInt(now.UnixMilli(), 10) + "-" + s.suffix(),
		EncryptedData: s.codec.Encode(string(plaintext)),
		Timestamp:     now.Unix(),
		Owner:         owner,
		LoyaltyLevel:  level,
		Rewards:       rewards,
		Status:        StatusActive,
	}
	value, err := encodeRecord(r)
	if err != nil {
		return Record{}, fmt.Errorf("encode record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var tx contract.Tx
	if b, ok := s.c.(contract.Batcher); ok {
		index, err := s.appendIndex(ctx, r.ID)
		if err != nil {
			return Record{}, err
		}
		start := time.Now()
		tx, err = b.SetMany(ctx, map[string][]byte{KeyPrefix + r.ID: value, IndexKey: index})
		s.obs.ContractCall("setMany", time.Since(start), err)
		if err != nil {
			return Record{}, fmt.Errorf("write record %s: %w", r.ID, err)
		}
	} else {
		if _, err := s.setData(ctx, KeyPrefix+r.ID, value); err != nil {
			return Record{}, fmt.Errorf("write record %s: %w", r.ID, err)
		}
		index, err := s.appendIndex(ctx, r.ID)
		if err != nil {
			return Record{}, fmt.Errorf("index %s: %w", r.ID, err)
		}
		if tx, err = s.setData(ctx, IndexKey, index); err != nil {
			return Record{}, fmt.Errorf("write index after %s: %w", r.ID, err)
		}
	}

	s.logger.Info("record minted", "id", r.ID, "owner", r.Owner, "level", int(r.LoyaltyLevel), "tx", tx.Hash)
	s.obs.RecordCreated(r)
	return r, nil
}

// Reconcile appends stored records missing from the index, or rebuilds a
// malformed index from the stored keys. It returns the appended ids and
// does nothing when the contract cannot list keys.
func (s *Store) Reconcile(ctx context.Context) ([]string, error) {
	lister, ok := s.c.(contract.KeyLister)
	if !ok {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	start := time.Now()
	keys, err := lister.Keys(ctx, KeyPrefix)
	s.obs.ContractCall("keys", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}

	ids, err := s.readIndex(ctx)
	rebuild := errors.Is(err, ErrMalformedIndex)
	if err != nil && !rebuild {
		return nil, err
	}
	if rebuild {
		s.logger.Warn("rebuilding malformed record index", "key", IndexKey)
		ids = nil
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var missing []string
	for _, k := range keys {
		if k == IndexKey {
			continue
		}
		id := strings.TrimPrefix(k, KeyPrefix)
		if !known[id] {
			missing = append(missing, id)
			known[id] = true
		}
	}
	if len(missing) == 0 && !rebuild {
		return nil, nil
	}
	sort.Strings(missing)

	index, err := json.Marshal(append(ids, missing...))
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	if _, err := s.setData(ctx, IndexKey, index); err != nil {
		return nil, fmt.Errorf("write index: %w", err)
	}
	s.logger.Info("record index repaired", "added", len(missing))
	return missing, nil
}

// appendIndex reads the index and returns it encoded with id appended.
func (s *Store) appendIndex(ctx context.Context, id string) ([]byte, error) {
	ids, err := s.readIndex(ctx)
	if err != nil {
		return nil, err
	}
	index, err := json.Marshal(append(ids, id))
	if err != nil {
		return nil, fmt.Errorf("encode index: %w", err)
	}
	return index, nil
}

// readIndex returns the indexed ids. An empty value is an empty index.
func (s *Store) readIndex(ctx context.Context) ([]string, error) {
	raw, err := s.getData(ctx, IndexKey)
	if err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedIndex, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

func (s *Store) getData(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := s.c.GetData(ctx, key)
	s.obs.ContractCall("getData", time.Since(start), err)
	return v, err
}

func (s *Store) setData(ctx context.Context, key string, value []byte) (contract.Tx, error) {
	start := time.Now()
	tx, err := s.c.SetData(ctx, key, value)
	s.obs.ContractCall("setData", time.Since(start), err)
	return tx, err
}
