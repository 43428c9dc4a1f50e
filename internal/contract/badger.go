package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
)

// Badger is a contract persisted in an embedded badger database.
type Badger struct {
	db      *badger.DB
	address string
	seq     atomic.Uint64
}

// OpenBadger opens (or creates) the database at cfg.Path, or an in-memory
// one when cfg.InMemory is set.
func OpenBadger(address string, cfg BadgerConfig, logger *slog.Logger) (*Badger, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badger contract: path is required")
	}
	path := cfg.Path
	if cfg.InMemory {
		path = ""
	}
	opts := badger.DefaultOptions(path).
		WithInMemory(cfg.InMemory).
		WithLogger(badgerLogger{logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger contract: open: %w", err)
	}
	return &Badger{db: db, address: address}, nil
}

// Address implements Addresser.
func (b *Badger) Address() string { return b.address }

// IsAvailable reports false once the database is closed.
func (b *Badger) IsAvailable(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return !b.db.IsClosed(), nil
}

// GetData implements Contract.
func (b *Badger) GetData(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, b.wrap("get "+key, err)
	}
	return value, nil
}

// SetData implements Contract.
func (b *Badger) SetData(ctx context.Context, key string, value []byte) (Tx, error) {
	return b.SetMany(ctx, map[string][]byte{key: value})
}

// SetMany writes every entry in one badger transaction.
func (b *Badger) SetMany(ctx context.Context, entries map[string][]byte) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return Tx{}, err
	}
	if len(entries) == 0 {
		return Tx{}, errors.New("badger contract: empty batch")
	}
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	err := b.db.Update(func(txn *badger.Txn) error {
		for _, k := range keys {
			if err := txn.Set([]byte(k), entries[k]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Tx{}, b.wrap("write", err)
	}

	seq := b.seq.Add(1)
	parts := []any{time.Now().UTC().Format(time.RFC3339Nano)}
	for _, k := range keys {
		parts = append(parts, k, entries[k])
	}
	return Tx{Hash: store.TxHash(seq, parts...), Seq: seq}, nil
}

// Keys implements KeyLister with a key-only prefix scan.
func (b *Badger) Keys(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, b.wrap("scan", err)
	}
	return keys, nil
}

// Close closes the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

func (b *Badger) wrap(op string, err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return fmt.Errorf("badger contract: %s: %w", op, ErrUnavailable)
	}
	return fmt.Errorf("badger contract: %s: %w", op, err)
}

// badgerLogger routes badger's internal logging to slog.
type badgerLogger struct {
	l *slog.Logger
}

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Error(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Debug(fmt.Sprintf(f, args...)) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Debug(fmt.Sprintf(f, args...)) }
