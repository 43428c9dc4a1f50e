package contract

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/api"
	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

const testAddress = "0x00000000000000000000000000000000c0ffee00"

type full interface {
	Contract
	Batcher
	KeyLister
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func backends(t *testing.T) map[string]func(t *testing.T) full {
	return map[string]func(t *testing.T) full{
		"memory": func(t *testing.T) full { return NewMemory(testAddress) },
		"badger": func(t *testing.T) full {
			b, err := OpenBadger(testAddress, BadgerConfig{InMemory: true}, discardLogger())
			require.NoError(t, err)
			t.Cleanup(func() { b.Close() })
			return b
		},
		"redis": func(t *testing.T) full {
			mr := miniredis.RunT(t)
			r, err := OpenRedis(context.Background(), testAddress, RedisConfig{Addr: mr.Addr(), KeyPrefix: "loyalty:"})
			require.NoError(t, err)
			t.Cleanup(func() { r.Close() })
			return r
		},
		"http": func(t *testing.T) full {
			ts := newTwin(t, store.New(testAddress))
			c, err := NewHTTP(HTTPConfig{URL: ts.URL})
			require.NoError(t, err)
			return c
		},
	}
}

func newTwin(t *testing.T, kv *store.KV) *httptest.Server {
	t.Helper()
	srv := twincore.New(&twincore.Config{Name: "kvcontract-test", LogOutput: io.Discard})
	api.NewHandler(kv, srv.Middleware()).Routes(srv.Router)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func TestBackendConformance(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := open(t)

			ok, err := c.IsAvailable(ctx)
			require.NoError(t, err)
			assert.True(t, ok)

			v, err := c.GetData(ctx, "nft_keys")
			require.NoError(t, err)
			assert.Empty(t, v, "missing key reads as empty")

			tx, err := c.SetData(ctx, "nft_keys", []byte(`["NFT-1-abcd"]`))
			require.NoError(t, err)
			assert.Len(t, tx.Hash, 66)

			v, err = c.GetData(ctx, "nft_keys")
			require.NoError(t, err)
			assert.Equal(t, `["NFT-1-abcd"]`, string(v))

			tx2, err := c.SetMany(ctx, map[string][]byte{
				"nft_NFT-2-efgh": []byte(`{"owner":"0xabc"}`),
				"nft_keys":       []byte(`["NFT-1-abcd","NFT-2-efgh"]`),
			})
			require.NoError(t, err)
			assert.NotEqual(t, tx.Hash, tx2.Hash)
			assert.Greater(t, tx2.Seq, tx.Seq)

			v, err = c.GetData(ctx, "nft_NFT-2-efgh")
			require.NoError(t, err)
			assert.JSONEq(t, `{"owner":"0xabc"}`, string(v))

			keys, err := c.Keys(ctx, "nft_NFT-")
			require.NoError(t, err)
			assert.Equal(t, []string{"nft_NFT-2-efgh"}, keys)

			all, err := c.Keys(ctx, "")
			require.NoError(t, err)
			assert.ElementsMatch(t, []string{"nft_keys", "nft_NFT-2-efgh"}, all)

			_, err = c.SetMany(ctx, nil)
			assert.Error(t, err)
		})
	}
}

func TestKeysWithSpecialCharacters(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c := open(t)

			_, err := c.SetData(ctx, "nft_a/b c?", []byte("x"))
			require.NoError(t, err)
			v, err := c.GetData(ctx, "nft_a/b c?")
			require.NoError(t, err)
			assert.Equal(t, "x", string(v))
		})
	}
}

func TestMemoryPausedRejectsWrites(t *testing.T) {
	m := NewMemory(testAddress)
	m.State().SetAvailable(false)

	ok, err := m.IsAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = m.SetData(context.Background(), "nft_keys", []byte("[]"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPPausedTwin(t *testing.T) {
	kv := store.New(testAddress)
	ts := newTwin(t, kv)
	c, err := NewHTTP(HTTPConfig{URL: ts.URL})
	require.NoError(t, err)

	assert.Equal(t, testAddress, c.Address())

	kv.SetAvailable(false)
	ok, err := c.IsAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = c.SetData(context.Background(), "nft_keys", []byte("[]"))
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPWriteFaultLeavesReads(t *testing.T) {
	kv := store.New(testAddress)
	srv := twincore.New(&twincore.Config{Name: "kvcontract-test", LogOutput: io.Discard})
	mw := srv.Middleware()
	api.NewHandler(kv, mw).Routes(srv.Router)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	c, err := NewHTTP(HTTPConfig{URL: ts.URL})
	require.NoError(t, err)
	ctx := context.Background()

	mw.Faults.Set("/contract/data/*", twincore.FaultConfig{StatusCode: 503, Method: "put", Times: 1})

	_, err = c.GetData(ctx, "nft_keys")
	require.NoError(t, err)

	_, err = c.SetData(ctx, "nft_keys", []byte("[]"))
	assert.ErrorIs(t, err, ErrUnavailable)

	// The fault fired once; the retry lands.
	_, err = c.SetData(ctx, "nft_keys", []byte(`["NFT-1-abcd"]`))
	require.NoError(t, err)
	v, err := c.GetData(ctx, "nft_keys")
	require.NoError(t, err)
	assert.JSONEq(t, `["NFT-1-abcd"]`, string(v))
}

func TestHTTPServiceUnavailableIsNotAnError(t *testing.T) {
	kv := store.New(testAddress)
	srv := twincore.New(&twincore.Config{Name: "kvcontract-test", LogOutput: io.Discard})
	api.NewHandler(kv, srv.Middleware()).Routes(srv.Router)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	srv.Middleware().Faults.Set("/contract/available", twincore.FaultConfig{StatusCode: 503})

	c, err := NewHTTP(HTTPConfig{URL: ts.URL})
	require.NoError(t, err)
	ok, err := c.IsAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHTTPUnreachable(t *testing.T) {
	c, err := NewHTTP(HTTPConfig{URL: "http://127.0.0.1:1"})
	require.NoError(t, err)
	_, err = c.IsAvailable(context.Background())
	assert.Error(t, err)
}

func TestBadgerClosedIsUnavailable(t *testing.T) {
	b, err := OpenBadger(testAddress, BadgerConfig{InMemory: true}, discardLogger())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	ok, err := b.IsAvailable(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBadgerPersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBadger(testAddress, BadgerConfig{Path: dir}, discardLogger())
	require.NoError(t, err)
	_, err = b.SetData(ctx, "nft_keys", []byte(`["NFT-1-abcd"]`))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	b, err = OpenBadger(testAddress, BadgerConfig{Path: dir}, discardLogger())
	require.NoError(t, err)
	defer b.Close()
	v, err := b.GetData(ctx, "nft_keys")
	require.NoError(t, err)
	assert.Equal(t, `["NFT-1-abcd"]`, string(v))
}

func TestRedisKeyPrefixIsolation(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()

	a := NewRedisClient(client, testAddress, "a:")
	b := NewRedisClient(client, testAddress, "b:")

	_, err := a.SetData(ctx, "nft_keys", []byte("[1]"))
	require.NoError(t, err)

	v, err := b.GetData(ctx, "nft_keys")
	require.NoError(t, err)
	assert.Empty(t, v)

	raw, err := mr.Get("a:nft_keys")
	require.NoError(t, err)
	assert.Equal(t, "[1]", raw)

	mr.SetError("LOADING")
	ok, err := a.IsAvailable(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	c, err := Open(ctx, Config{Address: testAddress}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)
	assert.NoError(t, Close(c))

	c, err = Open(ctx, Config{Backend: BackendBadger, Badger: BadgerConfig{InMemory: true}}, discardLogger())
	require.NoError(t, err)
	assert.IsType(t, &Badger{}, c)
	assert.NoError(t, Close(c))

	_, err = Open(ctx, Config{Backend: BackendBadger}, nil)
	assert.Error(t, err)
	_, err = Open(ctx, Config{Backend: BackendRedis}, nil)
	assert.Error(t, err)
	_, err = Open(ctx, Config{Backend: BackendHTTP}, nil)
	assert.Error(t, err)
	_, err = Open(ctx, Config{Backend: "etcd"}, nil)
	assert.ErrorContains(t, err, "unknown contract backend")
}
