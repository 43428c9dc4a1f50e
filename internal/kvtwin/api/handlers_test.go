package api_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/api"
	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/admin"
	"github.com/wondertwin-ai/loyaltynft/pkg/testutil"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

func setupContract(t *testing.T) (*testutil.Client, *testutil.AdminClient, *store.KV) {
	t.Helper()
	kv := store.New("0x00000000000000000000000000000000c0ffee00")
	srv := twincore.New(&twincore.Config{Name: "twin-kvcontract-test", LogOutput: io.Discard})
	api.NewHandler(kv, srv.Middleware()).Routes(srv.Router)
	admin.NewHandler(kv, srv.Middleware(), kv.Clock()).Routes(srv.Router)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	c := testutil.NewClient(t, ts)
	return c, testutil.NewAdminClient(c), kv
}

type txResp struct {
	TxHash string `json:"txHash"`
	Seq    uint64 `json:"seq"`
}

func TestInfoAndAvailability(t *testing.T) {
	c, _, _ := setupContract(t)

	info := c.Get("/contract/").AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, "0x00000000000000000000000000000000c0ffee00", info["address"])

	c.Get("/contract/available").AssertStatus(http.StatusOK).AssertBodyContains(`"available":true`)
	c.Put("/contract/availability", map[string]bool{"available": false}).AssertStatus(http.StatusOK)
	c.Get("/contract/available").AssertBodyContains(`"available":false`)

	c.Put("/contract/availability", map[string]any{}).AssertStatus(http.StatusUnprocessableEntity)
	c.Put("/contract/availability", []byte("{bad")).AssertStatus(http.StatusBadRequest)
}

func TestSetAndGetData(t *testing.T) {
	c, _, kv := setupContract(t)

	var tx txResp
	c.Put("/contract/data/nft_keys", []byte(`["NFT-1-abcd"]`)).AssertStatus(http.StatusOK).JSON(&tx)
	assert.Equal(t, uint64(1), tx.Seq)
	assert.Len(t, tx.TxHash, 66)

	resp := c.Get("/contract/data/nft_keys").AssertStatus(http.StatusOK)
	assert.Equal(t, `["NFT-1-abcd"]`, string(resp.Body))
	assert.Equal(t, `["NFT-1-abcd"]`, string(kv.Get("nft_keys")))

	missing := c.Get("/contract/data/nft_missing").AssertStatus(http.StatusOK)
	assert.Empty(t, missing.Body)
}

func TestEscapedKey(t *testing.T) {
	c, _, kv := setupContract(t)
	c.Put("/contract/data/a%2Fb", []byte("v")).AssertStatus(http.StatusOK)
	assert.Equal(t, "v", string(kv.Get("a/b")))
}

func TestWritesRejectedWhilePaused(t *testing.T) {
	c, _, kv := setupContract(t)
	kv.SetAvailable(false)

	c.Put("/contract/data/k", []byte("v")).AssertStatus(http.StatusServiceUnavailable)
	c.Post("/contract/batch", map[string]any{"entries": map[string][]byte{"k": []byte("v")}}).
		AssertStatus(http.StatusServiceUnavailable)
}

func TestBatch(t *testing.T) {
	c, _, kv := setupContract(t)

	var tx txResp
	c.Post("/contract/batch", map[string]any{"entries": map[string][]byte{
		"nft_NFT-1-abcd": []byte(`{"owner":"0xabc"}`),
		"nft_keys":       []byte(`["NFT-1-abcd"]`),
	}}).AssertStatus(http.StatusOK).JSON(&tx)

	assert.Equal(t, uint64(1), tx.Seq)
	assert.Equal(t, 2, kv.Count())
	assert.Equal(t, `{"owner":"0xabc"}`, string(kv.Get("nft_NFT-1-abcd")))

	c.Post("/contract/batch", map[string]any{"entries": map[string][]byte{}}).AssertStatus(http.StatusUnprocessableEntity)
	c.Post("/contract/batch", map[string]any{"entries": map[string][]byte{"": nil}}).AssertStatus(http.StatusUnprocessableEntity)
	c.Post("/contract/batch", []byte("nope")).AssertStatus(http.StatusBadRequest)
}

func TestListKeys(t *testing.T) {
	c, _, kv := setupContract(t)
	kv.Set("nft_keys", []byte("[]"))
	kv.Set("nft_NFT-1-abcd", []byte("{}"))
	kv.Set("config", []byte("{}"))

	var body struct {
		Keys []string `json:"keys"`
	}
	c.Get("/contract/keys?prefix=nft_").AssertStatus(http.StatusOK).JSON(&body)
	assert.Equal(t, []string{"nft_keys", "nft_NFT-1-abcd"}, body.Keys)

	c.Get("/contract/keys").JSON(&body)
	assert.Len(t, body.Keys, 3)
}

func TestFaultInjectionOnContractRoutes(t *testing.T) {
	c, ac, _ := setupContract(t)

	ac.InjectFault("/contract/data/*", map[string]any{"status_code": 502}).AssertStatus(http.StatusOK)
	c.Get("/contract/data/nft_keys").AssertStatus(http.StatusBadGateway)
	c.Get("/contract/available").AssertStatus(http.StatusOK)

	ac.Health().AssertStatus(http.StatusOK)
	ac.RemoveFault("/contract/data/*").AssertStatus(http.StatusOK)
	c.Get("/contract/data/nft_keys").AssertStatus(http.StatusOK)
}

func TestAdminStateRoundTrip(t *testing.T) {
	c, ac, kv := setupContract(t)
	c.Put("/contract/data/nft_keys", []byte(`["x"]`)).AssertStatus(http.StatusOK)

	state := ac.GetState().AssertStatus(http.StatusOK)
	state.AssertBodyContains(`"nft_keys":"[\"x\"]"`)

	ac.Reset().AssertStatus(http.StatusOK)
	require.Equal(t, 0, kv.Count())

	ac.LoadState(map[string]any{"available": true, "data": map[string]string{"nft_keys": "[]"}}).AssertStatus(http.StatusOK)
	assert.Equal(t, "[]", string(kv.Get("nft_keys")))
}
