package api_test

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wondertwin-ai/loyaltynft/internal/api"
	"github.com/wondertwin-ai/loyaltynft/internal/authgate"
	"github.com/wondertwin-ai/loyaltynft/internal/contract"
	"github.com/wondertwin-ai/loyaltynft/internal/controller"
	"github.com/wondertwin-ai/loyaltynft/internal/metrics"
	"github.com/wondertwin-ai/loyaltynft/internal/records"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
	"github.com/wondertwin-ai/loyaltynft/pkg/admin"
	"github.com/wondertwin-ai/loyaltynft/pkg/testutil"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
	"github.com/wondertwin-ai/loyaltynft/pkg/webhook"
)

type env struct {
	c      *testutil.Client
	admin  *testutil.AdminClient
	mem    *contract.Memory
	wallet *wallet.Wallet
	hooks  *webhook.Dispatcher
}

func setup(t *testing.T) *env {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	w, err := wallet.Generate()
	require.NoError(t, err)
	mem := contract.NewMemory("0x00000000000000000000000000000000c0ffee00")
	m := metrics.New()
	gate, err := authgate.New(authgate.Options{ContractAddress: mem.Address(), Delay: -1, Logger: logger})
	require.NoError(t, err)
	hooks := webhook.NewDispatcher(webhook.Config{Logger: logger})

	ctl, err := controller.New(controller.Options{
		Store:  records.New(mem, records.Options{Logger: logger, Observer: m}),
		Gate:   gate,
		Notify: hooks,
		Logger: logger,
	})
	require.NoError(t, err)
	t.Cleanup(ctl.Close)

	srv := twincore.New(&twincore.Config{Name: "loyaltynft-test", LogOutput: io.Discard})
	api.NewHandler(ctl, w, srv.Middleware(), m, logger).Routes(srv.Router)
	ah := admin.NewHandler(api.NewAdminState(ctl, mem, hooks, logger), srv.Middleware(), nil)
	ah.SetFlusher(hooks)
	ah.Routes(srv.Router)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	c := testutil.NewClient(t, ts)
	return &env{c: c, admin: testutil.NewAdminClient(c), mem: mem, wallet: w, hooks: hooks}
}

type mintResp struct {
	Record records.Record     `json:"record"`
	Status *controller.Status `json:"status"`
}

func (e *env) mint(t *testing.T, amount string) records.Record {
	t.Helper()
	var resp mintResp
	e.c.Post("/v1/records", map[string]string{"purchaseAmount": amount, "productCategory": "Electronics"}).
		AssertStatus(http.StatusCreated).JSON(&resp)
	return resp.Record
}

func TestHealthAndMetrics(t *testing.T) {
	e := setup(t)
	e.c.Get("/healthz").AssertStatus(http.StatusOK).AssertBodyContains("ok")

	e.mint(t, "1200")
	e.c.Get("/metrics").AssertStatus(http.StatusOK).
		AssertBodyContains(`loyaltynft_records_minted_total{level="Gold"} 1`).
		AssertBodyContains(`route="/v1/records"`)
}

func TestMintAndList(t *testing.T) {
	e := setup(t)

	var resp mintResp
	e.c.Post("/v1/records", map[string]string{"purchaseAmount": "600", "productCategory": "Fashion"}).
		AssertStatus(http.StatusCreated).JSON(&resp)
	assert.Equal(t, records.Silver, resp.Record.LoyaltyLevel)
	assert.True(t, strings.HasPrefix(resp.Record.ID, "NFT-"))
	require.NotNil(t, resp.Status)
	assert.Equal(t, controller.MsgMinted, resp.Status.Message)

	var list struct {
		Records []records.Record `json:"records"`
	}
	e.c.Get("/v1/records").AssertStatus(http.StatusOK).JSON(&list)
	require.Len(t, list.Records, 1)
	assert.Equal(t, resp.Record.ID, list.Records[0].ID)

	var stats controller.Stats
	e.c.Get("/v1/stats").AssertStatus(http.StatusOK).JSON(&stats)
	assert.Equal(t, 1, stats.Silver)
	assert.Equal(t, 50, stats.Rewards)

	assert.Len(t, e.hooks.QueuedEvents(), 1)
	e.admin.FlushWebhooks().AssertStatus(http.StatusOK)
}

func TestMintValidation(t *testing.T) {
	e := setup(t)
	e.c.Post("/v1/records", []byte("{bad")).AssertStatus(http.StatusBadRequest)
	e.c.Post("/v1/records", map[string]string{"purchaseAmount": "10"}).AssertStatus(http.StatusUnprocessableEntity)

	resp := e.c.Post("/v1/records", map[string]string{"purchaseAmount": "ten", "productCategory": "Books"}).
		AssertStatus(http.StatusUnprocessableEntity)
	assert.Equal(t, records.ErrInvalidAmount.Error(), resp.ErrorMessage())
}

func TestMintAsWatchIdentityIsRejected(t *testing.T) {
	e := setup(t)
	other, err := wallet.Generate()
	require.NoError(t, err)
	watcher := e.c.WithHeader(api.WalletHeader, other.Address())

	resp := watcher.Post("/v1/records", map[string]string{"purchaseAmount": "10", "productCategory": "Books"}).
		AssertStatus(http.StatusForbidden)
	assert.Equal(t, wallet.ErrReadOnly.Error(), resp.ErrorMessage())

	var st controller.State
	e.c.Get("/v1/state").JSON(&st)
	assert.Nil(t, st.Status, "a watcher leaves the shared status alone")
	assert.False(t, st.Minting)

	// The real wallet still mints.
	e.mint(t, "10")
}

func TestDecryptAsWatchIdentityIsRejected(t *testing.T) {
	e := setup(t)
	rec := e.mint(t, "10")
	e.c.Post("/v1/records/"+rec.ID+"/select", nil).AssertStatus(http.StatusOK)

	resp := e.c.WithHeader(api.WalletHeader, "0x00000000000000000000000000000000000000aa").
		Post("/v1/selection/decrypt", nil).
		AssertStatus(http.StatusForbidden)
	assert.Equal(t, wallet.ErrReadOnly.Error(), resp.ErrorMessage())

	var st controller.State
	e.c.Get("/v1/state").JSON(&st)
	assert.False(t, st.Decrypting)
	assert.Nil(t, st.Decrypted)
}

func TestMintIdempotent(t *testing.T) {
	e := setup(t)
	c := e.c.WithHeader(twincore.IdempotencyHeader, "mint-1")
	body := map[string]string{"purchaseAmount": "10", "productCategory": "Books"}

	var first, second mintResp
	c.Post("/v1/records", body).AssertStatus(http.StatusCreated).JSON(&first)
	replay := c.Post("/v1/records", body).AssertStatus(http.StatusCreated)
	replay.JSON(&second)

	assert.Equal(t, "true", replay.Headers.Get("Idempotent-Replayed"))
	assert.Equal(t, first.Record.ID, second.Record.ID)
	assert.Len(t, e.hooks.QueuedEvents(), 1)
}

func TestMintUnavailableContract(t *testing.T) {
	e := setup(t)
	e.mem.State().SetAvailable(false)

	resp := e.c.Post("/v1/records", map[string]string{"purchaseAmount": "10", "productCategory": "Books"}).
		AssertStatus(http.StatusServiceUnavailable)
	assert.Contains(t, resp.ErrorMessage(), "contract unavailable")
}

func TestMineUsesWalletHeader(t *testing.T) {
	e := setup(t)
	e.mint(t, "10")

	var mine struct {
		Owner   string           `json:"owner"`
		Records []records.Record `json:"records"`
	}
	e.c.Get("/v1/records/mine").AssertStatus(http.StatusOK).JSON(&mine)
	assert.Len(t, mine.Records, 1)

	lower := strings.ToLower(e.wallet.Address())
	e.c.WithHeader(api.WalletHeader, lower).Get("/v1/records/mine").JSON(&mine)
	assert.Len(t, mine.Records, 1, "header matching the server wallet ignores case")

	other, err := wallet.Generate()
	require.NoError(t, err)
	e.c.WithHeader(api.WalletHeader, other.Address()).Get("/v1/records/mine").JSON(&mine)
	assert.Empty(t, mine.Records)
	assert.Equal(t, other.Address(), mine.Owner)

	e.c.WithHeader(api.WalletHeader, "not-an-address").Get("/v1/records/mine").AssertStatus(http.StatusBadRequest)
}

func TestWallet(t *testing.T) {
	e := setup(t)
	got := e.c.Get("/v1/wallet").AssertStatus(http.StatusOK).JSONMap()
	assert.Equal(t, e.wallet.Address(), got["address"])
	assert.Equal(t, false, got["readOnly"])

	other, err := wallet.Generate()
	require.NoError(t, err)
	got = e.c.WithHeader(api.WalletHeader, other.Address()).Get("/v1/wallet").JSONMap()
	assert.Equal(t, true, got["readOnly"])
}

func TestSelectAndDecrypt(t *testing.T) {
	e := setup(t)
	rec := e.mint(t, "1500")

	e.c.Post("/v1/selection/decrypt", nil).AssertStatus(http.StatusConflict)
	e.c.Post("/v1/records/NFT-0-none/select", nil).AssertStatus(http.StatusNotFound)
	e.c.Post("/v1/records/"+rec.ID+"/select", nil).AssertStatus(http.StatusOK).AssertBodyContains(rec.ID)

	other, err := wallet.Generate()
	require.NoError(t, err)
	e.c.WithHeader(api.WalletHeader, other.Address()).Post("/v1/selection/decrypt", nil).
		AssertStatus(http.StatusForbidden)

	var shown struct {
		Visible   bool                  `json:"visible"`
		Decrypted controller.Decryption `json:"decrypted"`
	}
	e.c.Post("/v1/selection/decrypt", nil).AssertStatus(http.StatusOK).JSON(&shown)
	assert.True(t, shown.Visible)
	require.NotNil(t, shown.Decrypted.Purchase)
	assert.Equal(t, "1500", shown.Decrypted.Purchase.PurchaseAmount)
	assert.Equal(t, records.Gold, shown.Decrypted.Purchase.LoyaltyLevel)

	e.c.Post("/v1/selection/decrypt", nil).AssertStatus(http.StatusOK).AssertBodyContains(`"visible":false`)

	e.c.Delete("/v1/selection").AssertStatus(http.StatusNoContent)
	var st controller.State
	e.c.Get("/v1/state").JSON(&st)
	assert.Nil(t, st.Selected)
}

func TestDismissStatus(t *testing.T) {
	e := setup(t)
	e.mint(t, "10")
	e.c.Delete("/v1/status").AssertStatus(http.StatusNoContent)

	var st controller.State
	e.c.Get("/v1/state").JSON(&st)
	assert.Nil(t, st.Status)
}

func TestFaultInjection(t *testing.T) {
	e := setup(t)
	e.admin.InjectFault("/v1/records", map[string]any{"status_code": 502, "body": `{"error":"down"}`}).
		AssertStatus(http.StatusOK)
	e.c.Get("/v1/records").AssertStatus(http.StatusBadGateway)
	e.admin.RemoveFault("/v1/records").AssertStatus(http.StatusOK)
	e.c.Get("/v1/records").AssertStatus(http.StatusOK)
}

func TestAdminStateSeedAndReset(t *testing.T) {
	e := setup(t)
	owner := e.wallet.Address()
	e.admin.LoadState(map[string]any{
		"data": map[string]string{
			"nft_keys":  `["a","b"]`,
			"nft_a":     `{"data":"x","timestamp":10,"owner":"` + owner + `","loyaltyLevel":3,"rewards":100}`,
			"nft_b":     `{"data":"y","timestamp":20,"owner":"0x1"}`,
			"nft_stray": `{"data":"z","timestamp":5,"owner":"0x1"}`,
		},
	}).AssertStatus(http.StatusOK)

	var list struct {
		Records []records.Record `json:"records"`
	}
	e.c.Get("/v1/records").JSON(&list)
	require.Len(t, list.Records, 2, "unindexed records stay hidden without reconciliation")
	assert.Equal(t, "b", list.Records[0].ID)
	assert.Equal(t, "a", list.Records[1].ID)

	e.admin.GetState().AssertStatus(http.StatusOK).AssertBodyContains(`"controller"`).AssertBodyContains("nft_stray")

	e.admin.Reset().AssertStatus(http.StatusOK)
	e.c.Get("/v1/records").JSON(&list)
	assert.Empty(t, list.Records)
}
