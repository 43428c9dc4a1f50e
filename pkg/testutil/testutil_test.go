package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wondertwin-ai/loyaltynft/pkg/admin"
	"github.com/wondertwin-ai/loyaltynft/pkg/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

// ---------------------------------------------------------------------------
// Test server: a twincore server with an echo route and the admin plane
// ---------------------------------------------------------------------------

type echoState struct {
	s *store.Store[string]
}

func (e *echoState) Snapshot() any { return e.s.Snapshot() }

func (e *echoState) LoadState(data []byte) error {
	var snap map[string]string
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	e.s.LoadSnapshot(snap)
	return nil
}

func (e *echoState) Reset() { e.s.Reset() }

func newTestServer(t *testing.T) (*httptest.Server, *twincore.Server) {
	t.Helper()
	srv := twincore.New(&twincore.Config{Name: "testutil", LogOutput: io.Discard})

	h := admin.NewHandler(&echoState{s: store.New[string]()}, srv.Middleware(), store.NewClock())
	h.SetConfigProvider(srv)
	h.Routes(srv.Router)

	srv.Router.HandleFunc("/echo", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		twincore.JSON(w, http.StatusOK, map[string]string{
			"method":       r.Method,
			"body":         string(body),
			"content_type": r.Header.Get("Content-Type"),
			"wallet":       r.Header.Get("X-Wallet-Address"),
		})
	})
	srv.Router.Get("/fail", func(w http.ResponseWriter, r *http.Request) {
		twincore.Error(w, http.StatusConflict, "already minted")
	})

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts, srv
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

func TestClientMethods(t *testing.T) {
	ts, _ := newTestServer(t)
	c := NewClient(t, ts)

	cases := []struct {
		resp   *Response
		method string
		body   string
	}{
		{c.Get("/echo"), "GET", ""},
		{c.Post("/echo", map[string]string{"a": "b"}), "POST", `{"a":"b"}`},
		{c.Put("/echo", []byte("raw")), "PUT", "raw"},
		{c.Delete("/echo"), "DELETE", ""},
	}
	for _, tc := range cases {
		tc.resp.AssertStatus(http.StatusOK)
		got := tc.resp.JSONMap()
		if got["method"] != tc.method {
			t.Errorf("expected method %s, got %v", tc.method, got["method"])
		}
		if got["body"] != tc.body {
			t.Errorf("%s: expected body %q, got %v", tc.method, tc.body, got["body"])
		}
	}
}

func TestClientWithHeaderDoesNotMutateParent(t *testing.T) {
	ts, _ := newTestServer(t)
	base := NewClient(t, ts)
	wallet := base.WithHeader("X-Wallet-Address", "0xabc")

	if got := wallet.Get("/echo").JSONMap()["wallet"]; got != "0xabc" {
		t.Errorf("expected wallet header, got %v", got)
	}
	if got := base.Get("/echo").JSONMap()["wallet"]; got != "" {
		t.Errorf("parent client should not send the header, got %v", got)
	}
}

func TestNewClientURLTrimsSlash(t *testing.T) {
	c := NewClientURL(t, "http://localhost:8090/")
	if c.BaseURL != "http://localhost:8090" {
		t.Errorf("expected trailing slash trimmed, got %s", c.BaseURL)
	}
}

// ---------------------------------------------------------------------------
// Response
// ---------------------------------------------------------------------------

func TestResponseErrorMessage(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := NewClient(t, ts).Get("/fail").AssertStatus(http.StatusConflict)
	if msg := resp.ErrorMessage(); msg != "already minted" {
		t.Errorf("unexpected error message: %q", msg)
	}
}

// ---------------------------------------------------------------------------
// AdminClient
// ---------------------------------------------------------------------------

func TestAdminClientRoundTrip(t *testing.T) {
	ts, srv := newTestServer(t)
	ac := NewAdminClient(NewClient(t, ts))

	ac.Health().AssertStatus(http.StatusOK).AssertBodyContains("ok")
	ac.LoadState(map[string]string{"nft_keys": "[]"}).AssertStatus(http.StatusOK)
	ac.GetState().AssertStatus(http.StatusOK).AssertBodyContains("nft_keys")

	ac.InjectFault("/contract/data/*", map[string]any{"status_code": 503}).AssertStatus(http.StatusOK)
	if srv.Middleware().Faults.Check("GET", "/contract/data/x") == nil {
		t.Error("expected fault to be registered")
	}
	ac.RemoveFault("contract/data/*").AssertStatus(http.StatusOK)

	ac.GetRequests().AssertStatus(http.StatusOK)
	ac.FlushWebhooks().AssertStatus(http.StatusOK).AssertBodyContains("no webhooks configured")
	ac.AdvanceTime("2h").AssertStatus(http.StatusOK).AssertBodyContains("2h0m0s")

	ac.UpdateConfig(map[string]any{"latency": "1ms"}).AssertStatus(http.StatusOK)
	if got := ac.GetConfig().JSONMap()["latency"]; got != "1ms" {
		t.Errorf("expected latency 1ms, got %v", got)
	}

	ac.Reset().AssertStatus(http.StatusOK)
	if !bytes.Equal(ac.GetState().Body, []byte("{}\n")) {
		t.Errorf("expected empty state after reset, got %s", ac.GetState().Body)
	}
}
