// Package api serves the loyalty-NFT controller over HTTP.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltynft/internal/controller"
	"github.com/wondertwin-ai/loyaltynft/internal/metrics"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

// WalletHeader names a read-only caller identity. Requests without it act
// as the server wallet.
const WalletHeader = twincore.WalletHeader

type contextKey string

const identityCtxKey contextKey = "identity"

// Handler holds the controller and the server wallet.
type Handler struct {
	ctl     *controller.Controller
	wallet  wallet.Identity
	mw      *twincore.Middleware
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHandler creates an API handler. m may be nil.
func NewHandler(ctl *controller.Controller, w wallet.Identity, mw *twincore.Middleware, m *metrics.Metrics, logger *slog.Logger) *Handler {
	if w == nil {
		w = wallet.Disconnected{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{ctl: ctl, wallet: w, mw: mw, metrics: m, logger: logger}
}

// Routes mounts the API endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.Health)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		if h.metrics != nil {
			r.Use(h.metrics.Middleware)
		}
		r.Use(h.mw.FaultInjection)
		r.Use(h.identityMiddleware)

		r.Get("/state", h.GetState)
		r.Get("/wallet", h.GetWallet)
		r.Get("/stats", h.GetStats)
		r.Post("/refresh", h.Refresh)

		r.Get("/records", h.ListRecords)
		r.Get("/records/mine", h.ListMine)
		r.With(h.mw.Idempotency).Post("/records", h.Mint)
		r.Post("/records/{id}/select", h.Select)

		r.Delete("/selection", h.Deselect)
		r.Post("/selection/decrypt", h.ToggleDecrypt)
		r.Delete("/status", h.DismissStatus)
	})
}

// identityMiddleware resolves the caller identity from WalletHeader.
func (h *Handler) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := h.wallet
		if addr := r.Header.Get(WalletHeader); addr != "" {
			if !common.IsHexAddress(addr) {
				twincore.Error(w, http.StatusBadRequest, "invalid wallet address")
				return
			}
			if !wallet.SameAddress(addr, h.wallet.Address()) {
				id = wallet.Watch(addr)
			}
		}
		ctx := context.WithValue(r.Context(), identityCtxKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func identity(r *http.Request) wallet.Identity {
	if id, ok := r.Context().Value(identityCtxKey).(wallet.Identity); ok {
		return id
	}
	return wallet.Disconnected{}
}
