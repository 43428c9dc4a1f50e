// Package api serves the simulated key/value contract over HTTP.
package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

// Handler holds the contract state and shared middleware.
type Handler struct {
	kv *store.KV
	mw *twincore.Middleware
}

// NewHandler creates a contract API handler.
func NewHandler(kv *store.KV, mw *twincore.Middleware) *Handler {
	return &Handler{kv: kv, mw: mw}
}

// Routes mounts the contract endpoints.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/contract", func(r chi.Router) {
		r.Use(h.mw.FaultInjection)

		r.Get("/", h.Info)
		r.Get("/available", h.GetAvailable)
		r.Put("/availability", h.SetAvailability)
		r.Get("/data/{key}", h.GetData)
		r.Put("/data/{key}", h.SetData)
		r.Post("/batch", h.SetMany)
		r.Get("/keys", h.ListKeys)
	})
}
