package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltynft/internal/authgate"
	"github.com/wondertwin-ai/loyaltynft/internal/contract"
	"github.com/wondertwin-ai/loyaltynft/internal/controller"
	"github.com/wondertwin-ai/loyaltynft/internal/records"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetState handles GET /v1/state.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.ctl.State())
}

// GetWallet handles GET /v1/wallet.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	twincore.JSON(w, http.StatusOK, map[string]any{
		"address":   id.Address(),
		"connected": id.Connected(),
		"readOnly":  wallet.IsReadOnly(id),
	})
}

// GetStats handles GET /v1/stats.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, h.ctl.Stats())
}

// Refresh handles POST /v1/refresh.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.ctl.Refresh(r.Context()); err != nil {
		h.writeError(w, err)
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"records": h.ctl.Records()})
}

// ListRecords handles GET /v1/records.
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]any{"records": h.ctl.Records()})
}

// ListMine handles GET /v1/records/mine.
func (h *Handler) ListMine(w http.ResponseWriter, r *http.Request) {
	id := identity(r)
	if !id.Connected() {
		h.writeError(w, controller.ErrWalletNotConnected)
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{
		"owner":   id.Address(),
		"records": h.ctl.MyRecords(id.Address()),
	})
}

// Mint handles POST /v1/records.
func (h *Handler) Mint(w http.ResponseWriter, r *http.Request) {
	var req records.MintRequest
	if err := twincore.DecodeJSON(r, &req); err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.PurchaseAmount == "" || req.ProductCategory == "" {
		twincore.Error(w, http.StatusUnprocessableEntity, "purchaseAmount and productCategory are required")
		return
	}

	id, ok := h.signer(w, r)
	if !ok {
		return
	}
	rec, err := h.ctl.Mint(r.Context(), id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	twincore.JSON(w, http.StatusCreated, map[string]any{
		"record": rec,
		"status": h.ctl.State().Status,
	})
}

// Select handles POST /v1/records/{id}/select.
func (h *Handler) Select(w http.ResponseWriter, r *http.Request) {
	rec, err := h.ctl.Select(chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"selected": rec})
}

// Deselect handles DELETE /v1/selection.
func (h *Handler) Deselect(w http.ResponseWriter, r *http.Request) {
	h.ctl.Deselect()
	w.WriteHeader(http.StatusNoContent)
}

// ToggleDecrypt handles POST /v1/selection/decrypt.
func (h *Handler) ToggleDecrypt(w http.ResponseWriter, r *http.Request) {
	id, ok := h.signer(w, r)
	if !ok {
		return
	}
	d, err := h.ctl.ToggleDecrypt(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if d == nil {
		twincore.JSON(w, http.StatusOK, map[string]any{"visible": false})
		return
	}
	twincore.JSON(w, http.StatusOK, map[string]any{"visible": true, "decrypted": d})
}

// DismissStatus handles DELETE /v1/status.
func (h *Handler) DismissStatus(w http.ResponseWriter, r *http.Request) {
	h.ctl.DismissStatus()
	w.WriteHeader(http.StatusNoContent)
}

// signer returns the request identity, rejecting watch-only callers before
// they can touch the shared mint or decrypt state.
func (h *Handler) signer(w http.ResponseWriter, r *http.Request) (wallet.Identity, bool) {
	id := identity(r)
	if wallet.IsReadOnly(id) {
		h.writeError(w, wallet.ErrReadOnly)
		return nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	msg := err.Error()
	switch {
	case errors.Is(err, controller.ErrWalletNotConnected):
		status = http.StatusUnauthorized
		msg = controller.MsgConnectWallet
	case errors.Is(err, wallet.ErrUserRejected):
		status = http.StatusForbidden
		msg = controller.MsgRejected
	case errors.Is(err, controller.ErrNotOwner), errors.Is(err, authgate.ErrSignerMismatch),
		errors.Is(err, wallet.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, controller.ErrNoSelection), errors.Is(err, controller.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, records.ErrInvalidAmount), errors.Is(err, records.ErrNoOwner):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, records.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, contract.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	default:
		h.logger.Error("request failed", "error", err)
	}
	twincore.Error(w, status, msg)
}
