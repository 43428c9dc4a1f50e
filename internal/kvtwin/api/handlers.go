package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/wondertwin-ai/loyaltynft/internal/kvtwin/store"
	"github.com/wondertwin-ai/loyaltynft/pkg/twincore"
)

// maxValueBytes bounds a single stored value.
const maxValueBytes = 1 << 20

// Info handles GET /contract.
func (h *Handler) Info(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]any{
		"address":   h.kv.Address(),
		"available": h.kv.Available(),
		"keys":      h.kv.Count(),
	})
}

// GetAvailable handles GET /contract/available.
func (h *Handler) GetAvailable(w http.ResponseWriter, r *http.Request) {
	twincore.JSON(w, http.StatusOK, map[string]bool{"available": h.kv.Available()})
}

// SetAvailability handles PUT /contract/availability.
func (h *Handler) SetAvailability(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Available *bool `json:"available"`
	}
	if err := twincore.DecodeJSON(r, &req); err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Available == nil {
		twincore.Error(w, http.StatusUnprocessableEntity, "available is required")
		return
	}
	h.kv.SetAvailable(*req.Available)
	twincore.JSON(w, http.StatusOK, map[string]bool{"available": h.kv.Available()})
}

// GetData handles GET /contract/data/{key}. The raw value is returned; a
// missing key yields an empty body.
func (h *Handler) GetData(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	w.Write(h.kv.Get(key))
}

// SetData handles PUT /contract/data/{key} with the raw value as body.
func (h *Handler) SetData(w http.ResponseWriter, r *http.Request) {
	key, ok := keyParam(w, r)
	if !ok {
		return
	}
	value, err := io.ReadAll(io.LimitReader(r.Body, maxValueBytes+1))
	if err != nil {
		twincore.Error(w, http.StatusBadRequest, "failed to read body: "+err.Error())
		return
	}
	if len(value) > maxValueBytes {
		twincore.Error(w, http.StatusRequestEntityTooLarge, "value too large")
		return
	}

	tx, err := h.kv.Set(key, value)
	if err != nil {
		writeTxError(w, err)
		return
	}
	twincore.JSON(w, http.StatusOK, tx)
}

// SetMany handles POST /contract/batch. Values are base64 in JSON.
func (h *Handler) SetMany(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries map[string][]byte `json:"entries"`
	}
	if err := twincore.DecodeJSON(r, &req); err != nil {
		twincore.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Entries) == 0 {
		twincore.Error(w, http.StatusUnprocessableEntity, "entries are required")
		return
	}
	for key := range req.Entries {
		if key == "" {
			twincore.Error(w, http.StatusUnprocessableEntity, "empty key in batch")
			return
		}
	}

	tx, err := h.kv.SetMany(req.Entries)
	if err != nil {
		writeTxError(w, err)
		return
	}
	twincore.JSON(w, http.StatusOK, tx)
}

// ListKeys handles GET /contract/keys?prefix=.
func (h *Handler) ListKeys(w http.ResponseWriter, r *http.Request) {
	prefix := r.URL.Query().Get("prefix")
	twincore.JSON(w, http.StatusOK, map[string]any{"keys": h.kv.Keys(prefix)})
}

func keyParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		twincore.Error(w, http.StatusBadRequest, "invalid key")
		return "", false
	}
	return key, true
}

func writeTxError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrUnavailable) {
		twincore.Error(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	twincore.Error(w, http.StatusInternalServerError, err.Error())
}
