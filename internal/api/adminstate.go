package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/wondertwin-ai/loyaltynft/internal/contract"
	"github.com/wondertwin-ai/loyaltynft/internal/controller"
	"github.com/wondertwin-ai/loyaltynft/pkg/webhook"
)

// ErrStateReadOnly is returned by LoadState when the contract is not held
// in process.
var ErrStateReadOnly = errors.New("state can only be loaded into the memory backend")

// AdminState exposes the service to the admin control plane. Contract
// state can only be replaced or reset for the memory backend; every
// change is followed by a refresh.
type AdminState struct {
	ctl    *controller.Controller
	mem    *contract.Memory
	hooks  *webhook.Dispatcher
	logger *slog.Logger
}

// NewAdminState creates the admin adapter. mem and hooks may be nil.
func NewAdminState(ctl *controller.Controller, mem *contract.Memory, hooks *webhook.Dispatcher, logger *slog.Logger) *AdminState {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminState{ctl: ctl, mem: mem, hooks: hooks, logger: logger}
}

// Snapshot implements admin.StateStore.
func (a *AdminState) Snapshot() any {
	snap := map[string]any{"controller": a.ctl.State()}
	if a.mem != nil {
		snap["contract"] = a.mem.State().Snapshot()
	}
	if a.hooks != nil {
		snap["webhooks"] = a.hooks.Snapshot()
	}
	return snap
}

// LoadState implements admin.StateStore. data is a contract snapshot.
func (a *AdminState) LoadState(data []byte) error {
	if a.mem == nil {
		return ErrStateReadOnly
	}
	if err := a.mem.State().LoadState(data); err != nil {
		return err
	}
	a.refresh()
	return nil
}

// Reset implements admin.StateStore.
func (a *AdminState) Reset() {
	if a.mem != nil {
		a.mem.State().Reset()
	}
	if a.hooks != nil {
		a.hooks.Reset()
	}
	a.ctl.Deselect()
	a.ctl.DismissStatus()
	a.refresh()
}

func (a *AdminState) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ctl.Refresh(ctx); err != nil {
		a.logger.Warn("refresh after admin change failed", "error", err)
	}
}
