// Package controller sequences record loading, minting, selection and
// decryption against user actions and owns the resulting view state.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/wondertwin-ai/loyaltynft/internal/authgate"
	"github.com/wondertwin-ai/loyaltynft/internal/records"
	"github.com/wondertwin-ai/loyaltynft/internal/wallet"
	"github.com/wondertwin-ai/loyaltynft/pkg/webhook"
)

// Messages shown to the user.
const (
	MsgMinting  = "Encrypting purchase data with Zama FHE..."
	MsgMinted   = "NFT minted successfully with FHE encryption!"
	MsgRejected = "Transaction rejected by user"
	MsgFailed   = "Minting failed: "

	MsgConnectWallet = "Please connect wallet first"
)

// EventMinted is the notification type sent after a successful mint.
const EventMinted = "record.minted"

var (
	ErrWalletNotConnected = wallet.ErrNotConnected
	ErrNotOwner           = errors.New("record is not owned by the connected wallet")
	ErrNoSelection        = errors.New("no record selected")
	ErrBusy               = errors.New("operation already in progress")
)

// Notifier receives mint events. *webhook.Dispatcher implements it.
type Notifier interface {
	Enqueue(eventType string, data any) webhook.Event
}

// Options configure a Controller.
type Options struct {
	Store  *records.Store
	Gate   *authgate.Gate
	Notify Notifier
	Logger *slog.Logger

	// SuccessDismiss and ErrorDismiss are how long mint statuses stay
	// visible. They default to 2s and 3s.
	SuccessDismiss time.Duration
	ErrorDismiss   time.Duration
}

// Controller owns the application state. All methods are safe for
// concurrent use; contract calls and decryption run outside the lock.
type Controller struct {
	store    *records.Store
	gate     *authgate.Gate
	notify   Notifier
	logger   *slog.Logger
	okAfter  time.Duration
	errAfter time.Duration

	mu        sync.Mutex
	state     State
	seq       uint64
	statusSeq uint64
	timers    map[uint64]*time.Timer
	closed    bool
}

// New creates a controller in the loading state.
func New(opts Options) (*Controller, error) {
	if opts.Store == nil {
		return nil, errors.New("controller: store is required")
	}
	if opts.Gate == nil {
		return nil, errors.New("controller: gate is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SuccessDismiss == 0 {
		opts.SuccessDismiss = 2 * time.Second
	}
	if opts.ErrorDismiss == 0 {
		opts.ErrorDismiss = 3 * time.Second
	}
	return &Controller{
		store:    opts.Store,
		gate:     opts.Gate,
		notify:   opts.Notify,
		logger:   opts.Logger,
		okAfter:  opts.SuccessDismiss,
		errAfter: opts.ErrorDismiss,
		state:    State{Records: []records.Record{}, Loading: true},
		timers:   map[uint64]*time.Timer{},
	}, nil
}

func (c *Controller) dispatch(a action) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = reduce(c.state, a)
	return c.state
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Records returns the loaded records, newest first.
func (c *Controller) Records() []records.Record {
	return c.State().Records
}

// MyRecords returns the loaded records owned by address.
func (c *Controller) MyRecords(address string) []records.Record {
	return records.Mine(c.Records(), address)
}

// Stats summarizes the loaded records.
func (c *Controller) Stats() Stats {
	return Summarize(c.Records())
}

// Load performs the initial load.
func (c *Controller) Load(ctx context.Context) error {
	return c.Refresh(ctx)
}

// Refresh reloads the record collection. When refreshes overlap only the
// most recently started one updates the state. On failure the previous
// records are kept.
func (c *Controller) Refresh(ctx context.Context) error {
	c.mu.Lock()
	c.seq++
	seq := c.seq
	c.state = reduce(c.state, refreshStarted{seq: seq})
	c.mu.Unlock()

	rs, err := c.store.ListAll(ctx)
	if err != nil {
		c.logger.Error("failed to load records", "error", err)
		c.dispatch(refreshDone{seq: seq, failed: true})
		return fmt.Errorf("load records: %w", err)
	}
	c.dispatch(refreshDone{seq: seq, records: rs})
	return nil
}

// ApprovalMessage is the message a wallet signs to approve a mint.
func ApprovalMessage(req records.MintRequest) string {
	return fmt.Sprintf("Mint loyalty NFT\npurchaseAmount:%s\nproductCategory:%s", req.PurchaseAmount, req.ProductCategory)
}

// Mint asks id to approve the mint, creates the record, and refreshes the
// collection. The status message follows the mint and clears itself.
func (c *Controller) Mint(ctx context.Context, id wallet.Identity, req records.MintRequest) (records.Record, error) {
	if id == nil || !id.Connected() {
		return records.Record{}, ErrWalletNotConnected
	}
	if wallet.IsReadOnly(id) {
		return records.Record{}, wallet.ErrReadOnly
	}

	c.mu.Lock()
	if c.state.Minting {
		c.mu.Unlock()
		return records.Record{}, ErrBusy
	}
	c.state = reduce(c.state, mintStarted{status: c.newStatus(StatusPending, MsgMinting)})
	c.mu.Unlock()

	r, err := c.mint(ctx, id, req)
	if err != nil {
		msg := MsgFailed + err.Error()
		if errors.Is(err, wallet.ErrUserRejected) {
			msg = MsgRejected
		}
		c.logger.Warn("mint failed", "owner", id.Address(), "error", err)
		c.finishMint(StatusError, msg, c.errAfter)
		return records.Record{}, err
	}

	c.finishMint(StatusSuccess, MsgMinted, c.okAfter)
	if c.notify != nil {
		c.notify.Enqueue(EventMinted, r)
	}
	if err := c.Refresh(ctx); err != nil {
		c.logger.Warn("refresh after mint failed", "id", r.ID, "error", err)
	}
	return r, nil
}

func (c *Controller) mint(ctx context.Context, id wallet.Identity, req records.MintRequest) (records.Record, error) {
	if _, err := id.SignMessage(ctx, ApprovalMessage(req)); err != nil {
		return records.Record{}, err
	}
	return c.store.Create(ctx, id.Address(), req)
}

// newStatus must be called with c.mu held.
func (c *Controller) newStatus(kind StatusKind, msg string) Status {
	c.statusSeq++
	return Status{ID: c.statusSeq, Kind: kind, Message: msg}
}

func (c *Controller) finishMint(kind StatusKind, msg string, after time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := c.newStatus(kind, msg)
	c.state = reduce(c.state, mintDone{status: st})
	if c.closed || after < 0 {
		return
	}
	c.timers[st.ID] = time.AfterFunc(after, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.timers, st.ID)
		c.state = reduce(c.state, statusCleared{id: st.ID})
	})
}

// DismissStatus clears the current status.
func (c *Controller) DismissStatus() {
	c.dispatch(statusCleared{})
}

// Select shows the detail of a loaded record and hides any decrypted
// content.
func (c *Controller) Select(id string) (records.Record, error) {
	for _, r := range c.Records() {
		if r.ID == id {
			c.dispatch(selected{record: r})
			return r, nil
		}
	}
	return records.Record{}, fmt.Errorf("%s: %w", id, records.ErrNotFound)
}

// Deselect closes the detail view.
func (c *Controller) Deselect() {
	c.dispatch(deselected{})
}

// ToggleDecrypt decrypts the selected record for its owner, or hides the
// content when it is already visible. A nil result means the content was
// hidden.
func (c *Controller) ToggleDecrypt(ctx context.Context, id wallet.Identity) (*Decryption, error) {
	c.mu.Lock()
	s := c.state
	switch {
	case s.Selected == nil:
		c.mu.Unlock()
		return nil, ErrNoSelection
	case s.Decrypted != nil:
		c.state = reduce(s, hidden{})
		c.mu.Unlock()
		return nil, nil
	case s.Decrypting:
		c.mu.Unlock()
		return nil, ErrBusy
	case id == nil || !id.Connected():
		c.mu.Unlock()
		return nil, ErrWalletNotConnected
	case !records.IsOwner(*s.Selected, id.Address()):
		c.mu.Unlock()
		return nil, ErrNotOwner
	}
	rec := *s.Selected
	c.state = reduce(s, decryptStarted{})
	c.mu.Unlock()

	text, err := c.gate.Decrypt(ctx, id, rec.EncryptedData)
	if err != nil {
		c.dispatch(decryptDone{recordID: rec.ID})
		c.logger.Warn("decrypt failed", "id", rec.ID, "error", err)
		return nil, err
	}

	d := &Decryption{RecordID: rec.ID, Content: text}
	if p, err := records.ParsePurchase(text); err == nil {
		d.Purchase = &p
	}
	c.dispatch(decryptDone{recordID: rec.ID, result: d})
	return d, nil
}

// Close stops pending status timers.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
}
