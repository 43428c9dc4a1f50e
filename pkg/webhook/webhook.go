// Package webhook provides an outbound event dispatcher with delivery,
// retries and pluggable payload signing.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SignatureHeader carries the HMAC signature added by HMACSigner.
const SignatureHeader = "X-LoyaltyNFT-Signature"

// Signer signs webhook payloads.
type Signer interface {
	// Sign returns headers to add to the request for signature verification.
	Sign(payload []byte, secret string) map[string]string
}

// HMACSigner signs "<unix ts>.<payload>" with HMAC-SHA256 and sends
// "t=<ts>,v1=<hex>" in SignatureHeader.
type HMACSigner struct {
	Now func() time.Time
}

// Sign implements Signer.
func (s HMACSigner) Sign(payload []byte, secret string) map[string]string {
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ts := strconv.FormatInt(now().Unix(), 10)
	return map[string]string{
		SignatureHeader: "t=" + ts + ",v1=" + ComputeSignature(ts, payload, secret),
	}
}

// ComputeSignature returns the hex HMAC-SHA256 of "<ts>.<payload>".
func ComputeSignature(ts string, payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Event is a webhook event to be dispatched.
type Event struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Data      any       `json:"data"`
	CreatedAt time.Time `json:"created_at"`
}

// Delivery records one delivery attempt.
type Delivery struct {
	EventID    string    `json:"event_id"`
	URL        string    `json:"url"`
	StatusCode int       `json:"status_code"`
	Error      string    `json:"error,omitempty"`
	Attempt    int       `json:"attempt"`
	Timestamp  time.Time `json:"timestamp"`
}

// Config configures a Dispatcher.
type Config struct {
	URL         string
	Secret      string
	Signer      Signer
	Logger      *slog.Logger
	MaxRetries  int
	RetryDelay  time.Duration
	EventPrefix string // event id prefix, default "evt"
	AutoDeliver bool   // deliver asynchronously as events are queued
	HTTPClient  *http.Client
}

// Dispatcher queues and delivers events.
type Dispatcher struct {
	mu          sync.RWMutex
	url         string
	secret      string
	signer      Signer
	logger      *slog.Logger
	queue       []Event
	deliveries  []Delivery
	maxRetries  int
	retryDelay  time.Duration
	client      *http.Client
	eventPrefix string
	autoDeliver bool
	wg          sync.WaitGroup
}

// NewDispatcher creates a dispatcher. Without a URL events are queued and
// dropped on flush.
func NewDispatcher(cfg Config) *Dispatcher {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.EventPrefix == "" {
		cfg.EventPrefix = "evt"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Signer == nil {
		cfg.Signer = HMACSigner{}
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &Dispatcher{
		url:         cfg.URL,
		secret:      cfg.Secret,
		signer:      cfg.Signer,
		logger:      cfg.Logger,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		client:      cfg.HTTPClient,
		eventPrefix: cfg.EventPrefix,
		autoDeliver: cfg.AutoDeliver,
	}
}

// SetURL updates the delivery URL.
func (d *Dispatcher) SetURL(url string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.url = url
}

// Enqueue adds an event to the queue, or delivers it in the background when
// AutoDeliver is set.
func (d *Dispatcher) Enqueue(eventType string, data any) Event {
	evt := Event{
		ID:        d.eventPrefix + "_" + uuid.NewString(),
		Type:      eventType,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}

	d.mu.Lock()
	auto := d.autoDeliver
	if !auto {
		d.queue = append(d.queue, evt)
	}
	d.mu.Unlock()

	if auto {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.deliver(context.Background(), evt); err != nil {
				d.logger.Warn("webhook delivery failed", "event_id", evt.ID, "type", evt.Type, "error", err)
			}
		}()
	}
	return evt
}

// Flush delivers every queued event synchronously and returns the last
// delivery error. Events queued during the flush stay queued.
func (d *Dispatcher) Flush(ctx context.Context) error {
	d.mu.Lock()
	events := d.queue
	d.queue = nil
	d.mu.Unlock()

	var lastErr error
	for _, evt := range events {
		if err := d.deliver(ctx, evt); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

// FlushWebhooks implements admin.WebhookFlusher.
func (d *Dispatcher) FlushWebhooks() error {
	return d.Flush(context.Background())
}

// Wait blocks until background deliveries finish.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) deliver(ctx context.Context, evt Event) error {
	d.mu.RLock()
	url, secret, signer := d.url, d.secret, d.signer
	d.mu.RUnlock()

	if url == "" {
		d.logger.Debug("no webhook URL configured, skipping delivery", "event_id", evt.ID)
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		delivery := Delivery{EventID: evt.ID, URL: url, Attempt: attempt, Timestamp: time.Now()}

		status, err := d.post(ctx, url, payload, secret, signer)
		delivery.StatusCode = status
		switch {
		case err != nil:
			delivery.Error = err.Error()
			lastErr = err
		case status < 200 || status >= 300:
			lastErr = fmt.Errorf("webhook delivery failed: status %d", status)
			delivery.Error = lastErr.Error()
		default:
			lastErr = nil
		}
		d.record(delivery)
		if lastErr == nil {
			return nil
		}

		if attempt < d.maxRetries {
			select {
			case <-time.After(d.retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

func (d *Dispatcher) post(ctx context.Context, url string, payload []byte, secret string, signer Signer) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		for k, v := range signer.Sign(payload, secret) {
			req.Header.Set(k, v)
		}
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func (d *Dispatcher) record(delivery Delivery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery)
}

// Deliveries returns every delivery attempt.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Delivery, len(d.deliveries))
	copy(out, d.deliveries)
	return out
}

// QueuedEvents returns queued but undelivered events.
func (d *Dispatcher) QueuedEvents() []Event {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Event, len(d.queue))
	copy(out, d.queue)
	return out
}

// Snapshot returns the queue and delivery log for admin inspection.
func (d *Dispatcher) Snapshot() any {
	return map[string]any{
		"queued":     d.QueuedEvents(),
		"deliveries": d.Deliveries(),
	}
}

// Reset clears the queue and the delivery log.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queue = nil
	d.deliveries = nil
}
