package twincore

import (
	"bytes"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const (
	// IdempotencyHeader is the request header carrying a client idempotency key.
	IdempotencyHeader = "Idempotency-Key"
	// WalletHeader names the wallet a request acts for.
	WalletHeader = "X-Wallet-Address"
)

// DefaultIdempotencyTTL bounds how long a cached response is replayed.
const DefaultIdempotencyTTL = 24 * time.Hour

// RequestLogEntry captures details of an incoming request for admin inspection.
type RequestLogEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Wallet     string            `json:"wallet,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	StatusCode int               `json:"status_code"`
	Duration   time.Duration     `json:"duration_ms"`
	RequestID  string            `json:"request_id,omitempty"`
}

// RequestLog is a thread-safe ring buffer of recent requests.
type RequestLog struct {
	mu      sync.RWMutex
	entries []RequestLogEntry
	maxSize int
}

// NewRequestLog creates a request log holding at most maxSize entries.
func NewRequestLog(maxSize int) *RequestLog {
	return &RequestLog{
		entries: make([]RequestLogEntry, 0, maxSize),
		maxSize: maxSize,
	}
}

// Add appends an entry, evicting the oldest if at capacity.
func (rl *RequestLog) Add(entry RequestLogEntry) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if len(rl.entries) >= rl.maxSize {
		rl.entries = rl.entries[1:]
	}
	rl.entries = append(rl.entries, entry)
}

// Entries returns a copy of all log entries.
func (rl *RequestLog) Entries() []RequestLogEntry {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	out := make([]RequestLogEntry, len(rl.entries))
	copy(out, rl.entries)
	return out
}

// Clear removes all entries.
func (rl *RequestLog) Clear() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.entries = rl.entries[:0]
}

// FaultConfig defines a fault injected on matching requests.
type FaultConfig struct {
	StatusCode int           `json:"status_code"`
	Body       string        `json:"body,omitempty"`
	Delay      time.Duration `json:"delay_ms,omitempty"`
	Rate       float64       `json:"rate"`             // 0.0-1.0
	Method     string        `json:"method,omitempty"` // empty matches every method
	Times      int           `json:"times,omitempty"`  // removed after this many hits, 0 never
}

// FaultRegistry manages injected faults, one per pattern. A pattern is
// either an exact path or a prefix ending in "*" (e.g. "/contract/data/*").
type FaultRegistry struct {
	mu     sync.Mutex
	faults map[string]FaultConfig
}

// NewFaultRegistry creates an empty fault registry.
func NewFaultRegistry() *FaultRegistry {
	return &FaultRegistry{faults: make(map[string]FaultConfig)}
}

// Set injects a fault for the given pattern. A zero rate means always.
func (fr *FaultRegistry) Set(pattern string, fault FaultConfig) {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	if fault.Rate == 0 {
		fault.Rate = 1.0
	}
	fault.Method = strings.ToUpper(fault.Method)
	fr.faults[pattern] = fault
}

// Remove removes the fault for the given pattern.
func (fr *FaultRegistry) Remove(pattern string) bool {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	_, existed := fr.faults[pattern]
	delete(fr.faults, pattern)
	return existed
}

// Check returns the fault that fires for a request, or nil. A fault limited
// by Times counts the hit and is dropped when exhausted.
func (fr *FaultRegistry) Check(method, path string) *FaultConfig {
	fr.mu.Lock()
	defer fr.mu.Unlock()

	pattern, ok := fr.match(method, path)
	if !ok {
		return nil
	}
	f := fr.faults[pattern]
	if f.Rate < 1.0 && rand.Float64() >= f.Rate {
		return nil
	}
	if f.Times > 0 {
		left := f
		left.Times--
		if left.Times == 0 {
			delete(fr.faults, pattern)
		} else {
			fr.faults[pattern] = left
		}
	}
	return &f
}

// match must be called with fr.mu held. An exact path wins over prefix
// patterns; among prefixes the longest wins.
func (fr *FaultRegistry) match(method, path string) (string, bool) {
	best := ""
	for pattern, f := range fr.faults {
		if f.Method != "" && f.Method != strings.ToUpper(method) {
			continue
		}
		if pattern == path {
			return pattern, true
		}
		prefix, wildcard := strings.CutSuffix(pattern, "*")
		if wildcard && strings.HasPrefix(path, prefix) && len(pattern) > len(best) {
			best = pattern
		}
	}
	return best, best != ""
}

// All returns a copy of every registered fault.
func (fr *FaultRegistry) All() map[string]FaultConfig {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	out := make(map[string]FaultConfig, len(fr.faults))
	for k, v := range fr.faults {
		out[k] = v
	}
	return out
}

// Reset clears all faults.
func (fr *FaultRegistry) Reset() {
	fr.mu.Lock()
	defer fr.mu.Unlock()
	fr.faults = make(map[string]FaultConfig)
}

// IdempotencyTracker caches responses by idempotency key for a limited time.
type IdempotencyTracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]idempotencyEntry
}

type idempotencyEntry struct {
	StatusCode int
	Body       []byte
	ExpiresAt  time.Time
}

// NewIdempotencyTracker creates an empty tracker. A non-positive ttl uses
// DefaultIdempotencyTTL.
func NewIdempotencyTracker(ttl time.Duration) *IdempotencyTracker {
	if ttl <= 0 {
		ttl = DefaultIdempotencyTTL
	}
	return &IdempotencyTracker{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]idempotencyEntry),
	}
}

// Check returns the cached response for key, or false if unseen or expired.
func (it *IdempotencyTracker) Check(key string) (int, []byte, bool) {
	it.mu.Lock()
	defer it.mu.Unlock()
	e, ok := it.entries[key]
	if !ok {
		return 0, nil, false
	}
	if !it.now().Before(e.ExpiresAt) {
		delete(it.entries, key)
		return 0, nil, false
	}
	return e.StatusCode, e.Body, true
}

// Store caches a response for key and drops expired entries.
func (it *IdempotencyTracker) Store(key string, statusCode int, body []byte) {
	it.mu.Lock()
	defer it.mu.Unlock()
	now := it.now()
	for k, e := range it.entries {
		if !now.Before(e.ExpiresAt) {
			delete(it.entries, k)
		}
	}
	it.entries[key] = idempotencyEntry{
		StatusCode: statusCode,
		Body:       bytes.Clone(body),
		ExpiresAt:  now.Add(it.ttl),
	}
}

// Keys returns the live keys, sorted.
func (it *IdempotencyTracker) Keys() []string {
	it.mu.Lock()
	defer it.mu.Unlock()
	now := it.now()
	keys := make([]string, 0, len(it.entries))
	for k, e := range it.entries {
		if now.Before(e.ExpiresAt) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// Reset clears all tracked keys.
func (it *IdempotencyTracker) Reset() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.entries = make(map[string]idempotencyEntry)
}

// Middleware provides the common middleware functions. It owns the runtime
// copy of the latency, fail rate and verbosity settings.
type Middleware struct {
	mu         sync.RWMutex
	cfg        Config
	logger     *slog.Logger
	ReqLog     *RequestLog
	Faults     *FaultRegistry
	Idempotent *IdempotencyTracker
}

// NewMiddleware creates a Middleware seeded from cfg.
func NewMiddleware(cfg *Config, logger *slog.Logger) *Middleware {
	return &Middleware{
		cfg:        *cfg,
		logger:     logger,
		ReqLog:     NewRequestLog(1000),
		Faults:     NewFaultRegistry(),
		Idempotent: NewIdempotencyTracker(DefaultIdempotencyTTL),
	}
}

func (m *Middleware) settings() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

func (m *Middleware) update(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.cfg)
}

// CORS adds permissive CORS headers.
func (m *Middleware) CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, "+IdempotencyHeader+", "+WalletHeader)
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writtenStatus is the status a handler sent, 200 when it only wrote a body
// or nothing at all.
func writtenStatus(ww chimw.WrapResponseWriter) int {
	if s := ww.Status(); s != 0 {
		return s
	}
	return http.StatusOK
}

// RequestLog records every request into the ring buffer.
func (m *Middleware) RequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		verbose := m.settings().Verbose
		entry := RequestLogEntry{
			Timestamp:  start,
			Method:     r.Method,
			Path:       r.URL.Path,
			Wallet:     r.Header.Get(WalletHeader),
			StatusCode: writtenStatus(ww),
			Duration:   time.Since(start),
			RequestID:  chimw.GetReqID(r.Context()),
		}
		if verbose {
			entry.Headers = make(map[string]string, len(r.Header))
			for k := range r.Header {
				entry.Headers[k] = r.Header.Get(k)
			}
		}
		m.ReqLog.Add(entry)

		if verbose {
			m.logger.Debug("request",
				"method", entry.Method,
				"path", entry.Path,
				"status", entry.StatusCode,
				"duration", entry.Duration,
				"wallet", entry.Wallet,
				"request_id", entry.RequestID,
			)
		}
	})
}

// sleep waits d or until the request is cancelled, reporting whether the
// full delay elapsed.
func sleep(r *http.Request, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-r.Context().Done():
		return false
	}
}

// LatencyInjection delays every request by the configured latency with
// 80-120% jitter.
func (m *Middleware) LatencyInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if latency := m.settings().Latency; latency > 0 {
			jitter := 0.8 + rand.Float64()*0.4
			if !sleep(r, time.Duration(float64(latency)*jitter)) {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RandomFailure returns 500 errors at the configured fail rate.
func (m *Middleware) RandomFailure(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if rate := m.settings().FailRate; rate > 0 && rand.Float64() < rate {
			Error(w, http.StatusInternalServerError, "simulated random failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// FaultInjection applies any matching registered fault. Mount it inside
// route groups so the admin endpoints stay reachable. A fault with a delay
// and no status only slows the request down.
func (m *Middleware) FaultInjection(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fault := m.Faults.Check(r.Method, r.URL.Path)
		if fault == nil {
			next.ServeHTTP(w, r)
			return
		}
		if fault.Delay > 0 && !sleep(r, fault.Delay) {
			return
		}
		if fault.StatusCode == 0 {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fault.StatusCode)
		if fault.Body != "" {
			fmt.Fprint(w, fault.Body)
		} else {
			fmt.Fprintf(w, `{"error":{"message":"injected fault","type":"api_error","code":%d}}`, fault.StatusCode)
		}
	})
}

// Idempotency replays the cached response for a POST that repeats an
// Idempotency-Key header. Keys are scoped to the path and the request's
// wallet. Only successful (2xx) responses are cached.
func (m *Middleware) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		cacheKey := r.URL.Path + "|" + strings.ToLower(r.Header.Get(WalletHeader)) + "|" + key
		if status, body, ok := m.Idempotent.Check(cacheKey); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(status)
			w.Write(body)
			return
		}

		var body bytes.Buffer
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)
		next.ServeHTTP(ww, r)
		if status := writtenStatus(ww); status >= 200 && status < 300 {
			m.Idempotent.Store(cacheKey, status, body.Bytes())
		}
	})
}
