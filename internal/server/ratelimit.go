// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"log/slog"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	sgerr "github.com/sigil-dev/securegraph/pkg/errors"
)

// RateLimitConfig configures per-client rate limiting. Authenticated
// requests are keyed by principal, anonymous ones by client IP.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained request rate per client. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int
	// MaxClients caps the number of tracked clients. Default: 10000.
	MaxClients int
}

// Validate checks the config and applies defaults.
func (c *RateLimitConfig) Validate() error {
	if c.RequestsPerSecond < 0 {
		return sgerr.Errorf(sgerr.CodeServerConfigInvalid,
			"rate limit requests per second must not be negative (got %g)", c.RequestsPerSecond)
	}
	if c.RequestsPerSecond > 0 && c.Burst <= 0 {
		return sgerr.Errorf(sgerr.CodeServerConfigInvalid,
			"rate limit burst must be positive when rate is set (got burst=%d)", c.Burst)
	}
	if c.MaxClients < 0 {
		return sgerr.Errorf(sgerr.CodeServerConfigInvalid,
			"rate limit max clients must not be negative (got %d)", c.MaxClients)
	}
	if c.MaxClients == 0 {
		c.MaxClients = 10000
	}
	return nil
}

type bucket struct {
	tokens     float64
	lastSeen   time.Time
	lastRefill time.Time
}

type limiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{cfg: cfg, now: time.Now, buckets: make(map[string]*bucket)}
}

// allow takes one token from key's bucket.
func (l *limiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{tokens: float64(l.cfg.Burst), lastRefill: now}
		l.buckets[key] = b
	}
	b.lastSeen = now

	b.tokens += now.Sub(b.lastRefill).Seconds() * l.cfg.RequestsPerSecond
	if limit := float64(l.cfg.Burst); b.tokens > limit {
		b.tokens = limit
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// sweep drops buckets idle for longer than staleAfter, then evicts the
// least recently seen ones above MaxClients. It returns the number evicted
// by the cap.
func (l *limiter) sweep(staleAfter time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	type entry struct {
		key      string
		lastSeen time.Time
	}
	entries := make([]entry, 0, len(l.buckets))
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > staleAfter {
			delete(l.buckets, key)
			continue
		}
		entries = append(entries, entry{key: key, lastSeen: b.lastSeen})
	}
	if l.cfg.MaxClients <= 0 || len(entries) <= l.cfg.MaxClients {
		return 0
	}
	slices.SortFunc(entries, func(a, b entry) int { return a.lastSeen.Compare(b.lastSeen) })
	evict := len(entries) - l.cfg.MaxClients
	for _, e := range entries[:evict] {
		delete(l.buckets, e.key)
	}
	return evict
}

func (l *limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func clientKey(r *http.Request) string {
	if user := UserFromContext(r.Context()); user != nil && !user.Anonymous {
		return "principal:" + user.Name
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

// rateLimitMiddleware enforces per-client limits on /api/ routes. The done
// channel stops the cleanup goroutine.
func rateLimitMiddleware(cfg RateLimitConfig, done <-chan struct{}, logger *slog.Logger) func(http.Handler) http.Handler {
	if cfg.RequestsPerSecond <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	l := newLimiter(cfg)

	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if evicted := l.sweep(10 * time.Minute); evicted > 0 {
					logger.Warn("rate limiter client cap enforced",
						slog.Int("evicted", evicted), slog.Int("max_clients", cfg.MaxClients))
				}
			case <-done:
				return
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.HasPrefix(r.URL.Path, "/api/") {
				next.ServeHTTP(w, r)
				return
			}
			key := clientKey(r)
			if !l.allow(key) {
				logger.Warn("rate limit exceeded", slog.String("client", key), slog.String("path", r.URL.Path))
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "1")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
