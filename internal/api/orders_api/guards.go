package orders_api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	replayedHeader       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255

	msgTooManyRequests    = "Too many requests."
	msgRequestInProgress  = "Request with this Idempotency-Key is in progress."
	msgInvalidIdempotency = "Invalid Idempotency-Key header."
	msgIdempotencyReused  = "Idempotency-Key was already used with different parameters."
)

type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, int64, error)
}

type IdempotencyStore interface {
	Lookup(ctx context.Context, key string) ([]byte, bool, error)
	Acquire(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string, response []byte) error
	Release(ctx context.Context, key string) error
}

// Guards protect the record-creating GET endpoints. Both guards fail open:
// a Redis outage degrades to unguarded requests, not to errors.
type Guards struct {
	rl        RateLimiter
	perMinute int64
	idem      IdempotencyStore
	now       func() time.Time
}

func NewGuards(rl RateLimiter, perMinute int64, idem IdempotencyStore) *Guards {
	return &Guards{rl: rl, perMinute: perMinute, idem: idem, now: time.Now}
}

func (g *Guards) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g == nil || g.rl == nil || g.perMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		key := fmt.Sprintf("rl:orders:%s:%s", ip, g.now().UTC().Format("200601021504"))
		allowed, n, err := g.rl.Allow(r.Context(), key, g.perMinute, 70*time.Second)
		if err != nil {
			slog.Warn("rate limiter unavailable", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			slog.Warn("rate limit exceeded", "ip", ip, "count", n)
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, msgTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type storedResponse struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// requestFingerprint hashes the canonical (key-sorted) query string, so a key
// replays only for the parameters it was first used with.
func requestFingerprint(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.URL.Query().Encode()))
	return hex.EncodeToString(sum[:])
}

func (g *Guards) Idempotency(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
		if g == nil || g.idem == nil || header == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(header) > maxIdempotencyKeyLen {
			writeError(w, http.StatusBadRequest, msgInvalidIdempotency)
			return
		}

		ctx := r.Context()
		key := strings.TrimSuffix(r.URL.Path, "/") + ":" + header
		fp := requestFingerprint(r)

		if replayStored(ctx, w, g.idem, key, fp) {
			return
		}

		acquired, err := g.idem.Acquire(ctx, key)
		if err != nil {
			slog.Warn("idempotency store unavailable", "error", err.Error())
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			writeError(w, http.StatusConflict, msgRequestInProgress)
			return
		}

		// Между Lookup и Acquire первый запрос мог успеть завершиться.
		if replayStored(ctx, w, g.idem, key, fp) {
			_ = g.idem.Release(ctx, key)
			return
		}

		cw := &capturingWriter{ResponseWriter: w}
		next.ServeHTTP(cw, r)

		// The request context may already be cancelled once the client is gone.
		storeCtx := context.WithoutCancel(ctx)
		if cw.status >= 200 && cw.status < 300 {
			b, _ := json.Marshal(storedResponse{
				Fingerprint: fp,
				Status:      cw.status,
				ContentType: cw.Header().Get("Content-Type"),
				Body:        cw.buf.Bytes(),
			})
			if err := g.idem.Complete(storeCtx, key, b); err != nil {
				slog.Error("store idempotent response", "error", err.Error())
				_ = g.idem.Release(storeCtx, key)
			}
			return
		}
		if err := g.idem.Release(storeCtx, key); err != nil {
			slog.Error("release idempotency lock", "error", err.Error())
		}
	})
}

// replayStored answers from a stored response. A key reused with other
// parameters gets 422 instead of someone else's result.
func replayStored(ctx context.Context, w http.ResponseWriter, store IdempotencyStore, key, fingerprint string) bool {
	b, ok, err := store.Lookup(ctx, key)
	if err != nil || !ok {
		return false
	}
	var sr storedResponse
	if json.Unmarshal(b, &sr) != nil || sr.Status == 0 {
		return false
	}
	if sr.Fingerprint != fingerprint {
		writeError(w, http.StatusUnprocessableEntity, msgIdempotencyReused)
		return true
	}
	if sr.ContentType != "" {
		w.Header().Set("Content-Type", sr.ContentType)
	}
	w.Header().Set(replayedHeader, "true")
	w.WriteHeader(sr.Status)
	_, _ = w.Write(sr.Body)
	return true
}

type capturingWriter struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (c *capturingWriter) WriteHeader(code int) {
	if c.status == 0 {
		c.status = code
	}
	c.ResponseWriter.WriteHeader(code)
}

func (c *capturingWriter) Write(b []byte) (int, error) {
	if c.status == 0 {
		c.status = http.StatusOK
	}
	c.buf.Write(b)
	return c.ResponseWriter.Write(b)
}

// clientIP is the direct peer address. Forwarded headers are client-controlled
// and are not consulted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
