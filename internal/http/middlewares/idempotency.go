package middlewares

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hospivibe/clinic/internal/idempotency"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotentReplayedHeader  = "Idempotent-Replayed"
	maxIdempotencyKeyLength   = 255
	idempotencyStoreOpTimeout = 2 * time.Second
)

type bodyCaptureWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyCaptureWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyCaptureWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency answers retries of a keyed write with the first response.
// Requests without the header pass through. Store failures are logged and
// the request proceeds unprotected.
func Idempotency(store idempotency.Store, ttl time.Duration, log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(IdempotencyKeyHeader)
		if raw == "" {
			c.Next()
			return
		}

		if len(raw) > maxIdempotencyKeyLength {
			abortWithError(c, http.StatusBadRequest, "invalid_request", "Idempotency-Key is too long")
			return
		}

		key := scopedIdempotencyKey(c, raw)
		ctx := c.Request.Context()

		won, err := store.Reserve(ctx, key, ttl)
		if err != nil {
			log.WarnContext(ctx, "idempotency reserve failed", "err", err)
			c.Next()
			return
		}

		if !won {
			rec, err := store.Get(ctx, key)
			switch {
			case err == nil && rec.State == idempotency.StateDone:
				c.Header(IdempotentReplayedHeader, "true")
				c.Data(rec.Status, rec.ContentType, rec.Body)
				c.Abort()
			case err == nil || errors.Is(err, idempotency.ErrNotFound):
				abortWithError(c, http.StatusConflict, "idempotency_in_progress", "A request with this Idempotency-Key is still being processed")
			default:
				log.WarnContext(ctx, "idempotency lookup failed", "err", err)
				c.Next()
			}
			return
		}

		// the request context may already be cancelled or timed out
		storeCtx := func() (context.Context, context.CancelFunc) {
			return context.WithTimeout(context.WithoutCancel(ctx), idempotencyStoreOpTimeout)
		}

		// Released unless a response is saved, so a panicking handler or a
		// 5xx does not pin the key as pending until the TTL runs out.
		saved := false
		defer func() {
			if saved {
				return
			}
			sctx, cancel := storeCtx()
			defer cancel()
			if err := store.Release(sctx, key); err != nil {
				log.WarnContext(sctx, "idempotency release failed", "err", err)
			}
		}()

		w := &bodyCaptureWriter{ResponseWriter: c.Writer}
		c.Writer = w

		c.Next()

		status := w.Status()
		if status >= http.StatusInternalServerError {
			return
		}

		sctx, cancel := storeCtx()
		defer cancel()

		rec := idempotency.Record{
			State:       idempotency.StateDone,
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		}
		if err := store.Save(sctx, key, rec, ttl); err != nil {
			log.WarnContext(sctx, "idempotency save failed", "err", err)
			return
		}
		saved = true
	}
}

// scopedIdempotencyKey ties a client key to the caller and the route so two
// users (or two endpoints) cannot collide on the same value.
func scopedIdempotencyKey(c *gin.Context, raw string) string {
	caller, ok := UserIDFromContext(c)
	if !ok {
		caller = KeyByIP(c)
	}

	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}

	sum := sha256.Sum256([]byte(caller + "\x00" + c.Request.Method + "\x00" + route + "\x00" + raw))
	return hex.EncodeToString(sum[:])
}
