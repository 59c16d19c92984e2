package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"orderflow/internal/core/apperror"
	appctx "orderflow/internal/core/context"
	"orderflow/internal/domain/idempotency"
	"orderflow/pkg/logger"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

const maxIdempotencyBodyBytes = 1 << 20 // 1 MiB

const (
	keyIdempotencyKey   = "idempotency_key"
	keyIdempotencyStore = "idempotency_store"
)

// Idempotency replays the stored response of a mutating request retried with
// the same X-Idempotency-Key. Requests without the header pass through.
func Idempotency(store idempotency.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		default:
			c.Next()
			return
		}

		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}

		limited := io.LimitReader(c.Request.Body, maxIdempotencyBodyBytes+1)
		body, _ := io.ReadAll(limited)
		if len(body) > maxIdempotencyBodyBytes {
			appErr := apperror.NewValidation("request body too large for idempotency")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		hash := sha256.Sum256(body)

		replay, err := store.Acquire(c.Request.Context(), idempotency.Request{
			Key:         key,
			Actor:       appctx.GetActorID(c.Request.Context()),
			Operation:   c.Request.Method + " " + c.FullPath(),
			RequestHash: hex.EncodeToString(hash[:]),
		})
		if err != nil {
			if !apperror.IsAppError(err) {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
			return
		}

		if replay != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
			return
		}

		c.Set(keyIdempotencyKey, key)
		c.Set(keyIdempotencyStore, store)
		c.Next()
	}
}

// CompleteIdempotency stores the response for replay when the request holds
// an idempotency key. A nil body stores an empty response (204).
func CompleteIdempotency(c *gin.Context, status idempotency.Status, statusCode int, body any) {
	key := c.GetString(keyIdempotencyKey)
	if key == "" {
		return
	}
	v, _ := c.Get(keyIdempotencyStore)
	store, ok := v.(idempotency.Store)
	if !ok {
		return
	}

	replay := idempotency.Replay{StatusCode: statusCode}
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			logger.Error(c.Request.Context(), "encode idempotent response", "key", key, "error", err)
			return
		}
		replay.Body = raw
		replay.ContentType = "application/json; charset=utf-8"
	}

	// The key stays pending on failure and becomes reclaimable once stale.
	if err := store.Complete(c.Request.Context(), key, status, replay); err != nil {
		logger.Error(c.Request.Context(), "complete idempotency key", "key", key, "error", err)
	}
}
