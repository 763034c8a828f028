package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"time"

	"chainbill-backend/internal/apperr"
	"chainbill-backend/internal/nonce"

	"github.com/gin-gonic/gin"
)

// RequestWindow bounds how old (or how far ahead, for skewed clocks) a signed
// request's timestamp may be. The nonce TTL is intentionally wider, so a
// request rejected at this boundary cannot be replayed right after.
const RequestWindow = 60 * time.Second

// ReplayGuard rejects duplicate or stale mutating requests before any side
// effect. Bearer-path requests must carry a body-embedded timestamp and a
// single-use nonce; API-key requests bypass the guard (the key is a
// long-lived secret, deliberately outside replay scope).
func ReplayGuard(store nonce.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString("auth_method") == AuthMethodAPIKey {
			c.Next()
			return
		}

		buf, err := io.ReadAll(c.Request.Body)
		if err != nil {
			apperr.Abort(c, apperr.Validationf("Invalid body"))
			return
		}
		// Hand the body back for the handler's own binding.
		c.Request.Body = io.NopCloser(bytes.NewBuffer(buf))
		c.Request.ContentLength = int64(len(buf))

		var signed struct {
			Timestamp int64  `json:"timestamp"`
			Nonce     string `json:"nonce"`
		}
		if err := json.Unmarshal(buf, &signed); err != nil {
			apperr.Abort(c, apperr.Validationf("Malformed JSON"))
			return
		}
		if signed.Nonce == "" || signed.Timestamp == 0 {
			apperr.Abort(c, apperr.Validationf("Missing nonce or timestamp"))
			return
		}

		// Clients send epoch millis; tolerate seconds too.
		ts := signed.Timestamp
		if ts > 1_000_000_000_000 {
			ts /= 1000
		}
		age := time.Since(time.Unix(ts, 0))
		if age > RequestWindow || age < -RequestWindow {
			apperr.Abort(c, apperr.Replayf("Request timestamp outside acceptance window"))
			return
		}

		if !store.Reserve(signed.Nonce) {
			apperr.Abort(c, apperr.Replayf("Nonce already used"))
			return
		}

		c.Next()
	}
}
