// Package slack provides the Slack boundary: webhook signature verification,
// a Web API client, the OAuth token-refresh client, and Block Kit formatting
// for lead notifications.
package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"adecis_backend/platform/logger"
)

// replayWindow is the maximum accepted clock skew between the claimed
// request timestamp and the server clock.
const replayWindow = 300 * time.Second

// ContextRawBodyKey is the gin context key under which the verification
// middleware stores the raw request body for the handler.
const ContextRawBodyKey = "slackRawBody"

// Verifier validates inbound Slack webhook signatures.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier creates a Verifier for the given signing secret.
func NewVerifier(signingSecret string) *Verifier {
	return &Verifier{secret: []byte(signingSecret), now: time.Now}
}

// Verify checks the claimed timestamp and signature against the raw body.
// Requests outside the replay window and signatures that fail the
// constant-time comparison are rejected.
func (v *Verifier) Verify(timestamp, signature string, body []byte) bool {
	if timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}

	age := v.now().Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(replayWindow.Seconds()) {
		return false
	}

	mac := hmac.New(sha256.New, v.secret)
	fmt.Fprintf(mac, "v0:%s:", timestamp)
	mac.Write(body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// VerifyMiddleware reads and verifies the raw request body. On success the
// raw body is stored on the context for the handler; on failure the request
// is terminated with 401 and no further processing happens.
func VerifyMiddleware(verifier *Verifier, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			log.WebhookRejected("slack", "unreadable body", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		timestamp := c.GetHeader("X-Slack-Request-Timestamp")
		signature := c.GetHeader("X-Slack-Signature")

		if !verifier.Verify(timestamp, signature, body) {
			log.WebhookRejected("slack", "signature mismatch or stale timestamp", c.ClientIP())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}

		c.Set(ContextRawBodyKey, body)
		c.Next()
	}
}

// RawBody returns the verified request body stored by VerifyMiddleware.
func RawBody(c *gin.Context) []byte {
	value, ok := c.Get(ContextRawBodyKey)
	if !ok {
		return nil
	}
	body, _ := value.([]byte)
	return body
}
